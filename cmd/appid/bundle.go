package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klyr/appid/internal/bundle"
	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/engine"
)

func newBundleCmd() *cobra.Command {
	var configPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Compile the detection patterns of a config into a bundle file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.New("output path is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			var set config.PatternSet
			if cfg.Detection.Bundle != "" {
				prev, err := bundle.ReadFile(cfg.ResolvePath(cfg.Detection.Bundle))
				if err != nil {
					return fmt.Errorf("load bundle: %w", err)
				}
				set.Merge(prev.Patterns)
			}
			set.Merge(cfg.Detection.PatternSet)

			b, err := bundle.Build(set)
			if err != nil {
				return err
			}
			// Refuse to write a bundle the engine cannot compile.
			builder := engine.NewBuilder(engine.Options{})
			if err := builder.AddPatternSet(b.Patterns); err != nil {
				return err
			}
			e, err := builder.Finalize()
			if err != nil {
				return err
			}
			if err := bundle.WriteFile(outPath, b); err != nil {
				return err
			}

			stats := e.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "bundle %s written to %s (%d user agents, %d urls, %d chp apps)\n",
				b.ID, outPath, stats.UserAgents, stats.URLs, stats.CHPApps)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Bundle output path")

	return cmd
}
