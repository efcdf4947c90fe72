package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/klyr/appid/internal/capture"
	"github.com/klyr/appid/internal/engine"
	"github.com/klyr/appid/internal/logging"
	"github.com/klyr/appid/internal/session"
)

type scanResult struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	logging.Identification
}

func newScanCmd() *cobra.Command {
	var configPath string
	var pcapPath string
	var format string

	cmd := &cobra.Command{
		Use:   "scan [request files...]",
		Short: "Identify raw HTTP messages from files or a pcap capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pcapPath == "" && len(args) == 0 {
				return errors.New("pass request files or --pcap")
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}
			e, err := loadEngine(configPath)
			if err != nil {
				return err
			}

			var results []scanResult
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				kind, ok := capture.Classify(data)
				if !ok {
					return fmt.Errorf("%s: not an HTTP request or response", path)
				}
				results = append(results, inspect(e, path, kind, data))
			}
			if pcapPath != "" {
				_, err := capture.ReadFile(cmd.Context(), pcapPath, func(m capture.Message) error {
					results = append(results, inspect(e, m.Src+" > "+m.Dst, m.Kind, m.Payload))
					return nil
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
			}

			if format == "json" {
				return writeJSONLines(cmd.OutOrStdout(), results)
			}
			renderScan(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (built-in signatures only when empty)")
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "Path to a pcap capture")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")

	return cmd
}

// inspect identifies one message on its own transaction. Responses are not
// paired with their requests.
func inspect(e *engine.Engine, source string, kind capture.Kind, data []byte) scanResult {
	tx := &session.Transaction{}
	if kind == capture.Response {
		e.InspectResponse(data, tx)
	} else {
		e.Inspect(data, tx)
	}
	return scanResult{Source: source, Kind: kind.String(), Identification: logging.NewIdentification(tx)}
}

func writeJSONLines(w io.Writer, results []scanResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func renderScan(w io.Writer, results []scanResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Kind", "Service", "Client", "Version", "Payload", "User", "Rewrites"})
	for _, r := range results {
		fieldsRewritten := make([]string, 0, len(r.Rewrites))
		for _, rw := range r.Rewrites {
			fieldsRewritten = append(fieldsRewritten, rw.Field)
		}
		service := r.Service
		if r.ServiceVersion != "" {
			service += " " + r.ServiceVersion
		}
		t.AppendRow(table.Row{r.Source, r.Kind, service, r.Client, r.Version, r.Payload, r.User, strings.Join(fieldsRewritten, ",")})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(results)})
	t.Render()
}
