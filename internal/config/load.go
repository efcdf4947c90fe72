package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)
	cfg.resolvePatternFiles(&cfg.Detection.PatternSet, cfg.baseDir)

	for _, include := range cfg.Detection.Include {
		resolved := cfg.resolvePath(include)
		set, err := LoadPatternSet(resolved)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", include, err)
		}
		cfg.Detection.Merge(set)
	}

	return &cfg, nil
}

// LoadPatternSet reads a standalone pattern document. Pattern files it
// names are resolved against its own directory.
func LoadPatternSet(path string) (PatternSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternSet{}, fmt.Errorf("read patterns: %w", err)
	}

	var set PatternSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return PatternSet{}, fmt.Errorf("parse patterns: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return PatternSet{}, fmt.Errorf("resolve patterns path: %w", err)
	}
	(&Config{}).resolvePatternFiles(&set, filepath.Dir(absPath))
	return set, nil
}

// WatchedFiles lists the files whose change should rebuild the engine.
func (c *Config) WatchedFiles(configPath string) []string {
	files := []string{configPath}
	for _, include := range c.Detection.Include {
		files = append(files, c.resolvePath(include))
	}
	if c.Detection.Bundle != "" {
		files = append(files, c.resolvePath(c.Detection.Bundle))
	}
	for _, specs := range [][]PatternSpec{c.Detection.ContentTypes, c.Detection.HostPayloads, c.Detection.UserAgents, c.Detection.Via} {
		for _, spec := range specs {
			if spec.PatternsFile != "" {
				files = append(files, spec.PatternsFile)
			}
		}
	}
	return files
}

func (c *Config) resolvePatternFiles(set *PatternSet, base string) {
	for _, specs := range [][]PatternSpec{set.ContentTypes, set.HostPayloads, set.UserAgents, set.Via} {
		for i := range specs {
			if specs[i].PatternsFile != "" && !filepath.IsAbs(specs[i].PatternsFile) {
				specs[i].PatternsFile = filepath.Join(base, specs[i].PatternsFile)
			}
		}
	}
}

func (c *Config) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}
