package rules

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/klyr/appid/internal/appid"
)

// Source is one configured signature before identifier resolution. Either
// Pattern or PatternsFile (one pattern per line) supplies the bytes.
type Source struct {
	Pattern      string
	PatternsFile string
	App          string
	Service      string
	Client       string
	Payload      string
}

// CompileSources resolves application references and expands pattern files.
func CompileSources(sources []Source, discipline Discipline) ([]Pattern, error) {
	out := make([]Pattern, 0, len(sources))
	for i, src := range sources {
		ids, err := resolveIDs(src)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}

		values := []string{src.Pattern}
		if src.PatternsFile != "" {
			values, err = ReadPatterns(src.PatternsFile)
			if err != nil {
				return nil, fmt.Errorf("pattern %d: %w", i, err)
			}
		}

		for _, value := range values {
			if value == "" {
				continue
			}
			p := ids
			p.Bytes = []byte(value)
			p.Discipline = discipline
			out = append(out, p)
		}
	}
	return out, nil
}

func resolveIDs(src Source) (Pattern, error) {
	var p Pattern
	refs := []struct {
		name string
		ref  string
		dst  *appid.ID
	}{
		{"app", src.App, &p.AppID},
		{"service", src.Service, &p.Service},
		{"client", src.Client, &p.Client},
		{"payload", src.Payload, &p.Payload},
	}
	for _, r := range refs {
		id, err := appid.Parse(r.ref)
		if err != nil {
			return Pattern{}, fmt.Errorf("%s: %w", r.name, err)
		}
		*r.dst = id
	}
	if p.AppID == appid.None {
		p.AppID = PrimaryID(p.Payload, p.Client, p.Service)
	}
	return p, nil
}

// PrimaryID picks the identifier a pattern reports when none was given:
// payload, then client, then service.
func PrimaryID(payload, client, service appid.ID) appid.ID {
	switch {
	case payload > appid.None:
		return payload
	case client > appid.None:
		return client
	default:
		return service
	}
}

// ReadPatterns loads one pattern per line, skipping blanks and # comments.
func ReadPatterns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
