// Package bundle stores a flattened pattern set as a zstd compressed
// msgpack document so a gateway can load operator signatures without the
// YAML sources and pattern files they came from.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/rules"
)

// FormatVersion is bumped on every incompatible layout change.
const FormatVersion = 1

var ErrFormatVersion = errors.New("unsupported bundle format version")

type Bundle struct {
	FormatVersion int               `msgpack:"formatVersion"`
	ID            string            `msgpack:"id"`
	CreatedAt     time.Time         `msgpack:"createdAt"`
	Patterns      config.PatternSet `msgpack:"patterns"`
}

// Build flattens set: every patternsFile entry becomes one inline entry per
// line of the file.
func Build(set config.PatternSet) (*Bundle, error) {
	flat := set
	var err error
	if flat.ContentTypes, err = flatten(set.ContentTypes); err != nil {
		return nil, fmt.Errorf("contentTypes: %w", err)
	}
	if flat.HostPayloads, err = flatten(set.HostPayloads); err != nil {
		return nil, fmt.Errorf("hostPayloads: %w", err)
	}
	if flat.UserAgents, err = flatten(set.UserAgents); err != nil {
		return nil, fmt.Errorf("userAgents: %w", err)
	}
	if flat.Via, err = flatten(set.Via); err != nil {
		return nil, fmt.Errorf("via: %w", err)
	}
	return &Bundle{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Patterns:      flat,
	}, nil
}

func flatten(specs []config.PatternSpec) ([]config.PatternSpec, error) {
	out := make([]config.PatternSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.PatternsFile == "" {
			out = append(out, spec)
			continue
		}
		lines, err := rules.ReadPatterns(spec.PatternsFile)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			entry := spec
			entry.Pattern = line
			entry.PatternsFile = ""
			out = append(out, entry)
		}
	}
	return out, nil
}

func Write(w io.Writer, b *Bundle) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	if err := msgpack.NewEncoder(enc).Encode(b); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	return enc.Close()
}

func Read(r io.Reader) (*Bundle, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	var b Bundle
	if err := msgpack.NewDecoder(dec).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrFormatVersion, b.FormatVersion)
	}
	return &b, nil
}

func WriteFile(path string, b *Bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	if err := Write(f, b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
