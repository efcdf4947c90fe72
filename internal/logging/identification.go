package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/session"
)

const maxEvidence = 64

// Identification is written as a single JSON object per transaction.
type Identification struct {
	Timestamp       time.Time `json:"ts"`
	ID              string    `json:"id"`
	ClientIP        string    `json:"client_ip"`
	Host            string    `json:"host"`
	Method          string    `json:"method"`
	Path            string    `json:"path"`
	RouteID         string    `json:"route_id"`
	Mode            string    `json:"mode"`
	Action          string    `json:"action"`
	StatusCode      int       `json:"status_code"`
	Service         string    `json:"service,omitempty"`
	ServiceVersion  string    `json:"service_version,omitempty"`
	Client          string    `json:"client,omitempty"`
	Version         string    `json:"version,omitempty"`
	Payload         string    `json:"payload,omitempty"`
	ReferredPayload string    `json:"referred_payload,omitempty"`
	User            string    `json:"user,omitempty"`
	ServerVendor    string    `json:"server_vendor,omitempty"`
	ServerVersion   string    `json:"server_version,omitempty"`
	CHPApp          string    `json:"chp_app,omitempty"`
	CHPMatches      int       `json:"chp_matches,omitempty"`
	Rewrites        []Rewrite `json:"rewrites,omitempty"`
	HoldFlow        bool      `json:"hold_flow,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	UpstreamMS      int64     `json:"upstream_ms"`
}

type Rewrite struct {
	Field    string `json:"field"`
	Evidence string `json:"evidence"`
}

// NewIdentification stamps a record with a fresh ID and copies what tx
// identified.
func NewIdentification(tx *session.Transaction) Identification {
	rec := Identification{
		Timestamp:       time.Now().UTC(),
		ID:              uuid.NewString(),
		Service:         name(tx.Service),
		ServiceVersion:  tx.ServiceVersion,
		Client:          name(tx.Client),
		Version:         tx.Version,
		Payload:         name(tx.Payload),
		ReferredPayload: name(tx.ReferredPayload),
		User:            tx.User,
		ServerVendor:    tx.ServerVendor,
		ServerVersion:   tx.ServerVersion,
		CHPMatches:      tx.CHPTotalFound,
		HoldFlow:        tx.HoldFlow,
	}
	if tx.CHPCandidate != 0 {
		rec.CHPApp = tx.CHPCandidate.String()
	}
	for field, value := range tx.Rewritten {
		rec.Rewrites = append(rec.Rewrites, Rewrite{Field: field.String(), Evidence: string(value)})
	}
	sort.Slice(rec.Rewrites, func(i, j int) bool { return rec.Rewrites[i].Field < rec.Rewrites[j].Field })
	return rec
}

func name(id appid.ID) string {
	if id == appid.None {
		return ""
	}
	return id.String()
}

type IdentificationLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewIdentificationLogger(w io.Writer) *IdentificationLogger {
	return &IdentificationLogger{w: w}
}

func OpenIdentificationLog(path string) (*IdentificationLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewIdentificationLogger(file), file.Close, nil
}

func (l *IdentificationLogger) Write(rec Identification) error {
	rec.Rewrites = sanitizeRewrites(rec.Rewrites)

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func sanitizeRewrites(rewrites []Rewrite) []Rewrite {
	if len(rewrites) == 0 {
		return nil
	}
	out := make([]Rewrite, len(rewrites))
	for i, rw := range rewrites {
		out[i] = rw
		if len(rw.Evidence) > maxEvidence {
			out[i].Evidence = rw.Evidence[:maxEvidence]
		}
	}
	return out
}
