// Package session holds the per-transaction identification state the engine
// fills in. A Transaction belongs to one caller and is never shared.
package session

import (
	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/fields"
)

// Transaction is the extraction state of one HTTP request/response pair.
type Transaction struct {
	Service         appid.ID
	Client          appid.ID
	Payload         appid.ID
	ReferredPayload appid.ID

	Version string
	User    string

	// ServiceVersion comes from a proxy signature such as Via.
	ServiceVersion string
	ServerVendor   string
	ServerVersion  string

	// Rewritten holds replacement field values keyed by field type.
	Rewritten map[fields.Type][]byte

	Offsets fields.Offsets

	CHPCandidate    chp.Instance
	CHPAltCandidate appid.ID
	CHPTotalFound   int
	CHPMatched      bool
	CHPFinished     bool

	HoldFlow              bool
	SkipSimpleDetect      bool
	GetOffsetsFromRebuilt bool
}

// Reset clears the transaction for reuse while keeping the rewrite map.
func (t *Transaction) Reset() {
	rewritten := t.Rewritten
	for k := range rewritten {
		delete(rewritten, k)
	}
	*t = Transaction{Rewritten: rewritten}
}

// Apply merges one field's CHP outcome. Known versions and users are kept,
// and a field keeps its first rewrite.
func (t *Transaction) Apply(field fields.Type, out chp.Outcome) {
	if t.Version == "" {
		t.Version = out.Version
	}
	if t.User == "" {
		t.User = out.User
	}
	if out.Rewritten != nil {
		if t.Rewritten == nil {
			t.Rewritten = map[fields.Type][]byte{}
		}
		if _, exists := t.Rewritten[field]; !exists {
			t.Rewritten[field] = out.Rewritten
		}
	}
	if out.AltCandidate != appid.None {
		t.CHPAltCandidate = out.AltCandidate
	}
	t.CHPTotalFound += out.TotalFound
	t.CHPMatched = t.CHPMatched || out.Found
	t.HoldFlow = t.HoldFlow || out.HoldFlow
	t.GetOffsetsFromRebuilt = t.GetOffsetsFromRebuilt || out.GetOffsetsFromRebuilt
	t.SkipSimpleDetect = t.SkipSimpleDetect || out.SkipSimpleDetect
}

// Identified reports whether any identifier was set.
func (t *Transaction) Identified() bool {
	return t.Service != appid.None || t.Client != appid.None || t.Payload != appid.None
}

// SetClient fills the client when it is still unknown.
func (t *Transaction) SetClient(id appid.ID, version string) {
	if t.Client != appid.None || id == appid.None {
		return
	}
	t.Client = id
	if t.Version == "" {
		t.Version = version
	}
}

// SetService fills the service when it is still unknown.
func (t *Transaction) SetService(id appid.ID) {
	if t.Service == appid.None {
		t.Service = id
	}
}

// SetPayload fills the payload when it is still unknown.
func (t *Transaction) SetPayload(id appid.ID) {
	if t.Payload == appid.None {
		t.Payload = id
	}
}
