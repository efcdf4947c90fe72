package chp

import (
	"sort"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/normalize"
	"github.com/klyr/appid/internal/rules"
)

// Match is one action pattern found in a field. Start is the offset of the
// first matched byte.
type Match struct {
	Action *Action
	Start  int
}

// End is one past the last matched byte.
func (m Match) End() int {
	return m.Start + len(m.Action.Pattern)
}

type tallyEntry struct {
	app       *App
	lengthSum int
	countdown int
}

// Tally counts the key patterns seen per application during one request.
type Tally struct {
	entries []tallyEntry
}

func (t *Tally) add(app *App) {
	for i := range t.entries {
		if t.entries[i].app == app {
			t.entries[i].countdown--
			return
		}
	}
	t.entries = append(t.entries, tallyEntry{app: app, lengthSum: app.KeyLengthSum, countdown: app.KeyCount - 1})
}

// Candidate returns the application whose key patterns were all seen
// exactly once and whose key patterns are the longest in total.
func (t *Tally) Candidate() (*App, bool) {
	var best *tallyEntry
	for i := range t.entries {
		e := &t.entries[i]
		if e.countdown != 0 {
			continue
		}
		if best == nil || e.lengthSum > best.lengthSum {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.app, true
}

// ScanKeys finds every action pattern of field in buf and counts key
// pattern hits in tally. The returned matches are ordered by instance, then
// precedence, then position.
func (s *Set) ScanKeys(field fields.Type, buf []byte, tally *Tally) []Match {
	return s.find(field, buf, tally)
}

func (s *Set) find(field fields.Type, buf []byte, tally *Tally) []Match {
	if s == nil || field > fields.Max || len(buf) == 0 {
		return nil
	}
	var matches []Match
	s.matchers[field].Scan(buf, func(a *Action, end int) bool {
		if tally != nil && a.Key {
			tally.add(a.app)
		}
		matches = append(matches, Match{Action: a, Start: end - len(a.Pattern)})
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Action, matches[j].Action
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		return a.Precedence < b.Precedence
	})
	return matches
}

// Options are the engine toggles consulted by Scan.
type Options struct {
	SafeSearch     bool
	UserIDDisabled bool
}

// Outcome is everything one field scan produced. It is discarded as a whole
// when the scan was deferred.
type Outcome struct {
	Found                 bool
	Deferred              bool
	TotalFound            int
	Version               string
	User                  string
	Rewritten             []byte
	AltCandidate          appid.ID
	HoldFlow              bool
	GetOffsetsFromRebuilt bool
	SkipSimpleDetect      bool
}

// Scan runs the actions of candidate on field. Key fields reuse prior, the
// matches of ScanKeys; other fields are scanned here. Extractions are
// skipped when haveVersion or haveUser report the value already known.
func (s *Set) Scan(field fields.Type, buf []byte, prior []Match, candidate Instance, haveVersion, haveUser bool, opts Options) Outcome {
	matches := prior
	if field > fields.MaxKey {
		matches = s.find(field, buf, nil)
	}

	var out Outcome
	if len(matches) == 0 {
		return out
	}

	modifyDone := false
	var pendingInsert *Match

	for i := range matches {
		m := &matches[i]
		a := m.Action
		if a.Instance > candidate {
			break
		}
		if a.Instance != candidate {
			continue
		}

		if a.Kind == DeferToSimpleDetect {
			return Outcome{Deferred: true}
		}
		if a.Kind.countsTowardTotal() {
			out.TotalFound++
		}
		out.Found = true

		switch a.Kind {
		case ExtractVersion:
			if !haveVersion && out.Version == "" {
				out.Version = rules.Truncate(extract(buf, m.End(), a.Data), rules.MaxVersionLen)
			}
			out.SkipSimpleDetect = true
		case ExtractUser:
			if !haveUser && out.User == "" && !opts.UserIDDisabled {
				user := rules.Truncate(extract(buf, m.End(), a.Data), rules.MaxVersionLen)
				out.User = normalize.PercentDecode(user)
			}
		case RewriteField:
			if !modifyDone && opts.SafeSearch && out.Rewritten == nil {
				out.Rewritten = rewrite(buf, m.Start, len(a.Pattern), a.Data)
				out.TotalFound++
				modifyDone = true
			}
		case InsertField:
			if !modifyDone && pendingInsert == nil {
				if a.Data != "" {
					pendingInsert = m
				} else {
					modifyDone = true
					out.TotalFound++
				}
			}
		case AlternateAppID:
			if id, err := appid.Parse(a.Data); err == nil {
				out.AltCandidate = id
			}
			out.SkipSimpleDetect = true
		case HoldFlow:
			out.HoldFlow = true
		case GetOffsetsFromRebuilt:
			out.GetOffsetsFromRebuilt = true
			out.HoldFlow = true
		case SearchUnsupported, NoAction:
			out.SkipSimpleDetect = true
		}
	}

	if !modifyDone && pendingInsert != nil && opts.SafeSearch && out.Rewritten == nil {
		a := pendingInsert.Action
		out.Rewritten = insert(buf, pendingInsert.End(), a.Data)
		out.TotalFound++
	}
	return out
}
