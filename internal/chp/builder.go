package chp

import (
	"errors"
	"fmt"
	"sort"

	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/rules"
)

var (
	ErrUnknownApp   = errors.New("chp application not registered")
	ErrDuplicateApp = errors.New("chp application already registered")
)

// Builder collects applications and actions on one goroutine. Build turns
// them into an immutable Set.
type Builder struct {
	apps    map[Instance]*App
	actions []*Action
}

func NewBuilder() *Builder {
	return &Builder{apps: map[Instance]*App{}}
}

func (b *Builder) AddApp(inst Instance, appType AppType, numMatches int) error {
	if _, exists := b.apps[inst]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateApp, inst)
	}
	b.apps[inst] = &App{Instance: inst, AppType: appType, NumMatches: numMatches}
	return nil
}

// AddAction appends an action to its application's list. Key patterns are
// only accepted on the key fields.
func (b *Builder) AddAction(a Action) error {
	app, ok := b.apps[a.Instance]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApp, a.Instance)
	}
	if a.Field == fields.None || a.Field > fields.Max {
		return fmt.Errorf("chp %s: invalid field %d", a.Instance, a.Field)
	}
	if len(a.Pattern) == 0 {
		return fmt.Errorf("chp %s: empty pattern", a.Instance)
	}
	if a.Key && !a.Field.IsKey() {
		return fmt.Errorf("chp %s: key pattern on non-key field %s", a.Instance, a.Field)
	}

	owned := a
	owned.Pattern = append([]byte(nil), a.Pattern...)
	owned.app = app
	if owned.Key {
		app.KeyCount++
		app.KeyLengthSum += len(owned.Pattern)
	}
	b.actions = append(b.actions, &owned)
	return nil
}

// RemoveApp drops an application and every action registered for it. It
// returns the number of actions removed.
func (b *Builder) RemoveApp(inst Instance) int {
	kept := b.actions[:0]
	removed := 0
	for _, a := range b.actions {
		if a.Instance == inst {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(b.actions); i++ {
		b.actions[i] = nil
	}
	b.actions = kept
	delete(b.apps, inst)
	return removed
}

// Len reports the number of registered actions.
func (b *Builder) Len() int {
	return len(b.actions)
}

// Build compiles one matcher per field. The Builder must not be used
// afterwards.
func (b *Builder) Build() *Set {
	s := &Set{apps: b.apps}
	var perField [fields.Max + 1][]rules.Entry[*Action]
	for _, a := range b.actions {
		perField[a.Field] = append(perField[a.Field], rules.Entry[*Action]{Pattern: a.Pattern, Value: a})
	}
	for f := range perField {
		s.matchers[f] = rules.Compile(perField[f], true)
	}
	s.actions = len(b.actions)
	return s
}

// Set is the immutable compiled action list shared by all inspections.
type Set struct {
	apps     map[Instance]*App
	matchers [fields.Max + 1]*rules.Matcher[*Action]
	actions  int
}

// App looks up a registered profile.
func (s *Set) App(inst Instance) (*App, bool) {
	if s == nil {
		return nil, false
	}
	app, ok := s.apps[inst]
	return app, ok
}

// Apps returns every profile ordered by instance.
func (s *Set) Apps() []*App {
	if s == nil {
		return nil
	}
	out := make([]*App, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// Len reports the number of compiled actions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.actions
}
