package engine

import (
	"fmt"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/bundle"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/hosturl"
	"github.com/klyr/appid/internal/rules"
)

// FromConfig builds an engine from the detection section: the bundle first,
// then the inline and included patterns.
func FromConfig(cfg *config.Config) (*Engine, error) {
	var set config.PatternSet
	if cfg.Detection.Bundle != "" {
		b, err := bundle.ReadFile(cfg.ResolvePath(cfg.Detection.Bundle))
		if err != nil {
			return nil, fmt.Errorf("load bundle: %w", err)
		}
		set.Merge(b.Patterns)
	}
	set.Merge(cfg.Detection.PatternSet)

	b := NewBuilder(Options{
		SafeSearch:       cfg.Detection.SafeSearch,
		UserIDDisabled:   cfg.Detection.UserIDDisabled,
		ReferredPayloads: cfg.Detection.ReferredPayloads,
	})
	if err := b.AddPatternSet(set); err != nil {
		return nil, err
	}
	return b.Finalize()
}

// AddPatternSet registers every entry of set.
func (b *Builder) AddPatternSet(set config.PatternSet) error {
	tables := []struct {
		name       string
		specs      []config.PatternSpec
		discipline rules.Discipline
		add        func(rules.Pattern) error
	}{
		{"contentTypes", set.ContentTypes, rules.Multiple, b.AddContentType},
		{"hostPayloads", set.HostPayloads, rules.Single, b.AddHostPayload},
		{"userAgents", set.UserAgents, rules.Multiple, b.AddUserAgent},
		{"via", set.Via, rules.Single, b.AddVia},
	}
	for _, table := range tables {
		patterns, err := rules.CompileSources(sources(table.specs), table.discipline)
		if err != nil {
			return fmt.Errorf("%s: %w", table.name, err)
		}
		for _, p := range patterns {
			if err := table.add(p); err != nil {
				return err
			}
		}
	}

	for i, spec := range set.URLs {
		p, err := urlPattern(spec)
		if err != nil {
			return fmt.Errorf("urls[%d]: %w", i, err)
		}
		if err := b.AddURL(p); err != nil {
			return err
		}
	}
	for i, spec := range set.MediaURLs {
		p, err := urlPattern(spec)
		if err != nil {
			return fmt.Errorf("mediaUrls[%d]: %w", i, err)
		}
		if err := b.AddMediaURL(p); err != nil {
			return err
		}
	}

	for i, spec := range set.CHP {
		if err := b.addCHPSpec(spec); err != nil {
			return fmt.Errorf("chp[%d]: %w", i, err)
		}
	}
	return nil
}

func (b *Builder) addCHPSpec(spec config.CHPAppSpec) error {
	id, err := appid.Parse(spec.App)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if id == appid.None {
		return fmt.Errorf("app is required")
	}
	if spec.Instance < 0 || spec.Instance > chp.MaxInstanceNumber {
		return fmt.Errorf("instance %d out of range 0..%d", spec.Instance, chp.MaxInstanceNumber)
	}
	inst := chp.MakeInstance(id, spec.Instance)

	var appType chp.AppType
	for _, name := range spec.AppType {
		t, ok := chp.ParseAppType(name)
		if !ok {
			return fmt.Errorf("unknown appType %q", name)
		}
		appType |= t
	}
	if appType == 0 {
		appType = chp.AppTypeClient
	}
	if err := b.AddCHPApp(inst, appType, spec.NumMatches); err != nil {
		return err
	}

	for j, as := range spec.Actions {
		field, ok := fields.Parse(as.Field)
		if !ok {
			return fmt.Errorf("actions[%d]: unknown field %q", j, as.Field)
		}
		kind, ok := chp.ParseAction(as.Action)
		if !ok {
			return fmt.Errorf("actions[%d]: unknown action %q", j, as.Action)
		}
		err := b.AddCHPAction(chp.Action{
			Instance:   inst,
			Field:      field,
			Pattern:    []byte(as.Pattern),
			Precedence: as.Precedence,
			Kind:       kind,
			Data:       as.Data,
			Key:        as.Key,
		})
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", j, err)
		}
	}
	return nil
}

func sources(specs []config.PatternSpec) []rules.Source {
	out := make([]rules.Source, len(specs))
	for i, s := range specs {
		out[i] = rules.Source{
			Pattern:      s.Pattern,
			PatternsFile: s.PatternsFile,
			App:          s.App,
			Service:      s.Service,
			Client:       s.Client,
			Payload:      s.Payload,
		}
	}
	return out
}

func urlPattern(spec config.URLSpec) (hosturl.Pattern, error) {
	p := hosturl.Pattern{Host: spec.Host, Path: spec.Path, Query: spec.Query}
	refs := []struct {
		name string
		ref  string
		dst  *appid.ID
	}{
		{"app", spec.App, &p.AppID},
		{"service", spec.Service, &p.Service},
		{"client", spec.Client, &p.Client},
		{"payload", spec.Payload, &p.Payload},
	}
	for _, r := range refs {
		id, err := appid.Parse(r.ref)
		if err != nil {
			return hosturl.Pattern{}, fmt.Errorf("%s: %w", r.name, err)
		}
		*r.dst = id
	}
	if p.AppID == appid.None {
		p.AppID = rules.PrimaryID(p.Payload, p.Client, p.Service)
	}
	return p, nil
}
