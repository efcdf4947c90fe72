// Package engine assembles the HTTP identification tables into one immutable
// Engine. A Builder collects registrations on a single goroutine; Finalize
// compiles them and the resulting Engine is shared by every inspection
// without locking.
package engine

import (
	"errors"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/hosturl"
	"github.com/klyr/appid/internal/rules"
	"github.com/klyr/appid/internal/useragent"
)

// ErrFinalized is returned by every registration made after Finalize.
var ErrFinalized = errors.New("engine already finalized")

// Options are the toggles supplied by the surrounding configuration.
type Options struct {
	SafeSearch       bool
	UserIDDisabled   bool
	ReferredPayloads bool
	// Registry supplies application flags; appid.Default() when nil.
	Registry appid.Registry
}

type Builder struct {
	opts Options

	contentTypes []rules.Pattern
	hostPayloads []rules.Pattern
	userAgents   []rules.Pattern
	via          []rules.Pattern
	urls         []hosturl.Pattern
	mediaURLs    []hosturl.Pattern
	chp          *chp.Builder

	finalized bool
}

// NewBuilder returns a builder seeded with the built-in signature tables.
func NewBuilder(opts Options) *Builder {
	if opts.Registry == nil {
		opts.Registry = appid.Default()
	}
	return &Builder{
		opts:         opts,
		contentTypes: rules.ContentTypePatterns(),
		hostPayloads: rules.HostPayloadPatterns(),
		via:          rules.ViaPatterns(),
		chp:          chp.NewBuilder(),
	}
}

func (b *Builder) AddContentType(p rules.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	p.Discipline = rules.Multiple
	b.contentTypes = append(b.contentTypes, p)
	return nil
}

func (b *Builder) AddHostPayload(p rules.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	p.Discipline = rules.Single
	b.hostPayloads = append(b.hostPayloads, p)
	return nil
}

func (b *Builder) AddUserAgent(p rules.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	b.userAgents = append(b.userAgents, p)
	return nil
}

func (b *Builder) AddVia(p rules.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	p.Discipline = rules.Single
	b.via = append(b.via, p)
	return nil
}

func (b *Builder) AddURL(p hosturl.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	b.urls = append(b.urls, p)
	return nil
}

// AddMediaURL registers a pattern in the media stream address space, which
// never mixes with the primary URL tree.
func (b *Builder) AddMediaURL(p hosturl.Pattern) error {
	if b.finalized {
		return ErrFinalized
	}
	b.mediaURLs = append(b.mediaURLs, p)
	return nil
}

func (b *Builder) AddCHPApp(inst chp.Instance, appType chp.AppType, numMatches int) error {
	if b.finalized {
		return ErrFinalized
	}
	return b.chp.AddApp(inst, appType, numMatches)
}

func (b *Builder) AddCHPAction(a chp.Action) error {
	if b.finalized {
		return ErrFinalized
	}
	return b.chp.AddAction(a)
}

// RemoveCHPApp drops an application and all of its actions.
func (b *Builder) RemoveCHPApp(inst chp.Instance) (int, error) {
	if b.finalized {
		return 0, ErrFinalized
	}
	return b.chp.RemoveApp(inst), nil
}

// Finalize compiles every table. The builder rejects further use.
func (b *Builder) Finalize() (*Engine, error) {
	if b.finalized {
		return nil, ErrFinalized
	}
	b.finalized = true

	// Host payload signatures also feed the URL tree, ahead of the URL
	// patterns.
	urls := make([]hosturl.Pattern, 0, len(b.hostPayloads)+len(b.urls))
	for _, p := range b.hostPayloads {
		urls = append(urls, hosturl.Pattern{
			Host:    string(p.Bytes),
			AppID:   p.AppID,
			Service: p.Service,
			Client:  p.Client,
			Payload: p.Payload,
		})
	}
	urls = append(urls, b.urls...)

	e := &Engine{
		opts:         b.opts,
		contentTypes: rules.NewTable(b.contentTypes, true),
		hostPayloads: rules.NewTable(b.hostPayloads, true),
		via:          rules.NewTable(b.via, true),
		agents:       useragent.New(b.userAgents),
		urls:         hosturl.New(urls),
		media:        hosturl.New(b.mediaURLs),
		chp:          b.chp.Build(),
	}
	e.stats = Stats{
		ContentTypes: e.contentTypes.Len(),
		HostPayloads: e.hostPayloads.Len(),
		Via:          e.via.Len(),
		UserAgents:   e.agents.Len(),
		URLs:         e.urls.Len(),
		MediaURLs:    e.media.Len(),
		CHPApps:      len(e.chp.Apps()),
		CHPActions:   e.chp.Len(),
	}
	return e, nil
}

// Engine is immutable and safe for concurrent use.
type Engine struct {
	opts Options

	contentTypes *rules.Table
	hostPayloads *rules.Table
	via          *rules.Table
	agents       *useragent.Classifier
	urls         *hosturl.Matcher
	media        *hosturl.Matcher
	chp          *chp.Set

	stats Stats
}

// Stats counts the compiled signatures per table.
type Stats struct {
	ContentTypes int `json:"content_types"`
	HostPayloads int `json:"host_payloads"`
	Via          int `json:"via"`
	UserAgents   int `json:"user_agents"`
	URLs         int `json:"urls"`
	MediaURLs    int `json:"media_urls"`
	CHPApps      int `json:"chp_apps"`
	CHPActions   int `json:"chp_actions"`
}

func (e *Engine) Stats() Stats {
	return e.stats
}

func (e *Engine) Options() Options {
	return e.opts
}

// CHP exposes the compiled action set.
func (e *Engine) CHP() *chp.Set {
	return e.chp
}
