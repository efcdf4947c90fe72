package config

import "time"

type Config struct {
	ConfigVersion int             `yaml:"configVersion"`
	Server        ServerConfig    `yaml:"server"`
	Upstreams     []Upstream      `yaml:"upstreams"`
	Routes        []Route         `yaml:"routes"`
	Detection     DetectionConfig `yaml:"detection"`
	Logging       LoggingConfig   `yaml:"logging"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Watch         WatchConfig     `yaml:"watch"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	TLS            TLSConfig     `yaml:"tls"`
	MaxHeaderBytes int64         `yaml:"maxHeaderBytes"`
	Timeout        time.Duration `yaml:"timeout"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Route struct {
	Match    RouteMatch `yaml:"match"`
	Upstream string     `yaml:"upstream"`
	Mode     string     `yaml:"mode"`
}

type RouteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

// DetectionConfig carries the engine toggles and every operator pattern.
// Include files hold further PatternSet documents; Bundle points at a
// compiled pattern bundle loaded before the inline patterns.
type DetectionConfig struct {
	SafeSearch       bool     `yaml:"safeSearch"`
	UserIDDisabled   bool     `yaml:"userIdDisabled"`
	ReferredPayloads bool     `yaml:"referredPayloads"`
	Include          []string `yaml:"include"`
	Bundle           string   `yaml:"bundle"`

	PatternSet `yaml:",inline"`
}

// PatternSet is the registration surface of the detection engine in
// declarative form. Application references are registry names or numbers.
type PatternSet struct {
	ContentTypes []PatternSpec `yaml:"contentTypes,omitempty" msgpack:"contentTypes,omitempty"`
	HostPayloads []PatternSpec `yaml:"hostPayloads,omitempty" msgpack:"hostPayloads,omitempty"`
	UserAgents   []PatternSpec `yaml:"userAgents,omitempty" msgpack:"userAgents,omitempty"`
	Via          []PatternSpec `yaml:"via,omitempty" msgpack:"via,omitempty"`
	URLs         []URLSpec     `yaml:"urls,omitempty" msgpack:"urls,omitempty"`
	MediaURLs    []URLSpec     `yaml:"mediaUrls,omitempty" msgpack:"mediaUrls,omitempty"`
	CHP          []CHPAppSpec  `yaml:"chp,omitempty" msgpack:"chp,omitempty"`
}

type PatternSpec struct {
	Pattern      string `yaml:"pattern,omitempty" msgpack:"pattern,omitempty"`
	PatternsFile string `yaml:"patternsFile,omitempty" msgpack:"-"`
	App          string `yaml:"app,omitempty" msgpack:"app,omitempty"`
	Service      string `yaml:"service,omitempty" msgpack:"service,omitempty"`
	Client       string `yaml:"client,omitempty" msgpack:"client,omitempty"`
	Payload      string `yaml:"payload,omitempty" msgpack:"payload,omitempty"`
}

type URLSpec struct {
	Host    string `yaml:"host" msgpack:"host"`
	Path    string `yaml:"path,omitempty" msgpack:"path,omitempty"`
	Query   string `yaml:"query,omitempty" msgpack:"query,omitempty"`
	App     string `yaml:"app,omitempty" msgpack:"app,omitempty"`
	Service string `yaml:"service,omitempty" msgpack:"service,omitempty"`
	Client  string `yaml:"client,omitempty" msgpack:"client,omitempty"`
	Payload string `yaml:"payload,omitempty" msgpack:"payload,omitempty"`
}

type CHPAppSpec struct {
	App        string          `yaml:"app" msgpack:"app"`
	Instance   int             `yaml:"instance,omitempty" msgpack:"instance,omitempty"`
	AppType    []string        `yaml:"appType,omitempty" msgpack:"appType,omitempty"`
	NumMatches int             `yaml:"numMatches,omitempty" msgpack:"numMatches,omitempty"`
	Actions    []CHPActionSpec `yaml:"actions" msgpack:"actions"`
}

type CHPActionSpec struct {
	Field      string `yaml:"field" msgpack:"field"`
	Pattern    string `yaml:"pattern" msgpack:"pattern"`
	Precedence int    `yaml:"precedence,omitempty" msgpack:"precedence,omitempty"`
	Action     string `yaml:"action" msgpack:"action"`
	Data       string `yaml:"data,omitempty" msgpack:"data,omitempty"`
	Key        bool   `yaml:"key,omitempty" msgpack:"key,omitempty"`
}

type LoggingConfig struct {
	Level             string `yaml:"level"`
	Format            string `yaml:"format"`
	IdentificationLog string `yaml:"identificationLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

const (
	ModeEnforce = "enforce"
	ModeShadow  = "shadow"
)

// Merge appends other's patterns after s's.
func (s *PatternSet) Merge(other PatternSet) {
	s.ContentTypes = append(s.ContentTypes, other.ContentTypes...)
	s.HostPayloads = append(s.HostPayloads, other.HostPayloads...)
	s.UserAgents = append(s.UserAgents, other.UserAgents...)
	s.Via = append(s.Via, other.Via...)
	s.URLs = append(s.URLs, other.URLs...)
	s.MediaURLs = append(s.MediaURLs, other.MediaURLs...)
	s.CHP = append(s.CHP, other.CHP...)
}

// Len counts every pattern and CHP action in the set.
func (s PatternSet) Len() int {
	n := len(s.ContentTypes) + len(s.HostPayloads) + len(s.UserAgents) + len(s.Via) +
		len(s.URLs) + len(s.MediaURLs)
	for _, app := range s.CHP {
		n += len(app.Actions)
	}
	return n
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}
