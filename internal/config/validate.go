package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/fields"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if c.Server.Listen != "" || len(c.Routes) > 0 {
		c.validateServer(v)
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			v.Add("logging.level invalid: %v", err)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		v.Add("logging.format must be text|json")
	}
	if c.Logging.IdentificationLog != "" {
		if err := ensureWritable(c.resolvePath(c.Logging.IdentificationLog)); err != nil {
			v.Add("logging.identificationLog invalid: %v", err)
		}
	}

	if c.Watch.Debounce < 0 {
		v.Add("watch.debounce must be >= 0")
	}

	if c.Detection.Bundle != "" {
		if err := requireFile(c.resolvePath(c.Detection.Bundle)); err != nil {
			v.Add("detection.bundle invalid: %v", err)
		}
	}
	ValidatePatternSet(v, "detection", c.Detection.PatternSet)

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func (c *Config) validateServer(v *ValidationError) {
	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}
	if c.Server.MaxHeaderBytes < 0 {
		v.Add("server.maxHeaderBytes must be >= 0")
	}
	if c.Server.Timeout < 0 {
		v.Add("server.timeout must be >= 0")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		}
		if c.Server.TLS.CertFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
				v.Add("server.tls.certFile invalid: %v", err)
			}
		}
		if c.Server.TLS.KeyFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
				v.Add("server.tls.keyFile invalid: %v", err)
			}
		}
	}

	upstreamNames := map[string]struct{}{}
	for i, upstream := range c.Upstreams {
		if upstream.Name == "" {
			v.Add("upstreams[%d].name is required", i)
		} else if _, exists := upstreamNames[upstream.Name]; exists {
			v.Add("upstreams[%d].name %q is duplicated", i, upstream.Name)
		} else {
			upstreamNames[upstream.Name] = struct{}{}
		}

		if upstream.URL == "" {
			v.Add("upstreams[%d].url is required", i)
		} else if err := validateURL(upstream.URL); err != nil {
			v.Add("upstreams[%d].url invalid: %v", i, err)
		}
	}

	names := make([]string, 0, len(upstreamNames))
	for name := range upstreamNames {
		names = append(names, name)
	}
	for i, route := range c.Routes {
		if route.Match.PathPrefix == "" {
			v.Add("routes[%d].match.pathPrefix is required", i)
		}
		if route.Upstream == "" {
			v.Add("routes[%d].upstream is required", i)
		} else if _, exists := upstreamNames[route.Upstream]; !exists {
			v.Add("routes[%d].upstream %q does not exist%s", i, route.Upstream, suggest(route.Upstream, names))
		}
		switch route.Mode {
		case ModeEnforce, ModeShadow:
		default:
			v.Add("routes[%d].mode must be enforce|shadow", i)
		}
	}
}

// ValidatePatternSet records every problem of set under prefix.
func ValidatePatternSet(v *ValidationError, prefix string, set PatternSet) {
	tables := []struct {
		name  string
		specs []PatternSpec
	}{
		{"contentTypes", set.ContentTypes},
		{"hostPayloads", set.HostPayloads},
		{"userAgents", set.UserAgents},
		{"via", set.Via},
	}
	for _, table := range tables {
		for i, spec := range table.specs {
			at := fmt.Sprintf("%s.%s[%d]", prefix, table.name, i)
			switch {
			case spec.Pattern == "" && spec.PatternsFile == "":
				v.Add("%s: pattern or patternsFile is required", at)
			case spec.Pattern != "" && spec.PatternsFile != "":
				v.Add("%s: pattern and patternsFile are exclusive", at)
			case spec.PatternsFile != "":
				if err := requireFile(spec.PatternsFile); err != nil {
					v.Add("%s.patternsFile invalid: %v", at, err)
				}
			}
			validateApps(v, at, spec.App, spec.Service, spec.Client, spec.Payload)
		}
	}

	for name, urls := range map[string][]URLSpec{"urls": set.URLs, "mediaUrls": set.MediaURLs} {
		for i, spec := range urls {
			at := fmt.Sprintf("%s.%s[%d]", prefix, name, i)
			if strings.TrimSpace(spec.Host) == "" {
				v.Add("%s.host is required", at)
			}
			validateApps(v, at, spec.App, spec.Service, spec.Client, spec.Payload)
		}
	}

	instances := map[string]struct{}{}
	for i, app := range set.CHP {
		at := fmt.Sprintf("%s.chp[%d]", prefix, i)
		if app.App == "" {
			v.Add("%s.app is required", at)
		} else {
			validateApp(v, at+".app", app.App)
		}
		key := fmt.Sprintf("%s#%d", app.App, app.Instance)
		if _, exists := instances[key]; exists {
			v.Add("%s: instance %d of %q is duplicated", at, app.Instance, app.App)
		}
		instances[key] = struct{}{}

		if app.Instance < 0 || app.Instance > chp.MaxInstanceNumber {
			v.Add("%s.instance must be 0..%d", at, chp.MaxInstanceNumber)
		}
		if app.NumMatches < 0 {
			v.Add("%s.numMatches must be >= 0", at)
		}
		for _, t := range app.AppType {
			if _, ok := chp.ParseAppType(t); !ok {
				v.Add("%s.appType %q must be service|client|payload", at, t)
			}
		}
		if len(app.Actions) == 0 {
			v.Add("%s.actions is required", at)
		}

		keys := 0
		for j, action := range app.Actions {
			aat := fmt.Sprintf("%s.actions[%d]", at, j)
			field, ok := fields.Parse(action.Field)
			if !ok {
				v.Add("%s.field %q is unknown%s", aat, action.Field, suggest(action.Field, fields.Names()))
			}
			if action.Pattern == "" {
				v.Add("%s.pattern is required", aat)
			}
			kind, ok := chp.ParseAction(action.Action)
			if !ok {
				v.Add("%s.action %q is unknown%s", aat, action.Action, suggest(action.Action, chp.ActionNames()))
			}
			if action.Key {
				keys++
				if field != fields.None && !field.IsKey() {
					v.Add("%s: key patterns are only allowed on %s", aat, keyFieldNames())
				}
			}
			if kind == chp.AlternateAppID {
				validateApp(v, aat+".data", action.Data)
			}
		}
		if len(app.Actions) > 0 && keys == 0 {
			v.Add("%s: at least one action must be a key", at)
		}
	}
}

func validateApps(v *ValidationError, at, app, service, client, payload string) {
	refs := []struct {
		name string
		ref  string
	}{{"app", app}, {"service", service}, {"client", client}, {"payload", payload}}

	set := 0
	for _, r := range refs {
		if r.ref == "" {
			continue
		}
		set++
		validateApp(v, at+"."+r.name, r.ref)
	}
	if set == 0 {
		v.Add("%s: one of app, service, client or payload is required", at)
	}
}

func validateApp(v *ValidationError, at, ref string) {
	if _, err := appid.Parse(ref); err != nil {
		v.Add("%s %q is unknown%s", at, ref, suggest(ref, appid.Default().Names()))
	}
}

func keyFieldNames() string {
	var names []string
	for t := fields.UserAgent; t <= fields.MaxKey; t++ {
		names = append(names, t.String())
	}
	return strings.Join(names, "|")
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	file, err := os.CreateTemp(dir, "appid-validate-*")
	if err != nil {
		return err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
