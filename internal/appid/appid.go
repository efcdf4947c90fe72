// Package appid holds application identifiers and the registry boundary the
// detection engine consults for names and per-application flags.
package appid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID identifies an application, service or payload. Zero means none.
type ID int32

const None ID = 0

const (
	HTTP ID = 676

	// Version is the synthetic client used by the user-agent table for the
	// "Version" token; it never leaves the classifier.
	Version ID = 3

	InternetExplorer   ID = 1001
	Firefox            ID = 1002
	Chrome             ID = 1003
	Safari             ID = 1004
	SafariMobile       ID = 1005
	SafariMobileDummy  ID = 1006
	Opera              ID = 1007
	Konqueror          ID = 1008
	AndroidBrowser     ID = 1009
	BlackBerryBrowser  ID = 1010
	AppleEmail         ID = 1011
	WindowsMediaPlayer ID = 1012
	Wget               ID = 1013
	Curl               ID = 1014
	GoogleDesktop      ID = 1015
	Picasa             ID = 1016
	BitTorrent         ID = 1017
	Skype              ID = 1018
	SkypeAuth          ID = 1019

	Squid   ID = 1101
	ASProxy ID = 1102

	MySpace         ID = 1201
	Gmail           ID = 1202
	AOLEmail        ID = 1203
	MicrosoftUpdate ID = 1204
	YahooMail       ID = 1205
	YahooToolbar    ID = 1206
	AdobeUpdate     ID = 1207
	Hotmail         ID = 1208
	GoogleToolbar   ID = 1209

	QuickTime  ID = 1301
	MPEG       ID = 1302
	Shockwave  ID = 1303
	RSS        ID = 1304
	Atom       ID = 1305
	MP4        ID = 1306
	WMV        ID = 1307
	WMA        ID = 1308
	WAV        ID = 1309
	FlashVideo ID = 1310
	Generic    ID = 1311
)

// Flags are registry attributes of an application.
type Flags uint32

const (
	// FlagReferred marks payloads whose Referer should be identified too.
	FlagReferred Flags = 1 << iota
	FlagSearchEngine
	FlagSupportsSafeSearch
)

// Registry maps identifiers to names and flags. The engine only reads it.
type Registry interface {
	Name(id ID) string
	Flags(id ID) Flags
}

type staticEntry struct {
	name  string
	flags Flags
}

// StaticRegistry is an in-memory registry seeded with the built-in signatures.
type StaticRegistry struct {
	entries map[ID]staticEntry
	byName  map[string]ID
}

var builtin = map[ID]staticEntry{
	HTTP:               {name: "http"},
	InternetExplorer:   {name: "internet_explorer"},
	Firefox:            {name: "firefox"},
	Chrome:             {name: "chrome"},
	Safari:             {name: "safari"},
	SafariMobile:       {name: "safari_mobile"},
	SafariMobileDummy:  {name: "safari_mobile_dummy"},
	Opera:              {name: "opera"},
	Konqueror:          {name: "konqueror"},
	AndroidBrowser:     {name: "android_browser"},
	BlackBerryBrowser:  {name: "blackberry_browser"},
	AppleEmail:         {name: "apple_email"},
	WindowsMediaPlayer: {name: "windows_media_player"},
	Wget:               {name: "wget"},
	Curl:               {name: "curl"},
	GoogleDesktop:      {name: "google_desktop"},
	Picasa:             {name: "picasa"},
	BitTorrent:         {name: "bittorrent"},
	Skype:              {name: "skype"},
	SkypeAuth:          {name: "skype_auth"},
	Squid:              {name: "squid"},
	ASProxy:            {name: "asproxy"},
	MySpace:            {name: "myspace", flags: FlagReferred},
	Gmail:              {name: "gmail"},
	AOLEmail:           {name: "aol_email"},
	MicrosoftUpdate:    {name: "microsoft_update"},
	YahooMail:          {name: "yahoo_mail"},
	YahooToolbar:       {name: "yahoo_toolbar"},
	AdobeUpdate:        {name: "adobe_update"},
	Hotmail:            {name: "hotmail"},
	GoogleToolbar:      {name: "google_toolbar"},
	QuickTime:          {name: "quicktime"},
	MPEG:               {name: "mpeg"},
	Shockwave:          {name: "shockwave"},
	RSS:                {name: "rss"},
	Atom:               {name: "atom"},
	MP4:                {name: "mp4"},
	WMV:                {name: "wmv"},
	WMA:                {name: "wma"},
	WAV:                {name: "wav"},
	FlashVideo:         {name: "flash_video"},
	Generic:            {name: "generic"},
}

// NewStaticRegistry returns a registry holding the built-in applications.
func NewStaticRegistry() *StaticRegistry {
	r := &StaticRegistry{
		entries: make(map[ID]staticEntry, len(builtin)),
		byName:  make(map[string]ID, len(builtin)),
	}
	for id, e := range builtin {
		r.entries[id] = e
		r.byName[e.name] = id
	}
	return r
}

// Register adds or replaces an application. It must not be called while the
// registry is shared with running inspections.
func (r *StaticRegistry) Register(id ID, name string, flags Flags) {
	name = strings.ToLower(strings.TrimSpace(name))
	if old, ok := r.entries[id]; ok {
		delete(r.byName, old.name)
	}
	r.entries[id] = staticEntry{name: name, flags: flags}
	if name != "" {
		r.byName[name] = id
	}
}

func (r *StaticRegistry) Name(id ID) string {
	if e, ok := r.entries[id]; ok && e.name != "" {
		return e.name
	}
	if id == None {
		return ""
	}
	return strconv.Itoa(int(id))
}

func (r *StaticRegistry) Flags(id ID) Flags {
	return r.entries[id].flags
}

// Lookup resolves a registered name.
func (r *StaticRegistry) Lookup(name string) (ID, bool) {
	id, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// Names returns all registered names, sorted.
func (r *StaticRegistry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var defaultRegistry = NewStaticRegistry()

// Default is the registry of built-in applications.
func Default() *StaticRegistry {
	return defaultRegistry
}

// Parse accepts a decimal identifier or a built-in name.
func Parse(value string) (ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return None, nil
	}
	if n, err := strconv.ParseInt(value, 10, 32); err == nil {
		if n < 0 {
			return None, fmt.Errorf("application id %d is negative", n)
		}
		return ID(n), nil
	}
	if id, ok := defaultRegistry.Lookup(value); ok {
		return id, nil
	}
	return None, &UnknownNameError{Name: value}
}

// UnknownNameError reports a name missing from the built-in registry.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown application %q", e.Name)
}

func (id ID) String() string {
	return defaultRegistry.Name(id)
}
