// Package chp implements candidate host pattern actions: per-application
// action lists that confirm an application from its key patterns and then
// extract versions and users or rewrite request fields.
package chp

import (
	"fmt"
	"strings"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/fields"
)

// ActionKind is what an action does once its application is confirmed.
type ActionKind uint8

const (
	NoAction ActionKind = iota
	ExtractVersion
	ExtractUser
	RewriteField
	InsertField
	AlternateAppID
	HoldFlow
	GetOffsetsFromRebuilt
	DeferToSimpleDetect
	SearchUnsupported
)

var actionNames = [...]string{
	NoAction:              "no_action",
	ExtractVersion:        "extract_version",
	ExtractUser:           "extract_user",
	RewriteField:          "rewrite_field",
	InsertField:           "insert_field",
	AlternateAppID:        "alternate_appid",
	HoldFlow:              "hold_flow",
	GetOffsetsFromRebuilt: "get_offsets_from_rebuilt",
	DeferToSimpleDetect:   "defer_to_simple_detect",
	SearchUnsupported:     "search_unsupported",
}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", k)
}

// ParseAction resolves an action name.
func ParseAction(name string) (ActionKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range actionNames {
		if n == name {
			return ActionKind(k), true
		}
	}
	return NoAction, false
}

// ActionNames lists every action name.
func ActionNames() []string {
	return append([]string(nil), actionNames[:]...)
}

// countsTowardTotal reports whether a visited action of this kind counts
// toward Outcome.TotalFound on its own. Rewrites and inserts count when
// they complete.
func (k ActionKind) countsTowardTotal() bool {
	switch k {
	case AlternateAppID, RewriteField, InsertField:
		return false
	}
	return true
}

// InstanceBits is the width of the per-application instance number.
const InstanceBits = 7

// MaxInstanceNumber is the largest instance number of one application.
const MaxInstanceNumber = 1<<InstanceBits - 1

// Instance identifies one CHP profile of an application.
type Instance uint32

// MakeInstance packs an application and an instance number.
func MakeInstance(app appid.ID, n int) Instance {
	return Instance(uint32(app)<<InstanceBits | uint32(n&MaxInstanceNumber))
}

func (i Instance) AppID() appid.ID {
	return appid.ID(i >> InstanceBits)
}

func (i Instance) Number() int {
	return int(i & MaxInstanceNumber)
}

func (i Instance) String() string {
	return fmt.Sprintf("%s#%d", i.AppID(), i.Number())
}

// AppType selects which identifiers a confirmed candidate sets.
type AppType uint8

const (
	AppTypeService AppType = 1 << iota
	AppTypeClient
	AppTypePayload
)

// ParseAppType resolves "service", "client" or "payload".
func ParseAppType(name string) (AppType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "service":
		return AppTypeService, true
	case "client":
		return AppTypeClient, true
	case "payload":
		return AppTypePayload, true
	}
	return 0, false
}

// App is one application's CHP profile.
type App struct {
	Instance     Instance
	AppType      AppType
	NumMatches   int
	KeyCount     int
	KeyLengthSum int
}

// Action is one pattern of an application's action list.
type Action struct {
	Instance   Instance
	Field      fields.Type
	Pattern    []byte
	Precedence int
	Kind       ActionKind
	Data       string
	Key        bool

	app *App
}

// App returns the profile that owns the action. It is set once the action
// belongs to a built Set.
func (a *Action) App() *App {
	return a.app
}
