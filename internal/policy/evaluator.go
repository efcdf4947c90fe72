package policy

import (
	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/session"
)

type Action string

const (
	ActionAllow   Action = "allow"
	ActionRewrite Action = "rewrite"
	ActionShadow  Action = "shadow"
	ActionHold    Action = "hold"
)

// DecideAction maps a route mode and an inspected transaction to what the
// gateway does with the request. The boolean reports whether planned field
// rewrites are applied before forwarding.
func DecideAction(mode string, tx *session.Transaction) (Action, bool) {
	if tx == nil || len(tx.Rewritten) == 0 {
		if tx != nil && tx.HoldFlow {
			return ActionHold, false
		}
		return ActionAllow, false
	}

	switch mode {
	case config.ModeEnforce:
		return ActionRewrite, true
	case config.ModeShadow:
		return ActionShadow, false
	default:
		return ActionAllow, false
	}
}
