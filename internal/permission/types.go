// Package permission decides whether a side-effecting action may proceed.
//
// A request is first classified by risk and checked against the session's tier.
// Requests the tier cannot settle are answered from remembered decisions or, on
// a miss, by a Provider. Every resolution is written to the audit log.
package permission

import (
	"fmt"
	"strings"
)

// Action is the closed set of side-effecting operations.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionModify  Action = "modify"
	ActionExecute Action = "execute-command"
	ActionNetwork Action = "network"
)

// Actions lists every action in declaration order.
var Actions = []Action{ActionRead, ActionWrite, ActionDelete, ActionModify, ActionExecute, ActionNetwork}

// ParseAction converts s to an Action. "execute" and "exec" are accepted for execute-command.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return ActionRead, nil
	case "write", "create":
		return ActionWrite, nil
	case "delete", "remove":
		return ActionDelete, nil
	case "modify", "edit":
		return ActionModify, nil
	case "execute-command", "execute", "exec", "command":
		return ActionExecute, nil
	case "network", "fetch":
		return ActionNetwork, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Risk is the escalation level of an action.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Risk classifies the action.
func (a Action) Risk() Risk {
	switch a {
	case ActionExecute, ActionDelete:
		return RiskHigh
	case ActionWrite, ActionModify, ActionNetwork:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Sensitive reports whether the action needs a decision before it runs.
func (a Action) Sensitive() bool {
	return a.Risk() != RiskLow
}

// Tier is the operator-selected strictness for a session.
type Tier string

const (
	TierRestrictive Tier = "restrictive"
	TierBalanced    Tier = "balanced"
	TierPermissive  Tier = "permissive"
)

// ParseTier converts s to a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierRestrictive:
		return TierRestrictive, nil
	case TierBalanced:
		return TierBalanced, nil
	case TierPermissive:
		return TierPermissive, nil
	}
	return "", fmt.Errorf("unknown tier %q (want restrictive, balanced or permissive)", s)
}

// Verdict is the outcome of static policy.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictAsk   Verdict = "ask"
)

// Static applies the tier table to a risk level.
func Static(tier Tier, risk Risk) Verdict {
	switch tier {
	case TierPermissive:
		return VerdictAllow
	case TierRestrictive:
		switch risk {
		case RiskHigh:
			return VerdictDeny
		case RiskMedium:
			return VerdictAsk
		}
		return VerdictAllow
	default:
		if risk == RiskLow {
			return VerdictAllow
		}
		return VerdictAsk
	}
}

// Request is one permission check.
type Request struct {
	Action   Action
	Resource string
	Details  string
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s", r.Action, r.Resource)
}

// Decision is the result of a check. Remember means later identical requests
// in this session skip the provider.
type Decision struct {
	Allowed  bool
	Remember bool
}

// Outcome is a provider's answer.
type Outcome int

const (
	AllowOnce Outcome = iota
	AllowResource
	AllowAction
	DenyOnce
	DenyResource
	DenyAction
)

var outcomeNames = map[Outcome]string{
	AllowOnce:     "allow-once",
	AllowResource: "allow-resource-forever",
	AllowAction:   "allow-action-forever",
	DenyOnce:      "deny-once",
	DenyResource:  "deny-resource-forever",
	DenyAction:    "deny-action-forever",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ParseOutcome accepts the names produced by String.
func ParseOutcome(s string) (Outcome, error) {
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Allowed reports whether the outcome permits the action.
func (o Outcome) Allowed() bool {
	return o == AllowOnce || o == AllowResource || o == AllowAction
}

// Decision converts the outcome to a Decision.
func (o Outcome) Decision() Decision {
	return Decision{Allowed: o.Allowed(), Remember: o != AllowOnce && o != DenyOnce}
}
