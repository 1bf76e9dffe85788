package permission

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// RuleSpec is the configured form of a rule.
type RuleSpec struct {
	Expr   string `toml:"expr"`
	Effect string `toml:"effect"` // allow | deny
}

// Rule is a compiled CEL expression that settles a request the tier table
// would otherwise ask about.
type Rule struct {
	expr  string
	allow bool
	prg   cel.Program
}

// Expr returns the rule's source expression.
func (r *Rule) Expr() string { return r.expr }

// Allow reports the rule's effect.
func (r *Rule) Allow() bool { return r.allow }

// CompileRules compiles specs against the request variables action, resource,
// details and risk, all strings.
func CompileRules(specs []RuleSpec) ([]*Rule, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("details", cel.StringType),
		cel.Variable("risk", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	rules := make([]*Rule, 0, len(specs))
	for i, spec := range specs {
		var allow bool
		switch strings.ToLower(spec.Effect) {
		case "allow":
			allow = true
		case "deny":
		default:
			return nil, fmt.Errorf("rule %d: effect must be allow or deny, got %q", i, spec.Effect)
		}

		ast, issues := env.Compile(spec.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d: compile: %w", i, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %d: program: %w", i, err)
		}
		rules = append(rules, &Rule{expr: spec.Expr, allow: allow, prg: prg})
	}
	return rules, nil
}

// Match evaluates the rule against req.
func (r *Rule) Match(req Request) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{
		"action":   string(req.Action),
		"resource": req.Resource,
		"details":  req.Details,
		"risk":     string(req.Action.Risk()),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
