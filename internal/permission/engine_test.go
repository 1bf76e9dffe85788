package permission

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/vinayprograms/warden/internal/audit"
)

// recorder is an in-memory Auditor.
type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Append(e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) last() audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

func TestStatic_TierTable(t *testing.T) {
	tests := []struct {
		tier Tier
		risk Risk
		want Verdict
	}{
		{TierRestrictive, RiskHigh, VerdictDeny},
		{TierRestrictive, RiskMedium, VerdictAsk},
		{TierRestrictive, RiskLow, VerdictAllow},
		{TierBalanced, RiskHigh, VerdictAsk},
		{TierBalanced, RiskMedium, VerdictAsk},
		{TierBalanced, RiskLow, VerdictAllow},
		{TierPermissive, RiskHigh, VerdictAllow},
		{TierPermissive, RiskMedium, VerdictAllow},
		{TierPermissive, RiskLow, VerdictAllow},
	}
	for _, tt := range tests {
		if got := Static(tt.tier, tt.risk); got != tt.want {
			t.Errorf("Static(%s, %s) = %s, want %s", tt.tier, tt.risk, got, tt.want)
		}
	}
}

func TestAction_Risk(t *testing.T) {
	want := map[Action]Risk{
		ActionRead:    RiskLow,
		ActionWrite:   RiskMedium,
		ActionModify:  RiskMedium,
		ActionNetwork: RiskMedium,
		ActionDelete:  RiskHigh,
		ActionExecute: RiskHigh,
	}
	for a, r := range want {
		if a.Risk() != r {
			t.Errorf("%s: expected %s, got %s", a, r, a.Risk())
		}
	}
}

func TestEngine_RestrictiveHighRiskDeniedWithoutPrompt(t *testing.T) {
	provider := NewScripted(AllowOnce)
	rec := &recorder{}
	e := NewEngine(provider, rec)

	for _, a := range []Action{ActionExecute, ActionDelete} {
		d, err := e.Decide(context.Background(), Request{Action: a, Resource: "x"}, TierRestrictive)
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if d.Allowed || d.Remember {
			t.Errorf("%s: expected static deny, got %+v", a, d)
		}
		if rec.last().Source != audit.SourcePolicy {
			t.Errorf("%s: expected policy source, got %s", a, rec.last().Source)
		}
	}
	if len(provider.Asked()) != 0 {
		t.Errorf("provider must not be asked, saw %d requests", len(provider.Asked()))
	}
}

func TestEngine_RememberResource(t *testing.T) {
	provider := NewScripted(AllowResource)
	rec := &recorder{}
	e := NewEngine(provider, rec)
	req := Request{Action: ActionWrite, Resource: "/work/out.txt"}

	d, err := e.Decide(context.Background(), req, TierBalanced)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || !d.Remember {
		t.Fatalf("expected remembered allow, got %+v", d)
	}
	if rec.last().Source != audit.SourcePrompt {
		t.Errorf("expected prompt source, got %s", rec.last().Source)
	}

	d, err = e.Decide(context.Background(), req, TierBalanced)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("second request should be allowed from cache")
	}
	if rec.last().Source != audit.SourceCached {
		t.Errorf("expected cached source, got %s", rec.last().Source)
	}
	if n := len(provider.Asked()); n != 1 {
		t.Errorf("provider asked %d times, want 1", n)
	}

	// A different resource is not covered.
	d, _ = e.Decide(context.Background(), Request{Action: ActionWrite, Resource: "/work/other.txt"}, TierBalanced)
	if d.Allowed {
		t.Error("other resource should fall through to the exhausted script and be denied")
	}
}

func TestEngine_RememberAction(t *testing.T) {
	provider := NewScripted(DenyAction)
	rec := &recorder{}
	e := NewEngine(provider, rec)

	e.Decide(context.Background(), Request{Action: ActionNetwork, Resource: "https://a"}, TierBalanced)
	d, _ := e.Decide(context.Background(), Request{Action: ActionNetwork, Resource: "https://b"}, TierBalanced)
	if d.Allowed || !d.Remember {
		t.Errorf("expected remembered deny, got %+v", d)
	}
	if rec.last().Source != audit.SourceAlways {
		t.Errorf("expected always source, got %s", rec.last().Source)
	}
	if len(provider.Asked()) != 1 {
		t.Errorf("expected one prompt, got %d", len(provider.Asked()))
	}
}

func TestEngine_ResourceCacheBeforeActionCache(t *testing.T) {
	e := NewEngine(NewScripted(AllowAction), nil)
	ctx := context.Background()

	e.Decide(ctx, Request{Action: ActionModify, Resource: "a"}, TierBalanced)
	e.remember(Request{Action: ActionModify, Resource: "b"}, DenyResource)

	d, _ := e.Decide(ctx, Request{Action: ActionModify, Resource: "b"}, TierBalanced)
	if d.Allowed {
		t.Error("per-resource deny should take precedence over per-action allow")
	}
	d, _ = e.Decide(ctx, Request{Action: ActionModify, Resource: "c"}, TierBalanced)
	if !d.Allowed {
		t.Error("per-action allow should cover other resources")
	}
}

func TestEngine_LatestRememberedWins(t *testing.T) {
	e := NewEngine(NewScripted(AllowResource), nil)
	req := Request{Action: ActionWrite, Resource: "f"}
	e.remember(req, AllowResource)
	e.remember(req, DenyResource)

	allowed, ok := e.Remembered(ActionWrite, "f")
	if !ok || allowed {
		t.Errorf("expected remembered deny, got allowed=%v ok=%v", allowed, ok)
	}
}

func TestEngine_OnceNotCached(t *testing.T) {
	provider := NewScripted(DenyOnce, AllowOnce)
	e := NewEngine(provider, nil)
	req := Request{Action: ActionExecute, Resource: "make test"}

	d1, _ := e.Decide(context.Background(), req, TierBalanced)
	d2, _ := e.Decide(context.Background(), req, TierBalanced)
	if d1.Allowed || !d2.Allowed {
		t.Errorf("expected deny then allow, got %+v then %+v", d1, d2)
	}
	if _, ok := e.Remembered(req.Action, req.Resource); ok {
		t.Error("once outcomes must not be cached")
	}
}

func TestEngine_SessionsIsolated(t *testing.T) {
	req := Request{Action: ActionWrite, Resource: "shared"}
	a := NewEngine(NewScripted(AllowResource), nil)
	b := NewEngine(NewScripted(), nil)

	a.Decide(context.Background(), req, TierBalanced)
	d, _ := b.Decide(context.Background(), req, TierBalanced)
	if d.Allowed {
		t.Error("decision from one engine leaked into another")
	}
}

func TestEngine_ProviderError(t *testing.T) {
	boom := errors.New("terminal closed")
	e := NewEngine(ProviderFunc(func(context.Context, Request) (Outcome, error) {
		return DenyOnce, boom
	}), &recorder{})

	_, err := e.Decide(context.Background(), Request{Action: ActionWrite, Resource: "x"}, TierBalanced)
	if !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestEngine_RulesSettleAsk(t *testing.T) {
	rules, err := CompileRules([]RuleSpec{
		{Expr: `action == "write" && resource.startsWith("/tmp/")`, Effect: "allow"},
		{Expr: `risk == "high" && resource.contains("rm -rf")`, Effect: "deny"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	provider := NewScripted()
	rec := &recorder{}
	e := NewEngine(provider, rec, WithRules(rules))
	ctx := context.Background()

	d, _ := e.Decide(ctx, Request{Action: ActionWrite, Resource: "/tmp/out"}, TierBalanced)
	if !d.Allowed || d.Remember {
		t.Errorf("rule should allow statically, got %+v", d)
	}
	if rec.last().Source != audit.SourcePolicy {
		t.Errorf("expected policy source, got %s", rec.last().Source)
	}

	d, _ = e.Decide(ctx, Request{Action: ActionExecute, Resource: "rm -rf build"}, TierBalanced)
	if d.Allowed {
		t.Error("deny rule should match")
	}
	if len(provider.Asked()) != 0 {
		t.Error("rules should settle without the provider")
	}

	// Rules never loosen a static deny.
	d, _ = e.Decide(ctx, Request{Action: ActionExecute, Resource: "ls"}, TierRestrictive)
	if d.Allowed {
		t.Error("restrictive tier must deny execute-command")
	}
}

func TestCompileRules_Invalid(t *testing.T) {
	if _, err := CompileRules([]RuleSpec{{Expr: `action ==`, Effect: "allow"}}); err == nil {
		t.Error("expected compile error")
	}
	if _, err := CompileRules([]RuleSpec{{Expr: `true`, Effect: "maybe"}}); err == nil {
		t.Error("expected effect error")
	}
}

func TestEngine_WritesAuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	e := NewEngine(AlwaysDeny{}, audit.New(path))
	e.Decide(context.Background(), Request{Action: ActionRead, Resource: "a", Details: "cat a"}, TierRestrictive)
	e.Decide(context.Background(), Request{Action: ActionWrite, Resource: "b"}, TierRestrictive)

	entries, err := audit.ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Allowed || entries[0].Tier != "restrictive" || entries[0].Details != "cat a" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Allowed || entries[1].Source != audit.SourcePrompt {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestParseOutcome(t *testing.T) {
	for o := AllowOnce; o <= DenyAction; o++ {
		got, err := ParseOutcome(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOutcome(%q) = %v, %v", o.String(), got, err)
		}
	}
}

func TestEngine_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("read under restrictive is allowed without prompt or cache", prop.ForAll(
		func(resource string) bool {
			provider := NewScripted(DenyResource)
			e := NewEngine(provider, nil)
			d, err := e.Decide(context.Background(), Request{Action: ActionRead, Resource: resource}, TierRestrictive)
			_, cached := e.Remembered(ActionRead, resource)
			return err == nil && d.Allowed && !d.Remember && !cached && len(provider.Asked()) == 0
		},
		gen.AnyString(),
	))

	properties.Property("permissive always allows", prop.ForAll(
		func(idx int, resource string) bool {
			e := NewEngine(NewScripted(DenyAction), nil)
			d, err := e.Decide(context.Background(), Request{Action: Actions[idx], Resource: resource}, TierPermissive)
			return err == nil && d.Allowed
		},
		gen.IntRange(0, len(Actions)-1),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
