// Package plan persists multi-step courses of action as Markdown documents
// and tracks their execution state across process restarts.
package plan

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/warden/internal/permission"
)

// Status is the lifecycle state of a plan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusExecuting, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a plan in s may move to next. Approval is
// advisory, so pending may go straight to executing.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusExecuting
	case StatusApproved:
		return next == StatusExecuting
	case StatusExecuting:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// StepStatus is the state of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step has been resolved.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	return s == StepPending || s.IsTerminal()
}

// Step is one action of a plan.
type Step struct {
	ID      string
	Name    string
	Action  permission.Action
	Target  string
	Purpose string
	Risk    permission.Risk
	Status  StepStatus
}

// Plan is a persisted course of action.
type Plan struct {
	ID       string
	Created  time.Time
	Status   Status
	Query    string
	Summary  string
	Analysis string
	Steps    []Step
	Rollback []string

	// Path is the file the plan was loaded from or saved to.
	Path string
}

// New builds a pending plan. Steps are numbered from 1 and single-line fields
// are normalized so the plan survives a save and load unchanged.
func New(query, summary, analysis string, steps []Step, rollback []string) *Plan {
	p := &Plan{
		ID:       newID(),
		Created:  time.Now().UTC(),
		Status:   StatusPending,
		Query:    oneLine(query),
		Summary:  strings.TrimSpace(summary),
		Analysis: strings.TrimSpace(analysis),
	}
	for i, s := range steps {
		s.ID = strconv.Itoa(i + 1)
		s.Name = oneLine(s.Name)
		s.Target = oneLine(s.Target)
		s.Purpose = oneLine(s.Purpose)
		if s.Risk == "" {
			s.Risk = s.Action.Risk()
		}
		if s.Status == "" {
			s.Status = StepPending
		}
		p.Steps = append(p.Steps, s)
	}
	for _, r := range rollback {
		if r = oneLine(r); r != "" {
			p.Rollback = append(p.Rollback, r)
		}
	}
	return p
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Title is the first line of the summary, or the id.
func (p *Plan) Title() string {
	if line, _, _ := strings.Cut(p.Summary, "\n"); line != "" {
		return line
	}
	return p.ID
}

func newID() string {
	return "plan_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// oneLine collapses whitespace runs, newlines included, to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
