package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
)

// ErrNotFound is returned when no plan matches an id or ordinal.
var ErrNotFound = errors.New("plan not found")

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// Manager stores plans as documents in one directory. There is no locking:
// one process owns the directory at a time.
type Manager struct {
	dir    string
	logger *logging.Logger
}

// NewManager creates a manager for dir. The directory is created on first save.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:    dir,
		logger: logging.New().WithComponent("plan"),
	}
}

// Dir returns the plan directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create builds a pending plan and saves it.
func (m *Manager) Create(query, summary, analysis string, steps []Step, rollback []string) (*Plan, error) {
	p := New(query, summary, analysis, steps, rollback)
	if _, err := m.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes p and returns its path. The write goes through a temporary file
// so a crash never leaves a half-written plan.
func (m *Manager) Save(p *Plan) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("creating plan directory: %w", err)
	}
	path := filepath.Join(m.dir, Filename(p))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(Render(p)), 0644); err != nil {
		return "", fmt.Errorf("writing plan: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("writing plan: %w", err)
	}
	if p.Path != "" && p.Path != path {
		os.Remove(p.Path)
	}
	p.Path = path
	return path, nil
}

// Load reads the plan at path.
func (m *Manager) Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	p.Path = path
	return p, nil
}

// List returns every readable plan, newest first. Unparseable documents are skipped.
func (m *Manager) List() ([]*Plan, error) {
	paths, err := filepath.Glob(filepath.Join(m.dir, "*.md"))
	if err != nil {
		return nil, err
	}
	plans := make([]*Plan, 0, len(paths))
	for _, path := range paths {
		p, err := m.Load(path)
		if err != nil {
			m.logger.Warn("skipping unreadable plan", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		plans = append(plans, p)
	}
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].Created.Equal(plans[j].Created) {
			return plans[i].ID > plans[j].ID
		}
		return plans[i].Created.After(plans[j].Created)
	})
	return plans, nil
}

// Pending returns the pending plans in List order. Ordinals index this list.
func (m *Manager) Pending() ([]*Plan, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	var pending []*Plan
	for _, p := range all {
		if p.Status == StatusPending {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// Get returns the plan with id.
func (m *Manager) Get(id string) (*Plan, error) {
	if id == "" || strings.ContainsAny(id, `*?[\/`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	paths, err := filepath.Glob(filepath.Join(m.dir, id+"*.md"))
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		p, err := m.Load(path)
		if err == nil && p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Resolve finds a plan by id or by 1-based ordinal ("2" or "#2") into the
// pending list. The pending list is re-read on every call.
func (m *Manager) Resolve(ref string) (*Plan, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil {
		pending, err := m.Pending()
		if err != nil {
			return nil, err
		}
		if n < 1 || n > len(pending) {
			return nil, fmt.Errorf("%w: no pending plan #%d (%d pending)", ErrNotFound, n, len(pending))
		}
		return pending[n-1], nil
	}
	return m.Get(ref)
}

// UpdateStatus moves plan id to status.
func (m *Manager) UpdateStatus(id string, status Status) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if p.Status == status {
		return nil
	}
	if !p.Status.CanTransition(status) {
		return fmt.Errorf("%w: plan %s %s -> %s", ErrInvalidTransition, id, p.Status, status)
	}
	p.Status = status
	_, err = m.Save(p)
	return err
}

// UpdateStepStatus resolves a pending step of plan id.
func (m *Manager) UpdateStepStatus(id, stepID string, status StepStatus) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	step, ok := p.Step(stepID)
	if !ok {
		return fmt.Errorf("%w: plan %s has no step %s", ErrNotFound, id, stepID)
	}
	if step.Status == status {
		return nil
	}
	if step.Status.IsTerminal() || !status.IsTerminal() {
		return fmt.Errorf("%w: plan %s step %s %s -> %s", ErrInvalidTransition, id, stepID, step.Status, status)
	}
	step.Status = status
	_, err = m.Save(p)
	return err
}

// Delete removes plan id.
func (m *Manager) Delete(id string) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	return os.Remove(p.Path)
}

// DeleteCompleted removes every completed plan and returns how many were removed.
func (m *Manager) DeleteCompleted() (int, error) {
	return m.deleteWhere(func(p *Plan) bool { return p.Status == StatusCompleted })
}

// DeleteAll removes every plan and returns how many were removed.
func (m *Manager) DeleteAll() (int, error) {
	return m.deleteWhere(func(*Plan) bool { return true })
}

func (m *Manager) deleteWhere(match func(*Plan) bool) (int, error) {
	plans, err := m.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range plans {
		if !match(p) {
			continue
		}
		if err := os.Remove(p.Path); err != nil {
			return n, fmt.Errorf("deleting %s: %w", p.ID, err)
		}
		n++
	}
	return n, nil
}
