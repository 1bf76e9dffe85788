// Package tools provides the side-effecting operations workflow and plan steps invoke.
package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
)

// Tool is one invocable operation. Resource names what the call touches so the
// caller can ask for permission before Call runs.
type Tool interface {
	Name() string
	Action() permission.Action
	Resource(args map[string]interface{}) (string, error)
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Options configures the built-in tools.
type Options struct {
	CommandTimeout time.Duration
	HTTPTimeout    time.Duration
}

// DefaultCommandTimeout bounds bash when no timeout is configured.
const DefaultCommandTimeout = 30 * time.Second

// Registry holds the tools available to a session, rooted at one workspace.
type Registry struct {
	workspace string
	logger    *logging.Logger

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with the built-in tools.
func NewRegistry(workspace string, opts Options) *Registry {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	r := &Registry{
		workspace: filepath.Clean(workspace),
		logger:    logging.New().WithComponent("tools"),
		tools:     make(map[string]Tool),
	}
	r.Register(&readFile{r})
	r.Register(&listFiles{r})
	r.Register(&writeFile{r})
	r.Register(&modifyFile{r})
	r.Register(&deleteFile{r})
	r.Register(&bash{r: r, timeout: opts.CommandTimeout})
	r.Register(newHTTPGet(opts.HTTPTimeout))
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Workspace returns the root every path must stay inside.
func (r *Registry) Workspace() string {
	return r.workspace
}

// ResolvePath makes p absolute against the workspace and rejects anything outside it.
func (r *Registry) ResolvePath(p string) (string, error) {
	if p == "" {
		return "", faults.New(faults.KindAccessDenied, "empty path")
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.workspace, abs)
	}
	abs = filepath.Clean(abs)
	if abs != r.workspace && !strings.HasPrefix(abs, r.workspace+string(filepath.Separator)) {
		return "", faults.New(faults.KindAccessDenied, "path %s is outside the workspace %s", p, r.workspace)
	}
	return abs, nil
}

// Glob expands pattern inside the workspace. Matches come back sorted.
func (r *Registry) Glob(pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(r.workspace, pattern)
	}
	if _, err := r.ResolvePath(filepath.Dir(pattern)); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// stringArg returns a required string argument.
func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", name, v)
	}
	return s, nil
}
