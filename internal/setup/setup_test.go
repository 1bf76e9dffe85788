package setup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/warden/internal/config"
	"github.com/vinayprograms/warden/internal/permission"
)

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWizard_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	m := New(path)
	if m.editMode {
		t.Fatal("no existing file, should not be in edit mode")
	}

	m = press(m, down, enter) // balanced -> permissive
	if m.step != StepProvider {
		t.Fatalf("expected provider step, got %d", m.step)
	}
	m = press(m, enter) // anthropic
	if m.step != StepModel || m.textInput.Value() != defaultModels[ProviderAnthropic] {
		t.Fatalf("model should be prefilled, got %q", m.textInput.Value())
	}
	m = press(m, enter, enter) // keep model, no api key
	if m.step != StepWorkspace {
		t.Fatalf("expected workspace step, got %d", m.step)
	}
	m = press(m, typed("/project"))
	m = press(m, enter)
	if m.step != StepConfirm || !strings.Contains(m.View(), "tier = \"permissive\"") {
		t.Fatalf("confirm screen should preview the file:\n%s", m.View())
	}
	m = press(m, enter)
	if m.Err() != nil {
		t.Fatal(m.Err())
	}
	if len(m.Written()) != 1 || m.Written()[0] != path {
		t.Errorf("unexpected written files %v", m.Written())
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Tier() != permission.TierPermissive {
		t.Errorf("unexpected tier %s", cfg.Tier())
	}
	if cfg.LLM.Provider != ProviderAnthropic || cfg.LLM.Model != defaultModels[ProviderAnthropic] {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.Agent.Workspace != "./project" {
		t.Errorf("unexpected workspace %q", cfg.Agent.Workspace)
	}
	if cfg.Executor.CommandTimeout != "30s" {
		t.Errorf("defaults should be written, got %q", cfg.Executor.CommandTimeout)
	}
}

func TestWizard_EditModePrefills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	cfg := config.Default()
	cfg.Permission.Tier = "restrictive"
	cfg.LLM.Provider = ProviderOpenAI
	cfg.LLM.Model = "gpt-4.1"
	data, err := Render(cfg)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, data)

	m := New(path)
	if !m.editMode || m.cursor != 0 {
		t.Fatalf("expected edit mode on restrictive, got edit=%v cursor=%d", m.editMode, m.cursor)
	}
	m = press(m, enter)
	if m.cursor != indexOf(providerOptions, ProviderOpenAI) {
		t.Errorf("provider cursor should start on openai, got %d", m.cursor)
	}
	m = press(m, enter)
	if m.textInput.Value() != "gpt-4.1" {
		t.Errorf("same provider keeps the configured model, got %q", m.textInput.Value())
	}
}

func TestWizard_LocalProviderSkipsAPIKey(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "warden.toml"))
	m = press(m, enter)
	for i := 0; i < indexOf(providerOptions, ProviderOllamaLocal); i++ {
		m = press(m, down)
	}
	m = press(m, enter, enter)
	if m.step != StepWorkspace {
		t.Errorf("local provider should skip the api key step, got %d", m.step)
	}
	if m.Config().LLM.BaseURL == "" {
		t.Error("local provider should set a base url")
	}
}

func TestWizard_EscGoesBack(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "warden.toml"))
	m = press(m, enter)
	m = press(m, esc)
	if m.step != StepTier {
		t.Errorf("esc should return to the tier step, got %d", m.step)
	}
	_, cmd := m.Update(esc)
	if cmd == nil {
		t.Error("esc on the first step should quit")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
