// Package setup provides the interactive setup wizard that writes warden.toml.
package setup

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/agentkit/credentials"

	"github.com/vinayprograms/warden/internal/config"
	"github.com/vinayprograms/warden/internal/permission"
)

// Provider options
const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderGoogle      = "google"
	ProviderGroq        = "groq"
	ProviderMistral     = "mistral"
	ProviderOllamaLocal = "ollama-local"
)

// Step is one screen of the wizard.
type Step int

const (
	StepTier Step = iota
	StepProvider
	StepModel
	StepAPIKey
	StepWorkspace
	StepConfirm
	StepComplete
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type option struct {
	value string
	desc  string
}

var tierOptions = []option{
	{string(permission.TierRestrictive), "deny commands and deletes, ask for writes and network"},
	{string(permission.TierBalanced), "ask before anything but reads"},
	{string(permission.TierPermissive), "allow everything without asking"},
}

var providerOptions = []option{
	{ProviderAnthropic, "Claude models"},
	{ProviderOpenAI, "GPT models"},
	{ProviderGoogle, "Gemini models"},
	{ProviderGroq, "fast open models"},
	{ProviderMistral, "Mistral models"},
	{ProviderOllamaLocal, "local models, no API key"},
}

var defaultModels = map[string]string{
	ProviderAnthropic:   "claude-sonnet-4-5",
	ProviderOpenAI:      "gpt-4o",
	ProviderGoogle:      "gemini-2.0-flash",
	ProviderGroq:        "llama-3.3-70b-versatile",
	ProviderMistral:     "mistral-large-latest",
	ProviderOllamaLocal: "llama3.2",
}

// Model is the bubbletea model for the setup wizard.
type Model struct {
	step      Step
	cfg       *config.Config
	apiKey    string
	cursor    int
	textInput textinput.Model
	path      string
	editMode  bool
	written   []string
	err       error
}

// New creates a wizard that writes to path, prefilled from it when it exists.
func New(path string) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		step:      StepTier,
		cfg:       config.Default(),
		textInput: ti,
		path:      path,
	}
	if existing, err := config.LoadFile(path); err == nil {
		m.cfg = existing
		m.editMode = true
	}
	if m.cfg.Agent.Workspace == "" {
		m.cfg.Agent.Workspace = "."
	}
	m.cursor = indexOf(tierOptions, m.cfg.Permission.Tier)
	return m
}

// Config returns the configuration collected so far.
func (m Model) Config() *config.Config {
	return m.cfg
}

// Written returns the files written on completion.
func (m Model) Written() []string {
	return m.written
}

// Err returns the error that ended the wizard, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) isTextInputStep() bool {
	return m.step == StepModel || m.step == StepAPIKey || m.step == StepWorkspace
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.isTextInputStep() {
		if key.String() == "enter" {
			return m.handleEnter()
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "q", "esc":
		if m.step == StepTier || m.step == StepComplete {
			return m, tea.Quit
		}
		m.step--
		m.cursor = 0
		return m, nil
	case "enter":
		return m.handleEnter()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.maxCursor() {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) maxCursor() int {
	switch m.step {
	case StepTier:
		return len(tierOptions) - 1
	case StepProvider:
		return len(providerOptions) - 1
	}
	return 0
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case StepTier:
		m.cfg.Permission.Tier = tierOptions[m.cursor].value
		m.step = StepProvider
		m.cursor = indexOf(providerOptions, m.cfg.LLM.Provider)

	case StepProvider:
		provider := providerOptions[m.cursor].value
		if provider != m.cfg.LLM.Provider || m.cfg.LLM.Model == "" {
			m.cfg.LLM.Model = defaultModels[provider]
		}
		m.cfg.LLM.Provider = provider
		if provider == ProviderOllamaLocal {
			m.cfg.LLM.BaseURL = "http://localhost:11434"
		}
		m.step = StepModel
		m.resetInput(m.cfg.LLM.Model, false)

	case StepModel:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.cfg.LLM.Model = v
		}
		if m.cfg.LLM.Provider == ProviderOllamaLocal {
			m.step = StepWorkspace
			m.resetInput(m.cfg.Agent.Workspace, false)
		} else {
			m.step = StepAPIKey
			m.resetInput("", true)
		}

	case StepAPIKey:
		m.apiKey = strings.TrimSpace(m.textInput.Value())
		m.step = StepWorkspace
		m.resetInput(m.cfg.Agent.Workspace, false)

	case StepWorkspace:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.cfg.Agent.Workspace = v
		}
		m.step = StepConfirm

	case StepConfirm:
		m.written, m.err = m.writeFiles()
		m.step = StepComplete

	case StepComplete:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) resetInput(value string, secret bool) {
	m.textInput.SetValue(value)
	m.textInput.CursorEnd()
	if secret {
		m.textInput.EchoMode = textinput.EchoPassword
	} else {
		m.textInput.EchoMode = textinput.EchoNormal
	}
}

func indexOf(opts []option, value string) int {
	for i, o := range opts {
		if o.value == value {
			return i
		}
	}
	return 0
}

func (m Model) View() string {
	var s strings.Builder
	title := "warden setup"
	if m.editMode {
		title += " (editing " + m.path + ")"
	}
	s.WriteString(titleStyle.Render(title) + "\n")

	switch m.step {
	case StepTier:
		s.WriteString(subtitleStyle.Render("Permission tier") + "\n")
		s.WriteString(m.viewOptions(tierOptions))
	case StepProvider:
		s.WriteString(subtitleStyle.Render("LLM provider") + "\n")
		s.WriteString(m.viewOptions(providerOptions))
	case StepModel:
		s.WriteString(subtitleStyle.Render("Model") + "\n")
		s.WriteString(m.textInput.View() + "\n")
	case StepAPIKey:
		s.WriteString(subtitleStyle.Render("API key (leave empty to use "+config.DefaultAPIKeyEnv(m.cfg.LLM.Provider)+")") + "\n")
		s.WriteString(m.textInput.View() + "\n")
		s.WriteString(dimStyle.Render("Stored in "+credentials.DefaultPath()) + "\n")
	case StepWorkspace:
		s.WriteString(subtitleStyle.Render("Workspace directory") + "\n")
		s.WriteString(m.textInput.View() + "\n")
	case StepConfirm:
		s.WriteString(subtitleStyle.Render("Write "+m.path+"?") + "\n")
		data, _ := Render(m.cfg)
		s.WriteString(dimStyle.Render(string(data)) + "\n")
		s.WriteString(normalStyle.Render("enter to write, esc to go back") + "\n")
	case StepComplete:
		if m.err != nil {
			s.WriteString(errorStyle.Render("✗ "+m.err.Error()) + "\n")
		} else {
			for _, f := range m.written {
				s.WriteString(successStyle.Render("✓ wrote "+f) + "\n")
			}
		}
		s.WriteString(dimStyle.Render("press enter to exit") + "\n")
	}
	return s.String()
}

func (m Model) viewOptions(opts []option) string {
	var s strings.Builder
	for i, o := range opts {
		line := fmt.Sprintf("%-14s %s", o.value, dimStyle.Render(o.desc))
		if i == m.cursor {
			s.WriteString(selectedStyle.Render("> "+o.value) + strings.TrimPrefix(line, o.value) + "\n")
		} else {
			s.WriteString(normalStyle.Render("  "+line) + "\n")
		}
	}
	return s.String()
}

// Render encodes cfg as TOML under a generated-by header.
func Render(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# warden configuration\n# Generated by: warden setup\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func (m Model) writeFiles() ([]string, error) {
	data, err := Render(m.cfg)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return nil, err
	}
	files := []string{m.path}

	if m.apiKey != "" {
		creds, _, _ := credentials.Load()
		if creds == nil {
			creds = &credentials.Credentials{}
		}
		creds.SetAPIKey(m.cfg.LLM.Provider, m.apiKey)
		if err := creds.Save(); err != nil {
			return files, fmt.Errorf("failed to save credentials: %w", err)
		}
		files = append(files, credentials.DefaultPath())
	}
	return files, nil
}

// Run starts the setup wizard for path.
func Run(path string) error {
	p := tea.NewProgram(New(path))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
