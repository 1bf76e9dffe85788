// Package prompt provides terminal menus, including the interactive permission provider.
package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "cancel"),
	),
}

// Item is one menu entry.
type Item struct {
	Label string
	Hint  string
}

// Menu is a single-choice list. Digits 1-9 pick an entry directly.
type Menu struct {
	Title   string
	Detail  []string
	Warning string
	Items   []Item

	cursor   int
	chosen   bool
	canceled bool
}

// NewMenu creates a menu with the cursor on the first item.
func NewMenu(title string, items []Item) Menu {
	return Menu{Title: title, Items: items}
}

// Choice returns the selected index, or -1 if the menu was cancelled or is still open.
func (m Menu) Choice() int {
	if !m.chosen {
		return -1
	}
	return m.cursor
}

func (m Menu) Init() tea.Cmd {
	return nil
}

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, keys.Quit):
		m.canceled = true
		return m, tea.Quit
	case key.Matches(km, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, keys.Down):
		if m.cursor < len(m.Items)-1 {
			m.cursor++
		}
	case key.Matches(km, keys.Select):
		if len(m.Items) > 0 {
			m.chosen = true
			return m, tea.Quit
		}
	default:
		s := km.String()
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			idx := int(s[0] - '1')
			if idx < len(m.Items) {
				m.cursor = idx
				m.chosen = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m Menu) View() string {
	if m.chosen || m.canceled {
		return ""
	}
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.Title) + "\n")
	for _, line := range m.Detail {
		s.WriteString(detailStyle.Render(line) + "\n")
	}
	if m.Warning != "" {
		s.WriteString(warnStyle.Render(m.Warning) + "\n")
	}
	s.WriteString("\n")
	for i, it := range m.Items {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		line := fmt.Sprintf("%s%d. %s", cursor, i+1, style.Render(it.Label))
		if it.Hint != "" {
			line += " " + dimStyle.Render(it.Hint)
		}
		s.WriteString(line + "\n")
	}
	s.WriteString("\n" + dimStyle.Render("↑/↓ to move, Enter or 1-9 to select, Esc to cancel"))
	return s.String()
}

// Run shows m on the given streams and blocks until a choice is made, the menu
// is cancelled, or ctx ends. Cancellation returns -1 without error.
func Run(ctx context.Context, m Menu, in io.Reader, out io.Writer) (int, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return -1, err
	}
	return final.(Menu).Choice(), nil
}
