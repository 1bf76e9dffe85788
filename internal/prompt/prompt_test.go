package prompt

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vinayprograms/warden/internal/permission"
)

func press(m Menu, keys ...tea.KeyMsg) Menu {
	var model tea.Model = m
	for _, k := range keys {
		model, _ = model.Update(k)
	}
	return model.(Menu)
}

func TestMenu_Navigation(t *testing.T) {
	m := NewMenu("pick", []Item{{Label: "a"}, {Label: "b"}, {Label: "c"}})

	m = press(m,
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown}, // clamped at the end
		tea.KeyMsg{Type: tea.KeyUp},
	)
	if m.Choice() != -1 {
		t.Fatal("no choice before enter")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Choice() != 1 {
		t.Errorf("expected index 1, got %d", m.Choice())
	}
}

func TestMenu_VimKeysAndDigits(t *testing.T) {
	m := NewMenu("pick", []Item{{Label: "a"}, {Label: "b"}, {Label: "c"}})
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if m.cursor != 1 {
		t.Errorf("j should move down, cursor=%d", m.cursor)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("3")})
	if m.Choice() != 2 {
		t.Errorf("digit 3 should select index 2, got %d", m.Choice())
	}

	m = NewMenu("pick", []Item{{Label: "a"}})
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("7")})
	if m.Choice() != -1 {
		t.Error("out of range digit must be ignored")
	}
}

func TestMenu_Cancel(t *testing.T) {
	m := NewMenu("pick", []Item{{Label: "a"}})
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.Choice() != -1 || !m.canceled {
		t.Error("esc should cancel without a choice")
	}
	if m.View() != "" {
		t.Error("closed menu should render nothing")
	}
}

func TestDecisionMenu(t *testing.T) {
	m := decisionMenu(permission.Request{Action: permission.ActionExecute, Resource: "rm -rf build", Details: "cleanup step"})
	view := m.View()
	for _, want := range []string{"execute-command", "rm -rf build", "cleanup step", "high-risk", "Deny this action"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if len(m.Items) != 6 {
		t.Fatalf("expected six outcomes, got %d", len(m.Items))
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})
	if decisionItems[m.Choice()].outcome != permission.DenyResource {
		t.Errorf("item 5 should be deny-resource-forever, got %s", decisionItems[m.Choice()].outcome)
	}

	low := decisionMenu(permission.Request{Action: permission.ActionWrite, Resource: "a.txt"})
	if low.Warning != "" {
		t.Error("medium risk should not carry the high-risk warning")
	}
}
