package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

// confirmation gates a destructive action behind a yes/no prompt. The
// owning view carries out intent only when the prompt is accepted.
type confirmation struct {
	form   *huh.Form
	ok     *bool
	intent any
}

func newConfirmation(title, desc string, intent any) *confirmation {
	ok := false
	c := &confirmation{ok: &ok, intent: intent}
	c.form = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(desc).
			Affirmative("Yes").
			Negative("No").
			Value(c.ok),
	)).WithTheme(huh.ThemeBase16()).WithShowHelp(false)
	return c
}

func (c *confirmation) Init() tea.Cmd { return c.form.Init() }

// Update feeds msg to the prompt. done is set once the prompt is answered
// or dismissed, accepted when the answer was yes.
func (c *confirmation) Update(msg tea.Msg) (done, accepted bool, cmd tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			return true, true, nil
		case "n", "N", "esc":
			return true, false, nil
		}
	}

	form, cmd := c.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		c.form = f
	}
	switch c.form.State {
	case huh.StateCompleted:
		return true, *c.ok, nil
	case huh.StateAborted:
		return true, false, nil
	}
	return false, false, cmd
}

func (c *confirmation) View() string {
	return StyleCard.Render(c.form.View())
}
