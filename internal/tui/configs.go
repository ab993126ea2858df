package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
)

type configsMode int

const (
	configsList   configsMode = iota // managed files
	configsEditor                    // block editor of one file
	configsText                      // raw text of one block or the global directives
	configsForm                      // new configuration
)

// globalRow is the editor row of the global directives; block i is row i+1.
const globalRow = 0

// Confirmation intents.
type (
	deleteConfigIntent struct{ id, name string }
	deployIntent       struct{}
	removeBlockIntent  struct{ index int }
	discardIntent      struct{}
)

// ConfigsModel lists configurations and hosts the visual block editor.
type ConfigsModel struct {
	Backend Backend
	List    list.Model
	Configs []nginx.Config
	Mode    configsMode

	// Editor state. Doc is the single owner of the block list and global
	// text of the open file.
	Current  *nginx.Config
	Doc      *nginxconf.Document
	Cursor   int
	Draft    *nginxconf.UpstreamDraft
	Dirty    bool
	Text     textarea.Model
	editRow  int

	Form      *huh.Form
	newConfig *NewConfigForm
	confirm   *confirmation

	Busy   bool
	Notice string
	Err    string
	Width  int
	Height int
}

type configItem struct {
	cfg nginx.Config
}

func (i configItem) Title() string { return i.cfg.Name }

func (i configItem) Description() string {
	switch {
	case i.cfg.SymlinkCreated == nil:
		return i.cfg.Path
	case *i.cfg.SymlinkCreated:
		return i.cfg.Path + " (linked)"
	default:
		return i.cfg.Path + " (not linked)"
	}
}

func (i configItem) FilterValue() string { return i.cfg.Name }

type (
	configsListMsg struct {
		configs []nginx.Config
		err     error
	}
	configOpenedMsg struct {
		cfg *nginx.Config
		err error
	}
	configSavedMsg struct {
		cfg *nginx.Config
		err error
	}
	configCreatedMsg struct {
		cfg *nginx.Config
		err error
	}
	configDeletedMsg struct {
		id  string
		err error
	}
	configDeployedMsg struct {
		saved        *nginx.Config
		result       *nginx.DeployResult
		validateOnly bool
		err          error
	}
)

func NewConfigsModel(backend Backend) ConfigsModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Configurations"
	l.Styles.Title = StyleTitle
	l.SetStatusBarItemName("configuration", "configurations")

	ta := textarea.New()
	ta.CharLimit = 0
	ta.ShowLineNumbers = true
	ta.SetWidth(80)
	ta.SetHeight(16)

	return ConfigsModel{
		Backend: backend,
		List:    l,
		Text:    ta,
		Busy:    true,
	}
}

func (m ConfigsModel) Init() tea.Cmd {
	return m.loadList()
}

// Capturing reports whether keys must not be taken as navigation.
func (m ConfigsModel) Capturing() bool {
	return m.Mode == configsText || m.Mode == configsForm || m.confirm != nil ||
		(m.Mode == configsList && m.List.FilterState() == list.Filtering)
}

func (m ConfigsModel) Update(msg tea.Msg) (ConfigsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetSize(msg.Width-4, msg.Height-8)
		m.Text.SetWidth(max(msg.Width-8, 20))
		m.Text.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case configsListMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load configurations", msg.err)
			return m, nil
		}
		m.Configs = msg.configs
		items := make([]list.Item, len(msg.configs))
		for i, c := range msg.configs {
			items[i] = configItem{cfg: c}
		}
		return m, m.List.SetItems(items)

	case configOpenedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to load configuration", msg.err)
			return m, nil
		}
		m.openEditor(msg.cfg)
		return m, nil

	case configCreatedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to create configuration", msg.err)
			return m, nil
		}
		m.openEditor(msg.cfg)
		m.Notice = "Configuration created successfully!"
		if msg.cfg.SymlinkCreated != nil && !*msg.cfg.SymlinkCreated && msg.cfg.SymlinkCommand != "" {
			m.Notice += " Link it manually: " + msg.cfg.SymlinkCommand
		}
		return m, m.loadList()

	case configSavedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to save configuration", msg.err)
			return m, nil
		}
		m.Current = msg.cfg
		m.Dirty = false
		m.Err = ""
		m.Notice = "Configuration saved successfully!"
		return m, nil

	case configDeletedMsg:
		m.Busy = false
		if msg.err != nil {
			m.Err = errText("Failed to delete configuration", msg.err)
			return m, nil
		}
		if m.Current != nil && m.Current.ID == msg.id {
			m.closeEditor()
		}
		m.Err = ""
		m.Notice = "Configuration deleted successfully!"
		m.Busy = true
		return m, m.loadList()

	case configDeployedMsg:
		m.Busy = false
		if msg.saved != nil {
			m.Current = msg.saved
			m.Dirty = false
		}
		m.Notice, m.Err = "", ""
		switch {
		case msg.err != nil:
			m.Err = errText("Failed to deploy configuration", msg.err)
		case msg.result.Success && msg.validateOnly:
			m.Notice = "Configuration is valid"
		case msg.result.Success:
			m.Notice = strings.TrimSpace("Configuration deployed successfully! " + msg.result.Message)
		default:
			reason := msg.result.Error
			if reason == "" {
				reason = msg.result.Message
			}
			if reason == "" {
				reason = "Unknown error"
			}
			m.Err = reason
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	// Blink, filter and form messages.
	var cmd tea.Cmd
	switch {
	case m.confirm != nil:
		_, _, cmd = m.confirm.Update(msg)
	case m.Mode == configsText:
		m.Text, cmd = m.Text.Update(msg)
	case m.Mode == configsForm && m.Form != nil:
		var form tea.Model
		form, cmd = m.Form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.Form = f
		}
	case m.Mode == configsList:
		m.List, cmd = m.List.Update(msg)
	}
	return m, cmd
}

func (m ConfigsModel) updateKeys(msg tea.KeyMsg) (ConfigsModel, tea.Cmd) {
	if m.confirm != nil {
		done, accepted, cmd := m.confirm.Update(msg)
		if !done {
			return m, cmd
		}
		intent := m.confirm.intent
		m.confirm = nil
		if !accepted {
			return m, nil
		}
		return m.carryOut(intent)
	}

	switch m.Mode {
	case configsForm:
		return m.updateForm(msg)
	case configsText:
		return m.updateText(msg)
	case configsEditor:
		return m.updateEditor(msg)
	}

	if m.List.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.List, cmd = m.List.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		if item, ok := m.List.SelectedItem().(configItem); ok && !m.Busy {
			m.Busy = true
			m.Notice, m.Err = "", ""
			return m, m.open(item.cfg.ID)
		}
		return m, nil
	case "n":
		m.newConfig = &NewConfigForm{Name: "nginx.conf"}
		m.Form = AutoForm(m.newConfig)
		m.Mode = configsForm
		return m, m.Form.Init()
	case "x", "delete":
		if item, ok := m.List.SelectedItem().(configItem); ok {
			return m.ask("Delete "+item.cfg.Name+"?", "The file and its symlinks are removed.",
				deleteConfigIntent{id: item.cfg.ID, name: item.cfg.Name})
		}
		return m, nil
	case "r":
		if !m.Busy {
			m.Busy = true
			return m, m.loadList()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m ConfigsModel) updateForm(msg tea.KeyMsg) (ConfigsModel, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.Mode = configsList
		m.Form = nil
		return m, nil
	}

	form, cmd := m.Form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.Form = f
	}
	switch m.Form.State {
	case huh.StateCompleted:
		name := strings.TrimSpace(m.newConfig.Name)
		m.Mode = configsList
		m.Form = nil
		m.Busy = true
		m.Notice, m.Err = "", ""
		return m, m.create(name)
	case huh.StateAborted:
		m.Mode = configsList
		m.Form = nil
		return m, nil
	}
	return m, cmd
}

func (m ConfigsModel) updateText(msg tea.KeyMsg) (ConfigsModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Text.Blur()
		m.Mode = configsEditor
		return m, nil
	case "ctrl+s":
		text := m.Text.Value()
		m.Text.Blur()
		m.Mode = configsEditor
		if m.editRow == globalRow {
			m.Doc.EditGlobal(text)
		} else if _, err := m.Doc.EditInner(m.editRow-1, text); err != nil {
			m.Err = errText("Failed to apply edit", err)
			return m, nil
		}
		m.Dirty = true
		m.Notice, m.Err = "", ""
		return m, nil
	}

	var cmd tea.Cmd
	m.Text, cmd = m.Text.Update(msg)
	return m, cmd
}

func (m ConfigsModel) updateEditor(msg tea.KeyMsg) (ConfigsModel, tea.Cmd) {
	rows := m.Doc.Len() + 1

	switch msg.String() {
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < rows-1 {
			m.Cursor++
		}
	case "enter", "e":
		if m.Draft != nil {
			m.Err = "Commit (c) or discard (esc) the member draft first"
			return m, nil
		}
		m.editRow = m.Cursor
		if m.Cursor == globalRow {
			m.Text.SetValue(m.Doc.Global())
		} else {
			b, _ := m.Doc.Block(m.Cursor - 1)
			m.Text.SetValue(b.Inner)
		}
		m.Mode = configsText
		return m, m.Text.Focus()
	case "s":
		m.Doc.AddServer()
		m.Cursor = m.Doc.Len()
		m.Dirty = true
	case "u":
		m.Doc.AddUpstream()
		m.Cursor = m.Doc.Len()
		m.Dirty = true
	case "m":
		b, ok := m.Doc.Block(m.Cursor - 1)
		if !ok || b.Kind != nginxconf.KindUpstream {
			m.Err = "Select an upstream block to add a member"
			return m, nil
		}
		if m.draftRow() != m.Cursor {
			draft, err := m.Doc.DraftUpstream(m.Cursor - 1)
			if err != nil {
				m.Err = errText("Failed to start draft", err)
				return m, nil
			}
			m.Draft = draft
		}
		m.Draft.AddMember()
		m.Err = ""
		m.Notice = "Member added to draft (c: commit, esc: discard)"
	case "c":
		if m.Draft == nil {
			return m, nil
		}
		if _, err := m.Draft.Commit(); err != nil {
			m.Err = errText("Failed to commit draft", err)
			return m, nil
		}
		m.Draft = nil
		m.Dirty = true
		m.Notice, m.Err = "", ""
	case "x", "delete":
		if m.Cursor == globalRow {
			return m, nil
		}
		b, _ := m.Doc.Block(m.Cursor - 1)
		return m.ask("Remove "+b.Title()+"?", "The block is removed from the document; save to persist.",
			removeBlockIntent{index: m.Cursor - 1})
	case "w":
		if !m.Busy {
			m.Busy = true
			m.Notice, m.Err = "", ""
			return m, m.save()
		}
	case "v":
		if !m.Busy {
			m.Busy = true
			m.Notice, m.Err = "", ""
			return m, m.deploy(true)
		}
	case "d":
		if m.Busy {
			return m, nil
		}
		return m.ask("Deploy "+m.Current.Name+"?",
			"Unsaved changes are saved first. Nginx validates and reloads the configuration.",
			deployIntent{})
	case "D":
		return m.ask("Delete "+m.Current.Name+"?", "The file and its symlinks are removed.",
			deleteConfigIntent{id: m.Current.ID, name: m.Current.Name})
	case "esc":
		switch {
		case m.Draft != nil:
			m.Draft = nil
			m.Notice = "Draft discarded"
		case m.Dirty:
			return m.ask("Discard unsaved changes?", "", discardIntent{})
		default:
			m.closeEditor()
		}
	}
	return m, nil
}

func (m ConfigsModel) ask(title, desc string, intent any) (ConfigsModel, tea.Cmd) {
	m.confirm = newConfirmation(title, desc, intent)
	return m, m.confirm.Init()
}

func (m ConfigsModel) carryOut(intent any) (ConfigsModel, tea.Cmd) {
	m.Notice, m.Err = "", ""
	switch in := intent.(type) {
	case deleteConfigIntent:
		m.Busy = true
		return m, m.remove(in.id)
	case deployIntent:
		m.Busy = true
		return m, m.deploy(false)
	case removeBlockIntent:
		if _, err := m.Doc.RemoveBlock(in.index); err != nil {
			m.Err = errText("Failed to remove block", err)
			return m, nil
		}
		if m.Draft != nil && m.Draft.Index() < 0 {
			m.Draft = nil
		}
		m.Dirty = true
		m.Cursor = min(m.Cursor, m.Doc.Len())
	case discardIntent:
		m.closeEditor()
	}
	return m, nil
}

func (m *ConfigsModel) openEditor(cfg *nginx.Config) {
	m.Current = cfg
	m.Doc = nginxconf.NewDocument(cfg.Content)
	m.Cursor = globalRow
	m.Draft = nil
	m.Dirty = false
	m.Mode = configsEditor
	m.Notice, m.Err = "", ""
}

func (m *ConfigsModel) closeEditor() {
	m.Current = nil
	m.Doc = nil
	m.Draft = nil
	m.Dirty = false
	m.Mode = configsList
}

// --- Commands ---

func (m ConfigsModel) loadList() tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		configs, err := call("list configs", func(ctx context.Context) ([]nginx.Config, error) {
			return backend.ListConfigs(ctx)
		})
		return configsListMsg{configs: configs, err: err}
	}
}

func (m ConfigsModel) open(id string) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		cfg, err := call("get config", func(ctx context.Context) (*nginx.Config, error) {
			return backend.GetConfig(ctx, id)
		})
		return configOpenedMsg{cfg: cfg, err: err}
	}
}

func (m ConfigsModel) create(name string) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		cfg, err := call("create config", func(ctx context.Context) (*nginx.Config, error) {
			return backend.CreateConfig(ctx, name, DefaultConfigContent)
		})
		return configCreatedMsg{cfg: cfg, err: err}
	}
}

func (m ConfigsModel) save() tea.Cmd {
	backend := m.Backend
	id, content := m.Current.ID, m.Doc.Text()
	return func() tea.Msg {
		cfg, err := call("save config", func(ctx context.Context) (*nginx.Config, error) {
			return backend.UpdateConfig(ctx, id, content)
		})
		return configSavedMsg{cfg: cfg, err: err}
	}
}

func (m ConfigsModel) remove(id string) tea.Cmd {
	backend := m.Backend
	return func() tea.Msg {
		_, err := call("delete config", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, backend.DeleteConfig(ctx, id)
		})
		return configDeletedMsg{id: id, err: err}
	}
}

// deploy saves pending edits and then validates, and unless validateOnly
// reloads, the stored file.
func (m ConfigsModel) deploy(validateOnly bool) tea.Cmd {
	backend := m.Backend
	id, dirty := m.Current.ID, m.Dirty
	var content string
	if dirty {
		content = m.Doc.Text()
	}
	return func() tea.Msg {
		msg := configDeployedMsg{validateOnly: validateOnly}
		if dirty {
			msg.saved, msg.err = call("save config", func(ctx context.Context) (*nginx.Config, error) {
				return backend.UpdateConfig(ctx, id, content)
			})
			if msg.err != nil {
				return msg
			}
		}
		msg.result, msg.err = call("deploy config", func(ctx context.Context) (*nginx.DeployResult, error) {
			return backend.Deploy(ctx, id, validateOnly)
		})
		if msg.err == nil && msg.result == nil {
			msg.err = errors.New("empty deploy result")
		}
		return msg
	}
}

// --- Rendering ---

func (m ConfigsModel) rowTitle(row int) string {
	if row == globalRow {
		g := nginxconf.SummarizeGlobal(m.Doc.Global())
		return fmt.Sprintf("Global directives  workers %s, connections %s, keepalive %s",
			g.WorkerProcesses, g.WorkerConnections, g.KeepaliveTimeout)
	}

	b, _ := m.Doc.Block(row - 1)
	switch b.Kind {
	case nginxconf.KindServer:
		s := b.Server()
		title := b.Title()
		var targets []string
		for _, loc := range s.Locations {
			if loc.ProxyPass != "" {
				targets = append(targets, loc.Path+" -> "+loc.ProxyPass)
			}
		}
		if len(targets) > 0 {
			title += "  " + strings.Join(targets, ", ")
		} else if n := len(s.Locations); n > 0 {
			title += fmt.Sprintf("  %d location(s)", n)
		}
		return title
	case nginxconf.KindUpstream:
		members := b.Upstream().Members
		suffix := ""
		if m.draftRow() == row {
			members = m.Draft.Members()
			suffix = " (draft)"
		}
		return b.Title() + "  " + strings.Join(members, ", ") + suffix
	}
	return b.Title()
}

// draftRow is the editor row of the drafted upstream block, or -1.
func (m ConfigsModel) draftRow() int {
	if m.Draft == nil {
		return -1
	}
	if i := m.Draft.Index(); i >= 0 {
		return i + 1
	}
	return -1
}

func (m ConfigsModel) rowText(row int) string {
	if row == globalRow {
		if g := m.Doc.Global(); g != "" {
			return g
		}
		return "(no global directives)"
	}
	if m.draftRow() == row {
		b, _ := m.Doc.Block(row - 1)
		return b.WithInner(m.Draft.Inner).Full
	}
	b, _ := m.Doc.Block(row - 1)
	return b.Full
}

func (m ConfigsModel) View() string {
	var body string
	switch m.Mode {
	case configsForm:
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("NEW CONFIGURATION"),
			StyleCard.Render(m.Form.View()),
			StyleSubtitle.Render("Esc to cancel"),
		)
	case configsText:
		target := "global directives"
		if m.editRow != globalRow {
			b, _ := m.Doc.Block(m.editRow - 1)
			target = b.Title()
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("EDITING "+m.Current.Name+": "+target),
			m.Text.View(),
			StyleHelp.Render("ctrl+s: apply  esc: cancel"),
		)
	case configsEditor:
		body = m.editorView()
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			StyleHeader.Render("CONFIGURATIONS"),
			StyleCard.Render(m.List.View()),
			StyleHelp.Render("enter: open  n: new  x: delete  r: refresh  /: filter"),
		)
	}

	parts := []string{body}
	if m.confirm != nil {
		parts = append(parts, m.confirm.View())
	}
	if fb := feedback(m.Notice, m.Err); fb != "" {
		parts = append(parts, fb)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m ConfigsModel) editorView() string {
	title := "EDITING " + m.Current.Name
	if m.Dirty {
		title += " (modified)"
	}

	var rows []string
	for row := 0; row <= m.Doc.Len(); row++ {
		text := m.rowTitle(row)
		if row == m.Cursor {
			rows = append(rows, StyleTableRowSelected.Render("> "+text))
		} else {
			rows = append(rows, StyleTableRow.Render("  "+text))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render(title),
		StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)),
		StyleCode.Render(m.rowText(m.Cursor)),
		StyleHelp.Render("e: edit  s: add server  u: add upstream  m: add member  c: commit draft  x: remove block"),
		StyleHelp.Render("w: save  v: validate  d: deploy  D: delete  esc: back"),
	)
}
