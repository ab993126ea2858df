package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
)

const siteConf = `worker_processes 2;

server {
    listen 80;
    server_name example.org;
    location / {
        proxy_pass http://backend;
    }
}
`

// openSite loads siteConf into an editor.
func openSite(t *testing.T) (ConfigsModel, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	_, err := backend.CreateConfig(context.Background(), "site.conf", siteConf)
	require.NoError(t, err)

	m := NewConfigsModel(backend)
	m, _ = m.Update(run(t, m.Init()))
	require.Len(t, m.Configs, 1)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(run(t, cmd))
	require.Equal(t, configsEditor, m.Mode)
	require.Equal(t, 1, m.Doc.Len())
	return m, backend
}

func TestConfigs_OpenEditor(t *testing.T) {
	m, _ := openSite(t)

	assert.Equal(t, "site.conf", m.Current.Name)
	assert.Equal(t, globalRow, m.Cursor)
	assert.False(t, m.Dirty)
	assert.Contains(t, m.rowTitle(globalRow), "workers 2")
	assert.Contains(t, m.rowTitle(1), "/ -> http://backend")
}

func TestConfigs_UpstreamDraft(t *testing.T) {
	m, backend := openSite(t)

	m, _ = m.Update(keyRunes("u"))
	assert.True(t, m.Dirty)
	assert.Equal(t, 2, m.Cursor)

	// Members go to the draft until committed.
	m, _ = m.Update(keyRunes("m"))
	require.NotNil(t, m.Draft)
	b, _ := m.Doc.Block(1)
	assert.Len(t, b.Upstream().Members, 2)
	assert.Len(t, m.Draft.Members(), 3)
	assert.Contains(t, m.rowTitle(2), "(draft)")

	m, _ = m.Update(keyRunes("c"))
	assert.Nil(t, m.Draft)
	b, _ = m.Doc.Block(1)
	assert.Equal(t, []string{"127.0.0.1:8080", "127.0.0.1:8081", "127.0.0.1:8080"}, b.Upstream().Members)

	m, cmd := m.Update(keyRunes("w"))
	m, _ = m.Update(run(t, cmd))
	assert.False(t, m.Dirty)
	assert.Equal(t, "Configuration saved successfully!", m.Notice)
	require.Len(t, backend.saved, 1)
	assert.Contains(t, backend.saved[0], "upstream backend {")
	assert.Contains(t, backend.saved[0], "worker_processes 2;")
}

func TestConfigs_MemberNeedsUpstream(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("j"))
	m, _ = m.Update(keyRunes("m"))
	assert.Nil(t, m.Draft)
	assert.Equal(t, "Select an upstream block to add a member", m.Err)
}

func TestConfigs_DiscardDraft(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("u"))
	m, _ = m.Update(keyRunes("m"))
	require.NotNil(t, m.Draft)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, m.Draft)
	assert.Equal(t, configsEditor, m.Mode)
	b, _ := m.Doc.Block(1)
	assert.Len(t, b.Upstream().Members, 2)
}

func TestConfigs_DraftSurvivesEarlierBlockRemoval(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("u"))
	m, _ = m.Update(keyRunes("m"))
	require.NotNil(t, m.Draft)
	assert.Equal(t, 2, m.draftRow())

	// Remove the server block above the drafted upstream.
	m, _ = m.Update(keyRunes("k"))
	m, _ = m.Update(keyRunes("x"))
	m, _ = m.Update(keyRunes("y"))
	require.Equal(t, 1, m.Doc.Len())
	require.NotNil(t, m.Draft)
	assert.Equal(t, 1, m.draftRow())
	assert.Contains(t, m.rowTitle(1), "(draft)")

	m, _ = m.Update(keyRunes("c"))
	assert.Nil(t, m.Draft)
	assert.Empty(t, m.Err)
	b, _ := m.Doc.Block(0)
	assert.Equal(t, nginxconf.KindUpstream, b.Kind)
	assert.Equal(t, []string{"127.0.0.1:8080", "127.0.0.1:8081", "127.0.0.1:8080"}, b.Upstream().Members)
}

func TestConfigs_RemovingDraftedBlockDropsDraft(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("u"))
	m, _ = m.Update(keyRunes("m"))
	require.NotNil(t, m.Draft)

	m, _ = m.Update(keyRunes("x"))
	m, _ = m.Update(keyRunes("y"))
	assert.Nil(t, m.Draft)
	require.Equal(t, 1, m.Doc.Len())
	b, _ := m.Doc.Block(0)
	assert.Equal(t, nginxconf.KindServer, b.Kind)
}

func TestConfigs_DeployIgnoredWhileBusy(t *testing.T) {
	m, backend := openSite(t)

	m.Busy = true
	m, cmd := m.Update(keyRunes("d"))
	assert.Nil(t, cmd)
	assert.Nil(t, m.confirm)
	assert.Empty(t, backend.deploys)
}

func TestConfigs_EditBlockText(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("j"))
	m, _ = m.Update(keyRunes("e"))
	require.Equal(t, configsText, m.Mode)
	assert.True(t, m.Capturing())
	assert.Contains(t, m.Text.Value(), "server_name example.org;")

	m.Text.SetValue("listen 8080;\n    server_name example.net;")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Equal(t, configsEditor, m.Mode)
	assert.True(t, m.Dirty)

	b, _ := m.Doc.Block(0)
	assert.Equal(t, "example.net (Port: 8080)", b.Title())
}

func TestConfigs_RemoveBlockNeedsConfirmation(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("j"))
	m, _ = m.Update(keyRunes("x"))
	require.NotNil(t, m.confirm)
	assert.True(t, m.Capturing())

	m, _ = m.Update(keyRunes("n"))
	assert.Nil(t, m.confirm)
	assert.Equal(t, 1, m.Doc.Len())

	m, _ = m.Update(keyRunes("x"))
	m, _ = m.Update(keyRunes("y"))
	assert.Equal(t, 0, m.Doc.Len())
	assert.True(t, m.Dirty)
	assert.Equal(t, globalRow, m.Cursor)
}

func TestConfigs_DeploySavesFirst(t *testing.T) {
	m, backend := openSite(t)

	m, _ = m.Update(keyRunes("s"))
	require.True(t, m.Dirty)

	m, _ = m.Update(keyRunes("d"))
	require.NotNil(t, m.confirm)
	m, cmd := m.Update(keyRunes("y"))
	assert.True(t, m.Busy)

	m, _ = m.Update(run(t, cmd))
	assert.False(t, m.Busy)
	assert.False(t, m.Dirty)
	assert.Equal(t, "Configuration deployed successfully! Nginx reloaded", m.Notice)
	assert.Len(t, backend.saved, 1)
	assert.Equal(t, []bool{false}, backend.deploys)
}

func TestConfigs_DeployFailure(t *testing.T) {
	m, backend := openSite(t)
	backend.deployed = nginx.DeployResult{Success: false, Error: "Invalid configuration: unexpected end of file"}

	m, cmd := m.Update(keyRunes("v"))
	m, _ = m.Update(run(t, cmd))
	assert.Empty(t, backend.saved)
	assert.Equal(t, []bool{true}, backend.deploys)
	assert.Equal(t, "Invalid configuration: unexpected end of file", m.Err)
	assert.Empty(t, m.Notice)
}

func TestConfigs_LeaveDirtyEditor(t *testing.T) {
	m, _ := openSite(t)

	m, _ = m.Update(keyRunes("s"))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, m.confirm)

	m, _ = m.Update(keyRunes("y"))
	assert.Equal(t, configsList, m.Mode)
	assert.Nil(t, m.Doc)
}

func TestConfigs_DeleteFromEditor(t *testing.T) {
	m, backend := openSite(t)

	m, _ = m.Update(keyRunes("D"))
	m, cmd := m.Update(keyRunes("y"))
	m, cmd = m.Update(run(t, cmd))

	assert.Equal(t, configsList, m.Mode)
	assert.Equal(t, "Configuration deleted successfully!", m.Notice)
	assert.Empty(t, backend.configs)

	m, _ = m.Update(run(t, cmd))
	assert.Empty(t, m.Configs)
}

func TestConfigs_CreatedOpensEditor(t *testing.T) {
	backend := newFakeBackend()
	m := NewConfigsModel(backend)

	m, _ = m.Update(keyRunes("n"))
	require.Equal(t, configsForm, m.Mode)
	assert.True(t, m.Capturing())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, configsList, m.Mode)

	// Form completion runs create with the default content.
	cmd := m.create("new.conf")
	m, _ = m.Update(run(t, cmd))
	assert.Equal(t, configsEditor, m.Mode)
	assert.Equal(t, "new.conf", m.Current.Name)
	assert.Equal(t, DefaultConfigContent, backend.configs["config-new-conf"].Content)
	assert.Equal(t, "Configuration created successfully!", m.Notice)
}
