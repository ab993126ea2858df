package nginxconf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_AddServer(t *testing.T) {
	doc := NewDocument(sampleConfig)
	before := doc.Len()

	text := doc.AddServer()

	require.Equal(t, before+1, doc.Len())
	added, _ := doc.Block(doc.Len() - 1)
	assert.Equal(t, "example.com", added.Server().Name)
	assert.Equal(t, "80", added.Server().Listen)
	assert.True(t, strings.HasSuffix(text, ServerTemplate.Full))
	assert.Contains(t, ServerTemplate.Full, ServerTemplate.Inner)
}

func TestDocument_AddUpstream(t *testing.T) {
	doc := NewDocument("")
	text := doc.AddUpstream()

	assert.Equal(t, UpstreamTemplate.Full, text)
	b, _ := doc.Block(0)
	assert.Equal(t, []string{"127.0.0.1:8080", "127.0.0.1:8081"}, b.Upstream().Members)

	// Templates are shaped like the blocks extraction would produce.
	assert.Equal(t, []Block{UpstreamTemplate}, Extract(UpstreamTemplate.Full))
	assert.Equal(t, []Block{ServerTemplate}, Extract(ServerTemplate.Full))
}

func TestDocument_EditBlockOnlyChangesThatBlock(t *testing.T) {
	doc := NewDocument(sampleConfig)
	server, _ := doc.Block(0)
	upstream, _ := doc.Block(1)

	raw := upstream.Inner + "\nserver 10.0.0.3:8080;"
	text, err := doc.EditInner(1, raw)
	require.NoError(t, err)

	edited, _ := doc.Block(1)
	assert.Contains(t, text, raw)
	assert.Contains(t, text, server.Full)
	assert.Contains(t, text, edited.Full)
	assert.NotContains(t, text, upstream.Full)
	assert.True(t, strings.HasPrefix(text, doc.Global()))
	assert.Len(t, edited.Upstream().Members, 3)
	assert.Equal(t, "app", edited.Upstream().Name)
}

func TestDocument_EditBlockOutOfRange(t *testing.T) {
	doc := NewDocument(sampleConfig)
	before := doc.Text()

	_, err := doc.EditBlock(5, Block{Kind: KindServer})
	assert.ErrorIs(t, err, ErrBlockIndex)
	_, err = doc.EditInner(-1, "x")
	assert.ErrorIs(t, err, ErrBlockIndex)
	_, err = doc.RemoveBlock(2)
	assert.ErrorIs(t, err, ErrBlockIndex)

	assert.Equal(t, before, doc.Text())
}

func TestDocument_EditGlobal(t *testing.T) {
	doc := NewDocument(sampleConfig)
	text := doc.EditGlobal("worker_processes 8;")

	assert.True(t, strings.HasPrefix(text, "worker_processes 8;\n\nserver {"))
	assert.Equal(t, "8", SummarizeGlobal(doc.Global()).WorkerProcesses)
}

func TestDocument_RemoveBlock(t *testing.T) {
	doc := NewDocument(sampleConfig)
	text, err := doc.RemoveBlock(0)
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Len())
	assert.NotContains(t, text, "server_name")
}

func TestUpstreamDraft(t *testing.T) {
	doc := NewDocument(sampleConfig)
	before := doc.Text()

	_, err := doc.DraftUpstream(0)
	assert.Error(t, err, "server block cannot be drafted as upstream")

	draft, err := doc.DraftUpstream(1)
	require.NoError(t, err)

	draft.AddMember()
	assert.Len(t, draft.Members(), 3)
	assert.Equal(t, "127.0.0.1:8080", draft.Members()[2])

	// Nothing is written until commit.
	assert.Equal(t, before, doc.Text())

	text, err := draft.Commit()
	require.NoError(t, err)
	assert.Contains(t, text, "server 127.0.0.1:8080;")
	b, _ := doc.Block(1)
	assert.Len(t, b.Upstream().Members, 3)
}

func TestDocument_ParseReconstructStable(t *testing.T) {
	text := NewDocument(sampleConfig).Text()
	again := NewDocument(text)

	// A reconstructed document parses back to the same state.
	assert.Equal(t, text, again.Text())
	assert.Equal(t, NewDocument(sampleConfig).Blocks(), again.Blocks())
}

func TestDocument_EditInnerKeepsTextVerbatim(t *testing.T) {
	doc := NewDocument(sampleConfig)
	raw := "listen 81;\nserver_name a.example;\n\n  # odd   spacing   kept  \nroot /srv;"

	text, err := doc.EditInner(0, raw)
	require.NoError(t, err)
	assert.Contains(t, text, "server {\n"+raw+"\n}")

	b, _ := doc.Block(0)
	assert.Equal(t, raw, b.Inner)
	assert.Equal(t, "a.example", b.Server().Name)
}

const twoUpstreams = `server { listen 1; }
server { listen 2; }
upstream app { server a:1; }
upstream other { server z:9; }`

func TestUpstreamDraft_FollowsBlockAfterRemoval(t *testing.T) {
	doc := NewDocument(twoUpstreams)
	draft, err := doc.DraftUpstream(2)
	require.NoError(t, err)
	draft.AddMember()

	_, err = doc.RemoveBlock(0)
	require.NoError(t, err)
	assert.Equal(t, 1, draft.Index())

	_, err = draft.Commit()
	require.NoError(t, err)

	app, _ := doc.Block(1)
	other, _ := doc.Block(2)
	assert.Equal(t, "app", app.Upstream().Name)
	assert.Equal(t, []string{"a:1", "127.0.0.1:8080"}, app.Upstream().Members)
	assert.Equal(t, "other", other.Upstream().Name)
	assert.Equal(t, []string{"z:9"}, other.Upstream().Members)
}

func TestUpstreamDraft_StaleAfterBlockRemoved(t *testing.T) {
	doc := NewDocument(twoUpstreams)
	draft, err := doc.DraftUpstream(2)
	require.NoError(t, err)
	draft.AddMember()

	_, err = doc.RemoveBlock(2)
	require.NoError(t, err)
	before := doc.Text()

	assert.Equal(t, -1, draft.Index())
	_, err = draft.Commit()
	assert.ErrorIs(t, err, ErrStaleDraft)
	assert.Equal(t, before, doc.Text())
}

func TestUpstreamDraft_StaleAfterBlockEdited(t *testing.T) {
	doc := NewDocument(twoUpstreams)
	draft, err := doc.DraftUpstream(3)
	require.NoError(t, err)

	_, err = doc.EditInner(3, "server y:8;")
	require.NoError(t, err)

	_, err = draft.Commit()
	assert.ErrorIs(t, err, ErrStaleDraft)
	b, _ := doc.Block(3)
	assert.Equal(t, []string{"y:8"}, b.Upstream().Members)
}
