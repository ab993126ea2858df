package nginxconf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBlockIndex is returned when an edit targets a block that does not exist.
var ErrBlockIndex = errors.New("block index out of range")

// ErrStaleDraft is returned when the block an upstream draft was taken from
// is no longer in the document.
var ErrStaleDraft = errors.New("drafted block no longer exists")

// DefaultMemberLine is the line appended to an upstream draft by AddMember.
const DefaultMemberLine = "server 127.0.0.1:8080;"

// ServerTemplate is the block appended by AddServer.
var ServerTemplate = Block{
	Kind: KindServer,
	Inner: `listen 80;
    server_name example.com;
    
    location / {
        root /usr/share/nginx/html;
        index index.html;
    }`,
	Full: `server {
    listen 80;
    server_name example.com;
    
    location / {
        root /usr/share/nginx/html;
        index index.html;
    }
}`,
}

// UpstreamTemplate is the block appended by AddUpstream.
var UpstreamTemplate = Block{
	Kind: KindUpstream,
	Inner: `server 127.0.0.1:8080;
    server 127.0.0.1:8081;`,
	Full: `upstream backend {
    server 127.0.0.1:8080;
    server 127.0.0.1:8081;
}`,
}

// Document is the editing state for one configuration: the ordered block
// list and the global text. Every mutation returns the reconstructed text,
// which is what gets saved or deployed. A Document is owned by a single
// editor and is not safe for concurrent use.
type Document struct {
	global string
	blocks []Block
}

// NewDocument decomposes text into a fresh editing state.
func NewDocument(text string) *Document {
	global, blocks := Parse(text)
	return &Document{global: global, blocks: blocks}
}

// Global returns the current global directives text.
func (d *Document) Global() string { return d.global }

// Len returns the number of blocks.
func (d *Document) Len() int { return len(d.blocks) }

// Blocks returns a copy of the block list.
func (d *Document) Blocks() []Block {
	out := make([]Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Block returns the block at index i.
func (d *Document) Block(i int) (Block, bool) {
	if i < 0 || i >= len(d.blocks) {
		return Block{}, false
	}
	return d.blocks[i], true
}

// Text reconstructs the document from the current state.
func (d *Document) Text() string {
	return Reconstruct(d.global, d.blocks)
}

// AddServer appends the default server block.
func (d *Document) AddServer() string {
	d.blocks = append(d.blocks, ServerTemplate)
	return d.Text()
}

// AddUpstream appends the default upstream block.
func (d *Document) AddUpstream() string {
	d.blocks = append(d.blocks, UpstreamTemplate)
	return d.Text()
}

// EditBlock replaces the block at index i. The block list is unchanged on error.
func (d *Document) EditBlock(i int, b Block) (string, error) {
	if i < 0 || i >= len(d.blocks) {
		return d.Text(), fmt.Errorf("edit block %d: %w", i, ErrBlockIndex)
	}
	d.blocks[i] = b
	return d.Text(), nil
}

// EditInner replaces the body of the block at index i, rewrapping its full text.
func (d *Document) EditInner(i int, inner string) (string, error) {
	b, ok := d.Block(i)
	if !ok {
		return d.Text(), fmt.Errorf("edit block %d: %w", i, ErrBlockIndex)
	}
	return d.EditBlock(i, b.WithInner(inner))
}

// EditGlobal replaces the global directives text.
func (d *Document) EditGlobal(text string) string {
	d.global = text
	return d.Text()
}

// RemoveBlock deletes the block at index i.
func (d *Document) RemoveBlock(i int) (string, error) {
	if i < 0 || i >= len(d.blocks) {
		return d.Text(), fmt.Errorf("remove block %d: %w", i, ErrBlockIndex)
	}
	d.blocks = append(d.blocks[:i], d.blocks[i+1:]...)
	return d.Text(), nil
}

// UpstreamDraft is an uncommitted edit of an upstream block's body.
type UpstreamDraft struct {
	doc    *Document
	index  int
	origin Block
	Inner  string
}

// DraftUpstream starts a draft edit of the upstream block at index i.
func (d *Document) DraftUpstream(i int) (*UpstreamDraft, error) {
	b, ok := d.Block(i)
	if !ok {
		return nil, fmt.Errorf("draft block %d: %w", i, ErrBlockIndex)
	}
	if b.Kind != KindUpstream {
		return nil, fmt.Errorf("draft block %d: not an upstream block", i)
	}
	return &UpstreamDraft{doc: d, index: i, origin: b, Inner: b.Inner}, nil
}

// AddMember appends the default member line to the draft only.
func (u *UpstreamDraft) AddMember() {
	u.Inner = strings.TrimRight(u.Inner, " \t\n") + "\n    " + DefaultMemberLine
}

// Members lists the member addresses in the draft.
func (u *UpstreamDraft) Members() []string {
	return Block{Kind: KindUpstream, Inner: u.Inner}.Upstream().Members
}

// Index reports where the drafted block currently sits, or -1 once it has
// been removed or replaced.
func (u *UpstreamDraft) Index() int {
	if b, ok := u.doc.Block(u.index); ok && b == u.origin {
		return u.index
	}
	for i, b := range u.doc.blocks {
		if b == u.origin {
			return i
		}
	}
	return -1
}

// Commit writes the draft back over the block it was taken from, wherever
// that block has moved to.
func (u *UpstreamDraft) Commit() (string, error) {
	i := u.Index()
	if i < 0 {
		return "", ErrStaleDraft
	}
	text, err := u.doc.EditInner(i, u.Inner)
	if err != nil {
		return "", err
	}
	u.index = i
	u.origin = u.doc.blocks[i]
	return text, nil
}
