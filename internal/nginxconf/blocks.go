// Package nginxconf splits Nginx configuration text into server and upstream
// blocks plus the residual global directives, and rebuilds the text from them.
//
// Matching is regular-expression based and deliberately shallow: server
// blocks tolerate one level of nested braces, upstream blocks none. It is a
// convenience view for editing, not a parser of the Nginx grammar, and it
// does not preserve the original ordering of blocks relative to each other or
// to global text. The server pattern is unanchored, so an upstream whose name
// ends in "server" (upstream appserver { ... }) is also picked up as a server
// block.
package nginxconf

import (
	"regexp"
	"strings"
)

// Kind identifies the type of a configuration block.
type Kind string

const (
	KindServer   Kind = "server"
	KindUpstream Kind = "upstream"
)

var (
	serverBlockRe   = regexp.MustCompile(`server\s*\{([^{}]*(?:\{[^{}]*\}[^{}]*)*)\}`)
	upstreamBlockRe = regexp.MustCompile(`upstream\s+([^\s{]+)\s*\{([^}]*)\}`)
)

// Block is one server or upstream fragment of a configuration document.
// Full always contains Inner; editing goes through the raw text.
type Block struct {
	Kind  Kind   `json:"kind"`
	Inner string `json:"inner"`
	Full  string `json:"full"`
}

// Extract returns every server block in document order followed by every
// upstream block in document order.
func Extract(doc string) []Block {
	var blocks []Block
	for _, m := range serverBlockRe.FindAllStringSubmatch(doc, -1) {
		blocks = append(blocks, Block{
			Kind:  KindServer,
			Inner: strings.TrimSpace(m[1]),
			Full:  m[0],
		})
	}
	for _, m := range upstreamBlockRe.FindAllStringSubmatch(doc, -1) {
		blocks = append(blocks, Block{
			Kind:  KindUpstream,
			Inner: strings.TrimSpace(m[2]),
			Full:  m[0],
		})
	}
	return blocks
}

// GlobalDirectives returns doc with all server blocks and then all upstream
// blocks removed, trimmed.
func GlobalDirectives(doc string) string {
	rest := serverBlockRe.ReplaceAllLiteralString(doc, "")
	rest = upstreamBlockRe.ReplaceAllLiteralString(rest, "")
	return strings.TrimSpace(rest)
}

// Parse is Extract and GlobalDirectives in one call.
func Parse(doc string) (global string, blocks []Block) {
	return GlobalDirectives(doc), Extract(doc)
}

// Reconstruct joins the global text and each block's full text with blank
// lines and trims the result.
func Reconstruct(global string, blocks []Block) string {
	var sb strings.Builder
	sb.WriteString(global)
	sb.WriteString("\n\n")
	for _, b := range blocks {
		sb.WriteString(b.Full)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// WithInner returns a copy of b whose body is inner and whose full text is
// rewrapped around it. Upstream blocks keep their name. The body is trimmed
// but otherwise written as given.
func (b Block) WithInner(inner string) Block {
	body := strings.TrimSpace(inner)
	out := Block{Kind: b.Kind, Inner: body}
	switch b.Kind {
	case KindUpstream:
		name := "backend"
		if m := upstreamNameRe.FindStringSubmatch(b.Full); m != nil {
			name = strings.TrimSpace(m[1])
		}
		out.Full = "upstream " + name + " {\n" + body + "\n}"
	default:
		out.Full = "server {\n" + body + "\n}"
	}
	return out
}

// FindUpstream returns the first upstream block named name.
func FindUpstream(doc, name string) (Block, bool) {
	for _, b := range Extract(doc) {
		if b.Kind == KindUpstream && b.Upstream().Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// IndentBody indents every non-empty line of text that is not already
// indented and strips trailing whitespace, for block bodies assembled by
// code rather than typed by an operator.
func IndentBody(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			lines[i] = ""
			continue
		}
		if !strings.HasPrefix(l, "    ") && !strings.HasPrefix(l, "\t") {
			l = "    " + l
		}
		lines[i] = l
	}
	return strings.Join(lines, "\n")
}
