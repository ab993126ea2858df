package nginxconf

import (
	"regexp"
	"strings"
)

// Fallbacks shown when a directive is absent. They are display values only
// and are never written back into a document.
const (
	DefaultServerName        = "Unknown"
	DefaultListen            = "80"
	DefaultLocationPath      = "/"
	DefaultUpstreamName      = "Unknown"
	DefaultWorkerProcesses   = "auto"
	DefaultWorkerConnections = "1024"
	DefaultKeepaliveTimeout  = "65"
)

var (
	serverNameRe        = regexp.MustCompile(`server_name\s+([^;]+);`)
	listenRe            = regexp.MustCompile(`listen\s+([^;]+);`)
	locationBlockRe     = regexp.MustCompile(`location\s+([^{]+)\s*\{([^}]*)\}`)
	locationPathRe      = regexp.MustCompile(`location\s+([^{]+)\s*\{`)
	proxyPassRe         = regexp.MustCompile(`proxy_pass\s+([^;]+);`)
	upstreamNameRe      = regexp.MustCompile(`upstream\s+([^\s{]+)\s*\{`)
	upstreamMemberRe    = regexp.MustCompile(`server\s+([^;]+);`)
	workerProcessesRe   = regexp.MustCompile(`worker_processes\s+([^;]+);`)
	workerConnectionsRe = regexp.MustCompile(`worker_connections\s+([^;]+);`)
	keepaliveTimeoutRe  = regexp.MustCompile(`keepalive_timeout\s+([^;]+);`)
)

// ServerSummary holds the display fields of a server block.
type ServerSummary struct {
	Name      string     `json:"server_name"`
	Listen    string     `json:"listen"`
	Locations []Location `json:"locations,omitempty"`
}

// Location is a location fragment found inside a server block.
type Location struct {
	Path      string `json:"path"`
	ProxyPass string `json:"proxy_pass,omitempty"`
	Text      string `json:"text"`
}

// UpstreamSummary holds the display fields of an upstream block.
type UpstreamSummary struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// GlobalSummary holds the common worker and keepalive settings.
type GlobalSummary struct {
	WorkerProcesses   string `json:"worker_processes"`
	WorkerConnections string `json:"worker_connections"`
	KeepaliveTimeout  string `json:"keepalive_timeout"`
}

func firstMatch(re *regexp.Regexp, text, fallback string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

// Server derives the display fields of a server block from its inner text.
func (b Block) Server() ServerSummary {
	s := ServerSummary{
		Name:   firstMatch(serverNameRe, b.Inner, DefaultServerName),
		Listen: firstMatch(listenRe, b.Inner, DefaultListen),
	}
	for _, m := range locationBlockRe.FindAllString(b.Inner, -1) {
		s.Locations = append(s.Locations, ParseLocation(m))
	}
	return s
}

// ParseLocation derives the path and proxy target of a location fragment.
func ParseLocation(text string) Location {
	return Location{
		Path:      firstMatch(locationPathRe, text, DefaultLocationPath),
		ProxyPass: firstMatch(proxyPassRe, text, ""),
		Text:      text,
	}
}

// Upstream derives the name (from the full text) and the member addresses
// (from the inner text) of an upstream block.
func (b Block) Upstream() UpstreamSummary {
	u := UpstreamSummary{
		Name:    firstMatch(upstreamNameRe, b.Full, DefaultUpstreamName),
		Members: []string{},
	}
	for _, m := range upstreamMemberRe.FindAllStringSubmatch(b.Inner, -1) {
		u.Members = append(u.Members, strings.TrimSpace(m[1]))
	}
	return u
}

// Title is a one-line label for lists.
func (b Block) Title() string {
	switch b.Kind {
	case KindServer:
		s := b.Server()
		return s.Name + " (Port: " + s.Listen + ")"
	case KindUpstream:
		return "Upstream: " + b.Upstream().Name
	default:
		return string(b.Kind)
	}
}

// SummarizeGlobal reads the worker and keepalive directives from global text.
func SummarizeGlobal(global string) GlobalSummary {
	return GlobalSummary{
		WorkerProcesses:   firstMatch(workerProcessesRe, global, DefaultWorkerProcesses),
		WorkerConnections: firstMatch(workerConnectionsRe, global, DefaultWorkerConnections),
		KeepaliveTimeout:  firstMatch(keepaliveTimeoutRe, global, DefaultKeepaliveTimeout),
	}
}

// BlockView is a block together with its derived fields.
type BlockView struct {
	Index    int              `json:"index"`
	Block                     // kind, inner, full
	Title    string           `json:"title"`
	Server   *ServerSummary   `json:"server,omitempty"`
	Upstream *UpstreamSummary `json:"upstream,omitempty"`
}

// DocumentView is the decomposed form of a document for read-only consumers.
type DocumentView struct {
	Global  string        `json:"global"`
	Summary GlobalSummary `json:"summary"`
	Blocks  []BlockView   `json:"blocks"`
}

// Describe decomposes doc and derives the display fields of every block.
func Describe(doc string) DocumentView {
	global, blocks := Parse(doc)
	v := DocumentView{
		Global:  global,
		Summary: SummarizeGlobal(global),
		Blocks:  make([]BlockView, 0, len(blocks)),
	}
	for i, b := range blocks {
		bv := BlockView{Index: i, Block: b, Title: b.Title()}
		switch b.Kind {
		case KindServer:
			s := b.Server()
			bv.Server = &s
		case KindUpstream:
			u := b.Upstream()
			bv.Upstream = &u
		}
		v.Blocks = append(v.Blocks, bv)
	}
	return v
}
