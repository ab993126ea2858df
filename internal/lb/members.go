package lb

import (
	"regexp"
	"strconv"
	"strings"
)

var memberRe = regexp.MustCompile(`server\s+([^:\s;]+):(\d+)(?:\s+weight=(\d+))?(?:\s+max_conns=(\d+))?`)

// member is one server directive inside an upstream body. start and end
// delimit the matched directive text within the body.
type member struct {
	ip       string
	port     uint16
	weight   *uint32
	maxConns *uint32
	start    int
	end      int
}

func (m member) id() string { return ServerID(m.ip, m.port) }

func (m member) server() Server {
	id := m.id()
	return Server{
		ID:             id,
		Name:           DefaultName(id),
		IP:             m.ip,
		Port:           m.port,
		Weight:         m.weight,
		MaxConnections: m.maxConns,
		Status:         StatusUnknown,
	}
}

func parseMembers(body string) []member {
	var out []member
	for _, idx := range memberRe.FindAllStringSubmatchIndex(body, -1) {
		port, err := strconv.ParseUint(body[idx[4]:idx[5]], 10, 16)
		if err != nil {
			continue
		}
		out = append(out, member{
			ip:       body[idx[2]:idx[3]],
			port:     uint16(port),
			weight:   optUint(body, idx[6], idx[7]),
			maxConns: optUint(body, idx[8], idx[9]),
			start:    idx[0],
			end:      idx[1],
		})
	}
	return out
}

func optUint(s string, start, end int) *uint32 {
	if start < 0 {
		return nil
	}
	v, err := strconv.ParseUint(s[start:end], 10, 32)
	if err != nil {
		return nil
	}
	u := uint32(v)
	return &u
}

func findMember(members []member, id string) (member, bool) {
	for _, m := range members {
		if m.id() == id {
			return m, true
		}
	}
	return member{}, false
}

// replaceMember swaps the directive text of m for replacement, leaving any
// trailing parameters and the semicolon in place.
func replaceMember(body string, m member, replacement string) string {
	return body[:m.start] + replacement + body[m.end:]
}

// removeMember cuts m's directive, up to and including its semicolon, and
// the blanks around it. Other directives on the same line stay; a line left
// empty goes with it.
func removeMember(body string, m member) string {
	start, end := m.start, m.end
	if i := strings.IndexByte(body[end:], ';'); i >= 0 {
		end += i + 1
	}
	for start > 0 && isBlank(body[start-1]) {
		start--
	}
	for end < len(body) && isBlank(body[end]) {
		end++
	}

	atLineStart := start == 0 || body[start-1] == '\n'
	atLineEnd := end == len(body) || body[end] == '\n'
	sep := ""
	switch {
	case atLineStart && atLineEnd && end < len(body):
		end++
	case atLineStart && atLineEnd && start > 0:
		start--
	case !atLineStart && !atLineEnd:
		sep = " "
	}
	return strings.TrimSpace(body[:start] + sep + body[end:])
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }
