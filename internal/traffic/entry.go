// Package traffic reads the Nginx access log: parsing, filtering,
// aggregate statistics, CSV export and live following.
package traffic

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the $time_local format of the combined log format.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// Entry is one parsed access log line.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	IP            string    `json:"ip"`
	Method        string    `json:"method"`
	Path          string    `json:"path"`
	Status        int       `json:"status"`
	ResponseTime  *int64    `json:"response_time,omitempty"` // milliseconds
	UserAgent     string    `json:"user_agent,omitempty"`
	Referer       string    `json:"referer,omitempty"`
	BytesSent     *int64    `json:"bytes_sent,omitempty"`
	BytesReceived *int64    `json:"bytes_received,omitempty"`
}

// Combined log format, optionally followed by $request_time in seconds.
var lineRe = regexp.MustCompile(`^(\S+) - (\S+) \[([^\]]+)\] "(\S+) ([^"]+) HTTP/\d\.\d" (\d+) (\d+) "([^"]*)" "([^"]*)"(?:\s+(\d+(?:\.\d+)?))?`)

// ParseLine parses one combined-format line. Lines that do not match are
// reported with ok false.
func ParseLine(line string) (Entry, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}

	ts, err := time.Parse(TimeLayout, m[3])
	if err != nil {
		return Entry{}, false
	}
	status, err := strconv.Atoi(m[6])
	if err != nil {
		return Entry{}, false
	}

	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: ts.UTC(),
		IP:        m[1],
		Method:    m[4],
		Path:      m[5],
		Status:    status,
		UserAgent: m[9],
	}
	if m[8] != "" && m[8] != "-" {
		e.Referer = m[8]
	}
	if n, err := strconv.ParseInt(m[7], 10, 64); err == nil {
		e.BytesSent = &n
	}
	if m[10] != "" {
		if secs, err := strconv.ParseFloat(m[10], 64); err == nil {
			ms := int64(secs*1000 + 0.5)
			e.ResponseTime = &ms
		}
	}
	return e, true
}

// Parse reads every parseable line from r. Unparseable lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if e, ok := ParseLine(sc.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("scan access log: %w", err)
	}
	return entries, nil
}

// ReadFile parses the access log at path. A missing file has no entries.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
