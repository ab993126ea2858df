package traffic

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Query filters log entries. Zero fields match everything.
type Query struct {
	From   time.Time
	To     time.Time
	IP     string
	Status int
	Method string
	Path   string // substring
	Limit  int
}

// ParseQuery reads a Query from URL parameters (from, to, ip, status,
// method, path, limit). Times are RFC 3339.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{
		IP:     v.Get("ip"),
		Method: v.Get("method"),
		Path:   v.Get("path"),
	}
	var err error
	if s := v.Get("from"); s != "" {
		if q.From, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("invalid from: %w", err)
		}
	}
	if s := v.Get("to"); s != "" {
		if q.To, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("invalid to: %w", err)
		}
	}
	if s := v.Get("status"); s != "" {
		if q.Status, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("invalid status %q", s)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
	}
	return q, nil
}

// Values encodes q as URL parameters, the inverse of ParseQuery.
func (q Query) Values() url.Values {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	if q.IP != "" {
		v.Set("ip", q.IP)
	}
	if q.Status != 0 {
		v.Set("status", strconv.Itoa(q.Status))
	}
	if q.Method != "" {
		v.Set("method", q.Method)
	}
	if q.Path != "" {
		v.Set("path", q.Path)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Match reports whether e passes every filter in q.
func (q Query) Match(e Entry) bool {
	switch {
	case !q.From.IsZero() && e.Timestamp.Before(q.From):
		return false
	case !q.To.IsZero() && e.Timestamp.After(q.To):
		return false
	case q.IP != "" && e.IP != q.IP:
		return false
	case q.Status != 0 && e.Status != q.Status:
		return false
	case q.Method != "" && !strings.EqualFold(e.Method, q.Method):
		return false
	case q.Path != "" && !strings.Contains(e.Path, q.Path):
		return false
	}
	return true
}

// Apply filters entries, sorts them newest first and applies the limit.
func (q Query) Apply(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if q.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
