package traffic

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// CSVHeader is the header row of an export.
var CSVHeader = []string{"Timestamp", "IP", "Method", "Path", "Status", "User Agent", "Response Time (ms)"}

// WriteCSV writes a header and one row per entry. Fields are quoted as
// needed with embedded quotes doubled.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		var rt int64
		if e.ResponseTime != nil {
			rt = *e.ResponseTime
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.IP,
			e.Method,
			e.Path,
			strconv.Itoa(e.Status),
			e.UserAgent,
			strconv.FormatInt(rt, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename names an export made at t.
func ExportFilename(t time.Time) string {
	return "nginx-logs-" + t.UTC().Format("2006-01-02") + ".csv"
}
