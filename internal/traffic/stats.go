package traffic

// Stats aggregates a set of log entries.
type Stats struct {
	TotalRequests     int64   `json:"total_requests"`
	SuccessRequests   int64   `json:"success_requests"`
	ErrorRequests     int64   `json:"error_requests"`
	AvgResponseTime   float64 `json:"avg_response_time"`
	TotalBytesSent    int64   `json:"total_bytes_sent"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
}

// ComputeStats aggregates entries. Status below 400 counts as success.
// Requests per minute uses the whole minutes between the oldest and newest
// entry; spans under a minute report the total.
func ComputeStats(entries []Entry) Stats {
	var s Stats
	if len(entries) == 0 {
		return s
	}

	var rtSum, rtCount int64
	first, last := entries[0].Timestamp, entries[0].Timestamp
	for _, e := range entries {
		s.TotalRequests++
		if e.Status < 400 {
			s.SuccessRequests++
		}
		if e.ResponseTime != nil {
			rtSum += *e.ResponseTime
			rtCount++
		}
		if e.BytesSent != nil {
			s.TotalBytesSent += *e.BytesSent
		}
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	s.ErrorRequests = s.TotalRequests - s.SuccessRequests
	if rtCount > 0 {
		s.AvgResponseTime = float64(rtSum) / float64(rtCount)
	}

	if minutes := int64(last.Sub(first).Minutes()); minutes > 0 {
		s.RequestsPerMinute = float64(s.TotalRequests) / float64(minutes)
	} else {
		s.RequestsPerMinute = float64(s.TotalRequests)
	}
	return s
}
