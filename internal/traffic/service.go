package traffic

import (
	"context"
	"io"

	"grimm.is/ngxweb/internal/logging"
)

// Service answers traffic queries against one access log file.
type Service struct {
	path   string
	logger *logging.Logger
}

// NewService creates a Service reading the access log at path.
func NewService(path string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.WithComponent("traffic")
	}
	return &Service{path: path, logger: logger}
}

// Path returns the access log path.
func (s *Service) Path() string { return s.path }

// Logs returns the entries matching q, newest first.
func (s *Service) Logs(q Query) ([]Entry, error) {
	entries, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return q.Apply(entries), nil
}

// Stats aggregates the entries matching q. The limit is ignored.
func (s *Service) Stats(q Query) (Stats, error) {
	q.Limit = 0
	entries, err := s.Logs(q)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(entries), nil
}

// Export writes the entries matching q to w as CSV.
func (s *Service) Export(w io.Writer, q Query) error {
	entries, err := s.Logs(q)
	if err != nil {
		return err
	}
	return WriteCSV(w, entries)
}

// Follow streams appended entries matching q to fn until ctx ends.
func (s *Service) Follow(ctx context.Context, q Query, fn func(Entry)) error {
	s.logger.Debug("following access log", "path", s.path)
	return Follow(ctx, s.path, func(e Entry) {
		if q.Match(e) {
			fn(e)
		}
	})
}
