package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every line appended to the access log at path until
// ctx ends. Existing content is skipped. Truncation, rotation and a log that
// does not exist yet are handled by watching the parent directory.
func Follow(ctx context.Context, path string, fn func(Entry)) error {
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	t := &tail{path: path, fn: fn}
	defer t.close()
	if err := t.open(true); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch access log: %w", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				t.close()
				if err := t.open(false); err != nil {
					return err
				}
				t.drain()
			case ev.Has(fsnotify.Write):
				if t.f == nil {
					if err := t.open(false); err != nil {
						return err
					}
				}
				t.drain()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.close()
			}
		}
	}
}

type tail struct {
	path    string
	fn      func(Entry)
	f       *os.File
	pos     int64
	pending []byte
}

// open opens the log, at its end when atEnd is set. A missing file is not an error.
func (t *tail) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}
	t.f, t.pos, t.pending = f, 0, nil
	if atEnd {
		if t.pos, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			t.f = nil
			return fmt.Errorf("seek access log: %w", err)
		}
	}
	return nil
}

func (t *tail) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// drain emits every complete line written since the last read.
func (t *tail) drain() {
	if t.f == nil {
		return
	}
	if info, err := t.f.Stat(); err == nil && info.Size() < t.pos {
		// Truncated in place.
		t.pos, t.pending = 0, nil
	}
	if _, err := t.f.Seek(t.pos, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(t.f)
	if err != nil || len(data) == 0 {
		return
	}
	t.pos += int64(len(data))

	buf := append(t.pending, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if e, ok := ParseLine(string(bytes.TrimRight(buf[:i], "\r"))); ok {
			t.fn(e)
		}
		buf = buf[i+1:]
	}
	t.pending = append([]byte(nil), buf...)
}
