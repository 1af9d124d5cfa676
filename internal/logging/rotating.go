package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the size at which a day's log file rolls over.
const DefaultMaxBytes int64 = 50 << 20

const dayLayout = "2006-01-02"

// RotatingWriter writes to dated log files. A base path of logs/docchatd.log
// writes logs/docchatd-2026-03-01.log, then logs/docchatd-2026-03-01-2.log
// once MaxBytes is reached, and starts a new series every UTC day. The base
// path is kept pointing at the active file.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64
	// RetainDays removes dated files older than this many days whenever a
	// new day starts. Zero keeps everything.
	RetainDays int

	mu   sync.Mutex
	now  func() time.Time
	day  string
	seq  int // 1 is the first file of the day
	file *os.File
	size int64
}

// NewRotatingWriter opens the writer for basePath. A base path of "-"
// discards everything; maxBytes <= 0 uses DefaultMaxBytes.
func NewRotatingWriter(basePath string, maxBytes int64, retainDays int) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return discardCloser{}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, RetainDays: retainDays, now: time.Now}
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Path returns the file currently being written.
func (w *RotatingWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// roll switches files when the day changed or the next write of incoming
// bytes would exceed MaxBytes.
func (w *RotatingWriter) roll(incoming int64) error {
	now := w.now().UTC()
	today := now.Format(dayLayout)
	newDay := w.file == nil || w.day != today
	switch {
	case newDay:
		w.day, w.seq = today, 1
	case w.size > 0 && w.size+incoming > w.MaxBytes:
		w.seq++
	default:
		return nil
	}
	if err := w.open(); err != nil {
		return err
	}
	if newDay && w.RetainDays > 0 {
		w.prune(now)
	}
	return nil
}

func (w *RotatingWriter) parts() (dir, stem, ext string) {
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	return dir, stem, ext
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir, stem, ext := w.parts()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	name := stem + "-" + w.day
	if w.seq > 1 {
		name += fmt.Sprintf("-%d", w.seq)
	}
	path := filepath.Join(dir, name+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.point(path)
	return nil
}

// prune removes dated files of this series older than RetainDays.
func (w *RotatingWriter) prune(now time.Time) {
	dir, stem, ext := w.parts()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext))
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.RetainDays).Format(dayLayout)
	for _, path := range matches {
		rest := strings.TrimPrefix(filepath.Base(path), stem+"-")
		if len(rest) < len(dayLayout) {
			continue
		}
		day, err := time.Parse(dayLayout, rest[:len(dayLayout)])
		if err != nil {
			continue
		}
		if day.Format(dayLayout) < cutoff {
			_ = os.Remove(path)
		}
	}
}

// point makes BasePath refer to target: a symlink where the filesystem
// allows it, otherwise a hard link, otherwise a note naming the file.
func (w *RotatingWriter) point(target string) {
	base := strings.TrimSpace(w.BasePath)
	if base == "" {
		return
	}
	if dest, err := os.Readlink(base); err == nil && dest == target {
		return
	}
	_ = os.Remove(base)
	if os.Symlink(target, base) == nil || os.Link(target, base) == nil {
		return
	}
	_ = os.WriteFile(base, []byte("current log file: "+target+"\n"), 0o644)
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
