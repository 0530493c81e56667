package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// RecentClicksLimit caps the events returned by Aggregate.
	RecentClicksLimit = 10

	partitionLayout = "2006-01-02"
	partitionExt    = ".jsonl"
)

// LedgerMetrics receives ledger health signals.
type LedgerMetrics interface {
	ClickLinesSkipped(n int)
}

// ClickLedger appends click events to one JSON-lines file per UTC day and
// aggregates them on demand. Files are only ever appended to.
type ClickLedger struct {
	fs      afero.Fs
	dir     string
	logger  *zap.Logger
	metrics LedgerMetrics

	// one mutex per day file, so a line is never interleaved with another
	locks sync.Map
}

// NewClickLedger returns a ledger rooted at dir. The directory is created on
// the first append.
func NewClickLedger(fs afero.Fs, dir string, logger *zap.Logger, metrics LedgerMetrics) *ClickLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickLedger{
		fs:      fs,
		dir:     dir,
		logger:  logger,
		metrics: metrics,
	}
}

// Append writes event as a single line to the file of its UTC day.
func (l *ClickLedger) Append(event model.ClickEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	day := event.Time.UTC().Format(partitionLayout)
	mu := l.partitionLock(day)
	mu.Lock()
	defer mu.Unlock()

	if err := l.fs.MkdirAll(l.dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir " + l.dir, Err: err}
	}

	path := l.partitionPath(day)
	f, err := l.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return &PersistenceError{Op: "open " + path, Err: err}
	}

	// A crash can leave a torn tail without its newline. Terminate it so the
	// new line stays parseable on its own.
	torn, err := endsMidLine(f)
	if err != nil {
		f.Close()
		return &PersistenceError{Op: "inspect " + path, Err: err}
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}

	// One Write call per line: with O_APPEND the line lands whole or, if the
	// process dies mid-write, as a torn tail that Aggregate skips.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &PersistenceError{Op: "append " + path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "close " + path, Err: err}
	}
	return nil
}

// endsMidLine reports whether f is non-empty and its last byte is not '\n'.
func endsMidLine(f afero.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if n, err := f.ReadAt(last, info.Size()-1); n < 1 {
		return false, err
	}
	return last[0] != '\n', nil
}

// Aggregate counts every logged click of code and returns the most recent
// RecentClicksLimit of them, newest first. Days are scanned newest first and
// each day's matches are reversed, since a day file is in append order.
// Unparseable lines are skipped and reported through metrics.
func (l *ClickLedger) Aggregate(code string) (model.ClickStats, error) {
	stats := model.ClickStats{Recent: []model.ClickEvent{}}

	days, err := l.partitions()
	if err != nil {
		return stats, err
	}

	skipped := 0
	for _, day := range days {
		remaining := RecentClicksLimit - len(stats.Recent)
		count, tail, bad, err := l.scanPartition(day, code, remaining)
		if err != nil {
			return stats, err
		}
		stats.Total += count
		skipped += bad

		for i := len(tail) - 1; i >= 0; i-- {
			stats.Recent = append(stats.Recent, tail[i])
		}
	}

	if skipped > 0 {
		l.logger.Warn("skipped malformed click log lines",
			zap.String("code", code),
			zap.Int("lines", skipped),
		)
		if l.metrics != nil {
			l.metrics.ClickLinesSkipped(skipped)
		}
	}
	return stats, nil
}

// partitions lists day names in descending order.
func (l *ClickLedger) partitions() ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "list " + l.dir, Err: err}
	}

	days := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		day, ok := strings.CutSuffix(entry.Name(), partitionExt)
		if !ok {
			continue
		}
		if _, err := time.Parse(partitionLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// scanPartition counts matches in one day file and keeps the last keep of
// them in append order.
func (l *ClickLedger) scanPartition(day, code string, keep int) (int64, []model.ClickEvent, int, error) {
	path := l.partitionPath(day)
	f, err := l.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil, 0, nil
		}
		return 0, nil, 0, &PersistenceError{Op: "open " + path, Err: err}
	}
	defer f.Close()

	var (
		total   int64
		skipped int
		tail    = newEventRing(keep)
		reader  = bufio.NewReader(f)
	)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var event model.ClickEvent
			if err := json.Unmarshal(line, &event); err != nil {
				skipped++
			} else if event.Code == code {
				total++
				tail.push(event)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return 0, nil, 0, &PersistenceError{Op: "read " + path, Err: readErr}
		}
	}
	return total, tail.items(), skipped, nil
}

func (l *ClickLedger) partitionPath(day string) string {
	return filepath.Join(l.dir, day+partitionExt)
}

func (l *ClickLedger) partitionLock(day string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(day, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// eventRing keeps the last n pushed events.
type eventRing struct {
	buf  []model.ClickEvent
	next int
	full bool
}

func newEventRing(n int) *eventRing {
	if n < 0 {
		n = 0
	}
	return &eventRing{buf: make([]model.ClickEvent, n)}
}

func (r *eventRing) push(ev model.ClickEvent) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *eventRing) items() []model.ClickEvent {
	if !r.full {
		return append([]model.ClickEvent(nil), r.buf[:r.next]...)
	}
	out := make([]model.ClickEvent, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
