// Package audit provides the append-only ledger of permission decisions.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// Source records which path of the decision engine produced a decision.
type Source string

const (
	SourcePolicy Source = "policy" // static tier table or rule
	SourceCached Source = "cached" // per-resource remembered decision
	SourceAlways Source = "always" // per-action remembered decision
	SourcePrompt Source = "prompt" // fresh answer from the decision provider

	SourceFailure Source = "failure" // a step failed after it was started
)

// Entry is one line of the audit log.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details,omitempty"`
	Allowed   bool      `json:"allowed"`
	Remember  bool      `json:"remember"`
	Tier      string    `json:"tier"`
	Source    Source    `json:"source"`
	Error     string    `json:"error,omitempty"`
}

// Log appends entries to a newline-delimited JSON file. The file is opened per
// call, so several Logs may point at the same path within one process.
type Log struct {
	path   string
	logger *logging.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// New creates a log writing to path. Parent directories are created on first write.
func New(path string) *Log {
	return &Log{
		path:   path,
		logger: logging.New().WithComponent("audit"),
		now:    time.Now,
	}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes entry and never fails: write errors are reported to the
// component logger and dropped.
func (l *Log) Append(entry Entry) error {
	if err := l.Write(entry); err != nil {
		l.logger.Warn("audit write failed", map[string]interface{}{
			"path":     l.path,
			"action":   entry.Action,
			"resource": entry.Resource,
			"error":    err.Error(),
		})
	}
	return nil
}

// Write appends entry and returns any I/O error. Timestamps never go backwards
// within one Log.
func (l *Log) Write(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	if entry.Timestamp.Before(l.last) {
		entry.Timestamp = l.last
	}
	l.last = entry.Timestamp

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing audit log: %w", err)
	}
	return f.Close()
}

// ReadAll parses every well-formed entry in the file at path. Malformed lines
// are skipped. A missing file yields no entries.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, _, err := decode(f)
	return entries, err
}

// decode reads entries from r and returns how many bytes ended in a complete line.
func decode(r io.Reader) ([]Entry, int64, error) {
	var (
		entries  []Entry
		consumed int64
	)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A trailing partial line is left for the next read.
			if errors.Is(err, io.EOF) {
				return entries, consumed, nil
			}
			return entries, consumed, err
		}
		consumed += int64(len(line))
		var e Entry
		if jsonErr := json.Unmarshal(line, &e); jsonErr != nil {
			continue
		}
		entries = append(entries, e)
	}
}
