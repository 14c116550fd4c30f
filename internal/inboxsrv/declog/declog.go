// Package declog records one line per routing decision to a snappy-framed
// local log file. The log answers "what happened to this submission" after
// the inbox object itself has been moved or deleted.
package declog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"
	jsonitor "github.com/json-iterator/go"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// Outcome is the terminal state of one processed inbox object.
type Outcome string

const (
	// OutcomeAccepted means the report was relocated and queued for merging.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeOutOfOrder means only a timestamped archive copy was stored.
	OutcomeOutOfOrder Outcome = "out_of_order"
	// OutcomeRejected means the submission failed permanently and was
	// quarantined.
	OutcomeRejected Outcome = "rejected"
)

// Entry is one routing decision.
type Entry struct {
	At        string  `json:"at"`
	Outcome   Outcome `json:"outcome"`
	OwnerID   string  `json:"owner_id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	Key       string  `json:"key"`
	Reason    string  `json:"reason,omitempty"`
}

// Log appends decision entries to a snappy-framed file, one JSON line per
// entry inside the compressed stream. A nil *Log discards entries, so
// callers need no enabled check.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	w          *snappy.Writer
	sinceFlush int
	flushEvery int
	closed     bool
}

// Open opens or creates the decision log at path. Entries are pushed to
// disk every flushEvery appends; values below 1 flush on every entry.
// Reopening an existing file appends a fresh stream header, which readers
// of the framed format accept mid-stream.
func Open(path string, flushEvery int) (*Log, error) {
	if flushEvery < 1 {
		flushEvery = 1
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Log{
		file:       f,
		w:          snappy.NewBufferedWriter(f),
		flushEvery: flushEvery,
	}, nil
}

// Append records one decision. The timestamp is stamped here unless the
// entry already carries one.
func (l *Log) Append(e Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("decision log is closed")
	}
	if e.At == "" {
		e.At = time.Now().UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal decision entry: %w", err)
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write decision entry: %w", err)
	}

	l.sinceFlush++
	if l.sinceFlush >= l.flushEvery {
		l.sinceFlush = 0
		if err := l.w.Flush(); err != nil {
			return fmt.Errorf("failed to flush decision log: %w", err)
		}
	}
	return nil
}

// Flush pushes buffered entries to disk.
func (l *Log) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinceFlush = 0
	return l.w.Flush()
}

// Close flushes remaining entries and closes the file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.w.Close(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// ReadFile decodes all entries from a decision log file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(snappy.NewReader(r))
	// decision entries are small, but a corrupt stream could produce a
	// long run without newlines
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision log: %w", err)
	}
	return entries, nil
}
