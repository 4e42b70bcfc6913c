package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/scianalytics/agentcore/pkg/models"
)

// Log is an append-only, newline-delimited JSON record of every message in
// a session's conversation. Unlike a whole-file marshaled snapshot, each
// Append writes and fsyncs a single line before returning, so a crash never
// loses an acknowledged write and a reader never observes a torn record.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// OpenLog opens (creating if necessary) the conversation log for a session
// under dir, appending to any existing history.
func OpenLog(dir, sessionID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create log dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open log: %w", err)
	}
	return &Log{file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one message to the log. It returns only after the record
// has been flushed and fsynced, so a caller that has received a nil error
// can rely on the message surviving a crash.
func (l *Log) Append(msg models.ConversationMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal message: %w", err)
	}
	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("session: write message: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("session: write message: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("session: flush message: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("session: sync message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("session: flush on close: %w", err)
	}
	return l.file.Close()
}

// ReadAll replays every message currently recorded in the log, in append
// order. The Agent Runner uses it at the start of each turn to rebuild
// in-memory history, including after a restart.
func ReadAll(dir, sessionID string) ([]models.ConversationMessage, error) {
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: open log: %w", err)
	}
	defer f.Close()

	var out []models.ConversationMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg models.ConversationMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("session: decode log line: %w", err)
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: scan log: %w", err)
	}
	return out, nil
}

// Rewrite atomically replaces the log's contents with messages, used after
// compaction to splice a summary message in place of the prefix it
// replaces. The write goes to a temp file in the same directory and is
// renamed into place so a reader never observes a partially-written log.
func Rewrite(dir, sessionID string, messages []models.ConversationMessage) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: create log dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	tmp, err := os.CreateTemp(dir, sessionID+".jsonl.tmp-*")
	if err != nil {
		return fmt.Errorf("session: create temp log: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("session: marshal message: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			tmp.Close()
			return fmt.Errorf("session: write message: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			return fmt.Errorf("session: write message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: flush temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp log: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: rename temp log: %w", err)
	}
	return nil
}
