package common

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// EditEntry records the replacement of one frame's packet in a metadata
// stream.
type EditEntry struct {
	Frame     int       `json:"frame"`
	Offset    int64     `json:"offset"`
	Fields    []string  `json:"fields,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	BeforeHex string    `json:"beforeHex"`
	AfterHex  string    `json:"afterHex"`
	Ts        time.Time `json:"ts"`
}

func (e EditEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(e.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(e.BeforeHex)
}

func (e EditEntry) AfterBytes() ([]byte, error) {
	if strings.TrimSpace(e.AfterHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(e.AfterHex)
}

// EditLog provides append-only access to a JSONL audit log.
type EditLog struct {
	path string
	mu   sync.Mutex
}

func NewEditLog(path string) *EditLog {
	return &EditLog{path: path}
}

func (l *EditLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry as a single JSON line.
func (l *EditLog) Append(entry EditEntry) error {
	if l == nil {
		return errors.New("nil edit log")
	}
	if entry.Frame < 0 {
		return errors.New("edit entry missing frame")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func ReadEditLog(path string) ([]EditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var entries []EditEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry EditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode edit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
