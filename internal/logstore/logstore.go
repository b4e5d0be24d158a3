// Package logstore implements the Log Persistor (spec.md §4.C): an
// asynchronous forwarder that drains a process's Message Store and
// appends Stdout/Stderr/SessionId entries to an on-disk JSONL file keyed
// by process id, grounded on the teacher's internal/session/store.go
// one-file-per-entity JSON persistence (here append-only instead of
// whole-file rewrite, since log entries accumulate rather than replace).
package logstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/vibeorchestrator/engine/internal/model"
	"github.com/vibeorchestrator/engine/internal/msgstore"
	"github.com/vibeorchestrator/engine/internal/store"
)

// Entry is one line of a process's persisted log file.
type Entry struct {
	Kind string `json:"kind"` // "stdout" | "stderr" | "session_id"
	Text string `json:"text"`
}

// Store persists execution-process logs to <dir>/<processID>.jsonl.
type Store struct {
	dir  string
	repo store.Repository

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a Log Persistor writing under dir. repo is used to redirect
// SessionId messages into ExecutorSession.SessionID, per spec.md §4.C.
func New(dir string, repo store.Repository) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, repo: repo, files: make(map[string]*os.File)}, nil
}

func (s *Store) path(processID string) string {
	return filepath.Join(s.dir, processID+".jsonl")
}

func (s *Store) fileFor(processID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[processID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(s.path(processID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s.files[processID] = f
	return f, nil
}

func (s *Store) append(processID string, e Entry) error {
	f, err := s.fileFor(processID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = f.Write(append(data, '\n'))
	return err
}

// Close releases the open file handle for processID, flushing nothing
// extra since every write is already an independent append.
func (s *Store) Close(processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[processID]
	if !ok {
		return nil
	}
	delete(s.files, processID)
	return f.Close()
}

// Forward drains ms (history then live) writing Stdout/Stderr/SessionId
// entries to disk, until Finished is observed. JsonPatch and Usage
// messages are not persisted; only the raw entries are, and ReadRaw
// returns them unchanged. Nothing in this package re-normalizes them.
func (s *Store) Forward(processID string, ms *msgstore.Store) {
	history, live := ms.Subscribe()
	for _, msg := range history {
		s.handle(processID, msg)
	}
	for msg := range live {
		s.handle(processID, msg)
		if msg.Kind == msgstore.KindFinished {
			break
		}
	}
	_ = s.Close(processID)
}

func (s *Store) handle(processID string, msg msgstore.Message) {
	switch msg.Kind {
	case msgstore.KindStdout:
		_ = s.append(processID, Entry{Kind: "stdout", Text: msg.Text})
	case msgstore.KindStderr:
		_ = s.append(processID, Entry{Kind: "stderr", Text: msg.Text})
	case msgstore.KindSessionID:
		_ = s.append(processID, Entry{Kind: "session_id", Text: msg.Text})
		if s.repo != nil {
			_ = s.repo.PutExecutorSession(context.Background(), &model.ExecutorSession{
				ExecutionProcessID: processID,
				SessionID:          msg.Text,
			})
		}
	}
}

// ReadRaw reads back the persisted Stdout/Stderr/SessionId entries for
// processID in order.
func (s *Store) ReadRaw(processID string) ([]Entry, error) {
	f, err := os.Open(s.path(processID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
