package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"chatline/internal/chat"
)

// record 是单个会话文件的内容。
type record struct {
	Session  chat.Session   `json:"session"`
	Messages []chat.Message `json:"messages"`
}

// FileStore 每个会话一个 JSON 文件：<dir>/sessions/<id>.json。
// 写入先落临时文件再 rename，崩溃时不会留下半个文件。
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) sessionsDir() string {
	return filepath.Join(s.dir, "sessions")
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.sessionsDir(), id+".json")
}

func (s *FileStore) load(id string) (record, error) {
	var rec record
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) {
		return rec, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rec, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return rec, fmt.Errorf("read session %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

func (s *FileStore) save(rec record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(s.sessionsDir(), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	target := s.path(rec.Session.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp session: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp session: %w", err)
	}
	return nil
}

// mutate loads a session, applies fn and writes it back under the write lock.
func (s *FileStore) mutate(id string, fn func(*record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(id)
	if err != nil {
		return err
	}
	if err := fn(&rec); err != nil {
		return err
	}
	rec.Session.UpdatedAt = time.Now()
	return s.save(rec)
}

func (s *FileStore) Fetch(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Messages, nil
}

func (s *FileStore) Append(_ context.Context, msg chat.Message) error {
	return s.mutate(msg.SessionID, func(rec *record) error {
		rec.Messages = upsert(rec.Messages, msg.Clone())
		return nil
	})
}

func (s *FileStore) MarkPlanApproved(_ context.Context, sessionID, messageID string) error {
	return s.mutate(sessionID, func(rec *record) error {
		for i := range rec.Messages {
			if rec.Messages[i].ID == messageID {
				rec.Messages[i].PlanApproved = true
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	})
}

func (s *FileStore) MarkAnswered(_ context.Context, sessionID, messageID, toolID string) error {
	return s.mutate(sessionID, func(rec *record) error {
		for i := range rec.Messages {
			if rec.Messages[i].ID == messageID {
				markAnswered(&rec.Messages[i], toolID)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	})
}

func (s *FileStore) CreateSession(_ context.Context, title string) (chat.Session, error) {
	sess := chat.NewSession(title)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(record{Session: sess}); err != nil {
		return chat.Session{}, err
	}
	log.WithField("session_id", sess.ID).Debug("session created")
	return sess, nil
}

func (s *FileStore) Session(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.load(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return rec.Session, nil
}

func (s *FileStore) Sessions(_ context.Context, includeArchived bool) ([]chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]chat.Session, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := s.load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			log.Warnf("skip unreadable session file %s: %v", e.Name(), err)
			continue
		}
		if rec.Session.Archived && !includeArchived {
			continue
		}
		out = append(out, rec.Session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *FileStore) Archive(_ context.Context, sessionID string) error {
	return s.mutate(sessionID, func(rec *record) error {
		rec.Session.Archived = true
		return nil
	})
}

func (s *FileStore) Close() error { return nil }
