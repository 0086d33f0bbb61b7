package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatline/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteFile 是 sqlite 驱动在数据目录下使用的文件名。
const SQLiteFile = "history.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	worktree_id TEXT NOT NULL DEFAULT '',
	archived    INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, id);
`

// SQLiteStore 把会话元数据存成行，消息体存成 JSON 列；seq 保持插入顺序，覆盖写不改变位置。
// 消息 id 只在会话内唯一。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）dir/history.db；dir 为 ":memory:" 时使用内存库。
func OpenSQLite(dir string) (*SQLiteStore, error) {
	dsn := dir
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = filepath.Join(dir, SQLiteFile)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite 只允许单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Fetch(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg chat.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			log.Warnf("skip undecodable message in session %s: %v", sessionID, err)
			continue
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, msg chat.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.withTx(ctx, msg.SessionID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, body) VALUES (?, ?, ?)
			ON CONFLICT(session_id, id) DO UPDATE SET body = excluded.body`,
			msg.ID, msg.SessionID, string(body))
		return err
	})
}

func (s *SQLiteStore) MarkPlanApproved(ctx context.Context, sessionID, messageID string) error {
	return s.updateMessage(ctx, sessionID, messageID, func(msg *chat.Message) {
		msg.PlanApproved = true
	})
}

func (s *SQLiteStore) MarkAnswered(ctx context.Context, sessionID, messageID, toolID string) error {
	return s.updateMessage(ctx, sessionID, messageID, func(msg *chat.Message) {
		markAnswered(msg, toolID)
	})
}

func (s *SQLiteStore) updateMessage(ctx context.Context, sessionID, messageID string, fn func(*chat.Message)) error {
	return s.withTx(ctx, sessionID, func(tx *sql.Tx) error {
		var body string
		err := tx.QueryRowContext(ctx,
			`SELECT body FROM messages WHERE id = ? AND session_id = ?`, messageID, sessionID).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		if err != nil {
			return err
		}
		var msg chat.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return fmt.Errorf("decode message %s: %w", messageID, err)
		}
		fn(&msg)
		updated, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE messages SET body = ? WHERE id = ? AND session_id = ?`, string(updated), messageID, sessionID)
		return err
	})
}

// withTx runs fn inside a transaction that also bumps the session's updated_at.
func (s *SQLiteStore) withTx(ctx context.Context, sessionID string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, title string) (chat.Session, error) {
	sess := chat.NewSession(title)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, worktree_id, archived, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		sess.ID, sess.Title, sess.WorktreeID, sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano())
	if err != nil {
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}
	log.WithField("session_id", sess.ID).Debug("session created")
	return sess, nil
}

const sessionColumns = `id, title, worktree_id, archived, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (chat.Session, error) {
	var (
		sess             chat.Session
		archived         int
		created, updated int64
	)
	if err := row.Scan(&sess.ID, &sess.Title, &sess.WorktreeID, &archived, &created, &updated); err != nil {
		return chat.Session{}, err
	}
	sess.Archived = archived != 0
	sess.CreatedAt = time.Unix(0, created)
	sess.UpdatedAt = time.Unix(0, updated)
	return sess, nil
}

func (s *SQLiteStore) Session(ctx context.Context, sessionID string) (chat.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, err
}

func (s *SQLiteStore) Sessions(ctx context.Context, includeArchived bool) ([]chat.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []chat.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Archive(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET archived = 1, updated_at = ? WHERE id = ?`, time.Now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
