package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/models"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

// SQLiteStore はRedisを使わない単体構成向けのストアです
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite はファイルを開き（なければ作成し）スキーマを用意します
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc/sqlite は書き込みを直列化する必要がある
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS direct_messages (
			id        TEXT PRIMARY KEY,
			sender    TEXT NOT NULL,
			receiver  TEXT NOT NULL,
			content   TEXT NOT NULL DEFAULT '',
			file_url  TEXT,
			file_name TEXT,
			file_type TEXT,
			timestamp INTEGER NOT NULL,
			is_read   INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_dm_pair ON direct_messages (sender, receiver, timestamp);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg models.ChatMessage) error {
	var fileURL, fileName, fileType sql.NullString
	if msg.File != nil {
		fileURL = sql.NullString{String: msg.File.URL, Valid: true}
		fileName = sql.NullString{String: msg.File.Name, Valid: msg.File.Name != ""}
		fileType = sql.NullString{String: msg.File.Type, Valid: msg.File.Type != ""}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO direct_messages (id, sender, receiver, content, file_url, file_name, file_type, timestamp, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Receiver, msg.Content,
		fileURL, fileName, fileType,
		msg.Timestamp.UnixMilli(), lo.Ternary(msg.Read, 1, 0),
	)
	return err
}

func (s *SQLiteStore) ListConversation(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return []models.ChatMessage{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, content, file_url, file_name, file_type, timestamp, is_read
		FROM direct_messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, a, b, b, a, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]models.ChatMessage, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// 新しい順で取得したので古い順に並べ直す
	return lo.Reverse(res), nil
}

func scanMessage(rows *sql.Rows) (models.ChatMessage, error) {
	var (
		m                           models.ChatMessage
		fileURL, fileName, fileType sql.NullString
		ts                          int64
		isRead                      int
	)
	if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Content, &fileURL, &fileName, &fileType, &ts, &isRead); err != nil {
		return models.ChatMessage{}, err
	}
	if fileURL.Valid && strings.TrimSpace(fileURL.String) != "" {
		m.File = &models.FileRef{URL: fileURL.String, Name: fileName.String, Type: fileType.String}
	}
	m.Timestamp = time.UnixMilli(ts).UTC()
	m.Read = isRead != 0
	return m, nil
}

func (s *SQLiteStore) LastMessage(ctx context.Context, a, b string) (models.ChatMessage, bool, error) {
	msgs, err := s.ListConversation(ctx, a, b, 1)
	if err != nil || len(msgs) == 0 {
		return models.ChatMessage{}, false, err
	}
	return msgs[0], true, nil
}

func (s *SQLiteStore) MarkRead(ctx context.Context, receiver, sender string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE direct_messages SET is_read = 1
		WHERE sender = ? AND receiver = ? AND is_read = 0`, sender, receiver)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) CountUnread(ctx context.Context, receiver, sender string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM direct_messages
		WHERE sender = ? AND receiver = ? AND is_read = 0`, sender, receiver).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AddUser(ctx context.Context, user models.User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, created_at) VALUES (?, ?) ON CONFLICT(username) DO NOTHING`,
		user.Username, user.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) ExistsUser(ctx context.Context, username string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
