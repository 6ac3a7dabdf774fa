package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moviepal/chatstore/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		user_id INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id, sender, message, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(user_id, session_id);

	CREATE TABLE IF NOT EXISTS active_users (
		user_id INTEGER PRIMARY KEY,
		last_seen INTEGER NOT NULL,
		session_expiry INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_active_users_last_seen ON active_users(last_seen);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser adds a user to the directory.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	query := `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, time.Now().Unix())
	if isUniqueViolation(err) {
		return 0, domain.ErrUserExists
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
	row := s.db.QueryRowContext(ctx, query, username)

	var user domain.User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// ResolveUserID maps a username to its ID.
func (s *SQLiteStore) ResolveUserID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve user id: %w", err)
	}
	return id, nil
}

// DeleteUser removes a user from the directory.
func (s *SQLiteStore) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// PersistMessages idempotently inserts archived rows in one transaction.
func (s *SQLiteStore) PersistMessages(ctx context.Context, records []domain.ChatRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back persist transaction", "error", rbErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO chat_messages (user_id, session_id, sender, message, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close insert statement", "error", closeErr)
		}
	}()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.UserID, r.SessionID, r.Sender, r.Text, r.Timestamp.Unix()); err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListSessionIDs returns the distinct session IDs ever archived for a user.
func (s *SQLiteStore) ListSessionIDs(ctx context.Context, userID int64) ([]string, error) {
	query := `SELECT DISTINCT session_id FROM chat_messages WHERE user_id = ? ORDER BY session_id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query session ids: %w", err)
	}
	defer closeRows(rows, "session id")

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session ids: %w", err)
	}
	return ids, nil
}

// ListMessages returns archived rows for a session, ascending by timestamp.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID int64, sessionID string) ([]domain.ChatRecord, error) {
	query := `
		SELECT user_id, session_id, sender, message, timestamp
		FROM chat_messages
		WHERE user_id = ? AND session_id = ?
		ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer closeRows(rows, "chat message")

	var records []domain.ChatRecord
	for rows.Next() {
		var r domain.ChatRecord
		var ts int64
		if err := rows.Scan(&r.UserID, &r.SessionID, &r.Sender, &r.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return records, nil
}

// DeleteSession bulk-deletes all archived rows for (userID, sessionID).
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID int64, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session rows: %w", err)
	}
	return result.RowsAffected()
}

// UpsertActivity creates or updates the single activity record for a user.
func (s *SQLiteStore) UpsertActivity(ctx context.Context, rec domain.ActiveUser) error {
	query := `
		INSERT INTO active_users (user_id, last_seen, session_expiry)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			session_expiry = COALESCE(excluded.session_expiry, active_users.session_expiry)`

	var expiry interface{}
	if rec.SessionExpiry != nil {
		expiry = rec.SessionExpiry.Unix()
	}

	if _, err := s.db.ExecContext(ctx, query, rec.UserID, rec.LastSeen.Unix(), expiry); err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}
	return nil
}

// SelectIdleUsers returns activity records older than the cutoff.
func (s *SQLiteStore) SelectIdleUsers(ctx context.Context, cutoff time.Time) ([]domain.IdleUser, error) {
	query := `
		SELECT a.user_id, u.username, a.last_seen
		FROM active_users a
		JOIN users u ON u.id = a.user_id
		WHERE a.last_seen < ?`
	rows, err := s.db.QueryContext(ctx, query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query idle users: %w", err)
	}
	defer closeRows(rows, "idle user")

	var users []domain.IdleUser
	for rows.Next() {
		var u domain.IdleUser
		var lastSeen int64
		if err := rows.Scan(&u.UserID, &u.Username, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan idle user: %w", err)
		}
		u.LastSeen = time.Unix(lastSeen, 0)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle users: %w", err)
	}
	return users, nil
}

// DeleteActivity removes a user's activity record.
func (s *SQLiteStore) DeleteActivity(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "what", what, "error", err)
	}
}
