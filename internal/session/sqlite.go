package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed session store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
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
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		crop TEXT NOT NULL DEFAULT '',
		lat REAL,
		lon REAL,
		history_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at);
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

// GetOrCreate retrieves the session, creating an empty one if absent.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.get(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	created := &domain.Session{
		ID:           sessionID,
		History:      []domain.Turn{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	query := `
		INSERT INTO sessions (session_id, history_json, created_at, last_active_at)
		VALUES (?, '[]', ?, ?)
		ON CONFLICT(session_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, sessionID, now.Unix(), now.Unix()); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) get(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, crop, lat, lon, history_json, created_at, last_active_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var (
		sess        domain.Session
		lat, lon    sql.NullFloat64
		historyJSON string
		createdAt   int64
		lastActive  int64
	)
	if err := row.Scan(&sess.ID, &sess.Crop, &lat, &lon, &historyJSON, &createdAt, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if lat.Valid && lon.Valid {
		sess.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, fmt.Errorf("decode session history: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.LastActiveAt = time.Unix(lastActive, 0).UTC()
	return &sess, nil
}

// AppendTurn appends a completed turn to the session's history.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	sess, err := s.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.AppendTurn(turn)

	historyJSON, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("encode session history: %w", err)
	}

	query := `UPDATE sessions SET history_json = ?, last_active_at = ? WHERE session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(historyJSON), turn.Timestamp.Unix(), sessionID); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// UpdateContext persists sticky crop and coordinate context.
func (s *SQLiteStore) UpdateContext(ctx context.Context, sessionID string, crop string, coords *domain.Coordinates) error {
	if crop == "" && coords == nil {
		return nil
	}
	if _, err := s.GetOrCreate(ctx, sessionID); err != nil {
		return err
	}

	now := time.Now().Unix()
	if crop != "" {
		query := `UPDATE sessions SET crop = ?, last_active_at = ? WHERE session_id = ?`
		if _, err := s.db.ExecContext(ctx, query, crop, now, sessionID); err != nil {
			return fmt.Errorf("update crop: %w", err)
		}
	}
	if coords != nil {
		query := `UPDATE sessions SET lat = ?, lon = ?, last_active_at = ? WHERE session_id = ?`
		if _, err := s.db.ExecContext(ctx, query, coords.Lat, coords.Lon, now, sessionID); err != nil {
			return fmt.Errorf("update coordinates: %w", err)
		}
	}
	return nil
}

// Reset discards the session and returns a fresh session ID. Deleting
// an already-cleared session is a no-op, so repeated resets succeed.
func (s *SQLiteStore) Reset(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}

	newID := uuid.New().String()
	if _, err := s.GetOrCreate(ctx, newID); err != nil {
		return "", err
	}
	return newID, nil
}

// DeleteExpired removes sessions idle longer than ttl.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
