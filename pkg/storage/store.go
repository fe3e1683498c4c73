// Package storage persists user accounts and saved scripts in SQLite.
// It also provides the per-user script filesystem the interpreter's
// file statements operate on for terminal sessions.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/clarolang/claroterm/pkg/configuration"
	"github.com/clarolang/claroterm/pkg/logger"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrScriptNotFound     = errors.New("script not found")
	ErrScriptTooLarge     = errors.New("script exceeds size limit")
)

// Store wraps the SQLite database holding users and scripts.
type Store struct {
	conn *sql.DB
}

// Open initializes the database connection and ensures the schema
// exists.
func Open(dbPath string) (*Store, error) {
	busyTimeout := configuration.GetInt("Database", "busy_timeout_ms", 5000)
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", dbPath, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{conn: db}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	logger.Info(logger.AreaDatabase, "database opened at %s", dbPath)
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_login INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS scripts (
			username TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (username, name)
		)`,
	}
	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateUser registers a new account with a bcrypt-hashed password.
func (s *Store) CreateUser(username, password string) error {
	cost := configuration.GetInt("Authentication", "password_hash_cost", bcrypt.DefaultCost)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("password hashing failed: %w", err)
	}

	_, err = s.conn.Exec(
		`INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)`,
		username, string(hash), time.Now().Unix(),
	)
	if err != nil {
		// The primary key rejects duplicates.
		return ErrUserExists
	}
	logger.Info(logger.AreaDatabase, "user %q created", username)
	return nil
}

// Authenticate checks a username and password pair and records the
// login time on success.
func (s *Store) Authenticate(username, password string) error {
	var storedHash string
	err := s.conn.QueryRow(
		`SELECT password FROM users WHERE username = ?`, username,
	).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	if _, err := s.conn.Exec(
		`UPDATE users SET last_login = ? WHERE username = ?`,
		time.Now().Unix(), username,
	); err != nil {
		logger.Warn(logger.AreaDatabase, "failed to record login time for %q: %v", username, err)
	}
	return nil
}

// SaveScript stores or replaces a named script for a user.
func (s *Store) SaveScript(username, name, content string) error {
	maxBytes := configuration.GetInt("Database", "max_script_bytes", 262144)
	if len(content) > maxBytes {
		return ErrScriptTooLarge
	}

	_, err := s.conn.Exec(
		`INSERT INTO scripts (username, name, content, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(username, name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		username, name, content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("script save failed: %w", err)
	}
	logger.Debug(logger.AreaDatabase, "script %q saved for %q (%d bytes)", name, username, len(content))
	return nil
}

// LoadScript returns the content of a named script.
func (s *Store) LoadScript(username, name string) (string, error) {
	var content string
	err := s.conn.QueryRow(
		`SELECT content FROM scripts WHERE username = ? AND name = ?`,
		username, name,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrScriptNotFound
	}
	if err != nil {
		return "", fmt.Errorf("script load failed: %w", err)
	}
	return content, nil
}

// ScriptInfo describes one stored script.
type ScriptInfo struct {
	Name      string
	Size      int
	UpdatedAt time.Time
}

// ListScripts returns all scripts a user has saved, newest first.
func (s *Store) ListScripts(username string) ([]ScriptInfo, error) {
	rows, err := s.conn.Query(
		`SELECT name, length(content), updated_at FROM scripts WHERE username = ? ORDER BY updated_at DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("script list failed: %w", err)
	}
	defer rows.Close()

	var scripts []ScriptInfo
	for rows.Next() {
		var info ScriptInfo
		var updatedAt int64
		if err := rows.Scan(&info.Name, &info.Size, &updatedAt); err != nil {
			return nil, fmt.Errorf("script row scan failed: %w", err)
		}
		info.UpdatedAt = time.Unix(updatedAt, 0)
		scripts = append(scripts, info)
	}
	return scripts, rows.Err()
}

// DeleteScript removes a stored script.
func (s *Store) DeleteScript(username, name string) error {
	res, err := s.conn.Exec(
		`DELETE FROM scripts WHERE username = ? AND name = ?`,
		username, name,
	)
	if err != nil {
		return fmt.Errorf("script delete failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScriptNotFound
	}
	return nil
}

// ScriptFS exposes one user's stored scripts through the
// interpreter's filesystem contract, so IMPORT and the file
// statements resolve against the script store instead of the OS.
type ScriptFS struct {
	store    *Store
	username string
}

// NewScriptFS binds the store to a username.
func NewScriptFS(store *Store, username string) *ScriptFS {
	return &ScriptFS{store: store, username: username}
}

// ReadText loads a stored script by name.
func (fs *ScriptFS) ReadText(path string) (string, error) {
	return fs.store.LoadScript(fs.username, path)
}

// WriteText saves a script under the given name.
func (fs *ScriptFS) WriteText(path, content string) error {
	return fs.store.SaveScript(fs.username, path, content)
}
