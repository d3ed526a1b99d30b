// Package cache is the durable local fallback store. It holds the last known
// task list and small metadata in a single-file SQLite database so guests and
// offline sessions survive process restarts.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/logger"
	"github.com/wote-dev/simplr-web-sub000/internal/metrics"

	_ "modernc.org/sqlite"
)

const (
	tasksKey        = "simplr_tasks"
	envelopeVersion = "1.0.0"
)

// envelope is the persisted record shape. Older versions of the app wrote a
// bare task array; LoadTasks still accepts that.
type envelope struct {
	Data      []domain.Task `json:"data"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
}

type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database and ensures the schema exists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Save JSON-encodes value under key. Failures (disk full, locked file) are
// non-fatal to the engine; callers log and continue.
func (c *Cache) Save(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.saveRaw(key, string(raw))
}

func (c *Cache) saveRaw(key, raw string) error {
	_, err := c.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load decodes the value stored under key into dest. Absence and corruption
// both report (false, nil): a record that no longer parses is as good as gone.
func (c *Cache) Load(key string, dest any) (bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logger.Warn("cache: corrupt record, treating as absent", "key", key, "error", err)
		metrics.CacheErrors.WithLabelValues("load").Inc()
		return false, nil
	}
	return true, nil
}

func (c *Cache) Clear(key string) error {
	if _, err := c.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

// SaveTasks writes the full task list in the versioned envelope shape.
func (c *Cache) SaveTasks(tasks []domain.Task) error {
	env := envelope{
		Data:      tasks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   envelopeVersion,
	}
	if err := c.Save(tasksKey, env); err != nil {
		metrics.CacheErrors.WithLabelValues("save").Inc()
		return err
	}
	return nil
}

// LoadTasks reads the cached task list, accepting both the current envelope
// and the legacy bare-array shape. (found, nil) tells absence from emptiness.
func (c *Cache) LoadTasks() ([]domain.Task, bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, tasksKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", tasksKey, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Version != "" {
		return env.Data, true, nil
	}

	var legacy []domain.Task
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil {
		return legacy, true, nil
	}

	logger.Warn("cache: corrupt task record, treating as absent", "key", tasksKey)
	metrics.CacheErrors.WithLabelValues("load").Inc()
	return nil, false, nil
}

// ClearTasks removes the cached task list.
func (c *Cache) ClearTasks() error {
	return c.Clear(tasksKey)
}
