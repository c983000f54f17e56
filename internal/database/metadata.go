package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const keyLastWorkDirCleanup = "last_workdir_cleanup"

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (value string, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, sql.ErrNoRows) {
			recordQuery("get_metadata", start, nil)
			return
		}
		recordQuery("get_metadata", start, err)
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	return value, err
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_metadata", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetLastWorkDirCleanup returns when stale job workspaces were last
// reclaimed. Returns zero time if never run.
func (d *Database) GetLastWorkDirCleanup(ctx context.Context) (time.Time, error) {
	value, err := d.GetMetadata(ctx, keyLastWorkDirCleanup)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastWorkDirCleanup stores the time of the last workspace cleanup.
func (d *Database) SetLastWorkDirCleanup(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return d.SetMetadata(ctx, keyLastWorkDirCleanup, "")
	}
	return d.SetMetadata(ctx, keyLastWorkDirCleanup, t.UTC().Format(time.RFC3339))
}
