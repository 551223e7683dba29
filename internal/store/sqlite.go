package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/labconsole/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: writes are serialized and ":memory:" databases
	// stay visible across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReplaceNotifications replaces the mirrored collection in one
// transaction, keeping the given order.
func (s *SQLiteStore) ReplaceNotifications(
	ctx context.Context,
	version uint64,
	ns []model.Notification,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	err = tx.GetContext(ctx, &current, "SELECT version FROM sync_state WHERE id = 1")
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("reading sync state: %w", err)
	case current > version:
		return nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}

	if len(ns) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT OR REPLACE INTO notifications (
				id, position, title, message, type, timestamp, read, archived
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert statement: %w", err)
		}
		defer stmt.Close()

		for i, n := range ns {
			_, err = stmt.ExecContext(ctx,
				n.ID, i, n.Title, n.Message, string(n.Type),
				n.Timestamp.UTC(), boolToInt(n.Read), boolToInt(n.Archived),
			)
			if err != nil {
				return fmt.Errorf("inserting notification %s: %w", n.ID, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state (id, version, synced_at)
		VALUES (1, ?, ?)`,
		version, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording sync state: %w", err)
	}

	return tx.Commit()
}

// GetNotifications retrieves mirrored notifications matching filter in
// their snapshot order.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	filter NotificationFilter,
) ([]model.Notification, error) {
	var conditions []string
	var args []interface{}

	if filter.Archived != nil {
		conditions = append(conditions, "archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = 0 AND archived = 0")
	}

	query := `SELECT id, title, message, type, timestamp, read, archived FROM notifications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY position ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

// CountUnread returns the number of mirrored notifications that are
// neither read nor archived.
func (s *SQLiteStore) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE read = 0 AND archived = 0",
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// LastSync returns the mirrored snapshot version, or nil when nothing
// has been mirrored yet.
func (s *SQLiteStore) LastSync(ctx context.Context) (*SyncInfo, error) {
	var (
		info     SyncInfo
		syncedAt time.Time
	)
	row := s.db.QueryRowxContext(ctx, "SELECT version, synced_at FROM sync_state WHERE id = 1")
	if err := row.Scan(&info.Version, &syncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	info.SyncedAt = syncedAt
	return &info, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		typ       string
		readInt   int
		archInt   int
		timestamp time.Time
	)

	err := rows.Scan(
		&n.ID, &n.Title, &n.Message, &typ,
		&timestamp, &readInt, &archInt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Type = model.ParseNotificationType(typ)
	n.Timestamp = timestamp
	n.Read = readInt != 0
	n.Archived = archInt != 0

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
