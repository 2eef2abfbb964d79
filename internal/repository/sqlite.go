package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// modernc sqlite serializes writers; one connection also keeps
	// :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			event_kind TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT,
			sound TEXT NOT NULL,
			area_desc TEXT,
			priority REAL NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_alert_id ON notifications(alert_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) AddNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, alert_id, event_kind, category, title, message, sound, area_desc, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AlertID, string(n.Kind), string(n.Category), n.Title, n.Message, string(n.Sound), n.AreaDesc, n.Priority, n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error inserting notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications first.
func (s *SQLiteDB) ListNotifications(ctx context.Context, opts Filter) ([]models.Notification, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Kind != nil {
		where = append(where, "event_kind = ?")
		args = append(args, string(*opts.Kind))
	}
	if opts.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*opts.Category))
	}

	query := `SELECT id, alert_id, event_kind, category, title, message, sound, area_desc, priority, created_at FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var (
			n                     models.Notification
			kind, category, sound string
			message, areaDesc     sql.NullString
			createdAt             int64
		)
		if err := rows.Scan(&n.ID, &n.AlertID, &kind, &category, &n.Title, &message, &sound, &areaDesc, &n.Priority, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		n.Kind = models.EventKind(kind)
		n.Category = models.Category(category)
		n.Sound = models.Sound(sound)
		n.Message = message.String
		n.AreaDesc = areaDesc.String
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CountNotifications(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return n, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
