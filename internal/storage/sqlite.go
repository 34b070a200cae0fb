package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"reminderbot/internal/reminder"
	logx "reminderbot/pkg/logx"
)

type sqliteStore struct {
	db  *sqlx.DB
	loc *time.Location
	log logx.Logger
}

// taskRow is the on-disk shape. scheduled_at holds unix seconds of the minute.
type taskRow struct {
	ID          string `db:"id"`
	Destination int64  `db:"destination"`
	ScheduledAt int64  `db:"scheduled_at"`
	Text        string `db:"text"`
}

func (r taskRow) task(loc *time.Location) reminder.Task {
	return reminder.Task{
		ID:          reminder.TaskID(r.ID),
		Destination: reminder.Destination(r.Destination),
		ScheduledAt: time.Unix(r.ScheduledAt, 0).In(loc),
		Text:        r.Text,
	}
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	st := &sqliteStore{db: db, loc: cfg.Location, log: log}
	if err := st.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("storage opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) runMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}
	var current int
	if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for _, m := range sqliteMigrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Debug("migration applied", logx.Int("version", m.version))
	}
	return nil
}

func (s *sqliteStore) Insert(ctx context.Context, t reminder.Task) (reminder.TaskID, error) {
	if err := validate(t); err != nil {
		return "", err
	}
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_task (id, destination, scheduled_at, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(id), int64(t.Destination), reminder.TruncateMinute(t.ScheduledAt).Unix(), t.Text, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return id, nil
}

func (s *sqliteStore) Due(ctx context.Context, q DueQuery) ([]reminder.Task, error) {
	op := "="
	if q.IncludeOverdue {
		op = "<="
	}
	query := `SELECT id, destination, scheduled_at, text FROM notification_task
		WHERE scheduled_at ` + op + ` ? ORDER BY scheduled_at, rowid`
	return s.selectTasks(ctx, query, reminder.TruncateMinute(q.Minute).Unix())
}

func (s *sqliteStore) List(ctx context.Context) ([]reminder.Task, error) {
	return s.selectTasks(ctx, `SELECT id, destination, scheduled_at, text FROM notification_task ORDER BY scheduled_at, rowid`)
}

func (s *sqliteStore) selectTasks(ctx context.Context, query string, args ...any) ([]reminder.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting tasks: %w", err)
	}
	out := make([]reminder.Task, len(rows))
	for i, r := range rows {
		out[i] = r.task(s.loc)
	}
	return out, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id reminder.TaskID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_task WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
