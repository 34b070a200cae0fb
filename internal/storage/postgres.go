package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reminderbot/internal/reminder"
	logx "reminderbot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 8
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	for i, stmt := range postgresMigrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying postgres migration %d: %w", i+1, err)
		}
	}
	log.Info("storage opened", logx.String("driver", "postgres"), logx.String("host", poolCfg.ConnConfig.Host))
	return &postgresStore{pool: pool, loc: cfg.Location, log: log}, nil
}

func (s *postgresStore) Insert(ctx context.Context, t reminder.Task) (reminder.TaskID, error) {
	if err := validate(t); err != nil {
		return "", err
	}
	id := newID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_task (id, destination, scheduled_at, text) VALUES ($1, $2, $3, $4)`,
		string(id), int64(t.Destination), reminder.TruncateMinute(t.ScheduledAt), t.Text,
	)
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return id, nil
}

func (s *postgresStore) Due(ctx context.Context, q DueQuery) ([]reminder.Task, error) {
	op := "="
	if q.IncludeOverdue {
		op = "<="
	}
	return s.selectTasks(ctx,
		`SELECT id, destination, scheduled_at, text FROM notification_task
		 WHERE scheduled_at `+op+` $1 ORDER BY scheduled_at, created_at`,
		reminder.TruncateMinute(q.Minute))
}

func (s *postgresStore) List(ctx context.Context) ([]reminder.Task, error) {
	return s.selectTasks(ctx, `SELECT id, destination, scheduled_at, text FROM notification_task ORDER BY scheduled_at, created_at`)
}

func (s *postgresStore) selectTasks(ctx context.Context, query string, args ...any) ([]reminder.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (reminder.Task, error) {
		var (
			id   string
			dest int64
			at   time.Time
			text string
		)
		if err := row.Scan(&id, &dest, &at, &text); err != nil {
			return reminder.Task{}, err
		}
		return reminder.Task{
			ID:          reminder.TaskID(id),
			Destination: reminder.Destination(dest),
			ScheduledAt: at.In(s.loc),
			Text:        text,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning tasks: %w", err)
	}
	return tasks, nil
}

func (s *postgresStore) Delete(ctx context.Context, id reminder.TaskID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notification_task WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
