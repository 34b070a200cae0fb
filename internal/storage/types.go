package storage

import (
	"context"
	"errors"
	"time"

	"reminderbot/internal/reminder"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("task not found")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite file
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Location is applied to scheduled_at values read back from the store.
	Location *time.Location
}

// DueQuery selects tasks for one scheduler tick.
type DueQuery struct {
	Minute time.Time
	// IncludeOverdue also returns tasks scheduled before Minute.
	IncludeOverdue bool
}

// Store is safe for concurrent use.
type Store interface {
	// Insert assigns a new id and persists t.
	Insert(ctx context.Context, t reminder.Task) (reminder.TaskID, error)
	// Due returns the tasks matching q ordered by scheduled_at.
	Due(ctx context.Context, q DueQuery) ([]reminder.Task, error)
	// Delete removes the task. Missing ids return ErrNotFound.
	Delete(ctx context.Context, id reminder.TaskID) error
	// List returns every pending task ordered by scheduled_at.
	List(ctx context.Context) ([]reminder.Task, error)
	Close() error
}

func validate(t reminder.Task) error {
	if t.Text == "" {
		return errors.New("task text must not be empty")
	}
	if t.ScheduledAt.IsZero() {
		return errors.New("task scheduled_at must be set")
	}
	return nil
}
