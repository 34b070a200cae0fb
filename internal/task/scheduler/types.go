package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reminderbot/internal/reminder"
	"reminderbot/internal/storage"
)

// TickSpec fires at second 0 of every minute.
const TickSpec = "0 * * * * *"

// MaxTickTimeout keeps a tick inside its minute. Cron skips a tick while the
// previous one still runs, and under PolicyExact a skipped minute is lost.
const MaxTickTimeout = 55 * time.Second

// DuePolicy selects which tasks a tick considers due.
type DuePolicy string

const (
	// PolicyExact fires a task only during the tick of its own minute.
	PolicyExact DuePolicy = "exact"
	// PolicyOverdue also picks up tasks from earlier minutes still in the store.
	PolicyOverdue DuePolicy = "overdue"
)

func ParseDuePolicy(s string) (DuePolicy, error) {
	switch DuePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyExact:
		return PolicyExact, nil
	case PolicyOverdue:
		return PolicyOverdue, nil
	default:
		return "", fmt.Errorf("unknown due policy %q (want exact|overdue)", s)
	}
}

type Config struct {
	Enabled     bool
	Timezone    string // IANA name; empty means the server's local zone
	DuePolicy   DuePolicy
	Workers     int           // concurrent deliveries per tick
	TickTimeout time.Duration // upper bound for one tick
}

func (c Config) withDefaults() Config {
	if c.DuePolicy == "" {
		c.DuePolicy = PolicyExact
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 50 * time.Second
	}
	if c.TickTimeout > MaxTickTimeout {
		c.TickTimeout = MaxTickTimeout
	}
	return c
}

// TaskStore is the part of storage.Store the scheduler needs.
type TaskStore interface {
	Due(ctx context.Context, q storage.DueQuery) ([]reminder.Task, error)
	Delete(ctx context.Context, id reminder.TaskID) error
}

// Gateway sends rendered reminders. Errors mean "not delivered".
type Gateway interface {
	Send(ctx context.Context, dest reminder.Destination, text string) error
}

// TickReport summarizes one tick. Partial completion is a normal outcome.
type TickReport struct {
	Minute       time.Time     `json:"minute"`
	Policy       DuePolicy     `json:"policy"`
	Due          int           `json:"due"`
	Delivered    int           `json:"delivered"`
	Failed       int           `json:"failed"`
	DeleteFailed int           `json:"delete_failed"`
	Took         time.Duration `json:"took"`
	Err          string        `json:"error,omitempty"`
}

// DeliveryEvent is the payload of task.delivered and task.delivery_failed.
type DeliveryEvent struct {
	ID          reminder.TaskID      `json:"id"`
	Destination reminder.Destination `json:"destination"`
	ScheduledAt time.Time            `json:"scheduled_at"`
	Error       string               `json:"error,omitempty"`
	Timeout     bool                 `json:"timeout,omitempty"`
}

type Snapshot struct {
	Enabled    bool        `json:"enabled"`
	Running    bool        `json:"running"`
	Timezone   string      `json:"timezone"`
	DuePolicy  DuePolicy   `json:"due_policy"`
	Workers    int         `json:"workers"`
	Next       time.Time   `json:"next,omitempty"`
	LastReport *TickReport `json:"last_report,omitempty"`
}
