package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values that would otherwise fail only when a component starts.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Scheduler.DuePolicy)) {
	case "", "exact", "overdue":
	default:
		add(fmt.Errorf("scheduler.due_policy: unknown policy %q (want exact or overdue)", c.Scheduler.DuePolicy))
	}
	if c.Scheduler.Workers < 0 {
		add(errors.New("scheduler.workers must be >= 0"))
	}
	if c.Delivery.RatePerSec < 0 {
		add(errors.New("delivery.rate_per_sec must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "none":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(errors.New("storage.path is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvStorageDSN))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Logging.Telegram.Enabled && c.Logging.Telegram.ChatID == 0 {
		add(errors.New("logging.telegram.chat_id is required when enabled"))
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout":  c.Telegram.PollTimeout,
		"scheduler.tick_timeout": c.Scheduler.TickTimeout,
		"delivery.timeout":       c.Delivery.Timeout,
		"storage.busy_timeout":   c.Storage.BusyTimeout,
		"http.read_timeout":      c.HTTP.ReadTimeout,
		"http.write_timeout":     c.HTTP.WriteTimeout,
		"http.idle_timeout":      c.HTTP.IdleTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	if d, err := ParseDurationField("scheduler.tick_timeout", c.Scheduler.TickTimeout); err == nil && d >= time.Minute {
		add(fmt.Errorf("scheduler.tick_timeout: %s must be under 1m so ticks never overlap", d))
	}
	return errors.Join(errs...)
}
