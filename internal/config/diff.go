package config

import (
	"slices"
	"sort"
	"strings"

	logx "reminderbot/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe fields for
// logging. Secrets (bot token, DSN, HTTP token) are reported only as set/unset.
//
// RestartRequired lists sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restartRequired []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg, newCfg

	if o.Telegram.Token != n.Telegram.Token || trim(o.Telegram.PollTimeout) != trim(n.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		restartRequired = append(restartRequired, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", trim(n.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", o.Telegram.Token != n.Telegram.Token),
		)
	}

	if o.Logging != n.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Logging.Level),
			logx.Bool("logging.console", n.Logging.Console),
			logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
		)
	}

	if o.Scheduler != n.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", n.Scheduler.Enabled),
			logx.String("scheduler.timezone", trim(n.Scheduler.Timezone)),
			logx.String("scheduler.due_policy", trim(n.Scheduler.DuePolicy)),
			logx.Int("scheduler.workers", n.Scheduler.Workers),
			logx.String("scheduler.tick_timeout", trim(n.Scheduler.TickTimeout)),
		)
	}

	if o.Delivery != n.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.String("delivery.timeout", trim(n.Delivery.Timeout)),
			logx.Int("delivery.rate_per_sec", n.Delivery.RatePerSec),
		)
	}

	if o.Storage != n.Storage {
		changed = append(changed, "storage")
		restartRequired = append(restartRequired, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", trim(n.Storage.Driver)),
			logx.Bool("storage.path_set", trim(n.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", trim(n.Storage.DSN) != ""),
			logx.String("storage.busy_timeout", trim(n.Storage.BusyTimeout)),
		)
	}

	if !httpEqual(o.HTTP, n.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", n.HTTP.Enabled),
			logx.String("http.addr", trim(n.HTTP.Addr)),
			logx.Bool("http.token_set", trim(n.HTTP.Token) != ""),
			logx.Bool("http.pprof", n.HTTP.Pprof),
			logx.Int("http.cors_origins", len(n.HTTP.CORSOrigins)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, restartRequired
}

func httpEqual(a, b HTTPConfig) bool {
	if !slices.Equal(a.CORSOrigins, b.CORSOrigins) {
		return false
	}
	return a.Enabled == b.Enabled &&
		a.Addr == b.Addr &&
		a.Token == b.Token &&
		a.Pprof == b.Pprof &&
		a.ReadTimeout == b.ReadTimeout &&
		a.WriteTimeout == b.WriteTimeout &&
		a.IdleTimeout == b.IdleTimeout
}

func trim(s string) string { return strings.TrimSpace(s) }
