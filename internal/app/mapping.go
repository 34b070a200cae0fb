package app

import (
	"strings"
	"time"

	"reminderbot/internal/config"
	"reminderbot/internal/httpapi"
	"reminderbot/internal/notifier"
	"reminderbot/internal/storage"
	"reminderbot/internal/task/scheduler"
	telegram "reminderbot/internal/transport/telegram/adapter"
	logx "reminderbot/pkg/logx"
)

// Config mapping from the validated file config to component configs.
// Durations were checked by config.Validate, so parse failures fall back to defaults.

func mapAdapterConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: config.Duration(cfg.Telegram.PollTimeout, 10*time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	sc := cfg.Scheduler
	policy, err := scheduler.ParseDuePolicy(sc.DuePolicy)
	if err != nil {
		policy = scheduler.PolicyExact
	}
	return scheduler.Config{
		Enabled:     sc.Enabled,
		Timezone:    sc.Timezone,
		DuePolicy:   policy,
		Workers:     sc.Workers,
		TickTimeout: config.Duration(sc.TickTimeout, 0),
	}
}

func mapDeliveryConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Timeout:    config.Duration(cfg.Delivery.Timeout, 0),
		RatePerSec: cfg.Delivery.RatePerSec,
	}
}

func mapStorageConfig(cfg *config.Config, loc *time.Location) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: config.Duration(sc.BusyTimeout, 0),
		Location:    loc,
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	hc := cfg.HTTP
	return httpapi.Config{
		Enabled:      hc.Enabled,
		Addr:         strings.TrimSpace(hc.Addr),
		Token:        strings.TrimSpace(hc.Token),
		CORSOrigins:  hc.CORSOrigins,
		Pprof:        hc.Pprof,
		ReadTimeout:  config.Duration(hc.ReadTimeout, 10*time.Second),
		WriteTimeout: config.Duration(hc.WriteTimeout, 0),
		IdleTimeout:  config.Duration(hc.IdleTimeout, 60*time.Second),
	}
}
