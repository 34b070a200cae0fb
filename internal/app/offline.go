package app

import (
	"fmt"
	"time"

	"reminderbot/internal/config"
	"reminderbot/internal/intake"
	"reminderbot/internal/storage"
	"reminderbot/internal/task/scheduler"
	logx "reminderbot/pkg/logx"
)

// Offline opens the configured store without the bot, for operator commands.
type Offline struct {
	Config   *config.Config
	Store    storage.Store
	Intake   *intake.Service
	Location *time.Location
}

func OpenOffline(cfgPath string, log logx.Logger) (*Offline, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc := scheduler.LoadLocation(cfg.Scheduler.Timezone, log)
	store, err := storage.Open(mapStorageConfig(cfg, loc), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &Offline{
		Config:   cfg,
		Store:    store,
		Intake:   intake.New(store, loc, log, nil),
		Location: loc,
	}, nil
}

func (o *Offline) Close() error { return o.Store.Close() }
