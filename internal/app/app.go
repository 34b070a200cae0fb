package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reminderbot/internal/config"
	"reminderbot/internal/eventbus"
	"reminderbot/internal/httpapi"
	"reminderbot/internal/intake"
	"reminderbot/internal/notifier"
	rtsup "reminderbot/internal/runtime/supervisor"
	"reminderbot/internal/storage"
	"reminderbot/internal/task/scheduler"
	"reminderbot/internal/transport"
	telegram "reminderbot/internal/transport/telegram/adapter"
	"reminderbot/internal/transport/telegram/router"
	logx "reminderbot/pkg/logx"
)

// App wires the reminder pipeline: chat adapter and HTTP trigger feed intake,
// intake writes the store, the scheduler drains it through the gateway.
type App struct {
	cfgm        *config.ConfigManager
	watchConfig bool
	sup         *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	tally *eventbus.Tally
	store storage.Store

	adapter transport.Adapter
	gateway *notifier.Gateway
	intake  *intake.Service
	sched   *scheduler.Service
	router  *router.Router
	http    *httpapi.Service
	notify  *sdNotifier

	updates chan transport.Update
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	bootLog := logx.NewConsole("INFO")
	ad, err := telegram.New(mapAdapterConfig(cfg), bootLog)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfgm, cfg, ad)
	if err != nil {
		return nil, err
	}
	a.watchConfig = true
	return a, nil
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, ad transport.Adapter) (*App, error) {
	logSvc, root := logx.New(mapLogConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))

	schedCfg := mapSchedulerConfig(cfg)
	loc := scheduler.LoadLocation(schedCfg.Timezone, log)

	store, err := storage.Open(mapStorageConfig(cfg, loc), root)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))))

	bus := eventbus.New()
	gw := notifier.New(mapDeliveryConfig(cfg), ad, root)
	in := intake.New(store, loc, root, bus)
	sched := scheduler.New(schedCfg, store, gw, root, bus)
	rt := router.New(root, ad, in, 0)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		tally:   eventbus.NewTally(),
		store:   store,
		adapter: ad,
		gateway: gw,
		intake:  in,
		sched:   sched,
		router:  rt,
		notify:  newSDNotifier(root),
		updates: make(chan transport.Update, 256),
	}
	a.http = httpapi.New(mapHTTPConfig(cfg), httpapi.Deps{
		Intake: in,
		Tasks:  store,
		Health: a.Health,
	}, root)
	return a, nil
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Health is the /healthz payload.
func (a *App) Health() any {
	out := map[string]any{
		"events":    a.tally.Snapshot(),
		"scheduler": a.sched.Snapshot(),
		"delivery":  a.gateway.History(),
	}
	if a.sup != nil {
		out["supervisor"] = a.sup.Counters()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log)
	runCtx := a.sup.Context()

	a.sup.Go0("eventbus.tally", func(c context.Context) { a.tally.Run(c, a.bus) })

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	} else {
		a.log.Warn("scheduler disabled; reminders will be stored but not delivered")
	}
	if a.http.Enabled() {
		a.http.Start(runCtx)
	}

	// Baseline and subscription are taken together so a reload committed
	// before the loop runs is still diffed against the config in use.
	baseline := a.cfgm.Get()
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, baseline, sub)
	})
	if a.watchConfig {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.notify.Ready()
	a.sup.Go0("systemd.watchdog", a.notify.Watchdog)

	a.log.Info("app started")
	return nil
}

// reloadLoop applies published configs to the live components.
func (a *App) reloadLoop(c context.Context, lastApplied *config.Config, sub <-chan *config.Config) {
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts to the newest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restart {
		a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.gateway.Apply(mapDeliveryConfig(newCfg))

	prevSched := a.sched.Enabled()
	schedCfg := mapSchedulerConfig(newCfg)
	a.sched.Apply(schedCfg)
	a.intake.SetLocation(a.sched.Location())
	switch {
	case prevSched && !schedCfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !prevSched && schedCfg.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(c)
	}

	a.http.Reconfigure(c, mapHTTPConfig(newCfg))

	eventbus.Publish(a.bus, eventbus.ConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		if err := runStep(ctx, a.log, name, limit, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	// Inbound first so no new tasks arrive while the scheduler drains.
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("adapter.poll", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// runStep bounds one shutdown step by limit and the caller's deadline. A step
// that ignores its context is reported and left running.
func runStep(ctx context.Context, log logx.Logger, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		} else if took >= 500*time.Millisecond {
			log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
		return nil
	}
}
