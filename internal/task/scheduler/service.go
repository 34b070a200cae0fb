package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reminderbot/internal/eventbus"
	logx "reminderbot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	bus   eventbus.Bus
	store TaskStore
	gw    Gateway

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID
	runCtx  context.Context
	cancel  context.CancelFunc

	last *TickReport
}

func New(cfg Config, store TaskStore, gw Gateway, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:   cfg,
		loc:   LoadLocation(cfg.Timezone, log),
		log:   log.With(logx.String("comp", "scheduler")),
		bus:   bus,
		store: store,
		gw:    gw,
		// SecondOptional accepts both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports the current config flag. Apply may run concurrently.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Location is the wall-clock zone used to compute the tick minute.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return loc
}

// Apply swaps policy and worker count live. A timezone change restarts cron.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if oldTZ == newTZ {
		return
	}
	s.loc = LoadLocation(newTZ, s.log)
	if s.c != nil {
		s.restartLocked()
		s.log.Info("timezone changed", logx.String("tz", s.loc.String()))
	}
}

// Start begins minute ticks. Ticks run under a context derived from ctx.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	if err := s.startCronLocked(); err != nil {
		s.log.Error("cron start failed", logx.Err(err))
		return
	}
	s.log.Info("service started",
		logx.String("tz", s.loc.String()),
		logx.String("policy", string(s.cfg.DuePolicy)),
		logx.Int("workers", s.cfg.Workers),
	)
}

func (s *Service) startCronLocked() error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	runCtx := s.runCtx
	id, err := c.AddFunc(TickSpec, func() {
		s.Tick(runCtx, time.Now())
	})
	if err != nil {
		return err
	}
	s.c = c
	s.entryID = id
	c.Start()
	return nil
}

func (s *Service) restartLocked() {
	old := s.c
	s.c = nil
	if old != nil {
		// Do not wait for a running tick; it keeps its own context.
		old.Stop()
	}
	if err := s.startCronLocked(); err != nil {
		s.log.Error("cron restart failed", logx.Err(err))
	}
}

// Stop halts ticks, cancels any running tick and waits for it up to ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			s.log.Warn("stop timed out waiting for tick")
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:   s.cfg.Enabled,
		Running:   s.c != nil,
		Timezone:  s.loc.String(),
		DuePolicy: s.cfg.DuePolicy,
		Workers:   s.cfg.Workers,
	}
	if s.c != nil && s.entryID != 0 {
		snap.Next = s.c.Entry(s.entryID).Next
	}
	if s.last != nil {
		r := *s.last
		snap.LastReport = &r
	}
	return snap
}

// LoadLocation resolves an IANA zone name, falling back to time.Local.
func LoadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron diagnostics through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
