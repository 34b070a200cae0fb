package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/internal/config"
	"reminderbot/internal/reminder"
	"reminderbot/internal/task/scheduler"
	"reminderbot/internal/transport"
	logx "reminderbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	out  chan<- transport.Update
	sent []transport.MessageRef
	text []string
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, transport.MessageRef{ChatID: to.ChatID})
	f.text = append(f.text, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.text)}, nil
}

func (f *fakeAdapter) push(chat int64, text string) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: chat, FromID: chat, Text: text}}
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.text...)
}

const testCfg = `
telegram:
  token: test
logging:
  level: error
scheduler:
  enabled: false
  timezone: UTC
storage:
  driver: memory
`

func startTestApp(t *testing.T) (*App, *fakeAdapter, afero.Fs) {
	t.Helper()
	t.Setenv(config.EnvTelegramToken, "")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "config.yaml", []byte(testCfg), 0o644))
	cfgm := config.NewConfigManagerFs(fs, "config.yaml")
	cfg, err := cfgm.Load()
	require.NoError(t, err)

	ad := &fakeAdapter{}
	a, err := newApp(cfgm, cfg, ad)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	})
	return a, ad, fs
}

func TestAppEndToEnd(t *testing.T) {
	a, ad, _ := startTestApp(t)

	ad.push(42, "01.01.2030 20:00 Do homework")
	require.Eventually(t, func() bool { return len(ad.texts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, reminder.ConfirmationText, ad.texts()[0])

	rep := a.sched.Tick(context.Background(), time.Date(2030, 1, 1, 20, 0, 30, 0, time.UTC))
	assert.Equal(t, 1, rep.Delivered)

	texts := ad.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Reminder for 01.01.2030 20:00: Do homework", texts[1])

	left, err := a.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestAppAppliesReloadedConfig(t *testing.T) {
	a, _, fs := startTestApp(t)
	assert.Equal(t, scheduler.PolicyExact, a.sched.Snapshot().DuePolicy)

	updated := testCfg + "delivery:\n  rate_per_sec: 5\n"
	updated = strings.Replace(updated, "timezone: UTC", "timezone: UTC\n  due_policy: overdue", 1)
	require.NoError(t, afero.WriteFile(fs, "config.yaml", []byte(updated), 0o644))

	published, err := a.cfgm.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, published)

	require.Eventually(t, func() bool {
		return a.sched.Snapshot().DuePolicy == scheduler.PolicyOverdue
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReloadLoopDiffsAgainstRunningConfig(t *testing.T) {
	t.Setenv(config.EnvTelegramToken, "")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "config.yaml", []byte(testCfg), 0o644))
	cfgm := config.NewConfigManagerFs(fs, "config.yaml")
	running, err := cfgm.Load()
	require.NoError(t, err)

	a, err := newApp(cfgm, running, &fakeAdapter{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.Close() })

	// The manager already holds the new config when the loop first runs.
	next := *running
	next.Scheduler.DuePolicy = "overdue"
	cfgm.Commit(&next)

	sub := make(chan *config.Config, 1)
	sub <- &next
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.reloadLoop(ctx, running, sub)
	}()

	require.Eventually(t, func() bool {
		return a.sched.Snapshot().DuePolicy == scheduler.PolicyOverdue
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestHealth(t *testing.T) {
	a, _, _ := startTestApp(t)
	h, ok := a.Health().(map[string]any)
	require.True(t, ok)
	assert.Contains(t, h, "scheduler")
	assert.Contains(t, h, "events")
	assert.Contains(t, h, "supervisor")
}

func TestMapping(t *testing.T) {
	cfg := &config.Config{
		Telegram:  config.TelegramConfig{Token: " t ", PollTimeout: "30s"},
		Scheduler: config.SchedulerConfig{DuePolicy: "OVERDUE", TickTimeout: "20s"},
		Storage:   config.StorageConfig{Driver: "SQLite", Path: " ./x.db ", BusyTimeout: "2s"},
		HTTP:      config.HTTPConfig{Enabled: true, Addr: "127.0.0.1:9000"},
	}
	assert.Equal(t, "t", mapAdapterConfig(cfg).Token)
	assert.Equal(t, 30*time.Second, mapAdapterConfig(cfg).PollTimeout)

	sc := mapSchedulerConfig(cfg)
	assert.Equal(t, scheduler.PolicyOverdue, sc.DuePolicy)
	assert.Equal(t, 20*time.Second, sc.TickTimeout)

	st := mapStorageConfig(cfg, time.UTC)
	assert.Equal(t, "sqlite", st.Driver)
	assert.Equal(t, "./x.db", st.Path)
	assert.Equal(t, 2*time.Second, st.BusyTimeout)

	hc := mapHTTPConfig(cfg)
	assert.Equal(t, 10*time.Second, hc.ReadTimeout)
	assert.Equal(t, "127.0.0.1:9000", hc.Addr)
}

func TestRunStepBounded(t *testing.T) {
	start := time.Now()
	err := runStep(context.Background(), logx.Nop(), "hang", 50*time.Millisecond, func(c context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSDNotifier(t *testing.T) {
	var states []string
	n := &sdNotifier{
		log:      logx.Nop(),
		notify:   func(s string) (bool, error) { states = append(states, s); return true, nil },
		watchdog: func() (time.Duration, error) { return 20 * time.Millisecond, nil },
	}
	n.Ready()
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	n.Watchdog(ctx)
	n.Stopping()

	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, "READY=1", states[0])
	assert.Equal(t, "WATCHDOG=1", states[1])
	assert.Equal(t, "STOPPING=1", states[len(states)-1])
}
