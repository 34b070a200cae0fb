package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reminderbot/internal/reminder"
	"reminderbot/internal/transport"
	logx "reminderbot/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier: no sender configured")

// Config controls outbound delivery.
type Config struct {
	Timeout    time.Duration
	RatePerSec int
}

// DeliveryError reports that a reminder was not delivered.
type DeliveryError struct {
	Destination reminder.Destination
	Cause       error
	Timeout     bool
}

func (e *DeliveryError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("delivery to %s timed out: %v", e.Destination, e.Cause)
	}
	return fmt.Sprintf("delivery to %s failed: %v", e.Destination, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

type HistoryItem struct {
	At          time.Time            `json:"at"`
	Destination reminder.Destination `json:"destination"`
	OK          bool                 `json:"ok"`
	Error       string               `json:"error,omitempty"`
}

const historyLimit = 100

// Gateway is safe for concurrent use.
type Gateway struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender transport.Sender
	log    logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gateway{sender: sender, log: log.With(logx.String("comp", "notifier"))}
	g.Apply(cfg)
	return g
}

// Apply swaps timeout and rate limit. In-flight sends keep their snapshot.
func (g *Gateway) Apply(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	g.mu.Lock()
	g.cfg = cfg
	// Burst equals the per-second rate so a busy minute drains quickly.
	g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	g.mu.Unlock()
}

// Send delivers text to dest. It returns nil or a *DeliveryError.
func (g *Gateway) Send(ctx context.Context, dest reminder.Destination, text string) (err error) {
	g.mu.Lock()
	cfg := g.cfg
	lim := g.limiter
	g.mu.Unlock()

	defer func() {
		g.record(dest, err)
	}()

	if g.sender == nil {
		return &DeliveryError{Destination: dest, Cause: ErrNoAdapter}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := lim.Wait(callCtx); err != nil {
		return &DeliveryError{Destination: dest, Cause: err, Timeout: isTimeout(callCtx, err)}
	}

	_, sendErr := g.sender.SendText(callCtx, transport.ChatTarget{ChatID: int64(dest)}, text, &transport.SendOptions{DisablePreview: true})
	if sendErr != nil {
		de := &DeliveryError{Destination: dest, Cause: sendErr, Timeout: isTimeout(callCtx, sendErr)}
		g.log.Debug("send failed", logx.Int64("destination", int64(dest)), logx.Bool("timeout", de.Timeout), logx.Err(sendErr))
		return de
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// History returns recent sends, oldest first.
func (g *Gateway) History() []HistoryItem {
	g.hmu.Lock()
	out := append([]HistoryItem(nil), g.history...)
	g.hmu.Unlock()
	return out
}

func (g *Gateway) record(dest reminder.Destination, err error) {
	it := HistoryItem{At: time.Now(), Destination: dest, OK: err == nil}
	if err != nil {
		it.Error = err.Error()
	}
	g.hmu.Lock()
	g.history = append(g.history, it)
	if len(g.history) > historyLimit {
		g.history = g.history[len(g.history)-historyLimit:]
	}
	g.hmu.Unlock()
}
