// Package intake turns inbound chat messages into stored reminder tasks.
package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reminderbot/internal/eventbus"
	"reminderbot/internal/reminder"
	"reminderbot/internal/storage"
	logx "reminderbot/pkg/logx"
)

// CreatedEvent is the payload of eventbus.TaskCreated.
type CreatedEvent struct {
	ID          reminder.TaskID      `json:"id"`
	Destination reminder.Destination `json:"destination"`
	ScheduledAt time.Time            `json:"scheduled_at"`
}

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu  sync.RWMutex
	loc *time.Location
}

func New(store storage.Store, loc *time.Location, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store: store,
		bus:   bus,
		log:   log.With(logx.String("comp", "intake")),
		loc:   loc,
	}
}

// SetLocation changes the wall-clock zone used for new messages.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// Submit parses raw and stores one new task for dest. A *reminder.ParseError is
// returned unchanged and leaves the store untouched.
func (s *Service) Submit(ctx context.Context, dest reminder.Destination, raw string) (reminder.TaskID, error) {
	s.mu.RLock()
	loc := s.loc
	s.mu.RUnlock()

	p, err := reminder.Parse(raw, loc)
	if err != nil {
		s.log.Debug("message rejected", logx.Int64("destination", int64(dest)), logx.Err(err))
		return "", err
	}

	t := reminder.NewTask(dest, p)
	id, err := s.store.Insert(ctx, t)
	if err != nil {
		s.log.Error("task insert failed", logx.Int64("destination", int64(dest)), logx.Err(err))
		return "", fmt.Errorf("saving reminder: %w", err)
	}

	s.log.Info("task created",
		logx.String("id", string(id)),
		logx.Int64("destination", int64(dest)),
		logx.Time("scheduled_at", t.ScheduledAt),
	)
	eventbus.Publish(s.bus, eventbus.TaskCreated, CreatedEvent{ID: id, Destination: dest, ScheduledAt: t.ScheduledAt})
	return id, nil
}
