package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reminderbot/internal/eventbus"
	"reminderbot/internal/notifier"
	"reminderbot/internal/reminder"
	"reminderbot/internal/storage"
	logx "reminderbot/pkg/logx"
)

const deleteTimeout = 5 * time.Second

// Tick runs one scan-and-dispatch pass for the minute containing now.
// It never returns an error: store and delivery failures are reported in the
// TickReport and logged, and the next tick proceeds as usual.
func (s *Service) Tick(ctx context.Context, now time.Time) TickReport {
	s.mu.Lock()
	cfg := s.cfg
	loc := s.loc
	s.mu.Unlock()

	start := time.Now()
	rep := TickReport{
		Minute: reminder.TruncateMinute(now.In(loc)),
		Policy: cfg.DuePolicy,
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TickTimeout)
	defer cancel()

	tasks, err := s.store.Due(ctx, storage.DueQuery{
		Minute:         rep.Minute,
		IncludeOverdue: cfg.DuePolicy == PolicyOverdue,
	})
	if err != nil {
		rep.Err = err.Error()
		s.log.Error("due query failed", logx.Time("minute", rep.Minute), logx.Err(err))
		return s.finish(rep, start)
	}
	rep.Due = len(tasks)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(cfg.Workers)
	for _, t := range tasks {
		t := t
		if ctx.Err() != nil {
			// Shutdown or tick timeout: the rest stay in the store.
			break
		}
		g.Go(func() error {
			res := s.deliver(ctx, t)
			mu.Lock()
			switch res {
			case resultDelivered:
				rep.Delivered++
			case resultDeleteFailed:
				rep.Delivered++
				rep.DeleteFailed++
			case resultFailed:
				rep.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return s.finish(rep, start)
}

func (s *Service) finish(rep TickReport, start time.Time) TickReport {
	rep.Took = time.Since(start)

	s.mu.Lock()
	r := rep
	s.last = &r
	s.mu.Unlock()

	if rep.Due > 0 || rep.Err != "" {
		s.log.Info("tick finished",
			logx.Time("minute", rep.Minute),
			logx.Int("due", rep.Due),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
			logx.Int("delete_failed", rep.DeleteFailed),
			logx.Duration("took", rep.Took),
		)
	} else {
		s.log.Trace("tick finished", logx.Time("minute", rep.Minute))
	}
	eventbus.Publish(s.bus, eventbus.SchedulerTick, rep)
	return rep
}

type deliveryResult int

const (
	resultDelivered deliveryResult = iota
	resultFailed
	resultDeleteFailed
)

// deliver sends one task and deletes it only on success.
func (s *Service) deliver(ctx context.Context, t reminder.Task) deliveryResult {
	ev := DeliveryEvent{ID: t.ID, Destination: t.Destination, ScheduledAt: t.ScheduledAt}

	if err := s.gw.Send(ctx, t.Destination, reminder.Render(t)); err != nil {
		var de *notifier.DeliveryError
		if errors.As(err, &de) {
			ev.Timeout = de.Timeout
		}
		ev.Error = err.Error()
		s.log.Warn("delivery failed, task retained",
			logx.String("id", string(t.ID)),
			logx.Int64("destination", int64(t.Destination)),
			logx.Bool("timeout", ev.Timeout),
			logx.Err(err),
		)
		eventbus.Publish(s.bus, eventbus.TaskDeliveryFailed, ev)
		return resultFailed
	}

	// The message is out; finish the delete even if the tick is being canceled.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	res := resultDelivered
	if err := s.store.Delete(dctx, t.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("task already removed", logx.String("id", string(t.ID)))
		} else {
			res = resultDeleteFailed
			s.log.Error("delete after delivery failed",
				logx.String("id", string(t.ID)),
				logx.Err(err),
			)
		}
	}
	s.log.Debug("task delivered", logx.String("id", string(t.ID)), logx.Int64("destination", int64(t.Destination)))
	eventbus.Publish(s.bus, eventbus.TaskDelivered, ev)
	return res
}
