package router

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reminderbot/internal/reminder"
	rtsup "reminderbot/internal/runtime/supervisor"
	"reminderbot/internal/transport"
	logx "reminderbot/pkg/logx"
)

// Submitter is the intake boundary.
type Submitter interface {
	Submit(ctx context.Context, dest reminder.Destination, raw string) (reminder.TaskID, error)
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Command string // "start" or "remind"
	Text    string
	ReqID   string
	Logger  logx.Logger
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

const (
	cmdStart  = "start"
	cmdRemind = "remind"

	handlerTimeout = 15 * time.Second
)

var errSaveFailed = errors.New("could not save the reminder, please try again later")

// Router turns chat updates into intake submissions and replies.
type Router struct {
	log    logx.Logger
	sender transport.Sender
	intake Submitter

	workers int
	jobs    chan func()

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(log logx.Logger, sender transport.Sender, intake Submitter, workers int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Router{
		log:     log.With(logx.String("comp", "telegram.router")),
		sender:  sender,
		intake:  intake,
		workers: workers,
		jobs:    make(chan func(), 256),
	}
}

// Supervisor returns the dispatcher supervisor, nil when not running.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

// DispatchLoop consumes updates until ctx ends or the channel closes.
// Handlers run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.runMu.Lock()
	r.sup, r.running = sup, true
	r.runMu.Unlock()

	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(idx int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) route(root context.Context, up transport.Update) {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	req := &Request{
		Update:  up,
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmdRemind,
		Text:    msg.Text,
		ReqID:   uuid.NewString()[:8],
	}
	handle := r.handleRemind
	if isStart(msg.Text) {
		req.Command = cmdStart
		handle = r.handleStart
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
	)

	final := Chain(handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(handlerTimeout),
	)
	select {
	case r.jobs <- func() { _ = final(root, req) }:
	default:
		r.reply(root, req, reminder.BusyText)
	}
}

// isStart matches "/start" and "/start@botname", with or without a payload.
func isStart(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	word := fields[0]
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word == "/"+cmdStart
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	return r.reply(ctx, req, reminder.WelcomeText)
}

func (r *Router) handleRemind(ctx context.Context, req *Request) error {
	_, err := r.intake.Submit(ctx, reminder.Destination(req.Chat.ChatID), req.Text)
	var pe *reminder.ParseError
	switch {
	case err == nil:
		return r.reply(ctx, req, reminder.ConfirmationText)
	case errors.As(err, &pe):
		// User input problem; not a request failure.
		return r.reply(ctx, req, reminder.ErrorText(pe))
	default:
		_ = r.reply(ctx, req, reminder.ErrorText(errSaveFailed))
		return err
	}
}

func (r *Router) reply(ctx context.Context, req *Request, text string) error {
	_, err := r.sender.SendText(ctx, req.Chat, text, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		req.logger(r.log).Warn("reply failed", logx.Err(err))
	}
	return err
}
