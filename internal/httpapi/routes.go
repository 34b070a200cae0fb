package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"reminderbot/internal/reminder"
	logx "reminderbot/pkg/logx"
)

// Submitter is the intake boundary.
type Submitter interface {
	Submit(ctx context.Context, dest reminder.Destination, raw string) (reminder.TaskID, error)
}

// TaskLister lists pending tasks for operators.
type TaskLister interface {
	List(ctx context.Context) ([]reminder.Task, error)
}

// Deps are the collaborators behind the routes. Health may be nil.
type Deps struct {
	Intake Submitter
	Tasks  TaskLister
	Health func() any
}

const errSaveFailed = "Error: could not save the reminder"

// NewRouter builds the HTTP handler. Exported for tests and embedding.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Post("/processMessage", processMessage(deps.Intake, log))
	r.Get("/healthz", healthz(deps.Health))

	r.Group(func(pr chi.Router) {
		pr.Use(withAuth(cfg.Token))
		pr.Get("/tasks", listTasks(deps.Tasks, log))
		if cfg.Pprof && pprofAllowed(cfg, log) {
			pr.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

// processMessage accepts chatId and message as query or form values and
// answers in plain text with the confirmation or "Error: <reason>".
func processMessage(in Submitter, log logx.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		chatID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("chatId")), 10, 64)
		if err != nil {
			http.Error(w, "Error: chatId is required and must be an integer", http.StatusBadRequest)
			return
		}
		_, err = in.Submit(r.Context(), reminder.Destination(chatID), r.FormValue("message"))
		var pe *reminder.ParseError
		switch {
		case err == nil:
			_, _ = w.Write([]byte(reminder.ConfirmationText))
		case errors.As(err, &pe):
			_, _ = w.Write([]byte(reminder.ShortErrorText(pe)))
		default:
			log.Error("processMessage failed", logx.Int64("chat_id", chatID), logx.Err(err))
			http.Error(w, errSaveFailed, http.StatusInternalServerError)
		}
	}
}

type taskView struct {
	ID          reminder.TaskID      `json:"id"`
	Destination reminder.Destination `json:"destination"`
	ScheduledAt string               `json:"scheduled_at"`
	Text        string               `json:"text"`
}

func listTasks(tasks TaskLister, log logx.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := tasks.List(r.Context())
		if err != nil {
			log.Error("list tasks failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}
		out := make([]taskView, len(all))
		for i, t := range all {
			out[i] = taskView{ID: t.ID, Destination: t.Destination, ScheduledAt: t.ScheduledAt.Format(time.RFC3339), Text: t.Text}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "count": len(out)})
	}
}

func healthz(health func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if health != nil {
			body["details"] = health()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withAuth requires "Authorization: Bearer <token>" or ?token=<token>. An empty token disables the check.
func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// pprofAllowed refuses to expose profiles on a non-loopback address without a token.
func pprofAllowed(cfg Config, log logx.Logger) bool {
	if cfg.Token != "" || isLoopbackAddr(cfg.addr()) {
		return true
	}
	log.Warn("pprof not mounted: non-loopback addr requires http.token", logx.String("addr", cfg.addr()))
	return false
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// Empty host binds all interfaces.
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("dur", time.Since(start)),
				logx.String("rid", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= 500 {
				log.Warn("http request failed", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}
