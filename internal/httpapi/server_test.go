package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/internal/intake"
	"reminderbot/internal/reminder"
	"reminderbot/internal/storage"
	logx "reminderbot/pkg/logx"
)

type failingIntake struct{}

func (failingIntake) Submit(context.Context, reminder.Destination, string) (reminder.TaskID, error) {
	return "", errors.New("saving reminder: disk full")
}

func newTestRouter(t *testing.T, cfg Config) (http.Handler, *storage.Memory) {
	t.Helper()
	st := storage.NewMemory()
	deps := Deps{
		Intake: intake.New(st, time.UTC, logx.Nop(), nil),
		Tasks:  st,
		Health: func() any { return map[string]int{"pending": 0} },
	}
	return NewRouter(cfg, deps, logx.Nop()), st
}

func post(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/processMessage", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcessMessage(t *testing.T) {
	h, st := newTestRouter(t, Config{})

	rec := post(h, url.Values{"chatId": {"42"}, "message": {"01.01.2022 20:00 Do homework"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Reminder saved successfully!", rec.Body.String())

	rec = post(h, url.Values{"chatId": {"42"}, "message": {"tomorrow buy milk"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Error: format mismatch", rec.Body.String())

	rec = post(h, url.Values{"chatId": {"42"}, "message": {"31.02.2022 20:00 x"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Error: invalid date/time", rec.Body.String())

	all, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, reminder.Destination(42), all[0].Destination)
	assert.Equal(t, "Do homework", all[0].Text)
}

func TestProcessMessageQueryParams(t *testing.T) {
	h, st := newTestRouter(t, Config{})
	q := url.Values{"chatId": {"-100"}, "message": {"05.06.2030 09:30 stand-up"}}
	req := httptest.NewRequest(http.MethodPost, "/processMessage?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	all, _ := st.List(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, reminder.Destination(-100), all[0].Destination)
}

func TestProcessMessageBadRequest(t *testing.T) {
	h, _ := newTestRouter(t, Config{})

	cases := map[string]url.Values{
		"missing chat": {"message": {"01.01.2022 20:00 x"}},
		"bad chat":     {"chatId": {"abc"}, "message": {"01.01.2022 20:00 x"}},
	}
	for name, form := range cases {
		rec := post(h, form)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "Error: "), name)
	}
}

func TestProcessMessageEmptyMessage(t *testing.T) {
	h, st := newTestRouter(t, Config{})

	for name, form := range map[string]url.Values{
		"missing": {"chatId": {"1"}},
		"blank":   {"chatId": {"1"}, "message": {""}},
	} {
		rec := post(h, form)
		assert.Equal(t, http.StatusOK, rec.Code, name)
		assert.Equal(t, "Error: format mismatch", rec.Body.String(), name)
	}

	all, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestProcessMessageStoreError(t *testing.T) {
	h := NewRouter(Config{}, Deps{Intake: failingIntake{}}, logx.Nop())
	rec := post(h, url.Values{"chatId": {"1"}, "message": {"01.01.2022 20:00 x"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestTasksRequiresToken(t *testing.T) {
	h, _ := newTestRouter(t, Config{Token: "s3cret"})
	_ = post(h, url.Values{"chatId": {"7"}, "message": {"01.01.2030 08:00 wake up"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks?token=wrong", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
		Tasks []struct {
			Destination int64  `json:"destination"`
			ScheduledAt string `json:"scheduled_at"`
			Text        string `json:"text"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.EqualValues(t, 7, body.Tasks[0].Destination)
	assert.Equal(t, "2030-01-01T08:00:00Z", body.Tasks[0].ScheduledAt)
	assert.Equal(t, "wake up", body.Tasks[0].Text)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, Config{Token: "x"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"pending":0`)
}

func TestPprofMounting(t *testing.T) {
	get := func(h http.Handler) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		return rec.Code
	}

	h, _ := newTestRouter(t, Config{Pprof: true, Addr: "127.0.0.1:0"})
	assert.Equal(t, http.StatusOK, get(h))

	h, _ = newTestRouter(t, Config{Pprof: true, Addr: ":8080"})
	assert.Equal(t, http.StatusNotFound, get(h))

	h, _ = newTestRouter(t, Config{Pprof: false, Addr: "127.0.0.1:0"})
	assert.Equal(t, http.StatusNotFound, get(h))
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, Config{CORSOrigins: []string{"https://ops.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/processMessage", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.5:8080":  false,
		"garbage":        false,
	} {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestServiceStartStop(t *testing.T) {
	st := storage.NewMemory()
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{
		Intake: intake.New(st, time.UTC, logx.Nop(), nil),
		Tasks:  st,
	}, logx.Nop())

	svc.Start(context.Background())
	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.PostForm("http://"+svc.Addr()+"/processMessage", url.Values{"chatId": {"9"}, "message": {"01.01.2030 10:00 ping"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	svc.Stop(ctx)
	assert.Equal(t, "", svc.Addr())

	svc.Reconfigure(ctx, Config{Enabled: false})
	assert.False(t, svc.Enabled())
}

func TestNeedsRestart(t *testing.T) {
	base := Config{Enabled: true, Addr: "127.0.0.1:8080"}
	assert.False(t, needsRestart(base, base))
	assert.False(t, needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:8080"}))
	assert.True(t, needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:9090"}))
	assert.True(t, needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:8080", Token: "t"}))
	assert.True(t, needsRestart(base, Config{Enabled: true, Addr: "127.0.0.1:8080", CORSOrigins: []string{"*"}}))
}
