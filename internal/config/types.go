package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"); empty means the component default.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout, default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors log lines at or above MinLevel to an operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig controls the minute tick.
//
// DuePolicy is "exact" (default) or "overdue". Timezone is an IANA name and
// is also the wall clock user timestamps are read in.
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Timezone    string `json:"timezone,omitempty"`
	DuePolicy   string `json:"due_policy,omitempty"`
	Workers     int    `json:"workers,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
}

type DeliveryConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminders.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory | sqlite | postgres
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig controls the HTTP trigger server.
type HTTPConfig struct {
	Enabled      bool     `json:"enabled"`
	Addr         string   `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token        string   `json:"token,omitempty"` // protects /tasks and pprof; do not log
	CORSOrigins  []string `json:"cors_origins,omitempty"`
	Pprof        bool     `json:"pprof,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
	IdleTimeout  string   `json:"idle_timeout,omitempty"`
}
