package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/internal/reminder"
	logx "reminderbot/pkg/logx"
)

var testLoc = time.FixedZone("test", 2*60*60)

func at(h, m int) time.Time { return time.Date(2022, 1, 1, h, m, 0, 0, testLoc) }

func task(dest int64, when time.Time, text string) reminder.Task {
	return reminder.Task{Destination: reminder.Destination(dest), ScheduledAt: when, Text: text}
}

// runContract exercises the behavior every driver must share.
func runContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("insert assigns distinct ids and allows duplicates", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		a, err := st.Insert(ctx, task(42, at(20, 0), "Do homework"))
		require.NoError(t, err)
		b, err := st.Insert(ctx, task(42, at(20, 0), "Do homework"))
		require.NoError(t, err)
		assert.NotEmpty(t, a)
		assert.NotEqual(t, a, b)

		all, err := st.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("insert rejects empty text", func(t *testing.T) {
		st := open(t)
		_, err := st.Insert(context.Background(), task(1, at(10, 0), ""))
		require.Error(t, err)
	})

	t.Run("exact due matches only the minute", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		id, err := st.Insert(ctx, task(42, at(20, 0), "Do homework"))
		require.NoError(t, err)
		_, err = st.Insert(ctx, task(7, at(19, 59), "earlier"))
		require.NoError(t, err)

		for _, minute := range []time.Time{at(19, 58), at(20, 1), at(21, 0)} {
			got, err := st.Due(ctx, DueQuery{Minute: minute})
			require.NoError(t, err)
			for _, tk := range got {
				assert.NotEqual(t, id, tk.ID, "task leaked into tick %v", minute)
			}
		}

		got, err := st.Due(ctx, DueQuery{Minute: at(20, 0)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.Equal(t, reminder.Destination(42), got[0].Destination)
		assert.Equal(t, "Do homework", got[0].Text)
		assert.True(t, at(20, 0).Equal(got[0].ScheduledAt))
		assert.Equal(t, "01.01.2022 20:00", got[0].ScheduledAt.Format(reminder.Layout))
	})

	t.Run("overdue includes past minutes in order", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		_, err := st.Insert(ctx, task(1, at(20, 0), "now"))
		require.NoError(t, err)
		_, err = st.Insert(ctx, task(1, at(18, 30), "past"))
		require.NoError(t, err)
		_, err = st.Insert(ctx, task(1, at(20, 1), "future"))
		require.NoError(t, err)

		got, err := st.Due(ctx, DueQuery{Minute: at(20, 0), IncludeOverdue: true})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "past", got[0].Text)
		assert.Equal(t, "now", got[1].Text)
	})

	t.Run("delete removes and reports missing", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		id, err := st.Insert(ctx, task(1, at(8, 0), "x"))
		require.NoError(t, err)
		require.NoError(t, st.Delete(ctx, id))
		assert.ErrorIs(t, st.Delete(ctx, id), ErrNotFound)

		all, err := st.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("concurrent inserts and deletes", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := st.Insert(ctx, task(int64(i), at(12, 0), "x"))
				if err != nil {
					t.Error(err)
					return
				}
				if i%2 == 0 {
					if err := st.Delete(ctx, id); err != nil {
						t.Error(err)
					}
				}
			}(i)
		}
		wg.Wait()
		got, err := st.Due(ctx, DueQuery{Minute: at(12, 0)})
		require.NoError(t, err)
		assert.Len(t, got, 10)
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestSQLiteStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tasks.db"), Location: testLoc}, logx.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestSQLiteStoreInMemory(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: ":memory:", Location: testLoc}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	id, err := st.Insert(context.Background(), task(5, at(9, 0), "x"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, Location: testLoc}, logx.Nop())
	require.NoError(t, err)
	_, err = st.Insert(context.Background(), task(1, at(7, 0), "survives reopen"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path, Location: testLoc}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	all, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "survives reopen", all[0].Text)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("REMINDERBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REMINDERBOT_TEST_POSTGRES_DSN not set")
	}
	runContract(t, func(t *testing.T) Store {
		st, err := Open(Config{Driver: "postgres", DSN: dsn, Location: testLoc}, logx.Nop())
		require.NoError(t, err)
		ps := st.(*postgresStore)
		_, err = ps.pool.Exec(context.Background(), "TRUNCATE notification_task")
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestOpenDrivers(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Driver: "none"}, logx.Nop())
	assert.True(t, errors.Is(err, ErrDisabled))

	_, err = Open(Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}
