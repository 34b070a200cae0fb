package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderbot/internal/reminder"
)

func TestPrintTasks(t *testing.T) {
	now := time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printTasks(&buf, []reminder.Task{{
		ID:          "abc",
		Destination: 42,
		ScheduledAt: time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC),
		Text:        "Do\nhomework",
	}}, now)

	out := buf.String()
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "01.01.2030 20:00")
	assert.Contains(t, out, "2 hours from now")
	assert.Contains(t, out, "Do homework")
	assert.Contains(t, out, "1 pending")

	buf.Reset()
	printTasks(&buf, nil, now)
	assert.Equal(t, "no pending reminders\n", buf.String())
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine(" a\n b\tc ", 10))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
}

func TestTasksCommandsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: sqlite\n  path: " + filepath.Join(dir, "r.db") + "\nscheduler:\n  timezone: UTC\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(body), 0o644))

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append([]string{"--config", cfgFile, "--env-file", ""}, args...))
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("tasks", "add", "42", "01.01.2030", "20:00", "Do", "homework")
	require.NoError(t, err)
	assert.Contains(t, out, reminder.ConfirmationText)
	id := strings.TrimSuffix(strings.TrimSpace(out[strings.Index(out, "(id ")+4:]), ")")

	out, err = run("tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Do homework")
	assert.Contains(t, out, id)

	_, err = run("tasks", "add", "42", "tomorrow")
	assert.ErrorContains(t, err, "format mismatch")

	out, err = run("tasks", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run("tasks", "delete", id)
	assert.ErrorContains(t, err, "no pending reminder")
}
