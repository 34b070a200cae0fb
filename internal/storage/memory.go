package storage

import (
	"context"
	"sort"
	"sync"

	"reminderbot/internal/reminder"
)

// Memory is a mutex-guarded in-process store.
type Memory struct {
	mu    sync.Mutex
	seq   uint64
	tasks map[reminder.TaskID]memEntry
}

type memEntry struct {
	task reminder.Task
	seq  uint64
}

func NewMemory() *Memory {
	return &Memory{tasks: map[reminder.TaskID]memEntry{}}
}

func (m *Memory) Insert(ctx context.Context, t reminder.Task) (reminder.TaskID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validate(t); err != nil {
		return "", err
	}
	t.ID = newID()
	m.mu.Lock()
	m.seq++
	m.tasks[t.ID] = memEntry{task: t, seq: m.seq}
	m.mu.Unlock()
	return t.ID, nil
}

func (m *Memory) Due(ctx context.Context, q DueQuery) ([]reminder.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.collect(func(t reminder.Task) bool {
		if q.IncludeOverdue {
			return !t.ScheduledAt.After(q.Minute)
		}
		return t.ScheduledAt.Equal(q.Minute)
	}), nil
}

func (m *Memory) Delete(ctx context.Context, id reminder.TaskID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]reminder.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.collect(func(reminder.Task) bool { return true }), nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) collect(keep func(reminder.Task) bool) []reminder.Task {
	m.mu.Lock()
	entries := make([]memEntry, 0, len(m.tasks))
	for _, e := range m.tasks {
		if keep(e.task) {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.ScheduledAt.Equal(b.task.ScheduledAt) {
			return a.task.ScheduledAt.Before(b.task.ScheduledAt)
		}
		return a.seq < b.seq
	})
	out := make([]reminder.Task, len(entries))
	for i, e := range entries {
		out[i] = e.task
	}
	return out
}
