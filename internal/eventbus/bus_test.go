package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TaskCreated})
	b.Publish(Event{Type: TaskDelivered})

	e := <-a
	assert.Equal(t, TaskCreated, e.Type)
	assert.False(t, e.Time.IsZero())
	select {
	case <-a:
		t.Fatal("full subscriber should have dropped the second event")
	default:
	}
	assert.Len(t, c, 2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: SchedulerTick})
}

func TestPublishNilBus(t *testing.T) {
	Publish(nil, TaskCreated, nil)
}

func TestTallyCounts(t *testing.T) {
	b := New()
	tally := NewTally()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		tally.Run(ctx, b)
		close(done)
	}()

	// Wait for the subscription to register.
	require.Eventually(t, func() bool {
		Publish(b, SchedulerTick, nil)
		return tally.Count(SchedulerTick) > 0
	}, time.Second, 5*time.Millisecond)

	Publish(b, TaskDelivered, nil)
	Publish(b, TaskDelivered, nil)
	require.Eventually(t, func() bool { return tally.Count(TaskDelivered) == 2 }, time.Second, 5*time.Millisecond)

	snap := tally.Snapshot()
	assert.EqualValues(t, 2, snap.Counts[TaskDelivered])
	assert.False(t, snap.Last[TaskDelivered].IsZero())

	cancel()
	<-done
}
