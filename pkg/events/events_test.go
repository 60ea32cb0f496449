package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		ev, ok := sub.TryNext()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestEmitPreservesOrder(t *testing.T) {
	bus := NewBus(16)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Emit(Event{Message: fmt.Sprintf("m%d", i)})
	}

	got := drain(sub)
	require.Len(t, got, 5)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.Message)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Emit(Event{Message: fmt.Sprintf("m%d", i)})
	}

	got := drain(sub)
	require.Len(t, got, 4)
	assert.Equal(t, "m6", got[0].Message)
	assert.Equal(t, "m9", got[3].Message)
	assert.Equal(t, uint64(6), sub.Dropped())
}

func TestEmitNeverBlocksWithoutConsumers(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Emit(Event{Message: "x"})
		}
		close(done)
	}()
	<-done // would hang here if Emit blocked on the full ring
}

func TestPercentAutoDerives(t *testing.T) {
	bus := NewBus(8)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Emit(Event{Current: 1, Total: 4})
	ev, ok := sub.TryNext()
	require.True(t, ok)
	assert.InDelta(t, 25.0, ev.Percent, 1e-9)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEmitterStageLifecycle(t *testing.T) {
	bus := NewBus(32)
	sub := bus.Subscribe()
	defer sub.Close()

	em := NewEmitter(bus)
	em.SetStage("describe", 3)
	em.SetProgress(1, "alpha")
	em.SetProgress(2, "beta")
	em.Warn("beta had no content")
	em.CompleteStage("")

	got := drain(sub)
	require.NotEmpty(t, got)

	last := got[len(got)-1]
	assert.Equal(t, "describe", last.Stage)
	assert.Equal(t, LevelSuccess, last.Level)
	assert.Equal(t, 3, last.Current)
	assert.Equal(t, 3, last.Total)
	assert.InDelta(t, 100.0, last.Percent, 1e-9)

	var sawWarn bool
	for _, ev := range got {
		if ev.Level == LevelWarn {
			sawWarn = true
			assert.Equal(t, "beta had no content", ev.Message)
		}
	}
	assert.True(t, sawWarn)
}

func TestEmitterNilBusIsSafe(t *testing.T) {
	em := NewEmitter(nil)
	em.SetStage("scan", 1)
	em.SetProgress(1, "x")
	em.CompleteStage("done")
}

func TestSubscriptionCloseUnblocksNext(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		_, ok := sub.Next()
		assert.False(t, ok)
		close(done)
	}()
	sub.Close()
	<-done
}

func TestFormatEventIncludesProgress(t *testing.T) {
	line := FormatEvent(Event{
		Stage:   "scan",
		Current: 2,
		Total:   4,
		Percent: 50,
		Level:   LevelInfo,
		Message: "scanning",
	})
	assert.Contains(t, line, "scan")
	assert.Contains(t, line, "2/4")
	assert.Contains(t, line, "50%")
	assert.Contains(t, line, "scanning")
}
