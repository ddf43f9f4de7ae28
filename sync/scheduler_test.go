package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

type recordingTrigger struct {
	mu    stdsync.Mutex
	ticks map[models.Direction]int
}

func (t *recordingTrigger) OnTick(ctx context.Context, direction models.Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticks == nil {
		t.ticks = make(map[models.Direction]int)
	}
	t.ticks[direction]++
}

func (t *recordingTrigger) count(direction models.Direction) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks[direction]
}

func TestSchedulerFiresBothDirections(t *testing.T) {
	trigger := &recordingTrigger{}
	scheduler := NewScheduler(trigger, 10*time.Millisecond, 15*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	scheduler.Run(ctx)

	// OnTick runs on its own goroutine; allow in-flight ticks to land.
	time.Sleep(20 * time.Millisecond)

	if trigger.count(models.DirectionSheetToCrm) == 0 {
		t.Error("expected at least one push tick")
	}
	if trigger.count(models.DirectionCrmToSheet) == 0 {
		t.Error("expected at least one pull tick")
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	trigger := &recordingTrigger{}
	scheduler := NewScheduler(trigger, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	if trigger.count(models.DirectionSheetToCrm) != 0 {
		t.Error("no ticks expected before the first interval elapses")
	}
}
