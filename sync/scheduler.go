// ABOUTME: Periodic trigger driver for sync passes
// ABOUTME: Two independent intervals, drops ticks while a pass is running
package sync

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

// Trigger receives scheduled and on-demand pass triggers. Keeping it an
// interface decouples scheduling from any particular timer mechanism so tests
// can trigger passes synchronously.
type Trigger interface {
	OnTick(ctx context.Context, direction models.Direction)
}

// EngineTrigger adapts the engine to the Trigger interface, logging each
// report. A tick arriving while the direction's pass is still running is
// dropped, which the engine signals with ErrPassInProgress.
type EngineTrigger struct {
	Engine *Engine
}

func (t *EngineTrigger) OnTick(ctx context.Context, direction models.Direction) {
	report, err := t.Engine.Run(ctx, direction)
	if err != nil {
		if errors.Is(err, ErrPassInProgress) {
			log.Printf("sync: %s trigger dropped, pass still running", direction)
			return
		}
		log.Printf("sync: %s pass aborted: %v", direction, err)
		return
	}

	log.Printf("sync: %s pass %s done: created=%d updated=%d skipped=%d failed=%d conflicts=%d in %dms",
		direction, report.PassID, report.Created, report.Updated,
		report.SkippedTotal(), len(report.Failed), len(report.Conflicts), report.DurationMs)
}

// Scheduler fires the two directions at independent intervals: the sheet is
// polled more often than the CRM, matching how quickly each side changes.
type Scheduler struct {
	trigger      Trigger
	pushInterval time.Duration
	pullInterval time.Duration
}

// NewScheduler creates a scheduler for the given trigger and intervals.
func NewScheduler(trigger Trigger, pushInterval, pullInterval time.Duration) *Scheduler {
	return &Scheduler{
		trigger:      trigger,
		pushInterval: pushInterval,
		pullInterval: pullInterval,
	}
}

// Run drives both tickers until the context is cancelled. Each tick is
// handled on the scheduler goroutine; overlap protection lives in the engine.
func (s *Scheduler) Run(ctx context.Context) {
	pushTicker := time.NewTicker(s.pushInterval)
	defer pushTicker.Stop()
	pullTicker := time.NewTicker(s.pullInterval)
	defer pullTicker.Stop()

	log.Printf("sync: scheduler started (push every %s, pull every %s)", s.pushInterval, s.pullInterval)

	for {
		select {
		case <-pushTicker.C:
			// The two directions may run concurrently; the engine's
			// per-direction lock drops overlapping triggers.
			go s.trigger.OnTick(ctx, models.DirectionSheetToCrm)
		case <-pullTicker.C:
			go s.trigger.OnTick(ctx, models.DirectionCrmToSheet)
		case <-ctx.Done():
			log.Println("sync: scheduler stopped")
			return
		}
	}
}
