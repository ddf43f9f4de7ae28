// ABOUTME: Bidirectional sync engine orchestrating one pass per direction
// ABOUTME: Fetch, match, diff, batch, rate-limited write, durable state update
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/sheetbridge/db"
	"github.com/harperreed/sheetbridge/models"
)

// ErrPassInProgress is returned when a trigger arrives while a pass for the
// same direction is still running. The trigger is dropped, not queued.
var ErrPassInProgress = errors.New("sync pass already in progress for this direction")

// batchTimeout bounds one batch's writes once submission has started. Batch
// execution is detached from the shutdown signal, so this is the only thing
// that stops a hung backend call after cancellation.
const batchTimeout = 2 * time.Minute

// EngineConfig holds the collaborators for NewEngine. Uses a struct because
// the engine has too many dependencies for positional parameters.
type EngineConfig struct {
	DB          *sql.DB
	SheetReader Reader
	SheetWriter Writer
	CrmReader   Reader
	CrmWriter   Writer
	Limiter     *RateLimiter
	SheetBatch  PlannerConfig
	CrmBatch    PlannerConfig
	RetryLimit  int // per-record transient retries within a pass
}

// Engine runs sync passes. SyncState is the only durable entity and the
// engine is its single writer; stateMu serializes every read-modify-write.
type Engine struct {
	db         *sql.DB
	readers    map[Backend]Reader
	writers    map[Backend]Writer
	planners   map[Backend]*Planner
	limiter    *RateLimiter
	matcher    *Matcher
	retryLimit int

	stateMu stdsync.Mutex
	passMu  map[models.Direction]*stdsync.Mutex
}

// NewEngine creates an engine from its collaborators.
func NewEngine(cfg EngineConfig) *Engine {
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 2
	}

	return &Engine{
		db: cfg.DB,
		readers: map[Backend]Reader{
			BackendSheets: cfg.SheetReader,
			BackendCrm:    cfg.CrmReader,
		},
		writers: map[Backend]Writer{
			BackendSheets: cfg.SheetWriter,
			BackendCrm:    cfg.CrmWriter,
		},
		planners: map[Backend]*Planner{
			BackendSheets: NewPlanner(cfg.SheetBatch),
			BackendCrm:    NewPlanner(cfg.CrmBatch),
		},
		limiter:    cfg.Limiter,
		matcher:    NewMatcher(),
		retryLimit: retryLimit,
		passMu: map[models.Direction]*stdsync.Mutex{
			models.DirectionSheetToCrm: {},
			models.DirectionCrmToSheet: {},
		},
	}
}

// Run executes one pass in the given direction. Per-record and per-batch
// failures are captured in the report; only auth or contract failures on the
// external capabilities abort the pass, and even then a report is returned.
func (e *Engine) Run(ctx context.Context, direction models.Direction) (*models.SyncReport, error) {
	mu := e.passMu[direction]
	if !mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer mu.Unlock()

	report := models.NewSyncReport(ulid.Make().String(), direction)
	start := time.Now()
	defer func() {
		report.DurationMs = time.Since(start).Milliseconds()
		if err := db.RecordRun(e.db, report); err != nil {
			log.Printf("sync: failed to record run %s: %v", report.PassID, err)
		}
	}()

	srcBackend := SourceFor(direction)
	dstBackend := BackendFor(direction)

	// Fetch both sides. A read failure is unrecoverable for this pass.
	srcRecords, err := e.readers[srcBackend].Read(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", srcBackend, err)
	}
	dstRecords, err := e.readers[dstBackend].Read(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", dstBackend, err)
	}

	e.stateMu.Lock()
	state, err := db.AllLinks(e.db)
	e.stateMu.Unlock()
	if err != nil {
		return report, fmt.Errorf("failed to load sync state: %w", err)
	}

	match := e.matcher.Match(srcRecords, state)

	changes := e.buildChangeSet(direction, match, dstRecords, report)
	if changes.Empty() {
		return report, nil
	}

	batches := e.planners[dstBackend].Plan(changes, dstBackend)
	e.writeBatches(ctx, direction, batches, report)

	return report, nil
}

// buildChangeSet diffs linked pairs and turns unmatched source records into
// creates. A pass writes only to its destination: a pair changed only on the
// destination side is deferred to the opposite-direction pass. Deletions are
// never propagated; state entries absent from the source fetch are reported
// and left untouched.
func (e *Engine) buildChangeSet(direction models.Direction, match MatchResult, dstRecords []models.Record, report *models.SyncReport) *models.ChangeSet {
	byExternalID := make(map[string]*models.Record, len(dstRecords))
	byRowID := make(map[string]*models.Record, len(dstRecords))
	for i := range dstRecords {
		if dstRecords[i].ExternalID != "" {
			byExternalID[dstRecords[i].ExternalID] = &dstRecords[i]
		}
		if dstRecords[i].RowID != "" {
			byRowID[dstRecords[i].RowID] = &dstRecords[i]
		}
	}

	changes := &models.ChangeSet{}

	for _, pair := range match.Linked {
		rec := pair.Source
		link := pair.Link

		// Address the destination side through the stored link.
		var dst *models.Record
		if direction == models.DirectionSheetToCrm {
			rec.RowID = link.RowID
			rec.ExternalID = link.ExternalID
			dst = byExternalID[link.ExternalID]
		} else {
			rec.ExternalID = link.ExternalID
			rec.RowID = link.RowID
			dst = byRowID[link.RowID]
		}

		if dst == nil {
			// Destination record vanished. Recreate it rather than propagate
			// the deletion.
			changes.Creates = append(changes.Creates, rec)
			continue
		}

		srcChanged := ContentHash(&rec) != link.LastSyncedHash
		dstChanged := ContentHash(dst) != link.LastSyncedHash

		switch {
		case !srcChanged && !dstChanged:
			report.Skip(models.SkipUnchanged)
		case srcChanged && !dstChanged:
			changes.Updates = append(changes.Updates, rec)
		case !srcChanged && dstChanged:
			// The opposite-direction pass will carry this change back.
			report.Skip(models.SkipDestinationNewer)
		default:
			// Both sides changed since last sync: the running direction wins.
			report.Conflicts = append(report.Conflicts, models.ConflictEntry{
				Fingerprint: FingerprintOf(&rec).Key(),
				Winner:      direction,
			})
			changes.Updates = append(changes.Updates, rec)
		}
	}

	changes.Creates = append(changes.Creates, match.UnmatchedSource...)

	for range match.UnmatchedState {
		report.Skip(models.SkipDeletedUpstream)
	}
	for range match.Ambiguous {
		report.Skip(models.SkipAmbiguousMatch)
	}

	return changes
}

// writeBatches submits planned batches through the destination writer, gated
// by the rate limiter. State is upserted after every successful write so a
// crash mid-pass leaves already-written batches correctly reflected.
func (e *Engine) writeBatches(ctx context.Context, direction models.Direction, batches []Batch, report *models.SyncReport) {
	dstBackend := BackendFor(direction)
	writer := e.writers[dstBackend]

	for i, batch := range batches {
		// Honor shutdown between batches, never mid-batch.
		if ctx.Err() != nil {
			for _, remaining := range batches[i:] {
				e.failBatch(report, remaining, models.FailureKindTransient, "pass cancelled before batch was submitted")
			}
			return
		}

		if err := e.limiter.Acquire(ctx, dstBackend); err != nil {
			// Out of budget: the whole remainder retries on the next trigger.
			for _, remaining := range batches[i:] {
				e.failBatch(report, remaining, models.FailureKindRateLimit, err.Error())
			}
			return
		}

		// Once a batch is submitted it runs to completion: a cancelled
		// shutdown context must not abort in-flight writes or their retries,
		// or the backend could apply a write the state never records.
		batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchTimeout)
		abortKind := e.submitBatch(batchCtx, direction, writer, batch, report, e.retryLimit)
		cancel()

		if abortKind != "" {
			for _, remaining := range batches[i+1:] {
				e.failBatch(report, remaining, abortKind, "pass aborted by earlier "+abortKind+" failure")
			}
			return
		}
	}
}

// Wait blocks until no pass is running in either direction. Used at shutdown
// so the process does not exit while a pass is mid-batch.
func (e *Engine) Wait() {
	for _, mu := range e.passMu {
		mu.Lock()
		mu.Unlock()
	}
}

// submitBatch writes one batch, retrying transient per-record failures up to
// the retry budget. Returns the failure kind that must abort the pass, or ""
// to continue. Credential failures and broken capability contracts both
// abort: neither gets better by submitting more batches.
func (e *Engine) submitBatch(ctx context.Context, direction models.Direction, writer Writer, batch Batch, report *models.SyncReport, retriesLeft int) string {
	dstBackend := BackendFor(direction)

	results, err := writer.WriteBatch(ctx, batch)
	if err != nil {
		kind := failureKind(err)
		e.failBatch(report, batch, kind, err.Error())
		if kind == models.FailureKindAuth || kind == models.FailureKindContract {
			return kind
		}
		return ""
	}

	if len(results) > len(batch.Records) {
		results = results[:len(batch.Records)]
	}
	if len(results) < len(batch.Records) {
		// A short result slice would silently drop records from the report.
		for _, rec := range batch.Records[len(results):] {
			report.Failed = append(report.Failed, models.RecordFailure{
				Fingerprint: FingerprintOf(&rec).Key(),
				Name:        rec.Name,
				Kind:        models.FailureKindContract,
				Message:     fmt.Sprintf("writer returned %d results for %d records", len(results), len(batch.Records)),
			})
		}
	}

	var retry []models.Record
	writeback := make(map[string]string)

	for _, res := range results {
		if res.RetryAfter > 0 {
			e.limiter.OnResponse(dstBackend, res.RetryAfter)
		}

		if res.Err == nil {
			e.commitResult(direction, batch.Kind, res, report, writeback)
			continue
		}

		if IsTransientError(res.Err) && retriesLeft > 0 {
			retry = append(retry, res.Record)
			continue
		}

		report.Failed = append(report.Failed, models.RecordFailure{
			Fingerprint: FingerprintOf(&res.Record).Key(),
			Name:        res.Record.Name,
			Kind:        failureKind(res.Err),
			Message:     res.Err.Error(),
		})
	}

	if len(writeback) > 0 {
		e.writebackExternalIDs(ctx, writeback)
	}

	if len(retry) > 0 {
		retryBatch := Batch{Kind: batch.Kind, Backend: batch.Backend, Records: retry}
		if err := e.limiter.Acquire(ctx, dstBackend); err != nil {
			e.failBatch(report, retryBatch, models.FailureKindRateLimit, err.Error())
			return ""
		}
		return e.submitBatch(ctx, direction, writer, retryBatch, report, retriesLeft-1)
	}

	return ""
}

// commitResult upserts the link for one successfully written record and
// counts it in the report.
func (e *Engine) commitResult(direction models.Direction, kind OpKind, res WriteResult, report *models.SyncReport, writeback map[string]string) {
	rec := res.Record
	fp := FingerprintOf(&rec)

	link := &db.Link{
		Fingerprint:    fp.Key(),
		RowID:          rec.RowID,
		ExternalID:     rec.ExternalID,
		Email:          fp.Email,
		Phone:          fp.Phone,
		LastSyncedHash: ContentHash(&rec),
		LastSyncedAt:   time.Now(),
	}

	if res.AssignedID != "" {
		if direction == models.DirectionSheetToCrm {
			link.ExternalID = res.AssignedID
			if rec.RowID != "" {
				writeback[rec.RowID] = res.AssignedID
			}
		} else {
			link.RowID = res.AssignedID
		}
	}

	e.stateMu.Lock()
	err := db.UpsertLink(e.db, link)
	e.stateMu.Unlock()
	if err != nil {
		log.Printf("sync: failed to persist link %s: %v", link.Fingerprint, err)
	}

	if kind == OpCreate {
		report.Created++
	} else {
		report.Updated++
	}
}

// writebackExternalIDs records freshly minted CRM lead ids in the sheet's
// deal-id column, when the sheet writer supports it.
func (e *Engine) writebackExternalIDs(ctx context.Context, ids map[string]string) {
	lw, ok := e.writers[BackendSheets].(LinkWriter)
	if !ok {
		return
	}

	if err := e.limiter.Acquire(ctx, BackendSheets); err != nil {
		log.Printf("sync: skipping lead id writeback: %v", err)
		return
	}
	if err := lw.WriteExternalIDs(ctx, ids); err != nil {
		log.Printf("sync: lead id writeback failed: %v", err)
	}
}

// failBatch records every record of a batch as failed with one error kind.
func (e *Engine) failBatch(report *models.SyncReport, batch Batch, kind, message string) {
	for _, rec := range batch.Records {
		report.Failed = append(report.Failed, models.RecordFailure{
			Fingerprint: FingerprintOf(&rec).Key(),
			Name:        rec.Name,
			Kind:        kind,
			Message:     message,
		})
	}
}
