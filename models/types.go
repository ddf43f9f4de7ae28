// ABOUTME: Data models for sheet/CRM record synchronization
// ABOUTME: Defines Record, Direction, ChangeSet, and SyncReport structs
package models

import (
	"time"
)

// Direction selects which side of the bridge is the source of a pass.
type Direction string

const (
	DirectionSheetToCrm Direction = "sheet_to_crm"
	DirectionCrmToSheet Direction = "crm_to_sheet"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionSheetToCrm {
		return DirectionCrmToSheet
	}
	return DirectionSheetToCrm
}

// Record is a contact/deal entity as seen by either backend. ExternalID is
// the CRM-side lead id, RowID the spreadsheet-side row key; at least one is
// set once the record has been linked.
type Record struct {
	ExternalID   string            `json:"external_id,omitempty"`
	RowID        string            `json:"row_id,omitempty"`
	Name         string            `json:"name"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	DealFields   map[string]string `json:"deal_fields,omitempty"`
	LastModified time.Time         `json:"last_modified,omitempty"`
}

// Linked reports whether the record carries any backend identifier.
func (r *Record) Linked() bool {
	return r.ExternalID != "" || r.RowID != ""
}

// ChangeSet holds the writes computed for one pass. Order within each slice
// is preserved through batching so partial failures stay diagnosable.
type ChangeSet struct {
	Creates []Record
	Updates []Record
}

// Empty reports whether the pass has nothing to write.
func (c *ChangeSet) Empty() bool {
	return len(c.Creates) == 0 && len(c.Updates) == 0
}

// Skip reasons enumerated in SyncReport.Skipped.
const (
	SkipUnchanged        = "unchanged"
	SkipDeletedUpstream  = "deleted-upstream"
	SkipDestinationNewer = "destination-newer"
	SkipAmbiguousMatch   = "ambiguous-match"
)

// Failure error kinds.
const (
	FailureKindAuth      = "auth"
	FailureKindRateLimit = "rate_limit"
	FailureKindTransient = "transient"
	FailureKindContract  = "contract"
)

// RecordFailure captures a per-record write failure without aborting the pass.
type RecordFailure struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
}

// ConflictEntry records a linked pair where both sides changed since the last
// sync. The running direction wins; the overwritten side is never dropped
// silently.
type ConflictEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Winner      Direction `json:"winner"`
}

// SyncReport summarizes one pass. Every pass produces one, regardless of
// partial failure.
type SyncReport struct {
	PassID     string          `json:"pass_id"`
	Direction  Direction       `json:"direction"`
	Created    int             `json:"created"`
	Updated    int             `json:"updated"`
	Skipped    map[string]int  `json:"skipped"`
	Failed     []RecordFailure `json:"failed,omitempty"`
	Conflicts  []ConflictEntry `json:"conflicts,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	StartedAt  time.Time       `json:"started_at"`
}

// NewSyncReport creates an empty report for a pass.
func NewSyncReport(passID string, direction Direction) *SyncReport {
	return &SyncReport{
		PassID:    passID,
		Direction: direction,
		Skipped:   make(map[string]int),
		StartedAt: time.Now(),
	}
}

// Skip increments the counter for a skip reason.
func (r *SyncReport) Skip(reason string) {
	r.Skipped[reason]++
}

// SkippedTotal returns the total number of skipped records.
func (r *SyncReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}
