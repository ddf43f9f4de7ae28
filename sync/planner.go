// ABOUTME: Batch planning for pending writes
// ABOUTME: Groups creates and updates into homogeneous bounded batches
package sync

import (
	"github.com/harperreed/sheetbridge/models"
)

// OpKind distinguishes the two write operations. Backends require distinct
// calls for each, so a batch never mixes kinds.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
)

// Batch is a homogeneous ordered group of records bound for one backend.
type Batch struct {
	Kind    OpKind
	Backend Backend
	Records []models.Record
}

// PlannerConfig bounds batch sizes per operation kind. The caps come from the
// destination backend's documented batch-write limits.
type PlannerConfig struct {
	MaxCreateBatch int
	MaxUpdateBatch int
}

// Planner groups a pass's pending writes into backend-appropriate batches.
type Planner struct {
	config PlannerConfig
}

// NewPlanner creates a planner with the given batch caps.
func NewPlanner(config PlannerConfig) *Planner {
	if config.MaxCreateBatch <= 0 {
		config.MaxCreateBatch = 1
	}
	if config.MaxUpdateBatch <= 0 {
		config.MaxUpdateBatch = 1
	}
	return &Planner{config: config}
}

// Plan splits a change set into batches. Updates are planned before creates,
// matching the original commit order, and input order is preserved within
// each kind so partial failures stay attributable (first N succeeded).
func (p *Planner) Plan(changes *models.ChangeSet, backend Backend) []Batch {
	var batches []Batch
	batches = append(batches, split(changes.Updates, OpUpdate, backend, p.config.MaxUpdateBatch)...)
	batches = append(batches, split(changes.Creates, OpCreate, backend, p.config.MaxCreateBatch)...)
	return batches
}

func split(records []models.Record, kind OpKind, backend Backend, max int) []Batch {
	var batches []Batch
	for start := 0; start < len(records); start += max {
		end := start + max
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, Batch{
			Kind:    kind,
			Backend: backend,
			Records: records[start:end],
		})
	}
	return batches
}
