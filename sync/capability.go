// ABOUTME: Capability interfaces consumed by the sync engine
// ABOUTME: Defines backend identities and the read/write contracts
package sync

import (
	"context"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

// Backend identifies one side of the bridge for rate budgeting. The budget is
// backend-wide, not per-direction, because the external quota is.
type Backend string

const (
	BackendSheets Backend = "sheets"
	BackendCrm    Backend = "crm"
)

// BackendFor returns the destination backend of a pass direction.
func BackendFor(direction models.Direction) Backend {
	if direction == models.DirectionSheetToCrm {
		return BackendCrm
	}
	return BackendSheets
}

// SourceFor returns the source backend of a pass direction.
func SourceFor(direction models.Direction) Backend {
	return BackendFor(direction.Opposite())
}

// Reader is the external read capability of a backend.
type Reader interface {
	Read(ctx context.Context) ([]models.Record, error)
}

// WriteResult carries the per-record outcome of a batch write. AssignedID is
// the backend identifier minted for a create. RetryAfter, when non-zero, is a
// server-supplied backoff hint forwarded to the rate limiter.
type WriteResult struct {
	Record     models.Record
	AssignedID string
	Err        error
	RetryAfter time.Duration
}

// Writer is the external write capability of a backend. WriteBatch returns
// one result per record in batch order; it returns a non-nil error only for
// failures affecting the whole batch (auth, malformed contract).
type Writer interface {
	WriteBatch(ctx context.Context, batch Batch) ([]WriteResult, error)
}

// LinkWriter is an optional capability of the sheet backend: after the CRM
// mints lead ids for created rows, the ids are written back into the deal-id
// column so the sheet shows the linkage.
type LinkWriter interface {
	WriteExternalIDs(ctx context.Context, ids map[string]string) error
}

// CredentialProvider supplies a bearer token for a backend. Token refresh is
// the provider's concern; the engine only surfaces auth failures.
type CredentialProvider interface {
	Token(ctx context.Context, backend Backend) (string, error)
}
