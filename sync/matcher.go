// ABOUTME: Record matching and deduplication against persisted sync state
// ABOUTME: Fingerprint fast path with email-or-phone fallback, never force-links
package sync

import (
	"sort"

	"github.com/harperreed/sheetbridge/db"
	"github.com/harperreed/sheetbridge/models"
)

// LinkedPair joins a freshly fetched source record with its known link.
type LinkedPair struct {
	Source models.Record
	Link   db.Link
}

// MatchResult is a best-effort partition of source records against state.
// Ambiguous entries are surfaced for manual review, never silently merged.
type MatchResult struct {
	Linked          []LinkedPair
	UnmatchedSource []models.Record
	UnmatchedState  []db.Link
	Ambiguous       []db.Link
}

// Matcher determines identity correspondence between a fetched record set and
// the persisted sync state.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match partitions source records into linked, unmatched-source, and
// unmatched-state. The fingerprint lookup is the fast path; a fallback scan
// compares normalized email OR phone equality so an entry stays matchable
// when one identifying field changed. Records with both email and phone empty
// are always treated as new creates.
func (m *Matcher) Match(source []models.Record, state []db.Link) MatchResult {
	var result MatchResult

	byKey := make(map[string]int, len(state))
	for i := range state {
		byKey[state[i].Fingerprint] = i
	}
	consumed := make([]bool, len(state))

	for _, rec := range source {
		fp := FingerprintOf(&rec)
		if fp.Empty() {
			result.UnmatchedSource = append(result.UnmatchedSource, rec)
			continue
		}

		// Fast path: exact fingerprint hit.
		if idx, ok := byKey[fp.Key()]; ok && !consumed[idx] {
			consumed[idx] = true
			result.Linked = append(result.Linked, LinkedPair{Source: rec, Link: state[idx]})
			continue
		}

		// Fallback: one identifying field may have changed.
		candidates := make([]int, 0, 2)
		for i := range state {
			if consumed[i] {
				continue
			}
			if (fp.Email != "" && state[i].Email == fp.Email) ||
				(fp.Phone != "" && state[i].Phone == fp.Phone) {
				candidates = append(candidates, i)
			}
		}

		switch len(candidates) {
		case 0:
			result.UnmatchedSource = append(result.UnmatchedSource, rec)
		case 1:
			idx := candidates[0]
			consumed[idx] = true
			result.Linked = append(result.Linked, LinkedPair{Source: rec, Link: state[idx]})
		default:
			// Two distinct state entries claim this record. Prefer the most
			// recently synced one; flag the rest for manual review.
			sort.SliceStable(candidates, func(a, b int) bool {
				return state[candidates[a]].LastSyncedAt.After(state[candidates[b]].LastSyncedAt)
			})
			best := candidates[0]
			consumed[best] = true
			result.Linked = append(result.Linked, LinkedPair{Source: rec, Link: state[best]})
			for _, idx := range candidates[1:] {
				consumed[idx] = true
				result.Ambiguous = append(result.Ambiguous, state[idx])
			}
		}
	}

	for i := range state {
		if !consumed[i] {
			result.UnmatchedState = append(result.UnmatchedState, state[i])
		}
	}

	return result
}
