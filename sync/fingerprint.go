// ABOUTME: Identity fingerprints and content hashing for cross-backend matching
// ABOUTME: Normalizes email/phone and hashes mapped fields for change detection
package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/harperreed/sheetbridge/models"
)

// Fingerprint is the normalized identity key used to decide whether a sheet
// row and a CRM record are the same real-world entity. Two records with an
// equal non-empty component are considered the same entity.
type Fingerprint struct {
	Email string
	Phone string
}

// FingerprintOf computes the fingerprint for a record.
func FingerprintOf(r *models.Record) Fingerprint {
	return Fingerprint{
		Email: NormalizeEmail(r.Email),
		Phone: NormalizePhone(r.Phone),
	}
}

// Empty reports whether both identifying components are missing. Records with
// an empty fingerprint are never auto-matched.
func (f Fingerprint) Empty() bool {
	return f.Email == "" && f.Phone == ""
}

// Key returns the stable storage key for this fingerprint.
func (f Fingerprint) Key() string {
	return f.Email + "|" + f.Phone
}

// NormalizeEmail lowercases and trims an email for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone reduces a phone number to digits and canonicalizes Russian
// numbers: a leading 8 on an 11-digit number becomes 7, and a bare 10-digit
// number gets the 7 country code prefixed.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()

	if len(d) == 11 && strings.HasPrefix(d, "8") {
		d = "7" + d[1:]
	}
	if len(d) == 10 {
		d = "7" + d
	}
	return d
}

// ContentHash hashes the mapped fields of a record. Link ids and timestamps
// are excluded so the hash only changes when synced content changes.
func ContentHash(r *models.Record) string {
	h := sha256.New()
	h.Write([]byte(r.Name))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeEmail(r.Email)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizePhone(r.Phone)))
	h.Write([]byte{0})

	keys := make([]string, 0, len(r.DealFields))
	for k := range r.DealFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(r.DealFields[k]))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
