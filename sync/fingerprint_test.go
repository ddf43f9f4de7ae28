package sync

import (
	"testing"

	"github.com/harperreed/sheetbridge/models"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+7 (926) 123-45-67", "79261234567"},
		{"8 926 123 45 67", "79261234567"},
		{"89261234567", "79261234567"},
		{"9261234567", "79261234567"},
		{"79261234567", "79261234567"},
		{"+1 415 555 0100", "14155550100"},
		{"", ""},
		{"abc", ""},
	}

	for _, tt := range tests {
		result := NormalizePhone(tt.input)
		if result != tt.expected {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice@Example.com", "alice@example.com"},
		{"  bob@example.com  ", "bob@example.com"},
		{"ALICE@EXAMPLE.COM", "alice@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		result := NormalizeEmail(tt.input)
		if result != tt.expected {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestFingerprintOf(t *testing.T) {
	rec := models.Record{
		Name:  "Alice",
		Email: "Alice@Example.com",
		Phone: "8 926 123 45 67",
	}

	fp := FingerprintOf(&rec)
	if fp.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", fp.Email)
	}
	if fp.Phone != "79261234567" {
		t.Errorf("expected normalized phone, got %q", fp.Phone)
	}
	if fp.Empty() {
		t.Error("fingerprint should not be empty")
	}
	if fp.Key() != "alice@example.com|79261234567" {
		t.Errorf("unexpected key %q", fp.Key())
	}
}

func TestFingerprintEmpty(t *testing.T) {
	rec := models.Record{Name: "No Identity"}
	if !FingerprintOf(&rec).Empty() {
		t.Error("record without email or phone should have empty fingerprint")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := models.Record{
		Name:  "Alice",
		Email: "alice@example.com",
		Phone: "79261234567",
		DealFields: map[string]string{
			"budget": "50000",
			"status": "In Progress",
		},
	}
	b := models.Record{
		Name:  "Alice",
		Email: "Alice@Example.com", // normalization folds case
		Phone: "8 926 123 45 67",
		DealFields: map[string]string{
			"status": "In Progress",
			"budget": "50000",
		},
	}

	if ContentHash(&a) != ContentHash(&b) {
		t.Error("equivalent records should hash identically")
	}
}

func TestContentHashIgnoresLinkFields(t *testing.T) {
	a := models.Record{Name: "Alice", Email: "alice@example.com"}
	b := a
	b.ExternalID = "12345"
	b.RowID = "7"

	if ContentHash(&a) != ContentHash(&b) {
		t.Error("link ids must not affect the content hash")
	}
}

func TestContentHashChangesWithContent(t *testing.T) {
	a := models.Record{Name: "Alice", Email: "alice@example.com", DealFields: map[string]string{"budget": "100"}}
	b := a
	b.DealFields = map[string]string{"budget": "200"}

	if ContentHash(&a) == ContentHash(&b) {
		t.Error("changed deal field should change the hash")
	}

	c := a
	c.Name = "Alicia"
	if ContentHash(&a) == ContentHash(&c) {
		t.Error("changed name should change the hash")
	}
}
