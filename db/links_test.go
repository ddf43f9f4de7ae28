package db

import (
	"testing"
	"time"
)

func TestGetLinkNotFound(t *testing.T) {
	db := setupTestDB(t)

	link, err := GetLink(db, "nobody@example.com|")
	if err != nil {
		t.Fatalf("GetLink failed: %v", err)
	}
	if link != nil {
		t.Errorf("expected nil for missing link, got %+v", link)
	}
}

func TestUpsertAndGetLink(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	original := &Link{
		Fingerprint:    "alice@example.com|79261234567",
		RowID:          "3",
		ExternalID:     "12345",
		Email:          "alice@example.com",
		Phone:          "79261234567",
		LastSyncedHash: "abc123",
		LastSyncedAt:   now,
	}

	if err := UpsertLink(db, original); err != nil {
		t.Fatalf("UpsertLink failed: %v", err)
	}

	got, err := GetLink(db, original.Fingerprint)
	if err != nil {
		t.Fatalf("GetLink failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected link to be found")
	}
	if got.RowID != "3" || got.ExternalID != "12345" {
		t.Errorf("link ids mismatch: %+v", got)
	}
	if got.Email != "alice@example.com" || got.Phone != "79261234567" {
		t.Errorf("identity fields mismatch: %+v", got)
	}
	if got.LastSyncedHash != "abc123" {
		t.Errorf("hash mismatch: %q", got.LastSyncedHash)
	}
	if !got.LastSyncedAt.Equal(now) {
		t.Errorf("timestamp mismatch: %v != %v", got.LastSyncedAt, now)
	}
}

func TestUpsertLinkReplacesExisting(t *testing.T) {
	db := setupTestDB(t)

	link := &Link{
		Fingerprint:    "alice@example.com|",
		Email:          "alice@example.com",
		LastSyncedHash: "hash-1",
		LastSyncedAt:   time.Now(),
	}
	if err := UpsertLink(db, link); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	link.ExternalID = "999"
	link.LastSyncedHash = "hash-2"
	if err := UpsertLink(db, link); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := GetLink(db, link.Fingerprint)
	if err != nil {
		t.Fatalf("GetLink failed: %v", err)
	}
	if got.ExternalID != "999" {
		t.Errorf("expected external id updated, got %q", got.ExternalID)
	}
	if got.LastSyncedHash != "hash-2" {
		t.Errorf("expected hash updated, got %q", got.LastSyncedHash)
	}

	// Still exactly one row
	links, err := AllLinks(db)
	if err != nil {
		t.Fatalf("AllLinks failed: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("expected 1 link after upsert, got %d", len(links))
	}
}

func TestAllLinksOrdered(t *testing.T) {
	db := setupTestDB(t)

	for _, fp := range []string{"c@x.com|", "a@x.com|", "b@x.com|"} {
		if err := UpsertLink(db, &Link{Fingerprint: fp, LastSyncedHash: "h", LastSyncedAt: time.Now()}); err != nil {
			t.Fatalf("UpsertLink(%s) failed: %v", fp, err)
		}
	}

	links, err := AllLinks(db)
	if err != nil {
		t.Fatalf("AllLinks failed: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	for i, want := range []string{"a@x.com|", "b@x.com|", "c@x.com|"} {
		if links[i].Fingerprint != want {
			t.Errorf("position %d: expected %s, got %s", i, want, links[i].Fingerprint)
		}
	}
}
