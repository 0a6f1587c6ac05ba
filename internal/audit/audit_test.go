package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeFillsGeneratedFields(t *testing.T) {
	now := time.Date(2026, 5, 15, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	entry := Normalize(Entry{Action: ActionSyncTrigger, Metadata: json.RawMessage(`{"synced":3}`)}, now)
	if entry.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !entry.CreatedAt.Equal(now) || entry.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected created_at %v", entry.CreatedAt)
	}
	if entry.PayloadDigest != DigestJSON([]byte(`{"synced":3}`)) || len(entry.PayloadDigest) != 64 {
		t.Fatalf("unexpected digest %q", entry.PayloadDigest)
	}
	if DigestJSON(nil) != "" {
		t.Fatalf("empty payload should have no digest")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/admin/sync", nil)
	r.RemoteAddr = "10.0.0.9:51234"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("remote addr: got %q", got)
	}
	r.Header.Set("X-Real-IP", " 192.0.2.4 ")
	if got := ClientIP(r); got != "192.0.2.4" {
		t.Fatalf("x-real-ip: got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("x-forwarded-for: got %q", got)
	}
	if ClientIP(nil) != "" {
		t.Fatalf("nil request should yield empty ip")
	}
}

func TestMemoryLogEvictsOldest(t *testing.T) {
	log := NewMemoryLog(2)
	for _, actor := range []string{"a", "b", "c"} {
		if err := log.Log(context.Background(), Entry{Actor: actor, Action: ActionSyncTrigger}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	entries := log.Entries()
	if len(entries) != 2 || entries[0].Actor != "b" || entries[1].Actor != "c" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestNilRepositoryRejects(t *testing.T) {
	var repo *Repository
	if err := repo.Log(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error from nil repository")
	}
	if NewRepository(nil) != nil {
		t.Fatalf("expected nil repository for nil db")
	}
}
