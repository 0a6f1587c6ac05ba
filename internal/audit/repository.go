package audit

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Repository writes audit entries to postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = Normalize(entry, time.Now())
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, actor, role, action, outcome, station_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,NULLIF($6,''),$7,NULLIF($8,''),$9,$10,$11
)`, entry.ID, entry.Actor, entry.Role, entry.Action, entry.Outcome, entry.StationID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// MemoryLog keeps entries in process, newest last.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewMemoryLog keeps at most limit entries; limit <= 0 keeps everything.
func NewMemoryLog(limit int) *MemoryLog {
	return &MemoryLog{limit: limit}
}

// Log appends an entry, evicting the oldest beyond the limit.
func (m *MemoryLog) Log(_ context.Context, entry Entry) error {
	if m == nil {
		return errors.New("audit memory: nil log")
	}
	entry = Normalize(entry, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if m.limit > 0 && len(m.entries) > m.limit {
		m.entries = append([]Entry(nil), m.entries[len(m.entries)-m.limit:]...)
	}
	return nil
}

// Entries returns a copy of the stored entries.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
