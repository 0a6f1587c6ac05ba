package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"velib-cloud/internal/audit"
	"velib-cloud/internal/auth"
	"velib-cloud/internal/ingestsync"
)

// SyncTrigger invokes the ingestion job.
type SyncTrigger interface {
	Trigger(ctx context.Context) (int, error)
}

// SyncHandler serves POST /api/v1/admin/sync.
type SyncHandler struct {
	trigger SyncTrigger
	audit   audit.Logger
	logger  zerolog.Logger
}

// NewSyncHandler constructs a handler. A nil trigger answers 503; a nil
// audit logger skips auditing.
func NewSyncHandler(trigger SyncTrigger, auditLog audit.Logger, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{trigger: trigger, audit: auditLog, logger: logger}
}

func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		http.Error(w, "sync not configured", http.StatusServiceUnavailable)
		return
	}
	count, err := h.trigger.Trigger(r.Context())
	switch {
	case errors.Is(err, ingestsync.ErrRateLimited):
		h.record(r, audit.OutcomeRejected, nil)
		http.Error(w, "sync already triggered recently", http.StatusTooManyRequests)
		return
	case err != nil:
		h.logger.Warn().Err(err).Msg("manual sync failed")
		h.record(r, audit.OutcomeFailed, map[string]string{"error": err.Error()})
		http.Error(w, "sync failed", http.StatusBadGateway)
		return
	}
	h.logger.Info().Int("synced", count).Msg("manual sync completed")
	h.record(r, audit.OutcomeOK, map[string]int{"synced": count})
	writeJSON(w, http.StatusOK, map[string]int{"synced": count})
}

func (h *SyncHandler) record(r *http.Request, outcome string, metadata any) {
	if h.audit == nil {
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	entry := audit.Entry{
		Actor:     session.UserID,
		Role:      string(session.Role),
		Action:    audit.ActionSyncTrigger,
		Outcome:   outcome,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.Warn().Err(err).Str("action", entry.Action).Msg("audit write failed")
	}
}
