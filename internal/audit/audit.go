// Package audit writes append-only audit entries for tenant entity changes.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

const (
	EntityJob            = "Job"
	EntityVendor         = "Vendor"
	EntityAssignment     = "Assignment"
	EntityRecommendation = "AIRecommendation"
)

const (
	ActionCreated       = "Created"
	ActionUpdated       = "Updated"
	ActionStatusChanged = "StatusChanged"
	ActionRevoked       = "Revoked"
	ActionAssigned      = "Assigned"
	ActionActivated     = "Activated"
	ActionDeactivated   = "Deactivated"
	ActionGenerated     = "Generated"
	ActionFailed        = "Failed"
)

// Recorder writes audit entries. A failed write is logged and never returned:
// the audited operation has already been persisted.
type Recorder struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes one entry. oldValues and newValues are JSON-encoded and may be nil.
func (r *Recorder) Record(ctx context.Context, actor models.Actor, entity string, entityID uuid.UUID, action string, oldValues, newValues any) {
	entry := &models.AuditLog{
		ID:         uuid.New(),
		TenantID:   actor.TenantID,
		EntityName: entity,
		EntityID:   entityID,
		Action:     action,
		OldValues:  r.encode(entity, oldValues),
		NewValues:  r.encode(entity, newValues),
		UserID:     actor.UserID,
		CreatedAt:  r.now(),
	}

	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		r.logger.Warn("audit write failed",
			"entity", entity,
			"entity_id", entityID,
			"action", action,
			"tenant_id", actor.TenantID,
			"error", err,
		)
	}
}

func (r *Recorder) encode(entity string, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("audit values not encodable", "entity", entity, "error", err)
		return nil
	}
	return b
}
