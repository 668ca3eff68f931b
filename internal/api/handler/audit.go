package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// AuditReader lists audit entries.
type AuditReader interface {
	ListAuditLogs(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLog, int, error)
}

// NewListAuditLogsHandler handles GET /api/v1/audit-logs.
// Query: entity_name, entity_id, since (RFC 3339), page, limit.
func NewListAuditLogsHandler(logs AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		page, limit, err := pageParams(r)
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}

		q := r.URL.Query()
		filter := store.AuditFilter{
			TenantID:   actor.TenantID,
			EntityName: q.Get("entity_name"),
			Page:       page,
			Limit:      limit,
		}
		if v := q.Get("entity_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				response.BadRequest(w, "Invalid entity_id format", nil)
				return
			}
			filter.EntityID = &id
		}
		if v := q.Get("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.BadRequest(w, "since must be an RFC 3339 timestamp", nil)
				return
			}
			filter.Since = since
		}
		filter.Normalize()

		entries, total, err := logs.ListAuditLogs(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		filter.Normalize()
		response.Collection(w, entries, response.Page(filter.Page, filter.Limit, total))
	}
}
