package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/apikey"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// KeyStore manages a tenant's API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Owner  string   `json:"owner"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler handles POST /api/v1/admin/keys. The raw key is only
// ever returned in this response.
func NewCreateKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		var req createKeyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Owner == "" {
			req.Owner = actor.UserID
		}

		key, raw, err := apikey.Issue(apikey.Spec{
			TenantID: actor.TenantID,
			Name:     req.Name,
			Owner:    req.Owner,
			Scopes:   req.Scopes,
		}, time.Now().UTC())
		if err != nil {
			response.BadRequest(w, err.Error(), nil)
			return
		}

		if err := keys.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, response.CodeConflict, "Key prefix collision, retry", nil)
				return
			}
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, createKeyResponse{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler handles GET /api/v1/admin/keys.
func NewListKeysHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		list, err := keys.ListAPIKeys(r.Context(), actor.TenantID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.JSON(w, list)
	}
}

// NewRevokeKeyHandler handles DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(keys KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}
		keyID, ok := pathID(w, r, "keyID", "key")
		if !ok {
			return
		}

		if err := keys.RevokeAPIKey(r.Context(), keyID, actor.TenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "API key not found", nil)
				return
			}
			writeServiceError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
