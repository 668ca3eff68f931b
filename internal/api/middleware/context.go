package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

type contextKey string

const (
	actorKey        contextKey = "actor"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	callerKey       contextKey = "caller"
)

// caller is a per-request slot that SetActor fills in, so middleware running
// outside Authenticate can still log who made the request.
type caller struct {
	actor models.Actor
	ok    bool
}

func withCaller(ctx context.Context) (context.Context, *caller) {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		return ctx, c
	}
	c := &caller{}
	return context.WithValue(ctx, callerKey, c), c
}

// logAttrs returns tenant_id and user_id once the request is authenticated.
func (c *caller) logAttrs() []any {
	if !c.ok {
		return nil
	}
	return []any{"tenant_id", c.actor.TenantID, "user_id", c.actor.UserID}
}

// SetActor stores the authenticated actor on ctx.
func SetActor(ctx context.Context, actor models.Actor) context.Context {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		c.actor, c.ok = actor, true
	}
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the actor resolved by Authenticate.
func GetActor(r *http.Request) (models.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(models.Actor)
	return actor, ok
}

func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	actor, ok := GetActor(r)
	return actor.TenantID, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// SetScopes stores the API key scopes on ctx.
func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
