package main

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/apikey"
	"github.com/kiranshivaraju/fielddispatch/internal/store/memstore"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags([]string{"--tenant", "acme"})
	require.NoError(t, err)

	assert.Equal(t, "acme", opts.slug)
	assert.Equal(t, "acme", opts.tenantName)
	assert.Equal(t, "bootstrap", opts.keyName)
	assert.Equal(t, []string{models.ScopeAdmin}, opts.scopes)
}

func TestParseFlags_TenantRequired(t *testing.T) {
	_, err := parseFlags([]string{"--owner", "ops@acme.test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")
}

func TestParseFlags_Scopes(t *testing.T) {
	opts, err := parseFlags([]string{"--tenant", "acme", "--scopes", "read,dispatch"})
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "dispatch"}, opts.scopes)
}

func TestBootstrap_CreatesTenantOnce(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	opts := options{slug: "acme", tenantName: "Acme Facilities", keyName: "ops", owner: "ops@acme.test",
		scopes: []string{models.ScopeAdmin}}

	first, raw1, err := bootstrap(ctx, st, opts, now)
	require.NoError(t, err)
	assert.Equal(t, "Acme Facilities", first.Name)

	second, raw2, err := bootstrap(ctx, st, opts, now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, raw1, raw2)

	keys, err := st.ListAPIKeys(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestBootstrap_KeyVerifies(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	tenant, raw, err := bootstrap(ctx, st, options{slug: "acme", tenantName: "acme", keyName: "ops",
		scopes: []string{models.ScopeAdmin}}, now)
	require.NoError(t, err)

	keys, err := st.GetAPIKeyByPrefix(ctx, apikey.PrefixOf(raw))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, tenant.ID, keys[0].TenantID)
	assert.True(t, apikey.Verify(keys[0].KeyHash, raw))
}

func TestBootstrap_RejectsUnknownScope(t *testing.T) {
	_, _, err := bootstrap(context.Background(), memstore.New(), options{slug: "acme", tenantName: "acme",
		keyName: "ops", scopes: []string{"root"}}, now)
	require.Error(t, err)
}
