// Package main bootstraps a tenant and prints an API key for it.
//
//	keygen --tenant acme --tenant-name "Acme Facilities" --owner ops@acme.test
//
// The tenant is created when the slug does not exist yet. The raw key is
// printed once and cannot be recovered later.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/fielddispatch/internal/apikey"
	"github.com/kiranshivaraju/fielddispatch/internal/config"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
	"github.com/spf13/pflag"
)

type options struct {
	slug       string
	tenantName string
	keyName    string
	owner      string
	scopes     []string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("keygen failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             databaseURL,
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	tenant, raw, err := bootstrap(ctx, store.NewPostgresStore(pool), opts, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "tenant: %s (%s)\n", tenant.Slug, tenant.ID)
	fmt.Fprintf(out, "key:    %s\n", raw)
	return nil
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	fs.StringVar(&opts.slug, "tenant", "", "tenant slug (required)")
	fs.StringVar(&opts.tenantName, "tenant-name", "", "display name used when the tenant is created (default: the slug)")
	fs.StringVar(&opts.keyName, "name", "bootstrap", "key name")
	fs.StringVar(&opts.owner, "owner", "", "user the key acts for; recorded on audit entries")
	fs.StringSliceVar(&opts.scopes, "scopes", []string{models.ScopeAdmin}, "comma-separated scopes")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.slug = strings.TrimSpace(opts.slug)
	if opts.slug == "" {
		return opts, fmt.Errorf("--tenant is required")
	}
	if opts.tenantName == "" {
		opts.tenantName = opts.slug
	}
	return opts, nil
}

// bootstrap finds or creates the tenant and stores a freshly issued key for it.
func bootstrap(ctx context.Context, st store.Store, opts options, now time.Time) (*models.Tenant, string, error) {
	tenant, err := st.GetTenantBySlug(ctx, opts.slug)
	if errors.Is(err, store.ErrNotFound) {
		tenant = &models.Tenant{
			ID:        uuid.New(),
			Name:      opts.tenantName,
			Slug:      opts.slug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateTenant(ctx, tenant); err != nil {
			return nil, "", fmt.Errorf("create tenant: %w", err)
		}
		slog.Info("tenant created", "slug", tenant.Slug, "tenant_id", tenant.ID)
	} else if err != nil {
		return nil, "", fmt.Errorf("look up tenant: %w", err)
	}

	key, raw, err := apikey.Issue(apikey.Spec{
		TenantID: tenant.ID,
		Name:     opts.keyName,
		Owner:    opts.owner,
		Scopes:   opts.scopes,
	}, now)
	if err != nil {
		return nil, "", err
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store key: %w", err)
	}
	slog.Info("api key issued", "tenant_id", tenant.ID, "key_prefix", key.KeyPrefix, "scopes", key.Scopes)
	return tenant, raw, nil
}
