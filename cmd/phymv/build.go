package main

import (
	"context"
	"fmt"
	"io"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/checksum"
	"github.com/datagrid/phymv/internal/config"
	"github.com/datagrid/phymv/internal/metrics"
	"github.com/datagrid/phymv/internal/phymv"
	"github.com/datagrid/phymv/internal/policy"
	"github.com/datagrid/phymv/internal/resource"
	"github.com/rs/zerolog"
)

// openCatalog opens the configured catalog backend.
func openCatalog(ctx context.Context, cfg config.CatalogConfig, logger zerolog.Logger) (catalog.Catalog, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return catalog.NewMemory(), nil
	case config.BackendBadger:
		return catalog.OpenBadger(catalog.BadgerConfig{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
	case config.BackendRedis:
		dial, err := cfg.Redis.DialTimeoutDuration()
		if err != nil {
			return nil, err
		}
		return catalog.OpenRedis(ctx, catalog.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			DialTimeout: dial,
			Logger:      logger,
		})
	}
	return nil, fmt.Errorf("unknown catalog backend %q", cfg.Backend)
}

// openResources builds the resource registry from configuration.
func openResources(cfgs []config.ResourceConfig) (*resource.Registry, error) {
	reg, err := resource.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, rc := range cfgs {
		vc := resource.VaultConfig{Name: rc.Name, Root: rc.Path, Offline: rc.Offline, Fsync: rc.Fsync}
		var res resource.Resource
		switch rc.Kind {
		case config.KindZstd:
			res, err = resource.NewCompressedVault(vc)
		default:
			res, err = resource.NewVault(vc)
		}
		if err != nil {
			return nil, err
		}
		if err := reg.Add(res); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newService wires a service from validated configuration. The returned
// closer releases the catalog.
func newService(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*phymv.Service, io.Closer, error) {
	stale, err := policy.ParseStalePolicy(cfg.Policy.Stale)
	if err != nil {
		return nil, nil, err
	}
	scheme, err := checksum.ParseScheme(cfg.Transfer.Digest)
	if err != nil {
		return nil, nil, err
	}
	backoff, err := cfg.Catalog.RetryBackoffDuration()
	if err != nil {
		return nil, nil, err
	}
	cleanup, err := cfg.Transfer.CleanupTimeoutDuration()
	if err != nil {
		return nil, nil, err
	}

	resources, err := openResources(cfg.Resources)
	if err != nil {
		return nil, nil, fmt.Errorf("open resources: %w", err)
	}
	cat, err := openCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}

	svc, err := phymv.New(phymv.Config{
		Catalog:          cat,
		Resources:        resources,
		Authorizer:       policy.NewStaticAuthorizer(cfg.Policy.Admins),
		Stale:            stale,
		AtomicMulti:      cfg.Policy.AtomicMulti,
		Scheme:           scheme,
		BufferSize:       int(cfg.Transfer.BufferSize.Int64()),
		Parallelism:      cfg.Transfer.Parallelism,
		DigestOnRegister: cfg.Transfer.DigestOnRegister,
		VerifyReadback:   cfg.Transfer.VerifyReadback,
		MaxRetries:       cfg.Catalog.MaxRetries,
		RetryBackoff:     backoff,
		CleanupTimeout:   cleanup,
		Metrics:          m,
		Logger:           logger,
	})
	if err != nil {
		_ = cat.Close()
		return nil, nil, err
	}
	logger.Debug().
		Str("catalog", cfg.Catalog.Backend).
		Strs("resources", resources.Names()).
		Msg("Service ready")
	return svc, cat, nil
}
