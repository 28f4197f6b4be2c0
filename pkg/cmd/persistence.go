package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagecrm/cadence/pkg/persistence"
	"github.com/vantagecrm/cadence/pkg/persistence/file"
	"github.com/vantagecrm/cadence/pkg/persistence/postgresql"
	"github.com/vantagecrm/cadence/pkg/persistence/redisstore"
)

// NewPersistence selects the storage provider from the database URL scheme.
// PostgreSQL backs production; everything else falls back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return store
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}

// redisRuntimeStore overlays the hot runtime repositories (run state, sent
// audits) onto another persistence provider. Runs touch these on every
// transition, so they benefit from Redis even when entities live in SQL or
// files.
type redisRuntimeStore struct {
	persistence.Persistence

	runStates *redisstore.RunStateRepository
	audit     *redisstore.AuditRepository
	close     func() error
}

func (s *redisRuntimeStore) RunStateRepository() persistence.RunStateRepository {
	return s.runStates
}

func (s *redisRuntimeStore) AuditRepository() persistence.AuditRepository {
	return s.audit
}

func (s *redisRuntimeStore) Close(ctx context.Context) error {
	if err := s.close(); err != nil {
		return err
	}

	return s.Persistence.Close(ctx)
}

// WithRedisRuntime swaps the run-state and audit repositories for
// Redis-backed ones. An empty redisURL returns the base store unchanged.
func WithRedisRuntime(ctx context.Context, base persistence.Persistence, redisURL string) persistence.Persistence {
	if redisURL == "" {
		return base
	}

	client, err := redisstore.NewClient(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return &redisRuntimeStore{
		Persistence: base,
		runStates:   redisstore.NewRunStateRepository(client),
		audit:       redisstore.NewAuditRepository(client),
		close:       client.Close,
	}
}
