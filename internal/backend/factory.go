package backend

import (
	"context"
	"fmt"

	"cuzdan/internal/log"
	"cuzdan/internal/storage"
	"cuzdan/internal/store"
	"cuzdan/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	hash   memory.PasswordHasher
}

// NewFactory creates a new backend factory. hash is used for seed user
// passwords and may be nil when no seed file is configured.
func NewFactory(logger *log.Logger, hash memory.PasswordHasher) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		hash:   hash,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := f.seed(ctx, result.Repository, config.SeedFile); err != nil {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		return nil, err
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Repository: repo,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")
	return &BackendResult{Repository: memory.New()}, nil
}

func (f *DefaultFactory) seed(ctx context.Context, repo store.Repository, path string) error {
	if path == "" {
		return nil
	}
	if f.hash == nil {
		return fmt.Errorf("seed file %s configured without a password hasher", path)
	}
	n, err := memory.LoadSeedFile(ctx, repo, path, f.hash)
	if err != nil {
		return fmt.Errorf("load seed data: %w", err)
	}
	f.logger.InfoContext(ctx, "Applied seed data", "seed_file", path, "users_created", n)
	return nil
}
