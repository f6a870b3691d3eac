package app

import (
	"context"
	"fmt"

	"flowedit/internal/config"
	"flowedit/internal/domain"
	"flowedit/internal/service"
	"flowedit/internal/storage"
	"flowedit/internal/storage/mongostore"
)

// stores is the opened persistence backend. db is nil for MongoDB, which
// has no settings or approval tables.
type stores struct {
	solutions domain.SolutionStore
	db        *storage.DB
	close     func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.Driver == "mongo" {
		ms, err := mongostore.Connect(ctx, cfg.Storage.DSN, cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		return &stores{solutions: ms, close: ms.Close}, nil
	}
	db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	return &stores{
		solutions: storage.NewSolutionStore(db),
		db:        db,
		close:     func(context.Context) error { return db.Close() },
	}, nil
}

func (s *stores) settings() service.KeyValueStore {
	if s.db == nil {
		return nil
	}
	return storage.NewSettingsStore(s.db)
}

func (s *stores) approvals() *storage.ApprovalStore {
	if s.db == nil {
		return nil
	}
	return storage.NewApprovalStore(s.db)
}
