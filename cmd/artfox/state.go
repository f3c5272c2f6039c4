package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ArtFox/internal/pkg/config"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
	"github.com/ManuelReschke/ArtFox/internal/pkg/statestore"
)

// stateStores owns the two durable stores and their hydrated documents.
type stateStores struct {
	credits *statestore.Store[credits.Document]
	orders  *statestore.Store[orders.Document]

	creditsDoc credits.Document
	ordersDoc  orders.Document
}

// openStateStores builds the backends in hydration priority order: the
// normalized tables first, then the legacy blob row, then the local file.
// Every backend receives every write. db is nil for the file backend.
func openStateStores(ctx context.Context, cfg *config.Config, db *gorm.DB) *stateStores {
	creditBackends := []statestore.Backend[credits.Document]{}
	orderBackends := []statestore.Backend[orders.Document]{}

	if db != nil {
		creditBackends = append(creditBackends,
			credits.NewRelationalBackend(db),
			statestore.NewBlobBackend(db, credits.StoreName, credits.DocumentVersion, credits.Codec),
		)
		orderBackends = append(orderBackends,
			orders.NewRelationalBackend(db),
			statestore.NewBlobBackend(db, orders.StoreName, orders.DocumentVersion, orders.Codec),
		)
	}
	creditBackends = append(creditBackends,
		statestore.NewFileBackend(filepath.Join(cfg.StateDir, credits.StoreName+".json"), credits.Codec))
	orderBackends = append(orderBackends,
		statestore.NewFileBackend(filepath.Join(cfg.StateDir, orders.StoreName+".json"), orders.Codec))

	s := &stateStores{
		credits: statestore.New(credits.StoreName, credits.EmptyDocument, creditBackends...),
		orders:  statestore.New(orders.StoreName, orders.EmptyDocument, orderBackends...),
	}
	s.creditsDoc = s.credits.Hydrate(ctx)
	s.ordersDoc = s.orders.Hydrate(ctx)
	return s
}

// close writes the last pending snapshots and stops both writers.
func (s *stateStores) close(ctx context.Context) error {
	var errs []error
	if err := s.credits.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.orders.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.credits.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.orders.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("[Main] State flushed")
	return nil
}
