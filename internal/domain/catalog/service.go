package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service owns catalog replacement. The in-memory Store is the source every
// resolver reads; the Repository, when present, is the durable copy.
type Service struct {
	store *Store
	repo  Repository // nil-safe: catalog lives only in memory if nil
}

// NewService creates a catalog Service. repo may be nil.
func NewService(store *Store, repo Repository) *Service {
	return &Service{store: store, repo: repo}
}

// Items returns the active catalog snapshot.
func (s *Service) Items() []Item {
	return s.store.Items()
}

// Upload parses catalog text and replaces the catalog with the result. Nothing
// is replaced when any row is rejected.
func (s *Service) Upload(ctx context.Context, text string) ([]Item, error) {
	items, err := ParseString(text)
	if err != nil {
		return nil, err
	}
	if err := s.Replace(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Replace persists items (when a repository is configured) and then swaps the
// in-memory snapshot.
func (s *Service) Replace(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return ErrEmpty
	}
	if s.repo != nil {
		if err := s.repo.ReplaceAll(ctx, items); err != nil {
			return errors.Wrap(err, "persist catalog")
		}
	}
	s.store.Replace(items)

	zctx.From(ctx).Info("Catalog replaced", zap.Int("items", len(items)))
	return nil
}

// Reload refreshes the snapshot from the repository. An empty repository
// leaves the current snapshot in place.
func (s *Service) Reload(ctx context.Context) (int, error) {
	if s.repo == nil {
		return s.store.Len(), nil
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list catalog")
	}
	if len(items) == 0 {
		return s.store.Len(), nil
	}
	s.store.Replace(items)
	return len(items), nil
}

// EnsureSeeded writes the current snapshot to an empty repository so that a
// fresh database starts with the same catalog the process serves.
func (s *Service) EnsureSeeded(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	items, err := s.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list catalog")
	}
	if len(items) > 0 {
		return nil
	}
	if err := s.repo.ReplaceAll(ctx, s.store.Items()); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	zctx.From(ctx).Info("Catalog seeded", zap.Int("items", s.store.Len()))
	return nil
}
