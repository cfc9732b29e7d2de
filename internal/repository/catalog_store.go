package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boardgames/wonders-server-go/internal/catalog"
)

// CatalogStore persists card and wonder definitions.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a catalog store on db.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// Replace swaps the stored catalog for cat in one transaction.
func (s *CatalogStore) Replace(ctx context.Context, cat *catalog.Catalog) error {
	if err := cat.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE catalog_cards, catalog_wonders`); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}

	batch := &pgx.Batch{}
	for _, card := range cat.Cards {
		batch.Queue(`INSERT INTO catalog_cards (name, age, players, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, age, players) DO UPDATE SET data = EXCLUDED.data`,
			card.Name, card.Age, card.Players, card)
	}
	for _, w := range cat.Wonders {
		batch.Queue(`INSERT INTO catalog_wonders (name, data) VALUES ($1, $2)`, w.Name, w)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert catalog: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

// Load reads the stored catalog. It returns nil when nothing is stored.
func (s *CatalogStore) Load(ctx context.Context) (*catalog.Catalog, error) {
	cat := &catalog.Catalog{}

	rows, err := s.db.Pool.Query(ctx, `SELECT data FROM catalog_cards ORDER BY age, name, players`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, pgx.RowTo[catalog.Card])
	if err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	cat.Cards = cards

	rows, err = s.db.Pool.Query(ctx, `SELECT data FROM catalog_wonders ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wonders: %w", err)
	}
	wonders, err := pgx.CollectRows(rows, pgx.RowTo[catalog.Wonder])
	if err != nil {
		return nil, fmt.Errorf("failed to read wonders: %w", err)
	}
	cat.Wonders = wonders

	if len(cat.Cards) == 0 && len(cat.Wonders) == 0 {
		return nil, nil
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("stored catalog is invalid: %w", err)
	}
	return cat, nil
}
