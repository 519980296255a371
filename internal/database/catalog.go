package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// CatalogStore persists extraction results for one portal. Every insert or
// change emits a CATALOG_ITEM_UPDATED outbox event in the same transaction.
type CatalogStore struct {
	db     *DB
	portal string
	outbox *OutboxRepository
}

func NewCatalogStore(db *DB, portal string, outbox *OutboxRepository) *CatalogStore {
	return &CatalogStore{db: db, portal: portal, outbox: outbox}
}

// CatalogItemUpdated is the payload of EventCatalogItemUpdated.
type CatalogItemUpdated struct {
	Portal       string            `json:"portal"`
	ItemCode     string            `json:"item_code"`
	Name         string            `json:"name,omitempty"`
	Price        *float64          `json:"price,omitempty"`
	PriceBasis   string            `json:"price_basis,omitempty"`
	Coverage     *float64          `json:"coverage,omitempty"`
	CoverageUnit string            `json:"coverage_unit,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Created      bool              `json:"created"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Upsert writes result and reports whether the stored row was inserted or
// changed. Identical data leaves the row and the outbox untouched.
func (s *CatalogStore) Upsert(ctx context.Context, result *models.Result) (bool, error) {
	if result == nil || result.ItemCode == "" {
		return false, fmt.Errorf("catalog upsert: item code is required")
	}
	fields := result.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	query := `
		INSERT INTO catalog_item (
			portal, item_code, name, price, price_basis,
			coverage, coverage_unit, fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (portal, item_code) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			price_basis = EXCLUDED.price_basis,
			coverage = EXCLUDED.coverage,
			coverage_unit = EXCLUDED.coverage_unit,
			fields = EXCLUDED.fields,
			updated_at = now()
		WHERE (catalog_item.name, catalog_item.price, catalog_item.price_basis,
			catalog_item.coverage, catalog_item.coverage_unit, catalog_item.fields)
			IS DISTINCT FROM
			(EXCLUDED.name, EXCLUDED.price, EXCLUDED.price_basis,
			EXCLUDED.coverage, EXCLUDED.coverage_unit, EXCLUDED.fields)
		RETURNING (xmax = 0), updated_at`

	changed := false
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var created bool
		var updatedAt time.Time
		err := tx.QueryRow(ctx, query,
			s.portal, result.ItemCode, result.Name, result.Price, result.PriceBasis,
			result.Coverage, result.CoverageUnit, fields,
		).Scan(&created, &updatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to upsert catalog item %s: %w", result.ItemCode, err)
		}
		changed = true

		if s.outbox == nil {
			return nil
		}
		event, err := NewOutboxEvent(AggregateCatalogItem, s.portal+":"+result.ItemCode, EventCatalogItemUpdated,
			CatalogItemUpdated{
				Portal:       s.portal,
				ItemCode:     result.ItemCode,
				Name:         result.Name,
				Price:        result.Price,
				PriceBasis:   result.PriceBasis,
				Coverage:     result.Coverage,
				CoverageUnit: result.CoverageUnit,
				Fields:       result.Fields,
				Created:      created,
				UpdatedAt:    updatedAt,
			})
		if err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// RegisterItems records work items that have no extracted data yet so they
// show up in ItemsMissingPrice. Existing rows are left alone.
func (s *CatalogStore) RegisterItems(ctx context.Context, items []models.WorkItem) (int, error) {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO catalog_item (portal, item_code, category)
			VALUES ($1, $2, $3)
			ON CONFLICT (portal, item_code) DO NOTHING`,
			s.portal, item.Code, item.Category)
	}

	var added int
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range items {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("failed to register item: %w", err)
			}
			added += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ItemsMissingPrice returns up to limit items of this portal without a
// positive price, least recently touched first.
func (s *CatalogStore) ItemsMissingPrice(ctx context.Context, limit int) ([]models.WorkItem, error) {
	query := `
		SELECT item_code, category
		FROM catalog_item
		WHERE portal = $1 AND (price IS NULL OR price <= 0)
		ORDER BY updated_at ASC, item_code ASC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, s.portal, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query items missing price: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WorkItem, error) {
		var item models.WorkItem
		err := row.Scan(&item.Code, &item.Category)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan items missing price: %w", err)
	}
	return items, nil
}
