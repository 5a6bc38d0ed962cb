package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thureinphyoecoder/larapee-sync/internal/order"
)

// CacheProducts upserts a batch of catalog snapshots and their nested
// variants in a single transaction. All-or-nothing: if any row fails, no
// product in the batch is applied. Pre-existing rows are fully overwritten
// field-by-field.
func (s *Store) CacheProducts(ctx context.Context, products []order.ProductPayload) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache products: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := s.now()
	for _, p := range products {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("cache products: marshal product %d: %w", p.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO products_cache (product_id, name, sku, payload, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(product_id) DO UPDATE SET
				name = excluded.name,
				sku = excluded.sku,
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`, p.ID, p.Name, p.SKU, string(payload), now)
		if err != nil {
			return fmt.Errorf("cache products: upsert product %d: %w", p.ID, err)
		}

		for _, v := range p.Variants {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO variant_cache
				(variant_id, product_id, sku, price, stock_level, is_active, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(variant_id) DO UPDATE SET
					product_id = excluded.product_id,
					sku = excluded.sku,
					price = excluded.price,
					stock_level = excluded.stock_level,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at
			`, v.ID, p.ID, v.SKU, v.Price, v.StockLevel, v.IsActive, now)
			if err != nil {
				return fmt.Errorf("cache products: upsert variant %d: %w", v.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache products: commit: %w", err)
	}

	return nil
}

// SearchProducts returns cached products matching the query as a
// case-insensitive substring of name or sku, or the full listing when the
// query is empty. Newest-first, capped at 100 rows.
//
// A malformed stored payload degrades that single row to "absent" in the
// results; it never fails the whole read.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]order.ProductPayload, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM products_cache
		WHERE ? = ''
		   OR lower(name) LIKE '%' || ? || '%'
		   OR lower(sku) LIKE '%' || ? || '%'
		ORDER BY updated_at DESC, product_id DESC
		LIMIT 100
	`, q, q, q)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	products := []order.ProductPayload{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var p order.ProductPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			// Corrupt snapshot: skip the row, serve the rest.
			continue
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// VariantPrices returns the cached price for each requested variant id.
// Missing variants are simply absent from the map. Prices are estimates
// for offline display only; the server recomputes authoritative totals.
func (s *Store) VariantPrices(ctx context.Context, ids []int64) (map[int64]float64, error) {
	prices := make(map[int64]float64, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}

	placeholders := make([]byte, 0, len(ids)*2-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := `
		SELECT variant_id, price FROM variant_cache
		WHERE variant_id IN (` + string(placeholders) + `)
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("variant prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var price float64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("scan variant price: %w", err)
		}
		prices[id] = price
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant prices: %w", err)
	}

	return prices, nil
}
