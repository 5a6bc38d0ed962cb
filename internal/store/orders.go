package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thureinphyoecoder/larapee-sync/internal/order"
)

// CacheOrders bulk-upserts server order records in a single transaction,
// same all-or-nothing discipline as CacheProducts. This is also how the
// sync engine converts a negative-sentinel local order into the real,
// server-authoritative record after a confirmed upload.
func (s *Store) CacheOrders(ctx context.Context, orders []order.CachedOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache orders: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, o := range orders {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders_cache (id, status, total_amount, phone, address, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				total_amount = excluded.total_amount,
				phone = excluded.phone,
				address = excluded.address,
				created_at = excluded.created_at
		`, o.ID, o.Status, o.TotalAmount, nullString(o.Phone), nullString(o.Address), o.CreatedAt)
		if err != nil {
			return fmt.Errorf("cache orders: upsert order %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache orders: commit: %w", err)
	}

	return nil
}

// CachedOrders returns the last known server-side orders, newest-first,
// capped at 300 rows. A row that fails to scan is skipped rather than
// failing the whole read.
func (s *Store) CachedOrders(ctx context.Context) ([]order.CachedOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, total_amount, phone, address, created_at
		FROM orders_cache
		ORDER BY created_at DESC, id DESC
		LIMIT 300
	`)
	if err != nil {
		return nil, fmt.Errorf("cached orders: %w", err)
	}
	defer rows.Close()

	orders := []order.CachedOrder{}
	for rows.Next() {
		var o order.CachedOrder
		var phone, address sql.NullString
		if err := rows.Scan(&o.ID, &o.Status, &o.TotalAmount, &phone, &address, &o.CreatedAt); err != nil {
			continue
		}
		o.Phone = stringPtr(phone)
		o.Address = stringPtr(address)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
