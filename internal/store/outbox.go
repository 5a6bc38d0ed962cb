package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outbox row statuses. There is no persisted in-flight state: a crash
// mid-attempt leaves the row pending and it is retried on the next pass.
const (
	OutboxStatusPending = "pending"
	OutboxStatusDead    = "dead"
)

// OutboxEntry is a durable mutation intent awaiting delivery.
type OutboxEntry struct {
	ID          int64
	EventType   string
	Payload     string // normalized payload JSON, client_ref embedded
	PayloadHash string // fingerprint of the payload, client_ref excluded
	ClientRef   string // idempotency token, unique across all rows ever
	Status      string
	Retries     int
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InsertOutboxEntry persists a new pending intent and returns its local
// row id. The id is local-only and never sent to the server.
func (s *Store) InsertOutboxEntry(ctx context.Context, eventType, payload, payloadHash, clientRef string) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox
		(event_type, payload, payload_hash, client_ref, status, retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, eventType, payload, payloadHash, clientRef, OutboxStatusPending, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert outbox entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert outbox entry: last insert id: %w", err)
	}
	return id, nil
}

// FindPendingByHash returns the pending row for (eventType, payloadHash),
// or nil if none exists. This is the dedup lookup: at most one pending row
// may exist per pair, so queuing a semantically identical mutation returns
// the existing row instead of creating a second one.
func (s *Store) FindPendingByHash(ctx context.Context, eventType, payloadHash string) (*OutboxEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_type, payload, payload_hash, client_ref, status, retries, last_error, created_at, updated_at
		FROM outbox
		WHERE event_type = ? AND payload_hash = ? AND status = ?
		ORDER BY id ASC
		LIMIT 1
	`, eventType, payloadHash, OutboxStatusPending)

	entry, err := scanOutboxRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending by hash: %w", err)
	}
	return &entry, nil
}

// PendingEntries returns up to limit pending rows, oldest first (FIFO).
// Dead rows are excluded here by construction; they never re-enter a
// sync pass.
func (s *Store) PendingEntries(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, payload_hash, client_ref, status, retries, last_error, created_at, updated_at
		FROM outbox
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending entries: %w", err)
	}
	defer rows.Close()

	return collectOutboxEntries(rows)
}

// PendingEntriesByType returns all pending rows of one event type,
// newest-first. Used to project queued orders into the order-list view.
func (s *Store) PendingEntriesByType(ctx context.Context, eventType string) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, payload_hash, client_ref, status, retries, last_error, created_at, updated_at
		FROM outbox
		WHERE status = ? AND event_type = ?
		ORDER BY created_at DESC, id DESC
	`, OutboxStatusPending, eventType)
	if err != nil {
		return nil, fmt.Errorf("query pending entries by type: %w", err)
	}
	defer rows.Close()

	return collectOutboxEntries(rows)
}

// DeadEntries returns all dead-lettered rows, most recently failed first.
// Dead rows are retained for operator inspection, never auto-purged.
func (s *Store) DeadEntries(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, payload_hash, client_ref, status, retries, last_error, created_at, updated_at
		FROM outbox
		WHERE status = ?
		ORDER BY updated_at DESC, id DESC
	`, OutboxStatusDead)
	if err != nil {
		return nil, fmt.Errorf("query dead entries: %w", err)
	}
	defer rows.Close()

	return collectOutboxEntries(rows)
}

// PendingCount returns the number of pending rows across all event types.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox WHERE status = ?
	`, OutboxStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending entries: %w", err)
	}
	return count, nil
}

// RecordFailure stores the outcome of a failed delivery attempt: the new
// monotonic retry count, the error text, and the pending/dead transition
// when the retry ceiling has been reached.
func (s *Store) RecordFailure(ctx context.Context, id int64, retries int, lastError string, dead bool) error {
	status := OutboxStatusPending
	if dead {
		status = OutboxStatusDead
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET retries = ?, last_error = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, retries, lastError, status, s.now(), id)
	if err != nil {
		return fmt.Errorf("record failure for entry %d: %w", id, err)
	}
	return nil
}

// MarkDead dead-letters a row immediately, without touching its retry
// count. Used for fatal classifications such as unsupported event types.
func (s *Store) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, OutboxStatusDead, reason, s.now(), id)
	if err != nil {
		return fmt.Errorf("mark entry %d dead: %w", id, err)
	}
	return nil
}

// DeleteOutboxEntry removes a row entirely. Called only after the server
// confirmed the delivery; the order then lives solely in orders_cache.
func (s *Store) DeleteOutboxEntry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete outbox entry %d: %w", id, err)
	}
	return nil
}

// BackfillEnvelope fills in payload_hash and client_ref on a row written
// by an older client version that lacked them (forward migration on read).
func (s *Store) BackfillEnvelope(ctx context.Context, id int64, payloadHash, clientRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET payload_hash = ?, client_ref = ?, updated_at = ?
		WHERE id = ?
	`, payloadHash, clientRef, s.now(), id)
	if err != nil {
		return fmt.Errorf("backfill envelope for entry %d: %w", id, err)
	}
	return nil
}

// RequeueDead resets a dead row to pending with retries=0 so the next
// sync pass picks it up again. Returns an error if the row is not dead.
func (s *Store) RequeueDead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = ?, retries = 0, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, OutboxStatusPending, s.now(), id, OutboxStatusDead)
	if err != nil {
		return fmt.Errorf("requeue entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue entry %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("requeue entry %d: no dead entry with that id", id)
	}
	return nil
}

// DiscardDead deletes one dead row. This is an explicit operator action;
// the engine never discards unconfirmed intents on its own.
func (s *Store) DiscardDead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE id = ? AND status = ?
	`, id, OutboxStatusDead)
	if err != nil {
		return fmt.Errorf("discard entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("discard entry %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("discard entry %d: no dead entry with that id", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRow(row rowScanner) (OutboxEntry, error) {
	var e OutboxEntry
	var lastError sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&e.ID, &e.EventType, &e.Payload, &e.PayloadHash, &e.ClientRef,
		&e.Status, &e.Retries, &lastError, &createdAt, &updatedAt,
	); err != nil {
		return OutboxEntry{}, err
	}

	if lastError.Valid {
		v := lastError.String
		e.LastError = &v
	}
	e.CreatedAt = parseStoredTime(createdAt)
	e.UpdatedAt = parseStoredTime(updatedAt)

	return e, nil
}

func collectOutboxEntries(rows *sql.Rows) ([]OutboxEntry, error) {
	entries := []OutboxEntry{}
	for rows.Next() {
		e, err := scanOutboxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}

	return entries, nil
}

// parseStoredTime reads a stored RFC 3339 timestamp, tolerating rows
// written without sub-second precision. A row that fails to parse yields
// the zero time rather than an error; timestamps are bookkeeping, not
// correctness inputs.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
