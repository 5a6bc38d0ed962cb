// Package outbox implements the durable queue of pending mutation intents
// and the negative-id projection that lets queued orders share the
// CachedOrder read model with server-confirmed ones.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thureinphyoecoder/larapee-sync/internal/order"
	"github.com/thureinphyoecoder/larapee-sync/internal/store"
)

// Queue wraps the store's outbox tables with the order-queuing contract:
// normalize, dedup by fingerprint, mint an idempotency token once per
// distinct payload.
type Queue struct {
	store *store.Store
	log   *zap.Logger

	// newClientRef mints idempotency tokens; overridable in tests.
	newClientRef func() string
}

// New returns a Queue over the given store.
func New(st *store.Store, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		store:        st,
		log:          log,
		newClientRef: uuid.NewString,
	}
}

// QueueOrder records an order-creation intent for later delivery.
//
// The draft is normalized and fingerprinted first. If a pending row with
// the same (event type, fingerprint) already exists, that row's view is
// returned and no new row is created - queuing is idempotent within an
// offline session, so a double-tap on "place order" yields one intent.
// Otherwise a fresh clientRef is minted, the row is persisted, and the
// view of the new row is returned.
//
// The returned CachedOrder carries the negative-id sentinel: id is the
// negated outbox row id and status is "pending_sync".
func (q *Queue) QueueOrder(ctx context.Context, draft order.OrderDraft) (order.CachedOrder, error) {
	n := order.Normalize(draft)

	hash, err := order.Fingerprint(n)
	if err != nil {
		return order.CachedOrder{}, fmt.Errorf("queue order: %w", err)
	}

	existing, err := q.store.FindPendingByHash(ctx, order.EventOrderCreate, hash)
	if err != nil {
		return order.CachedOrder{}, fmt.Errorf("queue order: %w", err)
	}
	if existing != nil {
		q.log.Debug("duplicate order intent collapsed",
			zap.Int64("entry_id", existing.ID),
			zap.String("payload_hash", hash))
		return q.entryView(ctx, *existing)
	}

	n.ClientRef = q.newClientRef()

	payload, err := json.Marshal(n)
	if err != nil {
		return order.CachedOrder{}, fmt.Errorf("queue order: marshal payload: %w", err)
	}

	id, err := q.store.InsertOutboxEntry(ctx, order.EventOrderCreate, string(payload), hash, n.ClientRef)
	if err != nil {
		return order.CachedOrder{}, fmt.Errorf("queue order: %w", err)
	}

	q.log.Info("order queued",
		zap.Int64("entry_id", id),
		zap.String("client_ref", n.ClientRef))

	total, err := q.estimateTotal(ctx, n.Items)
	if err != nil {
		return order.CachedOrder{}, fmt.Errorf("queue order: %w", err)
	}

	return order.CachedOrder{
		ID:          -id,
		Status:      order.StatusPendingSync,
		TotalAmount: total,
		Phone:       n.Phone,
		Address:     n.Address,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// PendingOrders projects every pending order-creation row into CachedOrder
// view form, newest-first. Rows whose stored payload no longer parses are
// skipped; the sync engine will dead-letter them on its next pass.
func (q *Queue) PendingOrders(ctx context.Context) ([]order.CachedOrder, error) {
	entries, err := q.store.PendingEntriesByType(ctx, order.EventOrderCreate)
	if err != nil {
		return nil, fmt.Errorf("pending orders: %w", err)
	}

	orders := []order.CachedOrder{}
	for _, e := range entries {
		view, err := q.entryView(ctx, e)
		if err != nil {
			q.log.Warn("skipping unreadable outbox entry",
				zap.Int64("entry_id", e.ID),
				zap.Error(err))
			continue
		}
		orders = append(orders, view)
	}

	return orders, nil
}

// Status combines the caller-supplied reachability flag with the pending
// count and last sync time. Pure derived view; owns no state of its own.
func (q *Queue) Status(ctx context.Context, online bool) (Status, error) {
	pending, err := q.store.PendingCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}

	st := Status{Online: online, Pending: pending}

	value, ok, err := q.store.SyncStateValue(ctx, store.KeyLastSyncAt)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	if ok {
		if t, perr := time.Parse(time.RFC3339Nano, value); perr == nil {
			st.LastSyncAt = &t
		}
	}

	return st, nil
}

// DeadOrders lists dead-lettered entries for operator inspection.
func (q *Queue) DeadOrders(ctx context.Context) ([]store.OutboxEntry, error) {
	return q.store.DeadEntries(ctx)
}

// RequeueDead resets a dead entry to pending with a fresh retry budget.
func (q *Queue) RequeueDead(ctx context.Context, id int64) error {
	return q.store.RequeueDead(ctx, id)
}

// DiscardDead deletes a dead entry. Explicit operator action only.
func (q *Queue) DiscardDead(ctx context.Context, id int64) error {
	return q.store.DiscardDead(ctx, id)
}

// Status is the canonical place the UI queries for the sync indicator.
type Status struct {
	Online     bool       `json:"online"`
	Pending    int        `json:"pending"`
	LastSyncAt *time.Time `json:"last_sync_at"`
}

// entryView projects an outbox row into the CachedOrder read model with
// the negative-id sentinel. The total is estimated from cached variant
// prices; the server recomputes the authoritative amount on delivery.
func (q *Queue) entryView(ctx context.Context, e store.OutboxEntry) (order.CachedOrder, error) {
	var n order.Normalized
	if err := json.Unmarshal([]byte(e.Payload), &n); err != nil {
		return order.CachedOrder{}, fmt.Errorf("parse payload of entry %d: %w", e.ID, err)
	}

	total, err := q.estimateTotal(ctx, n.Items)
	if err != nil {
		return order.CachedOrder{}, err
	}

	return order.CachedOrder{
		ID:          -e.ID,
		Status:      order.StatusPendingSync,
		TotalAmount: total,
		Phone:       n.Phone,
		Address:     n.Address,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

func (q *Queue) estimateTotal(ctx context.Context, items []order.Item) (float64, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.VariantID
	}

	prices, err := q.store.VariantPrices(ctx, ids)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, it := range items {
		total += prices[it.VariantID] * float64(it.Quantity)
	}
	return total, nil
}
