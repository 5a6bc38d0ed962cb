package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thureinphyoecoder/larapee-sync/internal/api"
	"github.com/thureinphyoecoder/larapee-sync/internal/order"
	"github.com/thureinphyoecoder/larapee-sync/internal/outbox"
	"github.com/thureinphyoecoder/larapee-sync/internal/store"
	"github.com/thureinphyoecoder/larapee-sync/internal/testutil"
)

type call struct {
	idempotencyKey string
	payload        order.Normalized
}

// fakeTransport records every delivery attempt and answers with a
// per-test handler.
type fakeTransport struct {
	calls   []call
	handler func(payload order.Normalized) (api.OrderRecord, error)
}

func (f *fakeTransport) CreateOrder(_ context.Context, _, _, idempotencyKey string, payload order.Normalized) (api.OrderRecord, error) {
	f.calls = append(f.calls, call{idempotencyKey: idempotencyKey, payload: payload})
	if f.handler == nil {
		return api.OrderRecord{}, errors.New("no handler configured")
	}
	return f.handler(payload)
}

func acceptAll(nextID *int64) func(payload order.Normalized) (api.OrderRecord, error) {
	return func(payload order.Normalized) (api.OrderRecord, error) {
		*nextID++
		var total float64
		for _, it := range payload.Items {
			total += float64(it.Quantity) * 10000
		}
		return api.OrderRecord{
			ID:          *nextID,
			Status:      "pending",
			TotalAmount: total,
			Phone:       payload.Phone,
			Address:     payload.Address,
			CreatedAt:   "2026-03-01T09:00:00Z",
		}, nil
	}
}

func newTestEngine(t *testing.T, transport Transport, cfg Config) (*Engine, *store.Store, *testutil.FrozenClock) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewFrozenClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	e := New(st, transport, nil, cfg)
	e.clock = clock
	refs := 0
	e.newClientRef = func() string {
		refs++
		return "backfill-ref"
	}
	return e, st, clock
}

func queueDraft(t *testing.T, st *store.Store, items ...order.DraftItem) order.CachedOrder {
	t.Helper()
	view, err := outbox.New(st, nil).QueueOrder(context.Background(), order.OrderDraft{
		Phone:  strp("+959123456"),
		ShopID: intp(12),
		Items:  items,
	})
	require.NoError(t, err)
	return view
}

func strp(s string) *string { return &s }
func intp(i int64) *int64   { return &i }

func TestSync_DeliversQueuedOrder(t *testing.T) {
	var nextID int64 = 500
	transport := &fakeTransport{handler: acceptAll(&nextID)}
	e, st, clock := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	queueDraft(t, st,
		order.DraftItem{VariantID: 7, Quantity: 2},
		order.DraftItem{VariantID: 7, Quantity: 1},
	)

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Pending)
	assert.Empty(t, res.Issues)
	require.NotNil(t, res.LastSyncAt)
	assert.True(t, res.LastSyncAt.Equal(clock.Now()))

	// Consolidated payload went over the wire.
	require.Len(t, transport.calls, 1)
	require.Len(t, transport.calls[0].payload.Items, 1)
	assert.Equal(t, order.Item{VariantID: 7, Quantity: 3}, transport.calls[0].payload.Items[0])
	assert.NotEmpty(t, transport.calls[0].idempotencyKey)

	// The intent row is gone; the confirmed order is in the cache under
	// its server id.
	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	orders, err := st.CachedOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(501), orders[0].ID)
	assert.True(t, orders[0].Confirmed())
}

func TestSync_RecordsLastSyncOnlyOnSuccess(t *testing.T) {
	transport := &fakeTransport{handler: func(order.Normalized) (api.OrderRecord, error) {
		return api.OrderRecord{}, &api.StatusError{Code: 500, Body: "boom"}
	}}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	queueDraft(t, st, order.DraftItem{VariantID: 7, Quantity: 1})

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
	assert.Equal(t, 1, res.Failed)
	assert.Nil(t, res.LastSyncAt)

	_, ok, err := st.SyncStateValue(ctx, store.KeyLastSyncAt)
	require.NoError(t, err)
	assert.False(t, ok, "last_sync_at must not advance on an all-failure pass")
}

func TestSync_FIFOOrder(t *testing.T) {
	var nextID int64 = 500
	transport := &fakeTransport{handler: acceptAll(&nextID)}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	for _, vid := range []int64{11, 12, 13} {
		queueDraft(t, st, order.DraftItem{VariantID: vid, Quantity: 1})
	}

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Synced)

	require.Len(t, transport.calls, 3)
	for i, vid := range []int64{11, 12, 13} {
		require.Len(t, transport.calls[i].payload.Items, 1)
		assert.Equal(t, vid, transport.calls[i].payload.Items[0].VariantID,
			"delivery order must match queue order")
	}
}

func TestSync_DoesNotShortCircuitOnFailure(t *testing.T) {
	var nextID int64 = 500
	accept := acceptAll(&nextID)
	transport := &fakeTransport{}
	transport.handler = func(payload order.Normalized) (api.OrderRecord, error) {
		// First queued row (variant 11) is rejected, the rest go through.
		if len(payload.Items) == 1 && payload.Items[0].VariantID == 11 {
			return api.OrderRecord{}, &api.StatusError{Code: 422, Body: "out of stock"}
		}
		return accept(payload)
	}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	queueDraft(t, st, order.DraftItem{VariantID: 11, Quantity: 1})
	queueDraft(t, st, order.DraftItem{VariantID: 12, Quantity: 1})

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pending)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, RecommendReview, res.Issues[0].Recommendation)
	assert.Contains(t, res.Issues[0].Error, "out of stock")
	require.NotNil(t, res.LastSyncAt, "one success is enough to advance last_sync_at")
}

func TestSync_DeadLettersAtRetryCeiling(t *testing.T) {
	transport := &fakeTransport{handler: func(order.Normalized) (api.OrderRecord, error) {
		return api.OrderRecord{}, &api.StatusError{Code: 422, Body: "variant deleted"}
	}}
	e, st, _ := newTestEngine(t, transport, Config{RetryCeiling: 3})
	ctx := context.Background()

	view := queueDraft(t, st, order.DraftItem{VariantID: 7, Quantity: 1})
	entryID := -view.ID

	for i := 0; i < 3; i++ {
		res, err := e.Sync(ctx, "https://api.example.com", "tok")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
	}

	dead, err := st.DeadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, entryID, dead[0].ID)
	assert.Equal(t, 3, dead[0].Retries)
	require.NotNil(t, dead[0].LastError)
	assert.Contains(t, *dead[0].LastError, "variant deleted")

	// A dead row is invisible to further passes.
	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, transport.calls, 3, "no delivery attempt after dead-lettering")
}

func TestSync_UnsupportedEventTypeIsFatal(t *testing.T) {
	transport := &fakeTransport{}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	id, err := st.InsertOutboxEntry(ctx, "order.refund", `{"items":[]}`, "h-1", "ref-1")
	require.NoError(t, err)

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, RecommendUnsupported, res.Issues[0].Recommendation)
	assert.Contains(t, res.Issues[0].Error, "order.refund")
	assert.Empty(t, transport.calls, "unsupported rows never reach the transport")

	dead, err := st.DeadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
}

func TestSync_MalformedPayloadIsFatal(t *testing.T) {
	transport := &fakeTransport{}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	_, err := st.InsertOutboxEntry(ctx, order.EventOrderCreate, "not json", "h-1", "ref-1")
	require.NoError(t, err)

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, RecommendUnsupported, res.Issues[0].Recommendation)
	assert.Empty(t, transport.calls)

	dead, err := st.DeadEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestSync_BackfillsLegacyEnvelope(t *testing.T) {
	transport := &fakeTransport{handler: func(order.Normalized) (api.OrderRecord, error) {
		return api.OrderRecord{}, errors.New("dial tcp: connection refused")
	}}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	// A row written by an older client: payload only, no hash, no ref.
	_, err := st.InsertOutboxEntry(ctx, order.EventOrderCreate,
		`{"phone":null,"address":null,"shop_id":12,"items":[{"variant_id":7,"quantity":3}]}`, "", "")
	require.NoError(t, err)

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, RecommendConnection, res.Issues[0].Recommendation)
	assert.Equal(t, "backfill-ref", res.Issues[0].ClientRef)

	entries, err := st.PendingEntries(ctx, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].PayloadHash, "hash backfilled before the attempt")
	assert.Equal(t, "backfill-ref", entries[0].ClientRef)
	assert.Equal(t, 1, entries[0].Retries)

	// The minted ref rode along as the idempotency key.
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "backfill-ref", transport.calls[0].idempotencyKey)
}

func TestSync_ReusesClientRefAcrossRetries(t *testing.T) {
	attempts := 0
	var nextID int64 = 500
	accept := acceptAll(&nextID)
	transport := &fakeTransport{}
	transport.handler = func(payload order.Normalized) (api.OrderRecord, error) {
		attempts++
		if attempts == 1 {
			return api.OrderRecord{}, &api.StatusError{Code: 503, Body: "try later"}
		}
		return accept(payload)
	}
	e, st, _ := newTestEngine(t, transport, Config{})
	ctx := context.Background()

	queueDraft(t, st, order.DraftItem{VariantID: 7, Quantity: 1})

	_, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	require.Len(t, transport.calls, 2)
	assert.Equal(t, transport.calls[0].idempotencyKey, transport.calls[1].idempotencyKey,
		"the idempotency key must be stable across retries")
}

func TestSync_BatchLimit(t *testing.T) {
	var nextID int64 = 500
	transport := &fakeTransport{handler: acceptAll(&nextID)}
	e, st, _ := newTestEngine(t, transport, Config{BatchLimit: 2})
	ctx := context.Background()

	for _, vid := range []int64{11, 12, 13} {
		queueDraft(t, st, order.DraftItem{VariantID: vid, Quantity: 1})
	}

	res, err := e.Sync(ctx, "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 1, res.Pending, "rows beyond the batch limit wait for the next pass")
}

func TestSync_EmptyOutbox(t *testing.T) {
	transport := &fakeTransport{}
	e, _, _ := newTestEngine(t, transport, Config{})

	res, err := e.Sync(context.Background(), "https://api.example.com", "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Synced)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Pending)
	assert.Nil(t, res.LastSyncAt)
	assert.Empty(t, transport.calls)
}
