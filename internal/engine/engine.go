package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thureinphyoecoder/larapee-sync/internal/api"
	"github.com/thureinphyoecoder/larapee-sync/internal/order"
	"github.com/thureinphyoecoder/larapee-sync/internal/store"
)

// Default policy values. Both are tunable via Config without changing
// observable behavior at the defaults.
const (
	DefaultRetryCeiling = 10
	DefaultBatchLimit   = 100
)

// Config carries the engine's policy knobs.
type Config struct {
	// RetryCeiling is the retry count at which a pending row is
	// dead-lettered.
	RetryCeiling int
	// BatchLimit caps how many pending rows one sync pass loads.
	BatchLimit int
}

// DefaultConfig returns the reference policy values.
func DefaultConfig() Config {
	return Config{RetryCeiling: DefaultRetryCeiling, BatchLimit: DefaultBatchLimit}
}

// Transport delivers one order-creation intent to the remote API.
// *api.Client is the production implementation; tests substitute fakes.
type Transport interface {
	CreateOrder(ctx context.Context, baseURL, token, idempotencyKey string, payload order.Normalized) (api.OrderRecord, error)
}

// Issue describes one row that did not sync, paired with the literal
// error and a recommended next action, so a thin UI layer can render
// actionable guidance without owning the classification logic.
type Issue struct {
	EntryID        int64  `json:"entry_id"`
	ClientRef      string `json:"client_ref,omitempty"`
	Error          string `json:"error"`
	Recommendation string `json:"recommendation"`
}

// Result summarizes one sync pass.
type Result struct {
	Synced     int        `json:"synced"`
	Failed     int        `json:"failed"`
	Pending    int        `json:"pending"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	Issues     []Issue    `json:"issues"`
}

// Engine drains the outbox against the remote API: FIFO within a pass,
// one request in flight at a time, retry/dead-letter bookkeeping per row,
// server responses folded back into the local cache.
type Engine struct {
	store     *store.Store
	transport Transport
	log       *zap.Logger
	clock     Clock
	cfg       Config

	// newClientRef mints idempotency tokens during envelope backfill.
	newClientRef func() string
}

// New returns an Engine. Zero config fields fall back to the defaults.
func New(st *store.Store, transport Transport, log *zap.Logger, cfg Config) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = DefaultRetryCeiling
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &Engine{
		store:        st,
		transport:    transport,
		log:          log,
		clock:        systemClock{},
		cfg:          cfg,
		newClientRef: uuid.NewString,
	}
}

// Sync runs one pass over the pending outbox rows, oldest first.
//
// No failure of a single row escapes the loop: one bad order must never
// block delivery of the orders queued behind it. The only terminal
// outcomes for a row are deletion after confirmed success and the dead
// status after the retry ceiling or a fatal classification.
func (e *Engine) Sync(ctx context.Context, baseURL, token string) (Result, error) {
	entries, err := e.store.PendingEntries(ctx, e.cfg.BatchLimit)
	if err != nil {
		return Result{}, fmt.Errorf("sync: load pending: %w", err)
	}

	var res Result
	for _, entry := range entries {
		issue, synced := e.processEntry(ctx, baseURL, token, entry)
		if synced {
			res.Synced++
			continue
		}
		res.Failed++
		res.Issues = append(res.Issues, issue)
	}

	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sync: recount pending: %w", err)
	}
	res.Pending = pending

	if res.Synced > 0 {
		now := e.clock.Now().UTC()
		if err := e.store.SetSyncState(ctx, store.KeyLastSyncAt, now.Format(time.RFC3339Nano)); err != nil {
			return Result{}, fmt.Errorf("sync: record last sync time: %w", err)
		}
		res.LastSyncAt = &now
	} else if value, ok, err := e.store.SyncStateValue(ctx, store.KeyLastSyncAt); err == nil && ok {
		if t, perr := time.Parse(time.RFC3339Nano, value); perr == nil {
			res.LastSyncAt = &t
		}
	}

	e.log.Info("sync pass finished",
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("pending", res.Pending))

	return res, nil
}

// processEntry attempts delivery of one row. Returns either the issue to
// report or synced=true. All storage errors along the way are folded into
// the issue; nothing panics or propagates out of the pass.
func (e *Engine) processEntry(ctx context.Context, baseURL, token string, entry store.OutboxEntry) (Issue, bool) {
	// Forward-compatibility guard: rows written by a newer client version
	// are fatal for this row, not retried.
	if entry.EventType != order.EventOrderCreate {
		reason := fmt.Sprintf("unsupported event type %q", entry.EventType)
		if err := e.store.MarkDead(ctx, entry.ID, reason); err != nil {
			e.log.Error("failed to dead-letter entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
		}
		e.log.Warn("outbox entry dead-lettered", zap.Int64("entry_id", entry.ID), zap.String("reason", reason))
		return Issue{
			EntryID:        entry.ID,
			ClientRef:      entry.ClientRef,
			Error:          reason,
			Recommendation: RecommendUnsupported,
		}, false
	}

	var stored order.Normalized
	if err := json.Unmarshal([]byte(entry.Payload), &stored); err != nil {
		reason := fmt.Sprintf("malformed payload: %v", err)
		if derr := e.store.MarkDead(ctx, entry.ID, reason); derr != nil {
			e.log.Error("failed to dead-letter entry", zap.Int64("entry_id", entry.ID), zap.Error(derr))
		}
		return Issue{
			EntryID:        entry.ID,
			ClientRef:      entry.ClientRef,
			Error:          reason,
			Recommendation: RecommendUnsupported,
		}, false
	}

	// Re-normalize the stored payload and recompute its fingerprint,
	// backfilling the envelope on rows produced by an older client
	// version that lacked it.
	payload := order.Normalize(stored.Draft())
	hash, err := order.Fingerprint(payload)
	if err != nil {
		return e.recordAttemptFailure(ctx, entry, fmt.Errorf("fingerprint payload: %w", err))
	}

	ref := entry.ClientRef
	if ref == "" {
		ref = e.newClientRef()
	}
	if entry.PayloadHash != hash || entry.ClientRef == "" {
		if err := e.store.BackfillEnvelope(ctx, entry.ID, hash, ref); err != nil {
			return e.recordAttemptFailure(ctx, entry, fmt.Errorf("backfill envelope: %w", err))
		}
	}

	record, err := e.transport.CreateOrder(ctx, baseURL, token, ref, payload)
	if err != nil {
		entry.ClientRef = ref
		return e.recordAttemptFailure(ctx, entry, err)
	}

	// Server success: fold the authoritative record into the local cache,
	// then drop the intent. The confirmed order now lives only in
	// orders_cache, under its real positive id.
	if err := e.store.CacheOrders(ctx, []order.CachedOrder{record.CachedOrder()}); err != nil {
		entry.ClientRef = ref
		return e.recordAttemptFailure(ctx, entry, fmt.Errorf("cache confirmed order: %w", err))
	}
	if err := e.store.DeleteOutboxEntry(ctx, entry.ID); err != nil {
		// The order is safely on the server; the leftover row will be
		// recognized as a duplicate there on the next pass.
		e.log.Error("failed to delete delivered entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}

	e.log.Info("order delivered",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("order_id", record.ID),
		zap.String("client_ref", ref))

	return Issue{}, true
}

// recordAttemptFailure increments the retry count, dead-letters the row at
// the ceiling, and builds the issue for the sync summary.
func (e *Engine) recordAttemptFailure(ctx context.Context, entry store.OutboxEntry, cause error) (Issue, bool) {
	retries := entry.Retries + 1
	dead := retries >= e.cfg.RetryCeiling

	if err := e.store.RecordFailure(ctx, entry.ID, retries, cause.Error(), dead); err != nil {
		e.log.Error("failed to record attempt failure", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}

	e.log.Warn("order delivery failed",
		zap.Int64("entry_id", entry.ID),
		zap.Int("retries", retries),
		zap.Bool("dead", dead),
		zap.Error(cause))

	return Issue{
		EntryID:        entry.ID,
		ClientRef:      entry.ClientRef,
		Error:          cause.Error(),
		Recommendation: Classify(cause),
	}, false
}
