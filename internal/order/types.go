package order

// EventOrderCreate is the only outbox event type this client version writes.
// Rows with other event types (written by a newer client) are dead-lettered
// by the sync engine rather than retried.
const EventOrderCreate = "order.create"

// StatusPendingSync is the local-only status for orders that are queued in
// the outbox but not yet confirmed by the server. It is never part of the
// server's status vocabulary.
const StatusPendingSync = "pending_sync"

// Variant is the cached snapshot of a product variant. Price is used only
// for local total estimation while offline; the server recomputes the
// authoritative total on order creation.
type Variant struct {
	ID         int64   `json:"id"`
	ProductID  int64   `json:"product_id"`
	SKU        string  `json:"sku"`
	Price      float64 `json:"price"`
	StockLevel int64   `json:"stock_level"`
	IsActive   bool    `json:"is_active"`
}

// ProductPayload is the last known server snapshot of a catalog product,
// including its nested variants. The whole payload is persisted opaquely;
// name and sku are additionally extracted into columns for searching.
type ProductPayload struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	SKU      string    `json:"sku"`
	Variants []Variant `json:"variants"`
}

// CachedOrder is the single read model for orders regardless of origin.
// A negative ID is the sentinel for "queued locally, not yet confirmed by
// the server"; positive IDs are server-assigned.
type CachedOrder struct {
	ID          int64   `json:"id"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	CreatedAt   string  `json:"created_at"`
}

// Confirmed reports whether the order carries a server-assigned id.
func (o CachedOrder) Confirmed() bool {
	return o.ID > 0
}

// DraftItem is a raw line item as received from the UI layer. Quantity is
// a float because callers may hand through unvalidated user input.
type DraftItem struct {
	VariantID int64   `json:"variant_id"`
	Quantity  float64 `json:"quantity"`
}

// OrderDraft is the raw order-creation intent before normalization.
// ClientRef is only ever populated when re-normalizing an already-queued
// payload; fresh drafts leave it empty.
type OrderDraft struct {
	Phone     *string     `json:"phone"`
	Address   *string     `json:"address"`
	ShopID    *int64      `json:"shop_id"`
	Items     []DraftItem `json:"items"`
	ClientRef string      `json:"client_ref,omitempty"`
}

// Item is a consolidated, integer-quantity line item.
type Item struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int64 `json:"quantity"`
}

// Normalized is the canonical form of an order payload: invalid items
// dropped, duplicates consolidated, items sorted by variant id. This is
// the shape persisted in the outbox and sent to the server.
type Normalized struct {
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	ShopID    *int64  `json:"shop_id"`
	Items     []Item  `json:"items"`
	ClientRef string  `json:"client_ref,omitempty"`
}

// Draft converts a normalized payload back into draft form so it can be
// re-normalized. Used by the sync engine when it re-reads stored rows.
func (n Normalized) Draft() OrderDraft {
	items := make([]DraftItem, len(n.Items))
	for i, it := range n.Items {
		items[i] = DraftItem{VariantID: it.VariantID, Quantity: float64(it.Quantity)}
	}
	return OrderDraft{
		Phone:     n.Phone,
		Address:   n.Address,
		ShopID:    n.ShopID,
		Items:     items,
		ClientRef: n.ClientRef,
	}
}
