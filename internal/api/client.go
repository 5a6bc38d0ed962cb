// Package api is the HTTP client for the remote order-processing service.
// It is the only code in the engine that touches the network.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thureinphyoecoder/larapee-sync/internal/order"
)

// maxErrorBody caps how much of a non-2xx response body is retained as
// the stored error reason.
const maxErrorBody = 240

// StatusError is returned for any non-2xx response. Body is truncated to
// maxErrorBody characters.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// OrderRecord is the server's authoritative order representation, as
// returned inside the {"data": ...} envelope.
type OrderRecord struct {
	ID          int64   `json:"id"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	CreatedAt   string  `json:"created_at"`
}

// CachedOrder converts the server record into the local read model.
func (r OrderRecord) CachedOrder() order.CachedOrder {
	return order.CachedOrder{
		ID:          r.ID,
		Status:      r.Status,
		TotalAmount: r.TotalAmount,
		Phone:       r.Phone,
		Address:     r.Address,
		CreatedAt:   r.CreatedAt,
	}
}

type createOrderRequest struct {
	Phone   *string      `json:"phone"`
	Address *string      `json:"address"`
	ShopID  *int64       `json:"shop_id"`
	Items   []order.Item `json:"items"`
}

type dataEnvelope struct {
	Data OrderRecord `json:"data"`
}

// Client posts order-creation requests to the remote API.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// NewClient returns a Client with the given request timeout. Cancellation
// beyond the timeout is the caller's concern via ctx.
func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// CreateOrder POSTs one normalized order payload to {baseURL}/orders.
//
// The idempotency token travels only in the X-Idempotency-Key header,
// never in the body, and is attached on every attempt including retries
// so the server can collapse duplicate deliveries into a single effect.
// The bearer token is attached when available; its absence is a server
// problem (401), not a client error.
func (c *Client) CreateOrder(ctx context.Context, baseURL, token, idempotencyKey string, payload order.Normalized) (OrderRecord, error) {
	body, err := json.Marshal(createOrderRequest{
		Phone:   payload.Phone,
		Address: payload.Address,
		ShopID:  payload.ShopID,
		Items:   payload.Items,
	})
	if err != nil {
		return OrderRecord{}, fmt.Errorf("create order: marshal request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return OrderRecord{}, fmt.Errorf("create order: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := string(reason)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		c.log.Debug("order delivery rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("idempotency_key", idempotencyKey))
		return OrderRecord{}, &StatusError{Code: resp.StatusCode, Body: text}
	}

	var envelope dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return OrderRecord{}, fmt.Errorf("create order: decode response: %w", err)
	}

	return envelope.Data, nil
}
