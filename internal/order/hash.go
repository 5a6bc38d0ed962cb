package order

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainOrder versions the fingerprint algorithm so a future change can
// migrate without colliding with old hashes.
const DomainOrder = "larapee/order/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalPayload serializes exactly {address, items, phone, shop_id} of
// a normalized order. ClientRef is deliberately excluded: re-queuing the
// same business payload under a different idempotency token must still
// dedup against the pending row.
func CanonicalPayload(n Normalized) ([]byte, error) {
	items := make([]any, len(n.Items))
	for i, it := range n.Items {
		items[i] = map[string]any{
			"variant_id": it.VariantID,
			"quantity":   it.Quantity,
		}
	}

	obj := map[string]any{
		"phone":   nullableString(n.Phone),
		"address": nullableString(n.Address),
		"shop_id": nullableInt(n.ShopID),
		"items":   items,
	}

	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("canonical payload: %w", err)
	}
	return data, nil
}

// Fingerprint derives the stable payload hash used for outbox dedup.
func Fingerprint(n Normalized) (string, error) {
	data, err := CanonicalPayload(n)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainOrder, data), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
