package order

import "sort"

// Normalize produces the canonical form of an order draft:
//
//  1. Items with a non-positive variant id or quantity are dropped.
//  2. Remaining items are consolidated by variant id, summing quantities,
//     with the summed quantity truncated to an integer.
//  3. Consolidated items are sorted ascending by variant id, so two drafts
//     listing the same items in different order normalize identically.
//
// Phone, address and shop id pass through unchanged (nil stays nil). A
// caller-supplied ClientRef passes through untouched; it is only present
// when re-normalizing an already-queued row and never participates in
// fingerprinting.
func Normalize(d OrderDraft) Normalized {
	sums := make(map[int64]float64)
	for _, it := range d.Items {
		if it.VariantID <= 0 || it.Quantity <= 0 {
			continue
		}
		sums[it.VariantID] += it.Quantity
	}

	items := make([]Item, 0, len(sums))
	for id, qty := range sums {
		items = append(items, Item{VariantID: id, Quantity: int64(qty)})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VariantID < items[j].VariantID
	})

	return Normalized{
		Phone:     d.Phone,
		Address:   d.Address,
		ShopID:    d.ShopID,
		Items:     items,
		ClientRef: d.ClientRef,
	}
}
