package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItemKind discriminates the tagged LineItem variant.
type LineItemKind string

const (
	LineItemKindPriced LineItemKind = "priced"
	LineItemKindNote   LineItemKind = "note"
)

// LineItem is one row of a quote, bill, or order quotation. A priced item
// carries quantity and unit price; a note carries free text only. Notes can
// never contribute to a total because they have no price field at all.
type LineItem struct {
	Kind        LineItemKind    `json:"kind"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price,omitempty"`
	ProductID   *string         `json:"product_id,omitempty"`
}

// PricedItem builds a priced line item.
func PricedItem(description string, quantity int, unitPrice decimal.Decimal) LineItem {
	return LineItem{
		Kind:        LineItemKindPriced,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
}

// NoteItem builds a zero-weight annotation item.
func NoteItem(text string) LineItem {
	return LineItem{
		Kind:        LineItemKindNote,
		Description: text,
	}
}

// IsNote reports whether the item is an annotation.
func (l LineItem) IsNote() bool {
	return l.Kind == LineItemKindNote
}

// Amount returns quantity * unit price for priced items, zero for notes.
func (l LineItem) Amount() decimal.Decimal {
	if l.IsNote() {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate rejects malformed items before they reach persistence.
func (l LineItem) Validate() error {
	if l.Description == "" {
		return fmt.Errorf("line item: description required")
	}
	switch l.Kind {
	case LineItemKindNote:
		return nil
	case LineItemKindPriced:
		if l.Quantity <= 0 {
			return fmt.Errorf("line item: quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("line item: unit price must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("line item: unknown kind %q", l.Kind)
	}
}

// LineItems is a jsonb-serialized collection with structural totaling.
type LineItems []LineItem

// Total sums the priced items only. Notes are excluded by construction, not
// by comparing their price to zero.
func (items LineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.IsNote() {
			continue
		}
		total = total.Add(item.Amount())
	}
	return total
}

// Validate checks every item.
func (items LineItems) Validate() error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// UnmarshalJSON keeps unknown kinds from sneaking in via raw payloads.
func (items *LineItems) UnmarshalJSON(data []byte) error {
	type alias LineItems
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	for i := range decoded {
		if decoded[i].Kind == "" {
			decoded[i].Kind = LineItemKindPriced
		}
	}
	*items = LineItems(decoded)
	return nil
}
