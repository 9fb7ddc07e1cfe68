package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItemsTotalExcludesNotes(t *testing.T) {
	items := LineItems{
		PricedItem("brake pads", 1, decimal.NewFromInt(500)),
		PricedItem("labor", 2, decimal.NewFromInt(100)),
		NoteItem("customer supplied oil"),
	}

	assert.True(t, items.Total().Equal(decimal.NewFromInt(700)), "total=%s", items.Total())
}

func TestNoteWithCoincidentalPriceStillExcluded(t *testing.T) {
	// A note deserialized with a stray price must not sum.
	raw := `[{"kind":"note","description":"inspection remark","quantity":3,"unit_price":"50"}]`
	var items LineItems
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	assert.True(t, items.Total().IsZero())
}

func TestLineItemValidate(t *testing.T) {
	assert.NoError(t, NoteItem("just a note").Validate())
	assert.NoError(t, PricedItem("filter", 1, decimal.NewFromInt(80)).Validate())
	assert.Error(t, PricedItem("filter", 0, decimal.NewFromInt(80)).Validate())
	assert.Error(t, PricedItem("", 1, decimal.NewFromInt(80)).Validate())
	assert.Error(t, LineItem{Kind: "mystery", Description: "x"}.Validate())
}

func TestUnmarshalDefaultsKind(t *testing.T) {
	raw := `[{"description":"spark plug","quantity":4,"unit_price":"25"}]`
	var items LineItems
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	require.Len(t, items, 1)
	assert.Equal(t, LineItemKindPriced, items[0].Kind)
	assert.True(t, items.Total().Equal(decimal.NewFromInt(100)))
}
