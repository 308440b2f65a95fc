package rectification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/types"
	"tpvcore/internal/domain/invoice"
)

func ptr(s string) *string { return &s }

func item(pid *string, name, qty, gross, rate string) invoice.Item {
	return invoice.Item{
		ProductID:   pid,
		ProductName: name,
		Quantity:    types.MustMoney(qty),
		RowGross:    types.MustMoney(gross),
		PriceGross:  types.MustMoney(gross).Div(types.MustMoney(qty)),
		TaxRate:     types.MustMoney(rate),
	}
}

func originalInvoice(items ...invoice.Item) *invoice.Invoice {
	return &invoice.Invoice{
		ID:     "inv-1",
		Type:   invoice.TypeTicket,
		Status: invoice.StatusPaid,
		Items:  items,
	}
}

// asPrior turns reversed rows into a persisted rectificativa for the next ledger.
func asPrior(rows []invoice.CalculatedLine) *invoice.Invoice {
	return &invoice.Invoice{Type: invoice.TypeRectificativa, Items: invoice.ItemsFromRows(rows)}
}

func TestLedger_Remaining(t *testing.T) {
	orig := originalInvoice(
		item(ptr("p1"), "Café", "3", "4.50", "10"),
		item(nil, "Tapa", "2", "7.00", "10"),
		item(ptr("p1"), "Café", "1", "1.50", "10"),
	)
	prior := &invoice.Invoice{Items: []invoice.Item{
		item(ptr("p1"), "Café", "-2", "-3.00", "10"),
	}}

	lines := NewLedger(orig, []*invoice.Invoice{prior}).Remaining()
	require.Len(t, lines, 2)

	assert.Equal(t, "Café", lines[0].ProductName)
	assert.Equal(t, "4", lines[0].Original.String())
	assert.Equal(t, "2", lines[0].Rectified.String())
	assert.Equal(t, "2", lines[0].Remaining.String())

	assert.Equal(t, "Tapa", lines[1].ProductName)
	assert.Nil(t, lines[1].ProductID)
	assert.Equal(t, "2", lines[1].Remaining.String())
}

func TestLedger_Reverse(t *testing.T) {
	t.Run("partial rows refund the proportional gross", func(t *testing.T) {
		l := NewLedger(originalInvoice(item(ptr("p1"), "Menú", "3", "10.00", "10")), nil)

		rows, units, err := l.Reverse([]ItemRequest{{ProductID: ptr("p1"), ProductName: "Menú", Quantity: types.MustMoney("1")}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "1", units.String())
		assert.Equal(t, "-1", rows[0].Quantity.String())
		assert.Equal(t, "-3.33", types.Format2(rows[0].RowGross))
		assert.False(t, l.FullyConsumed())
	})

	t.Run("parts add up to the original row gross", func(t *testing.T) {
		orig := originalInvoice(item(ptr("p1"), "Menú", "3", "10.00", "10"))
		var prior []*invoice.Invoice
		total := types.Zero()
		for i := 0; i < 3; i++ {
			l := NewLedger(orig, prior)
			rows, _, err := l.Reverse([]ItemRequest{{ProductID: ptr("p1"), ProductName: "Menú", Quantity: types.MustMoney("1")}})
			require.NoError(t, err)
			total = total.Add(rows[0].RowGross)
			prior = append(prior, asPrior(rows))
			assert.Equal(t, i == 2, l.FullyConsumed())
		}
		assert.Equal(t, "-10.00", types.Format2(total))
	})

	t.Run("duplicate requests are summed", func(t *testing.T) {
		l := NewLedger(originalInvoice(item(nil, "Caña", "4", "8.00", "21")), nil)
		rows, units, err := l.Reverse([]ItemRequest{
			{ProductName: "Caña", Quantity: types.MustMoney("1")},
			{ProductName: "Caña", Quantity: types.MustMoney("3")},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "4", units.String())
		assert.Equal(t, "-8.00", types.Format2(rows[0].RowGross))
		assert.True(t, l.FullyConsumed())
	})

	t.Run("fractional quantities", func(t *testing.T) {
		l := NewLedger(originalInvoice(item(ptr("p9"), "Jamón", "0.75", "18.00", "10")), nil)
		rows, _, err := l.Reverse([]ItemRequest{{ProductID: ptr("p9"), ProductName: "Jamón", Quantity: types.MustMoney("0.25")}})
		require.NoError(t, err)
		assert.Equal(t, "-6.00", types.Format2(rows[0].RowGross))
		assert.Equal(t, "-0.25", rows[0].Quantity.String())
	})
}

func TestLedger_ReverseRejects(t *testing.T) {
	orig := originalInvoice(item(ptr("p1"), "Café", "2", "3.00", "10"))

	tests := []struct {
		name  string
		items []ItemRequest
	}{
		{"no items", nil},
		{"zero quantity", []ItemRequest{{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.Zero()}}},
		{"negative quantity", []ItemRequest{{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.MustMoney("-1")}}},
		{"unknown line", []ItemRequest{{ProductID: ptr("p2"), ProductName: "Té", Quantity: types.MustMoney("1")}}},
		{"renamed line", []ItemRequest{{ProductID: ptr("p1"), ProductName: "Café solo", Quantity: types.MustMoney("1")}}},
		{"over remaining", []ItemRequest{{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.MustMoney("3")}}},
		{"summed over remaining", []ItemRequest{
			{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.MustMoney("1")},
			{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.MustMoney("1.5")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(orig, nil)
			_, _, err := l.Reverse(tt.items)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
			assert.Equal(t, "2", l.Remaining()[0].Remaining.String(), "failed request must not consume")
		})
	}
}

func TestLedger_OverRemainingDetails(t *testing.T) {
	orig := originalInvoice(item(ptr("p1"), "Café", "2", "3.00", "10"))
	prior := []*invoice.Invoice{{Items: []invoice.Item{item(ptr("p1"), "Café", "-1", "-1.50", "10")}}}

	_, _, err := NewLedger(orig, prior).Reverse([]ItemRequest{{ProductID: ptr("p1"), ProductName: "Café", Quantity: types.MustMoney("2")}})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Café", appErr.Details["product"])
	assert.Equal(t, "2", appErr.Details["requested"])
	assert.Equal(t, "1", appErr.Details["remaining"])
}

func TestNormalizeReason(t *testing.T) {
	r, err := normalizeReason("  devolución  ")
	require.NoError(t, err)
	assert.Equal(t, "devolución", r)

	_, err = normalizeReason("   ")
	assert.True(t, apperror.IsValidation(err))
}
