package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderIntent_Values_ParseBack(t *testing.T) {
	intent := OrderIntent{OrderID: 1 << 40, UserID: 7, VoucherID: 3}

	values := intent.Values()
	assert.Equal(t, "7", values[FieldUserID])

	got, err := ParseOrderIntent(values)
	require.NoError(t, err)
	assert.Equal(t, intent, got)

	order := got.Order()
	assert.Equal(t, int64(1<<40), order.ID)
	assert.Equal(t, OrderStatusUnpaid, order.Status)
}

func TestParseOrderIntent_WhenMalformed_ReportsField(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		field  string
	}{
		{"missing id", map[string]any{FieldUserID: "1", FieldVoucherID: "2"}, FieldOrderID},
		{"non numeric user", map[string]any{FieldOrderID: "1", FieldUserID: "abc", FieldVoucherID: "2"}, FieldUserID},
		{"zero voucher", map[string]any{FieldOrderID: "1", FieldUserID: "1", FieldVoucherID: "0"}, FieldVoucherID},
		{"wrong type", map[string]any{FieldOrderID: 1, FieldUserID: "1", FieldVoucherID: "2"}, FieldOrderID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrderIntent(tt.values)
			require.ErrorIs(t, err, ErrMalformedIntent)

			var me *MalformedIntentError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.field, me.Field)
		})
	}
}

func TestSeckillVoucher_Validate(t *testing.T) {
	now := time.Now()
	valid := &SeckillVoucher{VoucherID: 1, Stock: 10, BeginTime: now, EndTime: now.Add(time.Hour)}
	assert.NoError(t, valid.Validate())

	var nilVoucher *SeckillVoucher
	assert.ErrorIs(t, nilVoucher.Validate(), ErrInvalidVoucher)
	assert.ErrorIs(t, (&SeckillVoucher{VoucherID: 0}).Validate(), ErrInvalidVoucher)
	assert.ErrorIs(t, (&SeckillVoucher{VoucherID: 1, Stock: -1}).Validate(), ErrInvalidVoucher)
	assert.ErrorIs(t, (&SeckillVoucher{VoucherID: 1, BeginTime: now, EndTime: now.Add(-time.Second)}).Validate(), ErrInvalidVoucher)
}
