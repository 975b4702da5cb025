package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_Advance(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		from    Status
		to      Status
		wantErr error
	}{
		{from: StatusPending, to: StatusPaid},
		{from: StatusPending, to: StatusShipped},
		{from: StatusPaid, to: StatusShipped},
		{from: StatusPaid, to: StatusDelivered},
		{from: StatusShipped, to: StatusDelivered},
		{from: StatusPending, to: StatusPending, wantErr: ErrInvalidTransition},
		{from: StatusShipped, to: StatusPaid, wantErr: ErrInvalidTransition},
		{from: StatusDelivered, to: StatusShipped, wantErr: ErrInvalidTransition},
		{from: StatusCancelled, to: StatusPaid, wantErr: ErrInvalidTransition},
		{from: StatusPending, to: StatusCancelled, wantErr: ErrInvalidTransition},
		{from: StatusPaid, to: Status("refunded"), wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			o := &Order{Status: tt.from}
			err := o.Advance(tt.to, at)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var terr *TransitionError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, tt.from, terr.From)
				assert.Equal(t, tt.from, o.Status)
				assert.True(t, o.UpdatedAt.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
			assert.Equal(t, at, o.UpdatedAt)
		})
	}
}

func TestOrder_Cancel(t *testing.T) {
	for _, st := range []Status{StatusPaid, StatusShipped, StatusDelivered, StatusCancelled} {
		o := &Order{Status: st}
		require.ErrorIs(t, o.Cancel(time.Now()), ErrNotCancellable, st)
		assert.Equal(t, st, o.Status)
	}

	o := &Order{Status: StatusPending}
	require.NoError(t, o.Cancel(time.Now()))
	assert.Equal(t, StatusCancelled, o.Status)
}

func TestOrder_MarkPaid(t *testing.T) {
	o := &Order{Status: StatusPending}
	require.NoError(t, o.MarkPaid(time.Now()))
	assert.Equal(t, StatusPaid, o.Status)

	require.ErrorIs(t, o.MarkPaid(time.Now()), ErrInvalidTransition)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "paid", "shipped", "delivered", "cancelled"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}

	_, err := ParseStatus("PAID")
	require.ErrorIs(t, err, ErrInvalidStatus)
	_, err = ParseStatus("")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestShippingInfo_Validate(t *testing.T) {
	full := ShippingInfo{FullName: "Ada", Address: "1 Main St", City: "Paris", Country: "FR"}
	require.NoError(t, full.Validate())

	missing := full
	missing.City = ""
	var serr *InvalidShippingError
	require.ErrorAs(t, missing.Validate(), &serr)
	assert.Equal(t, "city", serr.Field)
}

func TestNormalizeLines(t *testing.T) {
	got, err := normalizeLines([]CartLine{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 2},
		{ProductID: " a ", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []CartLine{{ProductID: "a", Quantity: 4}, {ProductID: "b", Quantity: 2}}, got)

	_, err = normalizeLines(nil)
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = normalizeLines([]CartLine{{ProductID: "a", Quantity: 0}})
	var qerr *InvalidQuantityError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "a", qerr.ProductID)
}
