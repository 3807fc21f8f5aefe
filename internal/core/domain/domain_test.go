package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalesWindow_KeepsLastTen(t *testing.T) {
	var w SalesWindow
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		w.Record(base.Add(time.Duration(i) * time.Second))
	}

	assert.Equal(t, SalesWindowSize, w.Len())
	assert.Equal(t, SalesWindowSize, w.PerHour(base.Add(time.Minute)))
	assert.Equal(t, 25, w.TotalToday(base.Add(time.Minute)))
}

func TestSalesWindow_PerHourIgnoresOldSamples(t *testing.T) {
	var w SalesWindow
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Record(now.Add(-2 * time.Hour))
	w.Record(now.Add(-90 * time.Minute))
	w.Record(now.Add(-30 * time.Minute))
	w.Record(now.Add(-time.Minute))

	assert.Equal(t, 2, w.PerHour(now))
}

func TestSalesWindow_TotalTodayResetsAtMidnight(t *testing.T) {
	var w SalesWindow
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	w.Record(day1)
	w.Record(day1.Add(30 * time.Second))
	w.Record(day1.Add(2 * time.Minute))

	assert.Equal(t, 1, w.TotalToday(day1.Add(2*time.Minute)))
	assert.Equal(t, 0, w.TotalToday(day1.Add(48*time.Hour)))
}

func TestActivityLog_MostRecentFirstAndBounded(t *testing.T) {
	log := NewActivityLog(3)
	for i := 0; i < 5; i++ {
		log.Add(ActivityEntry{Kind: "TICK", Message: fmt.Sprintf("entry %d", i)})
	}

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 4", entries[0].Message)
	assert.Equal(t, "entry 2", entries[2].Message)
}

func TestActivityLog_DefaultCapacity(t *testing.T) {
	log := NewActivityLog(0)
	for i := 0; i < 10; i++ {
		log.Add(ActivityEntry{Kind: "TICK"})
	}
	assert.Len(t, log.Entries(), DefaultActivityCapacity)
}

func TestIsSettlementFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"insufficient funds", fmt.Errorf("transfer: %w", ErrInsufficientFunds), true},
		{"rejected", &SettlementError{Op: "send", Err: ErrTransactionRejected}, true},
		{"timeout", &SettlementError{Op: "confirm", Err: ErrConfirmationTimeout}, true},
		{"rpc unreachable", &SettlementError{Op: "connect", Err: ErrNetworkUnreachable}, true},
		{"supplier unreachable", fmt.Errorf("order: %w", ErrNetworkUnreachable), false},
		{"config missing in settlement", &SettlementError{Op: "connect", Err: ErrConfigurationMissing}, false},
		{"backend", ErrBackend, false},
		{"order rejected", ErrOrderRejected, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSettlementFailure(tt.err))
		})
	}
}

func TestInvoiceValidate(t *testing.T) {
	good := Invoice{Amount: decimal.RequireFromString("0.0001"), Destination: "0xabc", InvoiceID: "inv-1"}
	require.NoError(t, good.Validate())

	noDest := good
	noDest.Destination = ""
	assert.ErrorIs(t, noDest.Validate(), ErrBackend)

	zero := good
	zero.Amount = decimal.Zero
	assert.ErrorIs(t, zero.Validate(), ErrBackend)
}

func TestOrderRequestValidate(t *testing.T) {
	assert.NoError(t, OrderRequest{Item: "Rice", Quantity: 50}.Validate())
	assert.ErrorIs(t, OrderRequest{Quantity: 50}.Validate(), ErrInvalidOrder)
	assert.ErrorIs(t, OrderRequest{Item: "Rice"}.Validate(), ErrInvalidOrder)
	assert.NoError(t, OrderRequest{Item: "Rice", Quantity: MaxOrderQuantity}.Validate())
	assert.ErrorIs(t, OrderRequest{Item: "Rice", Quantity: MaxOrderQuantity + 1}.Validate(), ErrInvalidOrder)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Order{
		{TotalPaid: decimal.RequireFromString("0.0001")},
		{TotalPaid: decimal.RequireFromString("0.00012")},
	})
	assert.Equal(t, "0.00022", s.TotalRevenue.String())

	empty := Summarize(nil)
	assert.NotNil(t, empty.Orders)
	assert.True(t, empty.TotalRevenue.IsZero())
}
