package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusAwaitingPayment, OrderStatusPaid, true},
		{OrderStatusAwaitingPayment, OrderStatusCanceled, true},
		{OrderStatusAwaitingPayment, OrderStatusAccepted, false},
		{OrderStatusPaid, OrderStatusAccepted, true},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusReady, false},
		{OrderStatusAccepted, OrderStatusPreparing, true},
		{OrderStatusPreparing, OrderStatusReady, true},
		{OrderStatusReady, OrderStatusOutForDelivery, true},
		{OrderStatusReady, OrderStatusCompleted, true},
		{OrderStatusReady, OrderStatusCanceled, false},
		{OrderStatusReady, OrderStatusAccepted, false},
		{OrderStatusOutForDelivery, OrderStatusCompleted, true},
		{OrderStatusOutForDelivery, OrderStatusCanceled, false},
		{OrderStatusCompleted, OrderStatusRefunded, true},
		{OrderStatusCanceled, OrderStatusPaid, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatusValidTransitionsSorted(t *testing.T) {
	assert.Equal(t, []string{"completed", "out_for_delivery"}, OrderStatusReady.ValidTransitions())
	assert.Equal(t, []string{"accepted", "canceled", "refunded"}, OrderStatusPaid.ValidTransitions())
	assert.Empty(t, OrderStatusCanceled.ValidTransitions())
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusCanceled.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.False(t, OrderStatusCompleted.IsTerminal())
	assert.False(t, OrderStatus("bogus").IsTerminal())
}

func TestOrderStatusRequiresAdmin(t *testing.T) {
	assert.True(t, OrderStatusPaid.RequiresAdmin(OrderStatusRefunded))
	assert.True(t, OrderStatusCompleted.RequiresAdmin(OrderStatusRefunded))
	assert.False(t, OrderStatusPaid.RequiresAdmin(OrderStatusAccepted))
	assert.False(t, OrderStatusReady.RequiresAdmin(OrderStatusCompleted))

	// Canceling costs money once the customer has paid.
	assert.False(t, OrderStatusAwaitingPayment.RequiresAdmin(OrderStatusCanceled))
	assert.True(t, OrderStatusPaid.RequiresAdmin(OrderStatusCanceled))
	assert.True(t, OrderStatusPreparing.RequiresAdmin(OrderStatusCanceled))
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("  Preparing ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPreparing, status)

	_, err = ParseOrderStatus("shipped")
	require.Error(t, err)
}
