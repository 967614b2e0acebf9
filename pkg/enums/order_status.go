package enums

import (
	"fmt"
	"sort"
	"strings"
)

// OrderStatus is the lifecycle state of an order. Transitions are driven
// exclusively through the table below; nothing else mutates status.
type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPreparing       OrderStatus = "preparing"
	OrderStatusReady           OrderStatus = "ready"
	OrderStatusOutForDelivery  OrderStatus = "out_for_delivery"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRefunded        OrderStatus = "refunded"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingPayment: {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:            {OrderStatusAccepted, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusAccepted:        {OrderStatusPreparing, OrderStatusCanceled},
	OrderStatusPreparing:       {OrderStatusReady, OrderStatusCanceled},
	OrderStatusReady:           {OrderStatusCompleted, OrderStatusOutForDelivery},
	OrderStatusOutForDelivery:  {OrderStatusCompleted},
	OrderStatusCompleted:       {OrderStatusRefunded},
	OrderStatusCanceled:        {},
	OrderStatusRefunded:        {},
}

// adminOnlyTransitions require the admin role regardless of source status.
var adminOnlyTransitions = map[OrderStatus]bool{
	OrderStatusRefunded: true,
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	next, ok := orderStatusTransitions[s]
	return ok && len(next) == 0
}

func (s OrderStatus) String() string {
	return string(s)
}

// CanTransition reports whether the status may move from s to target.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidTransitions lists the statuses reachable from s, sorted for stable
// API responses.
func (s OrderStatus) ValidTransitions() []string {
	next := orderStatusTransitions[s]
	out := make([]string, 0, len(next))
	for _, status := range next {
		out = append(out, string(status))
	}
	sort.Strings(out)
	return out
}

// RequiresAdmin reports whether moving from s into target needs the admin
// role. Refunds always do; canceling is staff-safe only while the order is
// still unpaid.
func (s OrderStatus) RequiresAdmin(target OrderStatus) bool {
	if adminOnlyTransitions[target] {
		return true
	}
	return target == OrderStatusCanceled && s != OrderStatusAwaitingPayment
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown order status %q", value)
	}
	return status, nil
}
