package enums

import (
	"fmt"
	"strings"
)

type NotificationType string

const (
	NotificationOrderPlaced    NotificationType = "order_placed"
	NotificationOrderPaid      NotificationType = "order_paid"
	NotificationOrderStatus    NotificationType = "order_status"
	NotificationOrderCanceled  NotificationType = "order_canceled"
	NotificationOrderRefunded  NotificationType = "order_refunded"
	NotificationDeliveryUpdate NotificationType = "delivery_update"
	NotificationReviewReceived NotificationType = "review_received"
)

func (n NotificationType) IsValid() bool {
	switch n {
	case NotificationOrderPlaced, NotificationOrderPaid, NotificationOrderStatus,
		NotificationOrderCanceled, NotificationOrderRefunded,
		NotificationDeliveryUpdate, NotificationReviewReceived:
		return true
	}
	return false
}

func (n NotificationType) String() string {
	return string(n)
}

func ParseNotificationType(value string) (NotificationType, error) {
	nt := NotificationType(strings.ToLower(strings.TrimSpace(value)))
	if !nt.IsValid() {
		return "", fmt.Errorf("unknown notification type %q", value)
	}
	return nt, nil
}
