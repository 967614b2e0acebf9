package enums

import (
	"fmt"
	"strings"
)

// DeliveryStatus tracks the courier side of an order independently of the
// order status itself.
type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusRequested      DeliveryStatus = "requested"
	DeliveryStatusCourierEnRoute DeliveryStatus = "courier_en_route"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
	DeliveryStatusCanceled       DeliveryStatus = "canceled"
)

func (d DeliveryStatus) IsValid() bool {
	switch d {
	case DeliveryStatusPending, DeliveryStatusRequested, DeliveryStatusCourierEnRoute,
		DeliveryStatusPickedUp, DeliveryStatusDelivered, DeliveryStatusFailed,
		DeliveryStatusCanceled:
		return true
	}
	return false
}

func (d DeliveryStatus) IsTerminal() bool {
	switch d {
	case DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusCanceled:
		return true
	}
	return false
}

func (d DeliveryStatus) String() string {
	return string(d)
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown delivery status %q", value)
	}
	return status, nil
}
