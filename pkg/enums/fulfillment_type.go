package enums

import (
	"fmt"
	"strings"
)

type FulfillmentType string

const (
	FulfillmentPickup   FulfillmentType = "pickup"
	FulfillmentDelivery FulfillmentType = "delivery"
)

func (f FulfillmentType) IsValid() bool {
	switch f {
	case FulfillmentPickup, FulfillmentDelivery:
		return true
	}
	return false
}

func (f FulfillmentType) String() string {
	return string(f)
}

func ParseFulfillmentType(value string) (FulfillmentType, error) {
	ft := FulfillmentType(strings.ToLower(strings.TrimSpace(value)))
	if !ft.IsValid() {
		return "", fmt.Errorf("unknown fulfillment type %q", value)
	}
	return ft, nil
}
