package dispatch

import (
	"context"
	"fmt"
	"net/http"
)

// Quote is a price estimate for a dropoff. QuoteID is passed back when
// creating the delivery so the partner honors the quoted fee.
type Quote struct {
	QuoteID    string `json:"quote_id"`
	FeeCents   int64  `json:"fee_cents"`
	Currency   string `json:"currency"`
	EtaMinutes int    `json:"eta_minutes"`
	ExpiresAt  string `json:"expires_at"`
}

type QuoteInput struct {
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
}

func (c *Client) GetQuote(ctx context.Context, in QuoteInput) (*Quote, error) {
	c.log(ctx, "request", "get_quote", map[string]any{
		"pickup_address":  in.PickupAddress,
		"dropoff_address": in.DropoffAddress,
	})

	var quote Quote
	if err := c.do(ctx, http.MethodPost, "/v1/quotes", in, &quote); err != nil {
		c.log(ctx, "error", "get_quote", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_quote", map[string]any{
		"quote_id":  quote.QuoteID,
		"fee_cents": quote.FeeCents,
	})
	return &quote, nil
}

// Delivery is the partner's view of a dispatch.
type Delivery struct {
	DeliveryID   string `json:"delivery_id"`
	Status       string `json:"status"`
	FeeCents     int64  `json:"fee_cents"`
	Currency     string `json:"currency"`
	TrackingURL  string `json:"tracking_url"`
	CourierName  string `json:"courier_name"`
	CourierPhone string `json:"courier_phone"`
}

type DeliveryCreateInput struct {
	// ExternalRef is our order id; the partner echoes it on webhooks.
	ExternalRef    string `json:"external_ref"`
	QuoteID        string `json:"quote_id,omitempty"`
	PickupAddress  string `json:"pickup_address"`
	PickupName     string `json:"pickup_name"`
	PickupPhone    string `json:"pickup_phone,omitempty"`
	DropoffAddress string `json:"dropoff_address"`
	DropoffName    string `json:"dropoff_name"`
	DropoffPhone   string `json:"dropoff_phone,omitempty"`
	OrderValue     int64  `json:"order_value_cents"`
	Currency       string `json:"currency"`
}

func (c *Client) CreateDelivery(ctx context.Context, in DeliveryCreateInput) (*Delivery, error) {
	c.log(ctx, "request", "create_delivery", map[string]any{
		"external_ref": in.ExternalRef,
		"quote_id":     in.QuoteID,
	})

	var delivery Delivery
	if err := c.do(ctx, http.MethodPost, "/v1/deliveries", in, &delivery); err != nil {
		c.log(ctx, "error", "create_delivery", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_delivery", map[string]any{
		"delivery_id": delivery.DeliveryID,
		"status":      delivery.Status,
	})
	return &delivery, nil
}

func (c *Client) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	c.log(ctx, "request", "get_delivery", map[string]any{"delivery_id": deliveryID})

	var delivery Delivery
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/deliveries/%s", deliveryID), nil, &delivery); err != nil {
		c.log(ctx, "error", "get_delivery", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "get_delivery", map[string]any{
		"delivery_id": delivery.DeliveryID,
		"status":      delivery.Status,
	})
	return &delivery, nil
}

func (c *Client) CancelDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	c.log(ctx, "request", "cancel_delivery", map[string]any{"delivery_id": deliveryID})

	var delivery Delivery
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/deliveries/%s/cancel", deliveryID), nil, &delivery); err != nil {
		c.log(ctx, "error", "cancel_delivery", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "cancel_delivery", map[string]any{
		"delivery_id": delivery.DeliveryID,
		"status":      delivery.Status,
	})
	return &delivery, nil
}
