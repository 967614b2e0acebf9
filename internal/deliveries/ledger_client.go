package deliveries

import (
	"context"

	"github.com/orderlyhq/orderly-backend/internal/ledger"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

type ledgerWrapper struct {
	svc ledger.Service
}

// NewLedgerRecorder wraps the ledger service so the delivery service can be
// tested without it.
func NewLedgerRecorder(svc ledger.Service) LedgerRecorder {
	if svc == nil {
		return nil
	}
	return &ledgerWrapper{svc: svc}
}

// RecordDeliveryFee books the courier fee as a debit once the courier
// confirms delivery. The (order, type) unique index absorbs replayed
// delivered events.
func (w *ledgerWrapper) RecordDeliveryFee(ctx context.Context, orgID, orderID string, currency enums.Currency, feeCents int64, externalRef string) error {
	_, err := w.svc.Record(ctx, ledger.RecordEntryInput{
		OrgID:       orgID,
		OrderID:     &orderID,
		Type:        enums.LedgerEntryDeliveryFee,
		Currency:    currency,
		AmountCents: -feeCents,
		Description: "courier delivery fee",
		ExternalRef: externalRef,
	})
	return err
}
