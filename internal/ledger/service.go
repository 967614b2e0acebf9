package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/db/models"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
)

// Service records money movements. Entries are append-only; the unique
// (order, type) index absorbs webhook replays.
type Service interface {
	Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]models.LedgerEntry, int64, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.LedgerEntry, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	OrgID       string
	OrderID     *string
	Type        enums.LedgerEntryType
	Currency    enums.Currency
	AmountCents int64
	Description string
	ExternalRef string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error) {
	return s.record(ctx, s.repo, input)
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.LedgerEntry, error) {
	return s.record(ctx, s.repo.WithTx(tx), input)
}

func (s *service) record(ctx context.Context, repo Repository, input RecordEntryInput) (*models.LedgerEntry, error) {
	if input.OrgID == "" {
		return nil, fmt.Errorf("org id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger entry type %q", input.Type)
	}
	if !input.Currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", input.Currency)
	}

	entry := &models.LedgerEntry{
		OrgID:       input.OrgID,
		OrderID:     input.OrderID,
		Type:        input.Type,
		Currency:    input.Currency,
		AmountCents: input.AmountCents,
		Description: input.Description,
		ExternalRef: input.ExternalRef,
	}

	if err := repo.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err) {
			// Replayed event; the original entry stands.
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (s *service) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]models.LedgerEntry, int64, error) {
	if orgID == "" {
		return nil, 0, fmt.Errorf("org id is required")
	}
	return s.repo.ListByOrgID(ctx, orgID, limit, offset)
}

func (s *service) ListByOrder(ctx context.Context, orderID string) ([]models.LedgerEntry, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
