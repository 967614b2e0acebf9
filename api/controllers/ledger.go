package controllers

import (
	"net/http"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/internal/ledger"
	"github.com/orderlyhq/orderly-backend/internal/payments"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/pagination"
)

// ListLedgerEntries returns the restaurant's money movement history.
func ListLedgerEntries(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := pagination.FromRequest(r)
		entries, total, err := svc.ListByOrg(r.Context(), orgID, page.Limit, page.Offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries": entries,
			"meta":    pagination.NewMeta(page, total),
		})
	}
}

// ListOrderLedgerEntries returns the money movements for one order.
func ListOrderLedgerEntries(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		if _, err := orgFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// ListPayments returns the restaurant's payment history.
func ListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := pagination.FromRequest(r)
		list, total, err := svc.ListByOrg(r.Context(), orgID, page.Limit, page.Offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payments": list,
			"meta":     pagination.NewMeta(page, total),
		})
	}
}

// GetOrderPayment returns the payment attached to one order.
func GetOrderPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetByOrder(r.Context(), orgID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}
