package controllers

import (
	"net/http"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/api/validators"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// GetOrganization returns the active restaurant's profile.
func GetOrganization(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Get(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, org)
	}
}

// UpdateOrganization updates profile, address and ordering settings.
func UpdateOrganization(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input organizations.UpdateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Update(r.Context(), orgID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, org)
	}
}

// ListOrganizationMembers returns the portal members and their roles.
func ListOrganizationMembers(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		members, err := svc.Members(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, members)
	}
}

// GetPaymentsStatus reports the connected-account onboarding state the
// portal polls after the hosted flow returns.
func GetPaymentsStatus(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Get(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"stripe_account_id":  org.StripeAccountID,
			"onboarding_started": org.OnboardingStarted,
			"payouts_enabled":    org.PayoutsEnabled,
			"accepting_payments": org.StripeAccountID != "" && org.PayoutsEnabled,
		})
	}
}

// StartPaymentsOnboarding provisions the connected account (first call) and
// returns a fresh hosted onboarding link.
func StartPaymentsOnboarding(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "organization service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartPaymentsOnboarding(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
