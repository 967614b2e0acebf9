package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/api/validators"
	"github.com/orderlyhq/orderly-backend/internal/checkout"
	"github.com/orderlyhq/orderly-backend/internal/menu"
	internalorders "github.com/orderlyhq/orderly-backend/internal/orders"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/reviews"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/pagination"
)

func storefrontSlug(r *http.Request) (string, error) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "restaurant slug is required")
	}
	return slug, nil
}

// StorefrontMenu returns the public menu: active categories with available
// items only.
func StorefrontMenu(orgs organizations.Service, menus menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orgs == nil || menus == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront unavailable"))
			return
		}

		slug, err := storefrontSlug(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := orgs.GetBySlug(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		categories, err := menus.PublicMenu(r.Context(), org.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"restaurant": map[string]any{
				"name":             org.Name,
				"slug":             org.Slug,
				"currency":         org.Currency,
				"accepting_orders": org.AcceptingOrders,
			},
			"categories": categories,
		})
	}
}

// StorefrontQuote prices a cart without creating anything.
func StorefrontQuote(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		slug, err := storefrontSlug(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input checkout.QuoteInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Quote(r.Context(), slug, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// StorefrontCheckout turns a cart into an order. A replayed idempotency key
// returns the original order with 200 instead of 201.
func StorefrontCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		slug, err := storefrontSlug(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input checkout.SubmitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), slug, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.AlreadyExists {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// StorefrontTrack returns the guest tracking view for a checkout token.
func StorefrontTrack(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking token is required"))
			return
		}

		order, events, err := svc.Track(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order":  order,
			"events": events,
		})
	}
}

// StorefrontSubmitReview accepts a review for a completed order.
func StorefrontSubmitReview(orgs organizations.Service, svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orgs == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		slug, err := storefrontSlug(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := orgs.GetBySlug(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input reviews.SubmitInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Submit(r.Context(), org.ID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, review)
	}
}

// StorefrontReviews lists published reviews for a restaurant.
func StorefrontReviews(orgs organizations.Service, svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orgs == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		slug, err := storefrontSlug(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := orgs.GetBySlug(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := pagination.FromRequest(r)
		list, total, err := svc.ListPublished(r.Context(), org.ID, page.Limit, page.Offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"reviews": list,
			"meta":    pagination.NewMeta(page, total),
		})
	}
}
