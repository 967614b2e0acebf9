package controllers

import (
	"net/http"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/api/validators"
	"github.com/orderlyhq/orderly-backend/internal/reviews"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/pagination"
)

// ListReviews returns all reviews for moderation, published or not.
func ListReviews(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := pagination.FromRequest(r)
		list, total, err := svc.ListAll(r.Context(), orgID, page.Limit, page.Offset)
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

// SetReviewPublished publishes or hides a review on the storefront.
func SetReviewPublished(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	type publishInput struct {
		Published *bool `json:"published" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := urlParam(r, "reviewId", "review id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input publishInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.SetPublished(r.Context(), orgID, id, *input.Published)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

// ReplyToReview attaches the restaurant's public reply.
func ReplyToReview(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	type replyInput struct {
		Reply string `json:"reply" validate:"required,max=4000"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
			return
		}

		orgID, err := orgFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := urlParam(r, "reviewId", "review id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input replyInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Reply(r.Context(), orgID, id, input.Reply)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}
