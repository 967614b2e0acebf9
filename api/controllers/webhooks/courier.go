package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/orderlyhq/orderly-backend/api/responses"
	"github.com/orderlyhq/orderly-backend/internal/deliveries"
	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	pkgerrors "github.com/orderlyhq/orderly-backend/pkg/errors"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// SignatureHeader carries the courier partner's hex HMAC-SHA256 of the raw
// body.
const SignatureHeader = "X-Courier-Signature"

type CourierWebhookService interface {
	ProcessWebhook(ctx context.Context, event deliveries.CourierEvent, payload []byte) (bool, error)
}

type courierClient interface {
	SigningSecret() string
}

// CourierWebhook handles delivery status events from the courier partner.
func CourierWebhook(svc CourierWebhookService, client courierClient, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "courier client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "courier signature missing"))
			return
		}
		if !dispatch.VerifySignature(client.SigningSecret(), payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid courier signature"))
			return
		}

		var event deliveries.CourierEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload"))
			return
		}
		if event.EventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id is required"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]any{"already_processed": true})
			return
		}

		replayed, err := svc.ProcessWebhook(ctx, event, payload)
		if err != nil {
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("courier event %s processed", event.EventID))
		}
		responses.WriteSuccess(w, map[string]any{"already_processed": replayed})
	}
}
