package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orderlyhq/orderly-backend/api/controllers"
	webhookcontrollers "github.com/orderlyhq/orderly-backend/api/controllers/webhooks"
	"github.com/orderlyhq/orderly-backend/api/middleware"
	checkoutsvc "github.com/orderlyhq/orderly-backend/internal/checkout"
	"github.com/orderlyhq/orderly-backend/internal/deliveries"
	"github.com/orderlyhq/orderly-backend/internal/ledger"
	"github.com/orderlyhq/orderly-backend/internal/menu"
	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/orders"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/payments"
	"github.com/orderlyhq/orderly-backend/internal/promos"
	"github.com/orderlyhq/orderly-backend/internal/reviews"
	"github.com/orderlyhq/orderly-backend/internal/webhooks"
	pkgauth "github.com/orderlyhq/orderly-backend/pkg/auth"
	"github.com/orderlyhq/orderly-backend/pkg/config"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	"github.com/orderlyhq/orderly-backend/pkg/enums"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
	"github.com/orderlyhq/orderly-backend/pkg/redis"
	"github.com/orderlyhq/orderly-backend/pkg/stripe"
)

// Deps carries everything the router mounts. Optional integrations may be
// nil; their routes answer 500 until configured.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *db.Client
	Redis       *redis.Client
	AuthManager *pkgauth.Manager
	Metrics     *metrics.Metrics

	Organizations organizations.Service
	Menu          menu.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Deliveries    deliveries.Service
	Promos        promos.Service
	Reviews       reviews.Service
	Notifications notifications.Service
	Ledger        ledger.Service
	Payments      payments.Service

	StripeClient  *stripe.Client
	CourierClient *dispatch.Client
	StripeGuard   *webhooks.IdempotencyGuard
	CourierGuard  *webhooks.IdempotencyGuard
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	r.Get("/healthz", controllers.Health(d.DB, d.Redis, logg))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.Payments, d.StripeClient, d.StripeGuard, logg))
		r.Post("/courier", webhookcontrollers.CourierWebhook(d.Deliveries, d.CourierClient, d.CourierGuard, logg))
	})

	// Public storefront. No auth; checkout is rate limited per IP and
	// deduplicated by idempotency key.
	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/menu", controllers.StorefrontMenu(d.Organizations, d.Menu, logg))
			r.Post("/quote", controllers.StorefrontQuote(d.Checkout, logg))
			r.With(middleware.CheckoutRateLimit(
				d.Redis,
				cfg.RateLimit.CheckoutIPLimit,
				cfg.RateLimit.CheckoutWindow,
				logg,
			)).Post("/checkout", controllers.StorefrontCheckout(d.Checkout, logg))
			r.Get("/reviews", controllers.StorefrontReviews(d.Organizations, d.Reviews, logg))
			r.Post("/reviews", controllers.StorefrontSubmitReview(d.Organizations, d.Reviews, logg))
		})

		r.Get("/track/{token}", controllers.StorefrontTrack(d.Orders, logg))
	})

	// Owner portal.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.AuthManager, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(d.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(d.Orders, logg))
			r.Get("/{orderId}/events", controllers.OrderEvents(d.Orders, logg))
			r.Post("/{orderId}/status", controllers.TransitionOrder(d.Orders, logg))
			r.With(middleware.RequireRole(enums.RoleAdmin, logg)).
				Post("/{orderId}/refund", controllers.RefundOrder(d.Orders, logg))
			r.Post("/{orderId}/dispatch", controllers.DispatchOrder(d.Deliveries, logg))
			r.Get("/{orderId}/delivery", controllers.GetOrderDelivery(d.Deliveries, logg))
			r.Post("/{orderId}/delivery/cancel", controllers.CancelOrderDelivery(d.Deliveries, logg))
			r.Get("/{orderId}/ledger", controllers.ListOrderLedgerEntries(d.Ledger, logg))
			r.Get("/{orderId}/payment", controllers.GetOrderPayment(d.Payments, logg))
		})

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", controllers.GetMenu(d.Menu, logg))
			r.Post("/categories", controllers.CreateMenuCategory(d.Menu, logg))
			r.Put("/categories/{categoryId}", controllers.UpdateMenuCategory(d.Menu, logg))
			r.Delete("/categories/{categoryId}", controllers.DeleteMenuCategory(d.Menu, logg))
			r.Post("/items", controllers.CreateMenuItem(d.Menu, logg))
			r.Put("/items/{itemId}", controllers.UpdateMenuItem(d.Menu, logg))
			r.Post("/items/{itemId}/availability", controllers.SetMenuItemAvailability(d.Menu, logg))
			r.Delete("/items/{itemId}", controllers.DeleteMenuItem(d.Menu, logg))
			r.Post("/items/{itemId}/modifiers", controllers.CreateMenuModifier(d.Menu, logg))
			r.Put("/items/{itemId}/modifiers/{modifierId}", controllers.UpdateMenuModifier(d.Menu, logg))
			r.Delete("/items/{itemId}/modifiers/{modifierId}", controllers.DeleteMenuModifier(d.Menu, logg))
		})

		r.Route("/organization", func(r chi.Router) {
			r.Get("/", controllers.GetOrganization(d.Organizations, logg))
			r.With(middleware.RequireRole(enums.RoleAdmin, logg)).
				Put("/", controllers.UpdateOrganization(d.Organizations, logg))
			r.Get("/members", controllers.ListOrganizationMembers(d.Organizations, logg))
			r.With(middleware.RequireRole(enums.RoleOwner, logg)).
				Post("/payments/onboard", controllers.StartPaymentsOnboarding(d.Organizations, logg))
			r.Get("/payments/status", controllers.GetPaymentsStatus(d.Organizations, logg))
		})

		r.Route("/promos", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.Get("/", controllers.ListPromos(d.Promos, logg))
			r.Post("/", controllers.CreatePromo(d.Promos, logg))
			r.Put("/{promoId}", controllers.UpdatePromo(d.Promos, logg))
			r.Post("/{promoId}/deactivate", controllers.DeactivatePromo(d.Promos, logg))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", controllers.ListReviews(d.Reviews, logg))
			r.Post("/{reviewId}/publish", controllers.SetReviewPublished(d.Reviews, logg))
			r.Post("/{reviewId}/reply", controllers.ReplyToReview(d.Reviews, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
		})

		r.Get("/ledger", controllers.ListLedgerEntries(d.Ledger, logg))
		r.Get("/payments", controllers.ListPayments(d.Payments, logg))
	})

	return r
}
