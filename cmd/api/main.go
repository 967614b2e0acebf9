package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/orderlyhq/orderly-backend/api/routes"
	"github.com/orderlyhq/orderly-backend/internal/checkout"
	"github.com/orderlyhq/orderly-backend/internal/deliveries"
	"github.com/orderlyhq/orderly-backend/internal/ledger"
	"github.com/orderlyhq/orderly-backend/internal/mailer"
	"github.com/orderlyhq/orderly-backend/internal/menu"
	"github.com/orderlyhq/orderly-backend/internal/notifications"
	"github.com/orderlyhq/orderly-backend/internal/orders"
	"github.com/orderlyhq/orderly-backend/internal/organizations"
	"github.com/orderlyhq/orderly-backend/internal/payments"
	"github.com/orderlyhq/orderly-backend/internal/promos"
	"github.com/orderlyhq/orderly-backend/internal/realtime"
	"github.com/orderlyhq/orderly-backend/internal/reviews"
	"github.com/orderlyhq/orderly-backend/internal/webhooks"
	pkgauth "github.com/orderlyhq/orderly-backend/pkg/auth"
	"github.com/orderlyhq/orderly-backend/pkg/config"
	"github.com/orderlyhq/orderly-backend/pkg/db"
	"github.com/orderlyhq/orderly-backend/pkg/dispatch"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	"github.com/orderlyhq/orderly-backend/pkg/metrics"
	"github.com/orderlyhq/orderly-backend/pkg/migrate"
	"github.com/orderlyhq/orderly-backend/pkg/pubsub"
	"github.com/orderlyhq/orderly-backend/pkg/redis"
	pkgstripe "github.com/orderlyhq/orderly-backend/pkg/stripe"
)

const webhookGuardTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, ctx, "failed to load config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.NewClient(cfg.DB)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap database", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := dbClient.WaitReady(ctx, 30*time.Second); err != nil {
		fatal(logg, ctx, "database not ready", err)
	}

	if err := migrate.AutoRun(ctx, cfg, logg); err != nil {
		fatal(logg, ctx, "failed to run migrations", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		fatal(logg, ctx, "failed to bootstrap redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		fatal(logg, ctx, "redis not reachable", err)
	}

	authManager, err := pkgauth.NewManager(cfg.JWT)
	if err != nil {
		fatal(logg, ctx, "failed to create auth manager", err)
	}

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create stripe client", err)
	}

	courierClient, err := dispatch.NewClient(ctx, cfg.Courier, redisClient, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create courier client", err)
	}

	var mail mailer.Mailer = mailer.NoopMailer{}
	if cfg.Sendgrid.APIKey != "" {
		mail, err = mailer.NewSendgridMailer(cfg.Sendgrid, logg)
		if err != nil {
			fatal(logg, ctx, "failed to create mailer", err)
		}
	} else {
		logg.Warn(ctx, "sendgrid not configured, email notifications disabled")
	}

	var feed realtime.Publisher = realtime.NoopPublisher{}
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			fatal(logg, ctx, "failed to create pubsub client", err)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}()
		feed, err = realtime.NewPublisher(pubsubClient, logg)
		if err != nil {
			fatal(logg, ctx, "failed to create order feed publisher", err)
		}
	} else {
		logg.Warn(ctx, "gcp project not configured, order feed disabled")
	}

	m := metrics.New()
	gormDB := dbClient.Gorm()

	orgRepo := organizations.NewRepository(gormDB)
	menuRepo := menu.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	promoRepo := promos.NewRepository(gormDB)
	reviewRepo := reviews.NewRepository(gormDB)
	notifRepo := notifications.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	deliveryRepo := deliveries.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	webhookRepo := webhooks.NewRepository(gormDB)

	notifSvc, err := notifications.NewService(notifRepo, mail, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create notification service", err)
	}
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		fatal(logg, ctx, "failed to create ledger service", err)
	}
	orgSvc, err := organizations.NewService(orgRepo, organizations.NewStripeAccounts(stripeClient), logg)
	if err != nil {
		fatal(logg, ctx, "failed to create organization service", err)
	}
	menuSvc, err := menu.NewService(menuRepo, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create menu service", err)
	}
	promoSvc, err := promos.NewService(promoRepo)
	if err != nil {
		fatal(logg, ctx, "failed to create promo service", err)
	}
	orderSvc, err := orders.NewService(orderRepo, dbClient, orders.NewStripeRefunds(stripeClient), notifSvc, feed, m, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create order service", err)
	}
	reviewSvc, err := reviews.NewService(reviewRepo, orderSvc)
	if err != nil {
		fatal(logg, ctx, "failed to create review service", err)
	}
	deliverySvc, err := deliveries.NewService(
		deliveryRepo,
		webhookRepo,
		orgRepo,
		orderSvc,
		courierClient,
		deliveries.NewLedgerRecorder(ledgerSvc),
		notifSvc,
		feed,
		m,
		logg,
	)
	if err != nil {
		fatal(logg, ctx, "failed to create delivery service", err)
	}
	orders.SetDispatcher(orderSvc, deliverySvc)

	checkoutSvc, err := checkout.NewService(
		dbClient,
		orgSvc,
		menuRepo,
		orderRepo,
		promoSvc,
		checkout.NewPaymentIntents(stripeClient),
		checkout.NewDeliveryQuoter(courierClient),
		notifSvc,
		feed,
		m,
		logg,
	)
	if err != nil {
		fatal(logg, ctx, "failed to create checkout service", err)
	}
	paymentSvc, err := payments.NewService(paymentRepo, webhookRepo, orderSvc, orgSvc, ledgerSvc, stripeClient, m, logg)
	if err != nil {
		fatal(logg, ctx, "failed to create payment service", err)
	}

	stripeGuard, err := webhooks.NewIdempotencyGuard(redisClient, webhookGuardTTL, "webhook:stripe")
	if err != nil {
		fatal(logg, ctx, "failed to create stripe webhook guard", err)
	}
	courierGuard, err := webhooks.NewIdempotencyGuard(redisClient, webhookGuardTTL, "webhook:courier")
	if err != nil {
		fatal(logg, ctx, "failed to create courier webhook guard", err)
	}

	handler := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		AuthManager: authManager,
		Metrics:     m,

		Organizations: orgSvc,
		Menu:          menuSvc,
		Checkout:      checkoutSvc,
		Orders:        orderSvc,
		Deliveries:    deliverySvc,
		Promos:        promoSvc,
		Reviews:       reviewSvc,
		Notifications: notifSvc,
		Ledger:        ledgerSvc,
		Payments:      paymentSvc,

		StripeClient:  stripeClient,
		CourierClient: courierClient,
		StripeGuard:   stripeGuard,
		CourierGuard:  courierGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fatal(logg, startCtx, "api server stopped unexpectedly", err)
		}
	case <-shutdownCtx.Done():
		logg.Info(startCtx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(startCtx, "graceful shutdown failed", err)
		}
	}
}

func fatal(logg *logger.Logger, ctx context.Context, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
