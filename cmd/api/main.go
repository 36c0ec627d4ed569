package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stitchfield/api/internal/catalog"
	"github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/handlers"
	"github.com/stitchfield/api/internal/payments"
	"github.com/stitchfield/api/internal/platform/auth"
	"github.com/stitchfield/api/internal/platform/config"
	"github.com/stitchfield/api/internal/platform/idempotency"
	"github.com/stitchfield/api/internal/platform/observability"
	"github.com/stitchfield/api/internal/repositories/memory"
	"github.com/stitchfield/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	productCatalog := catalog.NewStaticCatalog(catalog.DefaultProducts()...)

	verifier, err := newPaymentVerifier(cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment verifier", zap.Error(err))
	}

	sessionStore := memory.NewSessionStore()

	pricingEngine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Catalog:    productCatalog,
		TaxRateBps: int64(cfg.Checkout.TaxRateBps),
		Logger:     observability.EventLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	fulfillmentResolver, err := services.NewFulfillmentResolver(services.FulfillmentResolverDeps{
		Catalog: productCatalog,
	})
	if err != nil {
		logger.Fatal("failed to initialise fulfillment resolver", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutSessionService(services.CheckoutSessionServiceDeps{
		Store:       sessionStore,
		Pricer:      pricingEngine,
		Fulfillment: fulfillmentResolver,
		Verifier:    verifier,
		Currency:    cfg.Checkout.Currency,
		Provider: domain.PaymentProvider{
			Provider:                cfg.PSP.Provider,
			SupportedPaymentMethods: cfg.PSP.SupportedPaymentMethods,
		},
		MerchantBaseURL: cfg.Checkout.MerchantBaseURL,
		VerifyTimeout:   cfg.PSP.VerifyTimeout,
		Logger:          observability.EventLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout session service", zap.Error(err))
	}

	checkoutHandlers, err := handlers.NewCheckoutHandlers(handlers.CheckoutHandlersDeps{
		Service:    checkoutService,
		APIVersion: cfg.Protocol.Version,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout handlers", zap.Error(err))
	}

	idempotencyStore := idempotency.NewMemoryStore()
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(zap.NewStdLog(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					removed, err := idempotencyStore.Sweep(cleanupCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					if err != nil {
						cleanupLogger.Error("idempotency sweep error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency sweep removed entries", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithReadinessCheck("session_store", func(ctx context.Context) error {
			_, err := sessionStore.GetSession(ctx, "readiness-probe")
			var storeErr interface{ IsNotFound() bool }
			if errors.As(err, &storeErr) && storeErr.IsNotFound() {
				return nil
			}
			return err
		}),
		handlers.WithReadinessCheck("catalog", func(ctx context.Context) error {
			_, err := productCatalog.Lookup(ctx, "item_001")
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Register),
		handlers.WithCheckoutMiddlewares(
			auth.RequireBearer(cfg.Auth.APIKeys),
			idempotencyMiddleware,
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("stitchfield api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newPaymentVerifier selects the verifier backend from configuration. The
// static backend accepts any token without a declined prefix and needs no
// credentials; the stripe backend resolves tokens against the Stripe API.
func newPaymentVerifier(cfg config.Config) (payments.Verifier, error) {
	switch cfg.PSP.VerifierMode {
	case "static":
		return payments.NewStaticVerifier(), nil
	case "stripe":
		return payments.NewStripeVerifier(payments.StripeVerifierConfig{
			APIKey: cfg.PSP.StripeAPIKey,
		})
	default:
		return nil, fmt.Errorf("unsupported verifier mode %q", cfg.PSP.VerifierMode)
	}
}
