// Command server runs the identity verification service: the verify API, the
// webhook dispatcher, the audit worker, and the stuck-verification sweep.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/doobee46/idswyft-sub005/internal/audit"
	"github.com/doobee46/idswyft-sub005/internal/crossval"
	"github.com/doobee46/idswyft-sub005/internal/decision"
	"github.com/doobee46/idswyft-sub005/internal/developer"
	developerhandler "github.com/doobee46/idswyft-sub005/internal/developer/handler"
	"github.com/doobee46/idswyft-sub005/internal/extraction"
	"github.com/doobee46/idswyft-sub005/internal/extraction/strategies"
	"github.com/doobee46/idswyft-sub005/internal/livecapture"
	"github.com/doobee46/idswyft-sub005/internal/notification"
	notificationhandler "github.com/doobee46/idswyft-sub005/internal/notification/handler"
	"github.com/doobee46/idswyft-sub005/internal/platform/config"
	"github.com/doobee46/idswyft-sub005/internal/platform/httpserver"
	"github.com/doobee46/idswyft-sub005/internal/platform/logger"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/internal/platform/postgres"
	platformredis "github.com/doobee46/idswyft-sub005/internal/platform/redis"
	"github.com/doobee46/idswyft-sub005/internal/providers/docstore"
	"github.com/doobee46/idswyft-sub005/internal/providers/facematch"
	"github.com/doobee46/idswyft-sub005/internal/providers/vision"
	"github.com/doobee46/idswyft-sub005/internal/transport/http/shared"
	"github.com/doobee46/idswyft-sub005/internal/verification"
	verificationhandler "github.com/doobee46/idswyft-sub005/internal/verification/handler"
)

const (
	requestTimeout = 60 * time.Second
	liveTokenTTL   = 5 * time.Minute
	shutdownGrace  = 10 * time.Second
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores: postgres when configured, redis for verification contexts as a
	// middle ground, memory otherwise.
	var (
		verifyStore   verification.Store
		auditStore    audit.Store
		overrideStore decision.OverrideStore
		targetStore   notification.TargetStore
		deliveryStore notification.DeliveryStore
		keyStore      developer.Store
	)
	switch {
	case db != nil:
		verifyStore = verification.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		overrideStore = decision.NewPostgresOverrideStore(db)
		targetStore = notification.NewPostgresTargetStore(db)
		deliveryStore = notification.NewPostgresDeliveryStore(db)
		keyStore = developer.NewPostgresStore(db)
	default:
		if redisClient != nil {
			verifyStore = verification.NewRedisStore(redisClient.Client)
		} else {
			verifyStore = verification.NewMemoryStore()
		}
		auditStore = audit.NewMemoryStore()
		overrideStore = decision.NewMemoryOverrideStore()
		targetStore = notification.NewMemoryTargetStore()
		deliveryStore = notification.NewMemoryDeliveryStore()
		keyStore = developer.NewMemoryStore()
	}

	// Providers. Without a vision service the barcode and OCR strategies
	// report unavailable and face matching falls back to the stub.
	providerClient := &http.Client{Timeout: cfg.Verification.ProviderTimeout}
	var (
		barcodeDecoder strategies.BarcodeDecoder
		recognizer     strategies.TextRecognizer
		faces          facematch.Provider = facematch.NewStub()
	)
	if cfg.Providers.VisionURL != "" {
		visionClient := vision.New(providerClient, cfg.Providers.VisionURL, cfg.Providers.VisionAPIKey)
		barcodeDecoder = visionClient
		recognizer = visionClient
		faces = visionClient
	} else {
		log.Warn("VISION_API_URL not set, using stub face provider and degraded extraction")
	}

	barcode := strategies.NewBarcode(barcodeDecoder)
	chain := extraction.NewChain([]extraction.Strategy{
		barcode,
		strategies.NewPatternOCR(recognizer),
		strategies.NewFreeTextOCR(recognizer),
		strategies.NewAIProvider(providerClient, cfg.Providers.AIDocURL, cfg.Providers.AIDocAPIKey),
	}, log, extraction.WithMetrics(extraction.NewMetrics()))

	auditPublisher := audit.NewPublisher(128, log)
	auditWorker := audit.NewWorker(auditStore, auditPublisher.Inbox(), log)

	webhookMetrics := notification.NewMetrics()
	dispatcher := notification.NewDispatcher(targetStore, deliveryStore, log, cfg.Webhook,
		notification.WithDispatcherMetrics(webhookMetrics))
	registry := notification.NewRegistry(targetStore, deliveryStore, dispatcher, log,
		notification.WithAuditor(auditPublisher))

	scorer := crossval.NewScorer(crossval.DefaultPolicy(), log)
	engine := decision.NewEngine(cfg.Decision, overrideStore, log)

	manager := verification.NewManager(
		verifyStore, chain, barcode, scorer, engine, faces, docstore.NewMemory(), log,
		verification.WithNotifier(notification.NewNotifier(dispatcher, log)),
		verification.WithAuditor(auditPublisher),
		verification.WithManagerMetrics(verification.NewMetrics()),
		verification.WithProviderTimeout(cfg.Verification.ProviderTimeout),
	)
	sweeper := verification.NewSweeper(manager, cfg.Verification.StuckTimeout, cfg.Verification.SweepInterval, log)

	keyService := developer.NewService(keyStore, log)
	if db == nil {
		seedDevelopmentKey(ctx, keyService, log)
	}

	issuer := livecapture.NewIssuer(cfg.Server.JWTSigningKey, liveTokenTTL)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(middleware.ContentTypeJSON)

	router.Get("/api/health", healthHandler(db, redisClient))
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(keyService, log))
		verificationhandler.New(manager, issuer, log).Register(r)
		notificationhandler.New(registry, log).Register(r)
		developerhandler.New(keyService, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return auditWorker.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error {
		log.Info("starting verification service", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedDevelopmentKey issues a throwaway sandbox key so the authenticated
// surface is reachable when running without a database.
func seedDevelopmentKey(ctx context.Context, keys *developer.Service, log *slog.Logger) {
	_, rawKey, err := keys.Issue(ctx, nil, "local development", true)
	if err != nil {
		log.Error("failed to seed development api key", "error", err.Error())
		return
	}
	log.Info("seeded development api key", "x_api_key", rawKey)
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["status"] = "degraded"
				status["postgres"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		shared.WriteJSON(w, code, status)
	}
}
