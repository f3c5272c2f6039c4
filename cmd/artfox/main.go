package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ArtFox/app/controllers"
	"github.com/ManuelReschke/ArtFox/internal/pkg/billing"
	"github.com/ManuelReschke/ArtFox/internal/pkg/cache"
	"github.com/ManuelReschke/ArtFox/internal/pkg/config"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/database"
	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
	"github.com/ManuelReschke/ArtFox/internal/pkg/generation"
	"github.com/ManuelReschke/ArtFox/internal/pkg/guard"
	"github.com/ManuelReschke/ArtFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
	"github.com/ManuelReschke/ArtFox/internal/pkg/printdata"
	"github.com/ManuelReschke/ArtFox/internal/pkg/router"
	"github.com/ManuelReschke/ArtFox/internal/pkg/upload"
)

const shutdownTimeout = 15 * time.Second

// Application is the wired service plus what has to be stopped on exit.
type Application struct {
	App    *fiber.App
	Config *config.Config

	state   *stateStores
	queue   *jobqueue.Queue
	limiter fiber.Storage
}

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := NewApplication(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		<-ctx.Done()
		log.Info("[Main] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.App.ShutdownWithContext(shutdownCtx); err != nil {
			log.Errorf("[Main] HTTP shutdown failed: %v", err)
		}
	}()

	if err := a.App.Listen(cfg.ListenAddr()); err != nil {
		log.Errorf("[Main] Server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}

func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	var db *gorm.DB
	if cfg.StateBackend == config.StateBackendDB {
		var err error
		db, err = database.SetupDatabase(ctx)
		if err != nil {
			return nil, err
		}
	}

	state := openStateStores(ctx, cfg, db)
	ledger := credits.NewLedger(credits.Config{
		FreeCredits:        cfg.FreeCredits,
		MaxPurchaseCredits: cfg.MaxPurchaseCredits,
	}, state.credits, state.creditsDoc)
	orderState := orders.NewState(state.orders, cfg.ProcessedEventsCap, state.ordersDoc)

	// print data jobs
	printCfg, err := printdata.LoadConfig()
	if err != nil {
		return nil, err
	}
	var uploader printdata.Uploader
	if printCfg.IsEnabled() {
		s3Uploader, err := printdata.NewS3Uploader(ctx, printCfg)
		if err != nil {
			return nil, err
		}
		uploader = s3Uploader
	} else {
		log.Infof("[Main] S3 print data storage disabled, writing sheets to %s", printCfg.LocalDir)
		uploader = printdata.NewLocalUploader(printCfg.LocalDir)
	}
	queue := jobqueue.NewQueue(cfg.PrintWorkers)
	dispatcher := printdata.NewDispatcher(orderState, queue, printdata.NewGenerator(uploader))
	queue.Start()
	if n, err := dispatcher.Resume(ctx); err != nil {
		log.Errorf("[Main] Failed to resume print data jobs: %v", err)
	} else if n > 0 {
		log.Infof("[Main] Resumed %d interrupted print data jobs", n)
	}

	// payment reconciliation
	verifier := billing.NewSignatureVerifier(cfg.WebhookNotificationURL, cfg.WebhookSignatureKeys)
	if !verifier.Configured() {
		log.Warn("[Main] Payment webhook signature is not configured, webhooks will be rejected")
	}
	var coupons billing.CouponRedeemer
	if cfg.CouponAPIURL != "" {
		coupons = billing.NewHTTPCouponClient(cfg.CouponAPIURL, cfg.CouponAPIKey)
	}
	reconciler := billing.NewReconciler(verifier, orderState, coupons, dispatcher)

	// generation
	var g guard.Guard = guard.NewLocalGuard()
	var limiterStorage fiber.Storage
	if cfg.GuardBackend == config.GuardBackendRedis {
		client, err := cache.SetupCache(ctx)
		if err != nil {
			return nil, err
		}
		g = guard.NewRedisGuard(client, cfg.GuardTTL)
		limiterStorage = cache.NewFiberStorage()
	}
	var generator *generation.Service
	if cfg.GenerationAPIURL != "" {
		provider := generation.NewHTTPProvider(cfg.GenerationAPIURL, cfg.GenerationAPIKey)
		generator = generation.NewService(ledger, g, provider, cfg.GenerationMaxDimension)
	} else {
		log.Warn("[Main] GENERATION_API_URL is not set, /api/v1/generate is disabled")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "ArtFox",
		BodyLimit: upload.MaxImageBytes + 1<<20,
		Immutable: true,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if cfg.MetricsPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MetricsUser: cfg.MetricsPassword,
			},
		}), monitor.New())
	}

	// ROUTER
	handler := controllers.NewHandler(ledger, orderState, reconciler, generator)
	handler.Queue = queue
	router.InstallRouter(app, handler, router.Options{
		InternalAPIKey: cfg.InternalAPIKey,
		RateLimit:      cfg.APIRateLimit,
		LimiterStorage: limiterStorage,
	})

	log.Infof("[Main] ArtFox ready (state=%s, guard=%s)", cfg.StateBackend, cfg.GuardBackend)
	return &Application{App: app, Config: cfg, state: state, queue: queue, limiter: limiterStorage}, nil
}

// Close stops background work first so its last state changes are flushed.
func (a *Application) Close(ctx context.Context) error {
	a.queue.Stop()
	if err := a.state.close(ctx); err != nil {
		return fmt.Errorf("failed to flush state: %w", err)
	}
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			log.Warnf("[Main] Failed to close limiter storage: %v", err)
		}
	}
	if err := cache.Close(); err != nil {
		log.Warnf("[Main] Failed to close cache: %v", err)
	}
	return nil
}
