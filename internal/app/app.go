package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/cache"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/review"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/notify"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	b, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer b.close()
	healthSvc.AddReadinessCheck(cfg.Store, 5*time.Second, health.PingCheck(b.pinger))

	var lists order.ListCache
	if cfg.Redis.URL != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		c := cache.New(rdb, cfg.Redis.OrderListTTL)
		lists = c
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(c), health.WithThresholds(5, 1))
		lg.Info("Order list cache enabled", zap.Duration("ttl", cfg.Redis.OrderListTTL))
	}

	var notifier order.Notifier = notify.Log{}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := w.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		notifier = notify.NewKafka(w)
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	seed := cfg.Payment.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	orders, err := order.NewService(b.tx, b.orders, coupon.NewEvaluator(), order.Options{
		MaxTxAttempts:   cfg.Orders.MaxTxAttempts,
		HookConcurrency: cfg.Orders.HookConcurrency,
		HookBacklog:     cfg.Orders.HookBacklog,
		HookTimeout:     cfg.Orders.HookTimeout,
		Payments:        order.NewRandomAuthorizer(cfg.Payment.ApprovalRate, seed),
		Notifier:        notifier,
		Cache:           lists,
		MeterProvider:   m.MeterProvider(),
		TracerProvider:  m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	reviews := review.NewService(b.reviews, b.products, b.purchases)

	router := handler.NewRouter(
		handler.NewHandler(orders, reviews),
		handler.NewSecurityHandler(b.apikeys, []byte(cfg.APIKeyPepper)),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
			KeyFunc: handler.PrincipalKey,
		}),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(router,
				httpmiddleware.InjectLogger(lg),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests(),
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
			),
			"kart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := orders.Shutdown(shutdownCtx); err != nil {
			lg.Error("Post-commit hooks did not finish", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
