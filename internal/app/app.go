package app

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/handler"
	"github.com/xenking/kitchen-orders/internal/notify"
	"github.com/xenking/kitchen-orders/internal/storage"
	"github.com/xenking/kitchen-orders/internal/storage/firestore"
	"github.com/xenking/kitchen-orders/internal/storage/memory"
	"github.com/xenking/kitchen-orders/internal/storage/postgres"
	"github.com/xenking/kitchen-orders/pkg/health"
	"github.com/xenking/kitchen-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("Close storage", zap.Error(err))
		}
	}()

	events, err := openEvents(ctx, lg, cfg.Events)
	if err != nil {
		return errors.Wrap(err, "open event sinks")
	}
	defer events.close(lg)

	orders, err := order.NewService(order.Deps{
		Products:       store.Products,
		Stock:          store.Stock,
		Coupons:        store.Coupons,
		Schedules:      store.Schedules,
		Orders:         store.Orders,
		Numbers:        store.Numbers,
		Events:         events.sink,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck(health.Check{
		Name:    cfg.Storage.Driver,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(cfg.Storage.Driver, store.Ping),
	})
	healthSvc.AddLivenessCheck(health.Check{Name: "goroutines", Func: health.GoroutineCountCheck(10000)})

	if cfg.Auth.JWTSecret == "" {
		lg.Warn("No JWT secret configured, every bearer token will be rejected")
	}
	router, err := NewRouter(ctx, RouterDeps{
		Config:         cfg,
		Logger:         lg,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
		Orders:         orders,
		Hub:            events.hub,
		Health:         healthSvc,
	})
	if err != nil {
		return errors.Wrap(err, "create router")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           router,
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	if events.hub != nil {
		g.Go(func() error {
			events.hub.Run(gCtx)
			return nil
		})
	}
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// OpenStorage connects the configured storage backend.
func OpenStorage(ctx context.Context, cfg StorageConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case storage.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case storage.DriverFirestore:
		return firestore.Open(ctx, firestore.Config{
			ProjectID:    cfg.Firestore.ProjectID,
			EmulatorHost: cfg.Firestore.EmulatorHost,
		})
	case storage.DriverMemory:
		return memory.New(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

type eventSinks struct {
	sink    order.EventSink
	hub     *notify.Hub
	closers []func() error
}

func (e *eventSinks) close(lg *zap.Logger) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			lg.Warn("Close event sink", zap.Error(err))
		}
	}
}

// openEvents builds the fan-out of every enabled event transport. The log
// sink is always first.
func openEvents(ctx context.Context, lg *zap.Logger, cfg EventsConfig) (_ *eventSinks, rerr error) {
	out := &eventSinks{}
	defer func() {
		if rerr != nil {
			out.close(lg)
		}
	}()
	fanout := notify.Fanout{notify.Log{}}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := notify.DialKafka(notify.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			EnqueueTimeout: cfg.Kafka.EnqueueTimeout,
		}, lg.Named("kafka"))
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, k.Close)
		fanout = append(fanout, k)
		lg.Info("Publishing order events to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, errors.Wrap(err, "pubsub: create client")
		}
		out.closers = append(out.closers, client.Close)
		ps, err := notify.NewPubSub(client.Topic(cfg.PubSub.Topic), lg.Named("pubsub"))
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, ps.Close)
		fanout = append(fanout, ps)
		lg.Info("Publishing order events to Pub/Sub", zap.String("topic", cfg.PubSub.Topic))
	}

	if cfg.WebSocket {
		out.hub = notify.NewHub(lg.Named("hub"), nil)
		fanout = append(fanout, out.hub)
	}
	out.sink = fanout
	return out, nil
}

// RouterDeps are the collaborators of the HTTP router.
type RouterDeps struct {
	Config         *Config
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Orders         *order.Service
	// Hub is nil when the staff feed is disabled.
	Hub    *notify.Hub
	Health *health.Health
}

// NewRouter mounts health probes and the API behind the middleware chain.
// The rate limiter's cleanup stops with ctx.
func NewRouter(ctx context.Context, d RouterDeps) (http.Handler, error) {
	cfg := d.Config
	instrument, err := httpmiddleware.Instrument(d.MeterProvider.Meter("kitchen/http"))
	if err != nil {
		return nil, errors.Wrap(err, "create http metrics")
	}

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(d.Logger),
		instrument,
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", d.Health.LiveEndpoint)
	r.Get("/readyz", d.Health.ReadyEndpoint)

	authn := handler.NewAuthenticator([]byte(cfg.Auth.JWTSecret))
	api := handler.New(handler.Config{EnforceSchedule: cfg.Ordering.EnforceSchedule}, d.Orders, d.Hub)
	r.Route("/api", func(r chi.Router) {
		r.Use(
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			authn.Middleware,
		)
		api.Routes(r)
	})

	return otelhttp.NewHandler(r, "kitchen-api",
		otelhttp.WithMeterProvider(d.MeterProvider),
		otelhttp.WithTracerProvider(d.TracerProvider),
	), nil
}
