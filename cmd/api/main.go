package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/EderamorimTH/rifa-miguel/internal/app"
	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/config"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
	"github.com/EderamorimTH/rifa-miguel/internal/gateway/mercadopago"
	"github.com/EderamorimTH/rifa-miguel/internal/messaging/rabbitmq"
	"github.com/EderamorimTH/rifa-miguel/internal/storage/postgres"
	"github.com/EderamorimTH/rifa-miguel/internal/telemetry"
	transporthttp "github.com/EderamorimTH/rifa-miguel/internal/transport/http"
	"github.com/EderamorimTH/rifa-miguel/migrations"
)

const (
	serviceName     = "rifa-api"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	config.LoadEnvFile(logger)
	cfg := config.Load(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, uint(max(cfg.DBConnectMaxTries, 1)), logger)
	if err != nil {
		logger.Error("connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "names", applied)
	}

	if cfg.MercadoPagoToken == "" {
		logger.Warn("MP_ACCESS_TOKEN not set, payment gateway calls will fail")
	}
	gateway, err := mercadopago.NewClient(mercadopago.Config{
		BaseURL:         cfg.MercadoPagoBaseURL,
		AccessToken:     cfg.MercadoPagoToken,
		NotificationURL: cfg.NotificationURL,
		BackURL:         cfg.BackURL,
		Timeout:         cfg.GatewayTimeout,
	})
	if err != nil {
		logger.Error("payment gateway client", "error", err)
		os.Exit(1)
	}

	events := app.NopPublisher()
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, order events disabled", "error", err)
		} else {
			defer pub.Close()
			events = pub
		}
	}

	clk := clock.NewSystem()
	format := domain.NumberFormat{Supply: cfg.TotalSupply, Width: cfg.NumberWidth}
	orders := postgres.NewOrderRepository(pool)
	claims := postgres.NewClaimRepository(pool)

	reservations := app.NewReservationService(orders, clk, format,
		app.WithHoldTTL(cfg.HoldTTL),
		app.WithReservationEvents(events, logger),
	)
	checkout := app.NewCheckoutService(orders, gateway, clk,
		app.WithPaymentWindow(cfg.PaymentWindow),
		app.WithIntentTimeout(cfg.GatewayTimeout),
		app.WithTicketItem(cfg.TicketTitle, cfg.TicketPrice),
	)
	inventory := app.NewInventoryService(orders, clk, format)
	reconciler := app.NewReconciler(orders, claims, gateway, clk, logger,
		app.WithClaimLease(cfg.ClaimLease),
		app.WithLookupTimeout(cfg.GatewayTimeout),
		app.WithReconcilerEvents(events),
	)
	sweeper := app.NewSweeper(orders, clk, logger,
		app.WithSweepBatchSize(cfg.SweepBatchSize),
		app.WithSweeperEvents(events),
	)

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx, sweepInterval)
	}()

	mux := http.NewServeMux()
	mux.Handle("/health", transporthttp.HandleHealth(pool))
	mux.Handle("/numbers", transporthttp.HandleNumbers(inventory, logger))
	mux.Handle("/reservations", transporthttp.HandleReserve(reservations, logger))
	mux.Handle("/reservations/", transporthttp.HandleReservation(reservations, checkout, logger))
	mux.Handle("/webhook", transporthttp.HandleWebhook(reconciler, logger))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "port", cfg.Port, "supply", format.Supply)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}
	<-sweepDone
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", "error", err)
	}
	logger.Info("server stopped")
}
