package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/alphafolio-backend/internal/adapter/grpc"
	"github.com/simaogato/alphafolio-backend/internal/adapter/pricefeed"
	"github.com/simaogato/alphafolio-backend/internal/adapter/repository/memory"
	"github.com/simaogato/alphafolio-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/alphafolio-backend/internal/config"
	"github.com/simaogato/alphafolio-backend/internal/domain"
	"github.com/simaogato/alphafolio-backend/internal/telemetry"
	"github.com/simaogato/alphafolio-backend/internal/usecase/dashboard"
	"github.com/simaogato/alphafolio-backend/internal/usecase/ledger"
	"github.com/simaogato/alphafolio-backend/internal/usecase/valuation"
	"github.com/simaogato/alphafolio-backend/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid LOG_LEVEL: %v", err)
	}
	log.SetLevel(level)

	// 1. Setup Storage
	repo, ready, closeStorage := setupStorage(cfg)
	defer closeStorage()

	// 2. Setup Price Feeds
	calendar, err := domain.DefaultSessionCalendar(cfg.MarketHolidays...)
	if err != nil {
		log.Fatalf("Failed to build market calendar: %v", err)
	}
	feed := pricefeed.NewRouter(
		pricefeed.NewYahooFeed(cfg.YahooBaseURL, calendar),
		pricefeed.NewCoinGeckoFeed(cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey),
	)

	// 3. Initialize Services (Use Cases)
	ledgerService := ledger.NewLedgerService(repo, cfg.CostBasisPolicy)
	valuationService := valuation.NewValuationService(repo, feed, calendar)
	valuationService.Metrics = telemetry.Recorder{}
	valuationService.MaxConcurrency = cfg.ValuationConcurrency
	valuationService.CallTimeout = cfg.ValuationCallTimeout
	dashboardService := dashboard.NewDashboardService(valuationService)

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			telemetry.UnaryServerInterceptor(),
			grpcadapter.AuthInterceptor(cfg.APIToken),
		),
	)
	grpcadapter.RegisterPortfolioServiceServer(grpcServer, grpcadapter.NewServer(ledgerService, valuationService, dashboardService))
	reflection.Register(grpcServer)

	grpcAddr := ":" + cfg.GRPCPort
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", grpcAddr, err)
	}

	go func() {
		log.Infof("gRPC server listening on %s (storage=%s, cost basis=%s)", grpcAddr, cfg.Storage, cfg.CostBasisPolicy)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve gRPC server: %v", err)
		}
	}()

	// 5. Start metrics/health HTTP server
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           telemetry.NewRouter(ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Metrics server listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	// Graceful shutdown
	waitForShutdown(grpcServer, metricsServer)
}

// setupStorage returns the ledger repository selected by cfg, its readiness
// check and a close function
func setupStorage(cfg config.Config) (domain.LedgerRepository, telemetry.ReadinessCheck, func()) {
	if cfg.Storage != config.StoragePostgres {
		log.Warn("Using in-memory ledger; data is lost on restart")
		return memory.NewLedgerRepository(), nil, func() {}
	}

	db, err := connectWithRetry(cfg.DatabaseURL, 5, 2*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Info("Database schema is up to date")

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Errorf("Failed to close database: %v", err)
		}
	}
	return postgres.NewLedgerRepository(db), db.PingContext, closeDB
}

// connectWithRetry waits for Postgres to accept connections
func connectWithRetry(connStr string, attempts int, delay time.Duration) (*postgres.DB, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var db *postgres.DB
		db, err = postgres.NewDB(connStr)
		if err == nil {
			return db, nil
		}
		log.Warnf("Database not ready (attempt %d/%d): %v", i, attempts, err)
		time.Sleep(delay)
	}
	return nil, err
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the servers
func waitForShutdown(grpcServer *grpclib.Server, metricsServer *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Infof("Received signal: %v. Shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Errorf("Metrics server shutdown: %v", err)
	}

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")
}
