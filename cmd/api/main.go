package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tundeabiodun/lms-backend/internal/api"
	"github.com/tundeabiodun/lms-backend/internal/api/handlers"
	"github.com/tundeabiodun/lms-backend/internal/auth"
	"github.com/tundeabiodun/lms-backend/internal/config"
	"github.com/tundeabiodun/lms-backend/internal/db"
	"github.com/tundeabiodun/lms-backend/internal/events"
	"github.com/tundeabiodun/lms-backend/internal/gateway/paystack"
	"github.com/tundeabiodun/lms-backend/internal/logger"
	"github.com/tundeabiodun/lms-backend/internal/metrics"
	"github.com/tundeabiodun/lms-backend/internal/repository/postgres"
	"github.com/tundeabiodun/lms-backend/internal/services"
	"github.com/tundeabiodun/lms-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	var pub events.Publisher = events.Nop{}
	if kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log); kp != nil {
		defer kp.Close()
		pub = kp
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, log)

	userSvc := services.NewUserService(repos.Users, tokens)
	pricingSvc := services.NewPricingService(repos.Coupons, repos.Courses)
	walletSvc := services.NewWalletService(repos.Wallets)
	settlementSvc := services.NewSettlementService(
		services.SettlementConfig{
			CallbackURL:     cfg.PaymentCallbackURL,
			DefaultCurrency: cfg.DefaultCurrency,
		},
		services.SettlementRepos{
			Users:          repos.Users,
			Courses:        repos.Courses,
			Enrollments:    repos.Enrollments,
			Transactions:   repos.Transactions,
			Payments:       repos.Payments,
			Coupons:        repos.Coupons,
			PaymentMethods: repos.PaymentMethods,
			Subscriptions:  repos.Subscriptions,
			AuditLogs:      repos.AuditLogs,
		},
		pricingSvc,
		gateway,
		pub,
		wp,
		log,
	)

	monitor := worker.NewPendingMonitor(repos.Transactions, time.Minute, 30*time.Minute, log)
	go monitor.Run(ctx)

	r := api.NewRouter(api.RouterDeps{
		Cfg:      cfg,
		Auth:     handlers.NewAuthHandler(userSvc),
		Payments: handlers.NewPaymentHandler(settlementSvc, pricingSvc, walletSvc, repos.Transactions, repos.PaymentMethods, cfg.PaystackWebhookSecret, log),
		Tokens:   tokens,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
