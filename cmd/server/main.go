package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/zjoart/churpay/cmd/routes"
	"github.com/zjoart/churpay/internal/auth"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/donation"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/internal/notify"
	"github.com/zjoart/churpay/internal/payout"
	"github.com/zjoart/churpay/internal/store/memory"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/events"
	"github.com/zjoart/churpay/pkg/logger"
)

type stores struct {
	users    user.Repository
	wallets  wallet.Repository
	churches church.Repository
	payouts  payout.Repository
	tx       database.Transactor
}

func main() {
	cfg := config.LoadConfig()

	if err := logger.Init(cfg.Env); err != nil {
		panic(err)
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStores(cfg)
	if err != nil {
		logger.Fatal("Could not open storage", logger.Merge(logger.Fields{"driver": cfg.StorageDriver}, logger.WithError(err)))
	}

	ledger := wallet.NewService(s.wallets, s.tx, cfg.Currency, wallet.WithUsers(s.users))
	authService := auth.NewService(cfg.JWTSecret, s.users, ledger, s.tx)
	if err := authService.EnsureSuperAdmin(ctx, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
		logger.Fatal("Could not seed super admin", logger.WithError(err))
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	churchService := church.NewService(s.churches, s.users, ledger, s.tx, notify.NewChurchNotifier(sender), church.Options{
		SetupURL: cfg.SetupURL,
		TokenTTL: cfg.SetupTokenTTL,
	})

	redisClient := events.NewRedisClient(cfg)
	defer redisClient.Close()

	// start background worker
	worker := wallet.NewTopUpWorker(ledger, redisClient)
	worker.Start(ctx)

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(ctx, r, cfg, routes.App{
		Users:     s.users,
		Auth:      authService,
		Ledger:    ledger,
		Churches:  churchService,
		Payouts:   payout.NewService(s.payouts, s.churches, ledger, s.tx),
		Donations: donation.NewService(s.churches, ledger, s.tx),
		Publisher: redisClient,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env, "storage": cfg.StorageDriver})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", logger.WithError(err))
	}
	logger.Info("Server gracefully shut down")
}

func openStores(cfg config.Config) (*stores, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		m := memory.New()
		return &stores{users: m, wallets: m, churches: m, payouts: m, tx: m}, nil
	}

	db, err := database.Connect(cfg.DBUrl)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, &user.User{}, &wallet.Wallet{}, &wallet.Transaction{}, &church.Church{}, &payout.Payout{}); err != nil {
		return nil, err
	}

	return &stores{
		users:    user.NewRepository(db),
		wallets:  wallet.NewRepository(db),
		churches: church.NewRepository(db),
		payouts:  payout.NewRepository(db),
		tx:       database.NewTransactor(db),
	}, nil
}
