package routes

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/zjoart/churpay/internal/auth"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/donation"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/internal/middleware"
	"github.com/zjoart/churpay/internal/payout"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/logger"
	"golang.org/x/time/rate"
)

// App holds the services the HTTP surface is built from.
type App struct {
	Users     user.Repository
	Auth      *auth.Service
	Ledger    *wallet.Service
	Churches  *church.Service
	Payouts   *payout.Service
	Donations *donation.Service
	Publisher wallet.Publisher
}

func RegisterRoutes(ctx context.Context, r *mux.Router, cfg config.Config, app App) http.Handler {
	authHandler := auth.NewHandler(cfg, app.Auth)
	walletHandler := wallet.NewHandler(cfg, app.Ledger, app.Users, app.Publisher)
	churchHandler := church.NewHandler(app.Churches)
	payoutHandler := payout.NewHandler(app.Payouts)
	donationHandler := donation.NewHandler(cfg, app.Donations)

	authenticated := auth.JWTMiddleware(app.Auth, app.Users)
	limiter := middleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	r.Use(middleware.LoggingMiddleware)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	authR := r.PathPrefix("/api/auth").Subrouter()
	authR.HandleFunc("/register", authHandler.Register).Methods("POST")
	authR.HandleFunc("/login", authHandler.Login).Methods("POST")
	authR.HandleFunc("/google", authHandler.GoogleLogin).Methods("GET")
	authR.HandleFunc("/google/callback", authHandler.GoogleCallback).Methods("GET")

	publicChurchR := r.PathPrefix("/api/churches").Subrouter()
	publicChurchR.Handle("/register", limiter.Limit(http.HandlerFunc(churchHandler.RegisterChurch))).Methods("POST")
	publicChurchR.HandleFunc("/setup/validate", churchHandler.ValidateSetupToken).Methods("GET")
	publicChurchR.Handle("/setup", limiter.Limit(http.HandlerFunc(churchHandler.CompleteSetup))).Methods("POST")

	donateR := r.PathPrefix("/api/churches/{id}/donations").Subrouter()
	donateR.Use(authenticated, auth.RequireRole(user.RoleMember))
	donateR.HandleFunc("", donationHandler.Donate).Methods("POST")

	walletR := r.PathPrefix("/api/wallet").Subrouter()
	walletR.HandleFunc("/topup/webhook", walletHandler.TopUpWebhook).Methods("POST")

	opsR := walletR.PathPrefix("").Subrouter()
	opsR.Use(authenticated)
	opsR.HandleFunc("", walletHandler.GetWallet).Methods("GET")
	opsR.HandleFunc("/balance", walletHandler.GetWalletBalance).Methods("GET")
	opsR.HandleFunc("/transactions", walletHandler.GetTransactions).Methods("GET")
	opsR.HandleFunc("/reconcile", walletHandler.Reconcile).Methods("GET")
	opsR.HandleFunc("/transfer", walletHandler.TransferFunds).Methods("POST")
	opsR.HandleFunc("/topup", walletHandler.InitiateTopUp).Methods("POST")

	churchAdminR := r.PathPrefix("/api/church").Subrouter()
	churchAdminR.Use(authenticated, auth.RequireRole(user.RoleChurchAdmin))
	churchAdminR.HandleFunc("/payouts", payoutHandler.ListChurchPayouts).Methods("GET")
	churchAdminR.HandleFunc("/payouts", payoutHandler.RequestPayout).Methods("POST")

	adminR := r.PathPrefix("/api/admin").Subrouter()
	adminR.Use(authenticated, auth.RequireRole(user.RoleSuperAdmin))
	adminR.HandleFunc("/churches", churchHandler.ListChurches).Methods("GET")
	adminR.HandleFunc("/churches/{id}", churchHandler.GetChurch).Methods("GET")
	adminR.HandleFunc("/churches/{id}/approve", churchHandler.ApproveChurch).Methods("POST")
	adminR.HandleFunc("/churches/{id}/reject", churchHandler.RejectChurch).Methods("POST")
	adminR.HandleFunc("/churches/{id}/review", churchHandler.MarkUnderReview).Methods("POST")
	adminR.HandleFunc("/churches/{id}/resume", churchHandler.ResumeReview).Methods("POST")
	adminR.HandleFunc("/churches/{id}/suspend", churchHandler.SuspendChurch).Methods("POST")
	adminR.HandleFunc("/churches/{id}/reinstate", churchHandler.ReinstateChurch).Methods("POST")
	adminR.HandleFunc("/payouts", payoutHandler.ListPayouts).Methods("GET")
	adminR.HandleFunc("/payouts/{id}/decision", payoutHandler.DecidePayout).Methods("POST")
	adminR.HandleFunc("/payouts/{id}/complete", payoutHandler.CompletePayout).Methods("POST")

	if !cfg.IsProduction() {

		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modifiedContent := strings.ReplaceAll(string(content), "{{BASE_URL}}", "/")
			modifiedContent = strings.ReplaceAll(modifiedContent, "{{MIN_TRANSACTION_AMOUNT}}", fmt.Sprintf("%d", cfg.MinTransactionAmount))
			modifiedContent = strings.ReplaceAll(modifiedContent, "{{CURRENCY}}", cfg.Currency)

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
	)

	return corsObj(r)
}
