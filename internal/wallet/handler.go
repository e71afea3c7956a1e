package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/events"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/money"
	"github.com/zjoart/churpay/pkg/utils"
)

const SignatureHeader = "x-gateway-signature"

type Publisher interface {
	PublishTopUp(ctx context.Context, event events.TopUpEvent) error
}

type Handler struct {
	Config    config.Config
	Service   *Service
	Users     user.Repository
	Publisher Publisher
}

func NewHandler(cfg config.Config, service *Service, users user.Repository, publisher Publisher) *Handler {
	return &Handler{Config: cfg, Service: service, Users: users, Publisher: publisher}
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Service.GetWallet(r.Context(), usr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Details", wallet)
}

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	wallet, err := h.Service.GetWallet(r.Context(), usr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Balance", map[string]any{
		"available_balance": wallet.AvailableBalance,
		"pending_balance":   wallet.PendingBalance,
		"currency":          wallet.Currency,
		"display":           money.Format(wallet.AvailableBalance, wallet.Currency),
	})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)
	limit, offset, page := utils.GetPaginationDetails(r)

	txs, count, err := h.Service.History(r.Context(), usr.ID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction History", map[string]interface{}{
		"transactions": txs,
		"meta":         utils.NewPageMeta(count, limit, page),
	})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	rec, err := h.Service.Reconcile(r.Context(), usr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Reconciliation", rec)
}

type TransferFundsRequest struct {
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Description    string `json:"description" validate:"max=255"`
}

func (h *Handler) TransferFunds(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	var req TransferFundsRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Amount is below the minimum of "+money.Format(h.Config.MinTransactionAmount, h.Config.Currency), nil)
		return
	}

	recipient, err := h.Users.FindByEmail(r.Context(), req.RecipientEmail)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Recipient not found", nil)
			return
		}
		writeError(w, r, err)
		return
	}

	res := h.Service.Transfer(r.Context(), TransferRequest{
		FromUserID:  usr.ID,
		ToUserID:    recipient.ID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if !res.Success {
		writeError(w, r, res.Err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transfer completed", res)
}

type TopUpRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	var req TopUpRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Amount is below the minimum of "+money.Format(h.Config.MinTransactionAmount, h.Config.Currency), nil)
		return
	}

	entry, err := h.Service.InitiateTopUp(r.Context(), usr.ID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Top-up initiated", map[string]interface{}{
		"reference": entry.Reference,
		"amount":    entry.Amount,
		"currency":  entry.Currency,
		"status":    entry.Status,
	})
}

// TopUpWebhook verifies the gateway signature and queues the event for the
// top-up worker. The gateway only needs a 200 once the event is queued.
func (h *Handler) TopUpWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		logger.Error("Webhook: failed to read body", logger.WithError(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !validSignature(h.Config.GatewaySecret, body, r.Header.Get(SignatureHeader)) {
		logger.Warn("Webhook: signature mismatch", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
			Reason    string `json:"reason"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data.Reference == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event := events.TopUpEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		Amount:    payload.Data.Amount,
		Reason:    payload.Data.Reason,
		Timestamp: time.Now().UTC(),
	}
	if err := h.Publisher.PublishTopUp(r.Context(), event); err != nil {
		logger.Error("Webhook: failed to queue event", logger.Merge(logger.Fields{"reference": event.Reference}, logger.WithError(err)))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	logger.Info("Webhook: event queued", logger.Fields{"event": event.Event, "reference": event.Reference})
	w.WriteHeader(http.StatusOK)
}

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTransactionNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrCurrencyMismatch):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), map[string]string{"reason": FailureReason(err)})
	case errors.Is(err, ErrChurchWallet):
		utils.BuildErrorResponse(w, http.StatusForbidden, err.Error(), map[string]string{"reason": FailureReason(err)})
	case errors.Is(err, ErrLedgerMismatch), errors.Is(err, ErrTransactionFinalized):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	default:
		if !errors.Is(err, database.ErrPersistence) {
			logger.Error("Unhandled wallet error", logger.Merge(logger.FromContext(r.Context()), logger.WithError(err)))
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
