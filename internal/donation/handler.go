package donation

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/money"
	"github.com/zjoart/churpay/pkg/utils"
)

type Handler struct {
	Config  config.Config
	Service *Service
}

func NewHandler(cfg config.Config, service *Service) *Handler {
	return &Handler{Config: cfg, Service: service}
}

type DonateRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Description string `json:"description" validate:"max=255"`
}

func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	churchID, err := id.IsValidUUID(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid church id", nil)
		return
	}

	var req DonateRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	if req.Amount < h.Config.MinTransactionAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Amount is below the minimum of "+money.Format(h.Config.MinTransactionAmount, h.Config.Currency), nil)
		return
	}

	receipt, err := h.Service.Donate(r.Context(), usr.ID, churchID, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, church.ErrNotFound), errors.Is(err, wallet.ErrWalletNotFound):
			utils.BuildErrorResponse(w, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, church.ErrNotApproved):
			utils.BuildErrorResponse(w, http.StatusForbidden, err.Error(), nil)
		case errors.Is(err, wallet.ErrInsufficientBalance),
			errors.Is(err, wallet.ErrInvalidAmount),
			errors.Is(err, wallet.ErrSelfTransfer),
			errors.Is(err, wallet.ErrCurrencyMismatch):
			utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		default:
			if !errors.Is(err, database.ErrPersistence) {
				logger.Error("Unhandled donation error", logger.Merge(logger.FromContext(r.Context()), logger.WithError(err)))
			}
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Donation failed", nil)
		}
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Donation completed", receipt)
}
