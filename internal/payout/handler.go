package payout

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/churpay/internal/church"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

type CreatePayoutRequest struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Category    string `json:"category" validate:"required,oneof=operations salaries maintenance outreach events other"`
	Description string `json:"description" validate:"max=500"`
}

// RequestPayout is called by a church admin for their own church.
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)
	if usr.ChurchID == nil {
		utils.BuildErrorResponse(w, http.StatusForbidden, "User is not linked to a church", nil)
		return
	}

	var req CreatePayoutRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	p, err := h.Service.RequestPayout(r.Context(), Request{
		ChurchID:    *usr.ChurchID,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		RequestedBy: usr.ID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Payout requested", p)
}

func (h *Handler) ListChurchPayouts(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)
	if usr.ChurchID == nil {
		utils.BuildErrorResponse(w, http.StatusForbidden, "User is not linked to a church", nil)
		return
	}
	h.list(w, r, usr.ChurchID)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	var churchID *uuid.UUID
	if raw := r.URL.Query().Get("church_id"); raw != "" {
		parsed, err := id.IsValidUUID(raw)
		if err != nil {
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid church id", nil)
			return
		}
		churchID = &parsed
	}
	h.list(w, r, churchID)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, churchID *uuid.UUID) {
	limit, offset, page := utils.GetPaginationDetails(r)
	filter := Filter{ChurchID: churchID, Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}

	payouts, count, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Payouts", map[string]interface{}{
		"payouts": payouts,
		"meta":    utils.NewPageMeta(count, limit, page),
	})
}

type DecisionRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string   `json:"reason" validate:"max=500"`
}

func (h *Handler) DecidePayout(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := pathID(w, r)
	if !ok {
		return
	}
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	var req DecisionRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	p, err := h.Service.DecidePayout(r.Context(), payoutID, req.Decision, usr.ID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Payout "+string(p.Status), p)
}

func (h *Handler) CompletePayout(w http.ResponseWriter, r *http.Request) {
	payoutID, ok := pathID(w, r)
	if !ok {
		return
	}
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	p, err := h.Service.CompletePayout(r.Context(), payoutID, usr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Payout completed", p)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	payoutID, err := id.IsValidUUID(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid payout id", nil)
		return uuid.Nil, false
	}
	return payoutID, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, church.ErrNotFound), errors.Is(err, wallet.ErrWalletNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInvalidState), errors.Is(err, wallet.ErrLedgerMismatch):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, church.ErrNotApproved):
		utils.BuildErrorResponse(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidDecision),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInsufficientBalance):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
	default:
		if !errors.Is(err, database.ErrPersistence) {
			logger.Error("Unhandled payout error", logger.Merge(logger.FromContext(r.Context()), logger.WithError(err)))
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
