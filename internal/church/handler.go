package church

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/churpay/internal/user"
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

func (h *Handler) RegisterChurch(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	church, err := h.Service.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Church registered, awaiting approval", church)
}

func (h *Handler) ValidateSetupToken(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.ValidateSetupToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := map[string]interface{}{"valid": status.Valid}
	if status.Valid {
		data["church_name"] = status.Church.Name
		data["admin_email"] = status.Church.AdminEmail
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Setup token checked", data)
}

type CompleteSetupRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req CompleteSetupRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	admin, err := h.Service.CompleteSetup(r.Context(), req.Token, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Church admin account created", admin)
}

func (h *Handler) ListChurches(w http.ResponseWriter, r *http.Request) {
	limit, offset, page := utils.GetPaginationDetails(r)
	filter := Filter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}

	churches, count, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Churches", map[string]interface{}{
		"churches": churches,
		"meta":     utils.NewPageMeta(count, limit, page),
	})
}

func (h *Handler) GetChurch(w http.ResponseWriter, r *http.Request) {
	churchID, ok := pathID(w, r)
	if !ok {
		return
	}

	church, err := h.Service.Get(r.Context(), churchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Church", church)
}

func (h *Handler) ApproveChurch(w http.ResponseWriter, r *http.Request) {
	churchID, ok := pathID(w, r)
	if !ok {
		return
	}
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	church, err := h.Service.Approve(r.Context(), churchID, usr.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Church approved", church)
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) RejectChurch(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, "Church rejected", func(churchID uuid.UUID, reason string) (*Church, error) {
		usr, _ := r.Context().Value(utils.UserKey).(user.User)
		return h.Service.Reject(r.Context(), churchID, usr.ID, reason)
	})
}

func (h *Handler) MarkUnderReview(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, "Church placed under review", func(churchID uuid.UUID, note string) (*Church, error) {
		return h.Service.MarkUnderReview(r.Context(), churchID, note)
	})
}

func (h *Handler) SuspendChurch(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, "Church suspended", func(churchID uuid.UUID, reason string) (*Church, error) {
		return h.Service.Suspend(r.Context(), churchID, reason)
	})
}

func (h *Handler) ResumeReview(w http.ResponseWriter, r *http.Request) {
	churchID, ok := pathID(w, r)
	if !ok {
		return
	}

	church, err := h.Service.ResumeReview(r.Context(), churchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Church returned to pending", church)
}

func (h *Handler) ReinstateChurch(w http.ResponseWriter, r *http.Request) {
	churchID, ok := pathID(w, r)
	if !ok {
		return
	}

	church, err := h.Service.Reinstate(r.Context(), churchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Church reinstated", church)
}

func (h *Handler) withReason(w http.ResponseWriter, r *http.Request, message string, fn func(uuid.UUID, string) (*Church, error)) {
	churchID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	church, err := fn(churchID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, message, church)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	churchID, err := id.IsValidUUID(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid church id", nil)
		return uuid.Nil, false
	}
	return churchID, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Church not found", nil)
	case errors.Is(err, ErrDuplicateChurch), errors.Is(err, user.ErrEmailTaken):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrInvalidState):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrNotApproved):
		utils.BuildErrorResponse(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, ErrInvalidOrExpiredToken),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidRegistration),
		errors.Is(err, user.ErrWeakPassword):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
	default:
		if !errors.Is(err, database.ErrPersistence) {
			logger.Error("Unhandled church error", logger.Merge(logger.FromContext(r.Context()), logger.WithError(err)))
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
