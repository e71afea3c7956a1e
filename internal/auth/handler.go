package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/pkg/config"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/id"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const stateCookie = "oauth_state"

type Handler struct {
	Config       config.Config
	Service      *Service
	OAuth2Config *oauth2.Config
}

func NewHandler(cfg config.Config, service *Service) *Handler {
	redirectURL := fmt.Sprintf("%s/api/auth/google/callback", cfg.Host)
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	return &Handler{Config: cfg, Service: service, OAuth2Config: oauth2Config}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	usr, err := h.Service.RegisterMember(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.Service.IssueToken(usr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusCreated, "Registration successful", session)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if status, fields, err := utils.DecodeAndValidate(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", fields)
		return
	}

	session, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Login successful", session)
}

func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := id.NewToken()
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   h.Config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	url := h.OAuth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid OAuth state", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Code not found", nil)
		return
	}

	token, err := h.OAuth2Config.Exchange(r.Context(), code)
	if err != nil {
		logger.Error("Google: token exchange failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Failed to exchange token", nil)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusBadGateway, "No id_token field in oauth2 token", nil)
		return
	}

	payload, err := idtoken.Validate(r.Context(), rawIDToken, h.Config.GoogleClientID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Failed to validate ID token", nil)
		return
	}

	email, _ := payload.Claims["email"].(string)
	name, _ := payload.Claims["name"].(string)
	if email == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Google account has no email", nil)
		return
	}

	session, err := h.Service.GoogleSignIn(r.Context(), payload.Subject, email, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Login successful", session)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		utils.BuildErrorResponse(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, user.ErrEmailTaken):
		utils.BuildErrorResponse(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, user.ErrWeakPassword):
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
	default:
		if !errors.Is(err, database.ErrPersistence) {
			logger.Error("Unhandled auth error", logger.Merge(logger.FromContext(r.Context()), logger.WithError(err)))
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
