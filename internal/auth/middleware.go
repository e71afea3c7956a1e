package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/utils"
)

func JWTMiddleware(svc *Service, users user.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
				return
			}

			userID, err := svc.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			usr, err := users.FindByID(r.Context(), userID)
			if err != nil {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "User not found", nil)
				return
			}

			ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
			ctx = context.WithValue(ctx, utils.RolesKey, []string(usr.Roles))
			ctx = logger.WithUserID(ctx, usr.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through when the user holds any of roles.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			held, ok := r.Context().Value(utils.RolesKey).([]string)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Roles not found", nil)
				return
			}

			for _, role := range roles {
				for _, h := range held {
					if h == string(role) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			utils.BuildErrorResponse(w, http.StatusForbidden, "Insufficient permissions", nil)
		})
	}
}
