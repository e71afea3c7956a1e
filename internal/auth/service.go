package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zjoart/churpay/internal/user"
	"github.com/zjoart/churpay/internal/wallet"
	"github.com/zjoart/churpay/pkg/database"
	"github.com/zjoart/churpay/pkg/logger"
	"github.com/zjoart/churpay/pkg/utils"
)

const TokenTTL = 72 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

type Service struct {
	users  user.Repository
	ledger *wallet.Service
	tx     database.Transactor
	secret []byte
	now    func() time.Time
}

func NewService(secret string, users user.Repository, ledger *wallet.Service, tx database.Transactor) *Service {
	return &Service{users: users, ledger: ledger, tx: tx, secret: []byte(secret), now: time.Now}
}

// RegisterMember creates a member account together with its wallet.
func (s *Service) RegisterMember(ctx context.Context, name, email, password string) (*user.User, error) {
	hash, err := user.HashPassword(password)
	if err != nil {
		return nil, err
	}

	usr := &user.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{string(user.RoleMember)},
	}
	if err := s.createWithWallet(ctx, usr); err != nil {
		return nil, err
	}

	logger.Info("Member registered", logger.Fields{logger.UserIdKey: usr.ID.String()})
	return usr, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	usr, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if usr.PasswordHash == "" || !user.CheckPassword(usr.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueToken(usr)
}

// GoogleSignIn logs in the user linked to googleID, signing up a new member
// on first use.
func (s *Service) GoogleSignIn(ctx context.Context, googleID, email, name string) (*Session, error) {
	usr, err := s.users.FindByGoogleID(ctx, googleID)
	if err == nil {
		return s.IssueToken(usr)
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	usr = &user.User{
		Name:     name,
		Email:    email,
		GoogleID: &googleID,
		Roles:    []string{string(user.RoleMember)},
	}
	if err := s.createWithWallet(ctx, usr); err != nil {
		return nil, err
	}
	return s.IssueToken(usr)
}

// EnsureSuperAdmin seeds the platform super-admin account if it does not exist.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if !existing.HasRole(user.RoleSuperAdmin) {
			return fmt.Errorf("%s exists without the %s role", existing.Email, user.RoleSuperAdmin)
		}
		return nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := user.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &user.User{
		Name:         "Platform Admin",
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{string(user.RoleSuperAdmin)},
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return err
	}

	logger.Info("Super admin created", logger.Fields{logger.UserIdKey: admin.ID.String()})
	return nil
}

func (s *Service) IssueToken(usr *user.User) (*Session, error) {
	expiresAt := s.now().Add(TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		utils.UserIDKey: usr.ID.String(),
		utils.ExpKey:    expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: expiresAt, User: usr}, nil
}

// ParseToken returns the user id carried by a token issued by IssueToken.
func (s *Service) ParseToken(raw string) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	raw, ok = claims[utils.UserIDKey].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) createWithWallet(ctx context.Context, usr *user.User) error {
	return s.tx.Transact(ctx, func(ctx context.Context) error {
		if err := s.users.CreateUser(ctx, usr); err != nil {
			return err
		}
		_, err := s.ledger.EnsureWallet(ctx, usr.ID)
		return err
	})
}
