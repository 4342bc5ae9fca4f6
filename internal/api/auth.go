package api

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/session"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxNameLength     = 50
	minPasswordLength = 8
)

// LimitKind selects a rate limiter
type LimitKind string

const (
	LimitLogin  LimitKind = "login"
	LimitSignup LimitKind = "signup"
)

// CheckRateLimit records an attempt under key and reports whether it is over the limit
func (s *LedgerService) CheckRateLimit(kind LimitKind, key string) bool {
	limiter, ok := s.limiters[kind]
	if !ok {
		return false
	}
	return limiter.IsRateLimited(key)
}

// ResetRateLimit clears the attempts recorded under key
func (s *LedgerService) ResetRateLimit(kind LimitKind, key string) {
	if limiter, ok := s.limiters[kind]; ok {
		limiter.Reset(key)
	}
}

// SignUpRequest registers a new account
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by SignUp and Login
type AuthResult struct {
	Token   string                `json:"token"`
	Profile models.AccountProfile `json:"profile"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account with the initial coin grant and signs it in
func (s *LedgerService) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if s.CheckRateLimit(LimitSignup, email) {
		zap.L().Warn("Sign-up rate limited", zap.String("email", email))
		return nil, ErrRateLimited
	}

	account, err := s.RegisterAccount(ctx, req, false)
	if err != nil {
		return nil, err
	}
	s.ResetRateLimit(LimitSignup, email)

	zap.L().Info("Account signed up", zap.String("account_id", account.Id), zap.String("name", account.Name))
	sess := s.sessions.Create(account.Id, account.IsAdmin)
	return &AuthResult{Token: sess.Token, Profile: account.ToProfile()}, nil
}

// RegisterAccount validates req and stores the account with a hashed password and the
// initial coin grant. It does not start a session.
func (s *LedgerService) RegisterAccount(ctx context.Context, req SignUpRequest, isAdmin bool) (*models.Account, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if name == "" || len(name) > maxNameLength {
		return nil, invalid("name must be between 1 and %d characters", maxNameLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("email address is not valid")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("Failed to hash password", zap.Error(err))
		return nil, err
	}

	account, err := s.db.CreateAccount(ctx, store.CreateAccountParams{
		Id:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		InitialCoins: s.initialCoins,
	})
	if err != nil {
		return nil, err
	}
	s.wake()
	return account, nil
}

// Login checks the password and starts a session
func (s *LedgerService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if s.CheckRateLimit(LimitLogin, email) {
		zap.L().Warn("Login rate limited", zap.String("email", email))
		return nil, ErrRateLimited
	}

	account, err := s.db.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, err
	}
	if account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	s.ResetRateLimit(LimitLogin, email)

	sess := s.sessions.Create(account.Id, account.IsAdmin)
	zap.L().Info("Account logged in", zap.String("account_id", account.Id))
	return &AuthResult{Token: sess.Token, Profile: account.ToProfile()}, nil
}

// Logout ends the session
func (s *LedgerService) Logout(token string) {
	s.sessions.Invalidate(token)
}

// Authenticate resolves a session token
func (s *LedgerService) Authenticate(token string) (session.Session, error) {
	return s.sessions.Get(token)
}

// GetProfile returns the public profile of an account
func (s *LedgerService) GetProfile(ctx context.Context, accountId string) (*models.AccountProfile, error) {
	account, err := s.db.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}
	profile := account.ToProfile()
	return &profile, nil
}
