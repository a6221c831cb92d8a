package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/config"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
	"github.com/chatline/internal/storage"
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// UserAccountStore is the slice of the user repository auth needs.
type UserAccountStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByEmailOrMobile(ctx context.Context, email, mobile string) (*model.User, error)
	SetVerified(ctx context.Context, email string, verified bool) error
}

// Mailer sends the account verification link.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

// AuthService handles registration, email verification, and login. Access
// tokens are signed JWTs; verification links carry a separate short-lived
// token signed with its own secret.
type AuthService struct {
	users   UserAccountStore
	store   storage.AuthStore
	mailer  Mailer
	cfg     *config.JWTConfig
	baseURL string
}

func NewAuthService(users UserAccountStore, store storage.AuthStore, mailer Mailer, cfg *config.JWTConfig, baseURL string) *AuthService {
	return &AuthService{users: users, store: store, mailer: mailer, cfg: cfg, baseURL: baseURL}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// Register creates an unverified account and mails the verification link.
// Accounts stay unusable for login until the link is opened.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	emailNorm := strings.TrimSpace(strings.ToLower(req.Email))
	mobile := strings.TrimSpace(req.Mobile)
	switch {
	case name == "":
		return nil, apperr.Validation("name is required")
	case !emailRegexp.MatchString(emailNorm):
		return nil, apperr.Validation("invalid email format")
	case len(req.Password) < 8:
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	if err := s.checkRate(ctx, "register:"+emailNorm); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmailOrMobile(ctx, emailNorm, mobile); err == nil {
		return nil, apperr.Conflict("email or mobile is already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        emailNorm,
		Mobile:       mobile,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	link, err := s.verificationLink(emailNorm)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.SendVerification(ctx, emailNorm, link); err != nil {
		// The account exists; the user can request the mail again.
		logger.Errorf("auth: send verification to %s: %v", emailNorm, err)
	}
	return u, nil
}

// ResendVerification mails a fresh link for a not-yet-verified account.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailNorm := strings.TrimSpace(strings.ToLower(emailAddr))
	if err := s.checkRate(ctx, "register:"+emailNorm); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, emailNorm)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("account not found")
		}
		return err
	}
	if u.Verified {
		return apperr.Conflict("account is already verified")
	}
	link, err := s.verificationLink(emailNorm)
	if err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, emailNorm, link)
}

// Verify consumes a verification token. Each link works once.
func (s *AuthService) Verify(ctx context.Context, token string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.VerificationSecret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return apperr.Validation("invalid or expired verification link")
	}
	first, err := s.store.MarkVerified(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("verify %s: %w", claims.Subject, err)
	}
	if !first {
		return apperr.Conflict("verification link already used")
	}
	if err := s.users.SetVerified(ctx, claims.Subject, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("account not found")
		}
		return fmt.Errorf("verify %s: %w", claims.Subject, err)
	}
	return nil
}

type LoginResponse struct {
	Token string           `json:"token"`
	User  model.UserPublic `json:"user"`
}

// Login checks credentials against email or mobile and issues an access
// token. Wrong identifier and wrong password are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.Validation("identifier and password are required")
	}
	if err := s.checkRate(ctx, "login:"+strings.ToLower(identifier)); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmailOrMobile(ctx, strings.ToLower(identifier), identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Authorization("invalid credentials")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Authorization("invalid credentials")
	}
	if !u.Verified {
		return nil, apperr.Authorization("email is not verified")
	}

	token, err := s.issueAccess(u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, User: u.ToPublic()}, nil
}

func (s *AuthService) issueAccess(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) verificationLink(emailAddr string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   emailAddr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.VerificationSecret))
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return s.baseURL + "/auth/verify?token=" + token, nil
}

func (s *AuthService) checkRate(ctx context.Context, key string) error {
	allowed, err := s.store.CheckRateLimit(ctx, key)
	if err != nil {
		// Redis being down should not take auth down with it.
		logger.Errorf("auth: rate limit check %s: %v", key, err)
		return nil
	}
	if !allowed {
		return apperr.Conflict("too many attempts, try again later")
	}
	return nil
}
