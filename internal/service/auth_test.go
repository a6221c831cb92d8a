package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/config"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/storage/memory"
)

func newAuthService(users *fakeUsers) (*AuthService, *fakeMailer) {
	mailer := &fakeMailer{}
	cfg := &config.JWTConfig{
		Secret:             "test-access-secret",
		VerificationSecret: "test-verify-secret",
		AccessTTL:          time.Hour,
	}
	return NewAuthService(users, memory.New(), mailer, cfg, "http://localhost:8080"), mailer
}

func TestRegisterValidation(t *testing.T) {
	req := require.New(t)
	svc, _ := newAuthService(newFakeUsers())
	ctx := context.Background()

	cases := []RegisterRequest{
		{Name: "", Email: "a@example.com", Password: "longenough"},
		{Name: "Alice", Email: "not-an-email", Password: "longenough"},
		{Name: "Alice", Email: "a@example.com", Password: "short"},
	}
	for _, c := range cases {
		_, err := svc.Register(ctx, c)
		req.Error(err)
		req.Equal(apperr.KindValidation, apperr.KindOf(err))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	req := require.New(t)
	svc, mailer := newAuthService(newFakeUsers())
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Name: "Alice", Email: "Alice@Example.com", Password: "longenough"})
	req.NoError(err)
	req.Equal("alice@example.com", u.Email)
	req.False(u.Verified)
	req.Len(mailer.sent, 1)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Alice Again", Email: "alice@example.com", Password: "longenough"})
	req.Error(err)
	req.Equal(apperr.KindConflict, apperr.KindOf(err))
}

func TestLoginRequiresVerifiedAccount(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers()
	svc, mailer := newAuthService(users)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "longenough"})
	req.NoError(err)

	// Unknown identifier and wrong password produce the same error.
	_, err = svc.Login(ctx, "nobody@example.com", "longenough")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))
	_, err = svc.Login(ctx, "alice@example.com", "wrongpassword")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	// Correct credentials are still rejected before verification.
	_, err = svc.Login(ctx, "alice@example.com", "longenough")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	req.NoError(svc.Verify(ctx, mailer.lastToken()))

	resp, err := svc.Login(ctx, "alice@example.com", "longenough")
	req.NoError(err)
	req.NotEmpty(resp.Token)
	req.Equal("alice@example.com", resp.User.Email)
}

func TestVerifyLinkIsSingleUse(t *testing.T) {
	req := require.New(t)
	svc, mailer := newAuthService(newFakeUsers())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "longenough"})
	req.NoError(err)
	token := mailer.lastToken()
	req.NotEmpty(token)

	req.NoError(svc.Verify(ctx, token))

	err = svc.Verify(ctx, token)
	req.Error(err)
	req.Equal(apperr.KindConflict, apperr.KindOf(err))
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	req := require.New(t)
	svc, _ := newAuthService(newFakeUsers())

	err := svc.Verify(context.Background(), "not.a.token")
	req.Error(err)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))
}

func TestResendVerification(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers(&model.User{ID: "v1", Name: "Verified", Email: "done@example.com", Verified: true})
	svc, mailer := newAuthService(users)
	ctx := context.Background()

	err := svc.ResendVerification(ctx, "missing@example.com")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))

	err = svc.ResendVerification(ctx, "done@example.com")
	req.Error(err)
	req.Equal(apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "longenough"})
	req.NoError(err)
	req.NoError(svc.ResendVerification(ctx, "alice@example.com"))
	req.Len(mailer.sent, 2)
}
