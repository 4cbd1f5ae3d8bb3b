package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/internal/users"
	pkgAuth "github.com/sportedge/sportedge-backend/pkg/auth"
	"github.com/sportedge/sportedge-backend/pkg/auth/session"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/security"
)

var (
	testJWT = config.JWTConfig{
		Secret:                 "test-secret",
		Issuer:                 "sportedge",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
	testPassword = config.PasswordConfig{
		ArgonMemoryKB:    8 * 1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
)

type fakeSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: map[string]string{}}
}

func (f *fakeSessions) Generate(_ context.Context, accessID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "refresh-" + uuid.NewString()
	f.tokens[accessID] = token
	return token, nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tokens[oldAccessID]
	if !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(f.tokens, oldAccessID)
	newID := session.NewAccessID()
	token := "refresh-" + uuid.NewString()
	f.tokens[newID] = token
	return newID, token, nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, accessID)
	return nil
}

func (f *fakeSessions) has(accessID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[accessID]
	return ok
}

type capturedReset struct {
	userID    uuid.UUID
	token     string
	expiresAt time.Time
}

type captureNotifier struct {
	last *capturedReset
}

func (c *captureNotifier) PasswordResetIssued(_ context.Context, user *models.User, token string, expiresAt time.Time) error {
	c.last = &capturedReset{userID: user.ID, token: token, expiresAt: expiresAt}
	return nil
}

type authEnv struct {
	repo     *users.Repository
	sessions *fakeSessions
	notifier *captureNotifier
	svc      *service
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	env := &authEnv{
		repo:     users.NewRepository(conn),
		sessions: newFakeSessions(),
		notifier: &captureNotifier{},
	}
	svc, err := NewService(ServiceParams{
		UserRepo:       env.repo,
		SessionManager: env.sessions,
		JWTConfig:      testJWT,
		PasswordConfig: testPassword,
		ResetTokenTTL:  time.Hour,
		Notifier:       env.notifier,
		Logger:         logger.Nop(),
	})
	require.NoError(t, err)
	env.svc = svc.(*service)
	return env
}

func (e *authEnv) register(t *testing.T, email, password string) *users.UserDTO {
	t.Helper()
	user, err := e.svc.Register(context.Background(), RegisterRequest{
		FirstName: "Sam",
		LastName:  "Okafor",
		Email:     email,
		Password:  password,
		Country:   "Ireland",
		City:      "Cork",
		Address:   "12 Quay Street",
	})
	require.NoError(t, err)
	return user
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), err.Error())
}

func TestRegister(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()

	user := e.register(t, "  Sam@Example.com ", "long-enough")
	require.Equal(t, "sam@example.com", user.Email)
	require.Equal(t, enums.UserRoleUser, user.Role)

	stored, err := e.repo.FindByEmail(ctx, "sam@example.com")
	require.NoError(t, err)
	require.NotEqual(t, "long-enough", stored.PasswordHash)

	_, err = e.svc.Register(ctx, RegisterRequest{
		FirstName: "Other", LastName: "Person", Email: "SAM@example.com", Password: "long-enough",
		Country: "Ireland", City: "Cork", Address: "1 Main St",
	})
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = e.svc.Register(ctx, RegisterRequest{
		FirstName: "No", LastName: "Address", Email: "x@example.com", Password: "long-enough",
		Country: "Ireland", City: "Cork",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, map[string]any{"field": "address"}, pkgerrors.As(err).Details())

	_, err = e.svc.Register(ctx, RegisterRequest{
		FirstName: "Short", LastName: "Pw", Email: "y@example.com", Password: "short",
		Country: "Ireland", City: "Cork", Address: "1 Main St",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	user := e.register(t, "login@example.com", "s3cret-pass")

	resp, err := e.svc.Login(ctx, LoginRequest{Email: "LOGIN@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, user.ID, resp.User.ID)
	require.NotNil(t, resp.User.LastLoginAt)

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, enums.UserRoleUser, claims.Role)
	require.True(t, e.sessions.has(claims.ID))

	_, err = e.svc.Login(ctx, LoginRequest{Email: "login@example.com", Password: "wrong-pass"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
	require.Equal(t, invalidCredentialsMessage, pkgerrors.As(err).Message())

	_, err = e.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
	require.Equal(t, invalidCredentialsMessage, pkgerrors.As(err).Message())
}

func TestRefreshRotatesSession(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	user := e.register(t, "refresh@example.com", "s3cret-pass")

	login, err := e.svc.Login(ctx, LoginRequest{Email: "refresh@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	// promotions show up in the next access token
	_, err = e.repo.SetRole(ctx, user.ID, enums.UserRoleAdmin)
	require.NoError(t, err)

	pair, err := e.svc.Refresh(ctx, login.AccessToken, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	claims, err := pkgAuth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.IsAdmin())

	_, err = e.svc.Refresh(ctx, login.AccessToken, login.RefreshToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = e.svc.Refresh(ctx, "not-a-jwt", pair.RefreshToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestRefreshAcceptsExpiredAccessToken(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	user := e.register(t, "late@example.com", "s3cret-pass")

	accessID := session.NewAccessID()
	stale, err := pkgAuth.MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   enums.UserRoleUser,
		JTI:    accessID,
	})
	require.NoError(t, err)
	_, err = pkgAuth.ParseAccessToken(testJWT, stale)
	require.Error(t, err)

	refresh, err := e.sessions.Generate(ctx, accessID)
	require.NoError(t, err)

	pair, err := e.svc.Refresh(ctx, stale, refresh)
	require.NoError(t, err)
	_, err = pkgAuth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	e.register(t, "bye@example.com", "s3cret-pass")

	login, err := e.svc.Login(ctx, LoginRequest{Email: "bye@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	require.NoError(t, e.svc.Logout(ctx, login.AccessToken))
	_, err = e.svc.Refresh(ctx, login.AccessToken, login.RefreshToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	requireCode(t, e.svc.Logout(ctx, ""), pkgerrors.CodeUnauthorized)
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	user := e.register(t, "forgot@example.com", "old-password")

	requireCode(t, e.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "ghost@example.com"}), pkgerrors.CodeNotFound)

	require.NoError(t, e.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "Forgot@example.com"}))
	issued := e.notifier.last
	require.NotNil(t, issued)
	require.Equal(t, user.ID, issued.userID)

	stored, err := e.repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetTokenHash)
	require.Equal(t, security.HashResetToken(issued.token), *stored.PasswordResetTokenHash)

	err = e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: "bogus", NewPassword: "new-password"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	require.NoError(t, e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: issued.token, NewPassword: "new-password"}))

	_, err = e.svc.Login(ctx, LoginRequest{Email: "forgot@example.com", Password: "new-password"})
	require.NoError(t, err)

	err = e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: issued.token, NewPassword: "third-password"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	t.Parallel()
	e := newAuthEnv(t)
	ctx := context.Background()
	e.register(t, "expired@example.com", "old-password")

	require.NoError(t, e.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "expired@example.com"}))
	token := e.notifier.last.token

	e.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	err := e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "new-password"})
	requireCode(t, err, pkgerrors.CodeUnauthorized)
	require.Equal(t, invalidResetTokenMessage, pkgerrors.As(err).Message())
}
