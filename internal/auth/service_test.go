package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/config"
	"collabhub/internal/mocks"
	"collabhub/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) (*Service, *mocks.MockUserRepository) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	svc := NewService(users, config.JWTConfig{Secret: testSecret, ExpiresIn: time.Hour}, zap.NewNop().Sugar())
	svc.cost = bcrypt.MinCost
	return svc, users
}

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestRegisterAndVerify(t *testing.T) {
	req := require.New(t)
	svc, users := newTestService(t)
	ctx := context.Background()

	var stored *models.User
	users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		u.ID = "u-1"
		stored = &models.User{ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash}
		return nil
	})

	resp, err := svc.Register(ctx, &models.RegisterRequest{Name: " Ada ", Email: " Ada@Example.COM ", Password: "correct horse"})
	req.NoError(err)
	req.Equal("u-1", resp.User.ID)
	req.Equal("Ada", resp.User.Name)
	req.Equal("ada@example.com", resp.User.Email)
	req.Empty(resp.User.PasswordHash)
	req.NoError(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse")))

	users.EXPECT().GetUserByID(gomock.Any(), "u-1").Return(stored, nil)
	user, err := svc.Verify(ctx, resp.Token)
	req.NoError(err)
	req.Equal("u-1", user.ID)
	req.Empty(user.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"missing name", models.RegisterRequest{Email: "a@b.co", Password: "12345678"}},
		{"bad email", models.RegisterRequest{Name: "a", Email: "not-an-email", Password: "12345678"}},
		{"short password", models.RegisterRequest{Name: "a", Email: "a@b.co", Password: "1234"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), &tt.req)
			require.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, users := newTestService(t)
	users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(apperrors.ErrUserExists)

	_, err := svc.Register(context.Background(), &models.RegisterRequest{Name: "a", Email: "a@b.co", Password: "12345678"})
	require.ErrorIs(t, err, apperrors.ErrUserExists)
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	svc, users := newTestService(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.MinCost)
	req.NoError(err)
	account := func() *models.User {
		return &models.User{ID: "u-2", Name: "Bo", Email: "bo@example.com", PasswordHash: string(hash)}
	}

	users.EXPECT().GetUserByEmail(gomock.Any(), "bo@example.com").Return(account(), nil)
	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "BO@example.com", Password: "password1"})
	req.NoError(err)
	req.NotEmpty(resp.Token)
	req.Empty(resp.User.PasswordHash)

	users.EXPECT().GetUserByEmail(gomock.Any(), "bo@example.com").Return(account(), nil)
	_, err = svc.Login(ctx, &models.LoginRequest{Email: "bo@example.com", Password: "wrong"})
	req.ErrorIs(err, apperrors.ErrInvalidCredentials)

	users.EXPECT().GetUserByEmail(gomock.Any(), "nobody@example.com").Return(nil, apperrors.ErrUserNotFound)
	_, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "password1"})
	req.ErrorIs(err, apperrors.ErrInvalidCredentials)
}

func TestVerifyFailures(t *testing.T) {
	svc, users := newTestService(t)
	valid := Claims{UserID: "u-3", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	expired := Claims{UserID: "u-3", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}
	noExpiry := Claims{UserID: "u-3"}
	noSubject := Claims{RegisteredClaims: valid.RegisteredClaims}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", apperrors.ErrMissingToken},
		{"garbage", "not.a.token", apperrors.ErrTokenInvalid},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, "other", valid), apperrors.ErrTokenInvalid},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, testSecret, valid), apperrors.ErrTokenInvalid},
		{"expired", sign(t, jwt.SigningMethodHS256, testSecret, expired), apperrors.ErrTokenExpired},
		{"no expiry", sign(t, jwt.SigningMethodHS256, testSecret, noExpiry), apperrors.ErrTokenInvalid},
		{"no subject", sign(t, jwt.SigningMethodHS256, testSecret, noSubject), apperrors.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(context.Background(), tt.token)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, apperrors.ErrAuthentication)
		})
	}

	t.Run("unknown user", func(t *testing.T) {
		users.EXPECT().GetUserByID(gomock.Any(), "u-3").Return(nil, apperrors.ErrUserNotFound)
		_, err := svc.Verify(context.Background(), sign(t, jwt.SigningMethodHS256, testSecret, valid))
		require.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	})
}

func TestTokenFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	req.Equal("abc", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "bearer xyz")
	req.Equal("xyz", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	req.Empty(TokenFromRequest(r))
}

func TestUserContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	require.False(t, ok)

	ctx := WithUser(context.Background(), &models.User{ID: "u-4"})
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-4", user.ID)
}
