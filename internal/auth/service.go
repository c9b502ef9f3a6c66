package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/config"
	"collabhub/internal/database"
	"collabhub/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the token payload. The subject is carried as userId.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Service struct {
	users     database.UserRepository
	secret    []byte
	expiresIn time.Duration
	cost      int
	validate  *validator.Validate
	log       *zap.SugaredLogger
}

func NewService(users database.UserRepository, cfg config.JWTConfig, log *zap.SugaredLogger) *Service {
	return &Service{
		users:     users,
		secret:    []byte(cfg.Secret),
		expiresIn: cfg.ExpiresIn,
		cost:      bcrypt.DefaultCost,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Status:       models.StatusOffline,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Infow("User registered", "userId", user.ID)

	return s.respond(user)
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	return s.respond(user)
}

// Verify resolves a bearer token to its user. It has no side effects.
func (s *Service) Verify(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperrors.ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTokenInvalid, err)
	case claims.UserID == "":
		return nil, apperrors.ErrTokenInvalid
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, apperrors.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// IssueToken signs a token for user valid for the configured lifetime.
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) respond(user *models.User) (*models.LoginResponse, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	// Remove sensitive data
	user.PasswordHash = ""

	return &models.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
