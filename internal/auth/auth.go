// Package auth implements registration, login and session token handling.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/arisectf/arise-server/internal/domain"
	"github.com/arisectf/arise-server/internal/errs"
	"github.com/arisectf/arise-server/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is how long issued session tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	contactPattern = regexp.MustCompile(`^\d{10,15}$`)
)

// Service handles credential exchange. Passwords are stored as bcrypt
// hashes and never leave the store layer.
type Service struct {
	repo       store.Repository
	signKey    []byte
	bcryptCost int
	tokenTTL   time.Duration
}

// NewService constructs an auth Service.
func NewService(repo store.Repository, signKey []byte, bcryptCost int) *Service {
	return &Service{
		repo:       repo,
		signKey:    signKey,
		bcryptCost: bcryptCost,
		tokenTTL:   DefaultTokenTTL,
	}
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Contact  string
	Password string
	Guild    string
}

// Register creates a new user with score 0. The username, email and
// contact number must all be present and well-formed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	if in.Username == "" || in.Email == "" || in.Contact == "" || in.Password == "" {
		return nil, "", fmt.Errorf("%w: missing required fields", errs.ErrValidation)
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, "", fmt.Errorf("%w: invalid email format", errs.ErrValidation)
	}
	if !contactPattern.MatchString(in.Contact) {
		return nil, "", fmt.Errorf("%w: invalid contact number (must be 10-15 digits)", errs.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		Contact:      in.Contact,
		Guild:        in.Guild,
		PasswordHash: string(hash),
		Score:        0,
	}

	id, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, "", err
	}
	user.ID = id

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login authenticates by username, email or contact number.
func (s *Service) Login(ctx context.Context, identifier, password string) (*domain.User, string, error) {
	if identifier == "" || password == "" {
		return nil, "", fmt.Errorf("%w: missing credentials", errs.ErrValidation)
	}

	user, err := s.repo.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", errs.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", errs.ErrUnauthorized
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Authenticate resolves a session token to its current user record.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, err := s.parseToken(tokenString)
	if err != nil {
		return nil, errs.ErrUnauthorized
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errs.ErrUnauthorized
	}
	return user, nil
}

type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

func (s *Service) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseToken(tokenString string) (int64, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	return c.UserID, nil
}
