package services

import (
	"context"
	"errors"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type contextKey string

const applicantKey contextKey = "applicant"

// AuthService validates bearer tokens issued by the surrounding sign-in
// layer. The verified email travels in the claims and feeds the email rule.
type AuthService interface {
	GenerateToken(applicant domain.Applicant, username string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	CheckSpaceOwner(ctx context.Context, userID domain.UserID, spaceID domain.SpaceID) error
	GetApplicantFromContext(ctx context.Context) (domain.Applicant, error)
}

type Claims struct {
	UserID        domain.UserID `json:"user_id"`
	Username      string        `json:"username"`
	Email         string        `json:"email,omitempty"`
	EmailVerified bool          `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Applicant() domain.Applicant {
	return domain.Applicant{
		UserID:        c.UserID,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
	}
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	spaceRepo      ports.SpaceRepository // Optional, can be nil
}

func NewAuthService(
	jwtSecret string,
	accessTokenTTL time.Duration,
	spaceRepo ports.SpaceRepository, // Can be nil for token-only validation
) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		spaceRepo:      spaceRepo,
	}
}

func (s *authService) GenerateToken(applicant domain.Applicant, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:        applicant.UserID,
		Username:      username,
		Email:         applicant.Email,
		EmailVerified: applicant.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// CheckSpaceOwner returns ErrUnauthorized unless userID owns the space.
func (s *authService) CheckSpaceOwner(ctx context.Context, userID domain.UserID, spaceID domain.SpaceID) error {
	if s.spaceRepo == nil {
		return ErrUnauthorized
	}

	space, err := s.spaceRepo.GetByID(ctx, spaceID)
	if err != nil {
		return err
	}
	if space.OwnerID != userID {
		return ErrUnauthorized
	}
	return nil
}

func (s *authService) GetApplicantFromContext(ctx context.Context) (domain.Applicant, error) {
	applicant, ok := ApplicantFromContext(ctx)
	if !ok {
		return domain.Applicant{}, ErrUnauthorized
	}
	return applicant, nil
}

// WithApplicant stores the authenticated caller on ctx.
func WithApplicant(ctx context.Context, applicant domain.Applicant) context.Context {
	return context.WithValue(ctx, applicantKey, applicant)
}

func ApplicantFromContext(ctx context.Context) (domain.Applicant, bool) {
	applicant, ok := ctx.Value(applicantKey).(domain.Applicant)
	return applicant, ok && applicant.UserID != ""
}
