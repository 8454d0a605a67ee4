package services

import (
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"context"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

const tokenTTL = 24 * time.Hour

// IdentityService stands in for the external identity provider: it mints and
// verifies signed session tokens carrying a user id and user class.
type IdentityService interface {
	IssueToken(identity models.Identity) (string, error)
	IssueGuestToken() (string, *models.Identity, error)
	VerifyToken(token string) (*models.Identity, error)
}

type identityService struct {
	jwtSecret string
}

func NewIdentityService(jwtSecret string) IdentityService {
	return &identityService{
		jwtSecret: jwtSecret,
	}
}

func (s *identityService) IssueToken(identity models.Identity) (string, error) {
	if identity.UserID == "" {
		return "", errors.ErrInvalidUser
	}
	if !identity.Type.Valid() {
		return "", errors.ErrInvalidInput
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   identity.UserID,
		"user_type": string(identity.Type),
		"exp":       time.Now().Add(tokenTTL).Unix(),
	})

	return token.SignedString([]byte(s.jwtSecret))
}

func (s *identityService) IssueGuestToken() (string, *models.Identity, error) {
	identity := &models.Identity{
		UserID: "guest-" + uuid.NewString(),
		Type:   models.GuestUser,
	}
	token, err := s.IssueToken(*identity)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

func (s *identityService) VerifyToken(tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	userType, _ := claims["user_type"].(string)
	identity := &models.Identity{
		UserID: userID,
		Type:   models.UserType(userType),
	}
	if identity.UserID == "" || !identity.Type.Valid() {
		return nil, errors.ErrInvalidToken
	}

	return identity, nil
}

// Helper function to add the caller's identity to context
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// Helper function to get the caller's identity from context
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil
}
