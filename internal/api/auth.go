package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

const (
	userIdClaim = "user-id"
	roleClaim   = "role"
	expClaim    = "exp"

	tokenCookieKey = "token"
	bearerPrefix   = "Bearer "
)

var errNoToken = errors.New("no token in request")

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, actor messaging.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the authenticated actor stored by the auth middleware.
func ActorFrom(ctx context.Context) (messaging.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(messaging.Actor)
	return actor, ok
}

// NewToken signs an HS256 session token for userId. Tokens are normally
// issued by the identity service; the chat server only verifies them.
func NewToken(key []byte, userId, role string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		roleClaim:   role,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(key)
}

func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearerPrefix) {
			return "", fmt.Errorf("unsupported authorization scheme")
		}
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)), nil
	}

	c, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return "", errNoToken
	}

	return c.Value, nil
}

func (s *GoChatApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func (s *GoChatApp) actorFromToken(tokenString string) (messaging.Actor, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return messaging.Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return messaging.Actor{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return messaging.Actor{}, fmt.Errorf("invalid user id claim")
	}

	role, _ := claims[roleClaim].(string)
	switch role {
	case types.RoleStudent, types.RoleAlumni, types.RoleAdmin:
	default:
		return messaging.Actor{}, fmt.Errorf("invalid role claim %q", role)
	}

	return messaging.Actor{ID: userId, Role: role}, nil
}
