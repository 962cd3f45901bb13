package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UserIDHeader carries the caller's user id when an upstream gateway has
// already authenticated the request.
const UserIDHeader = "X-User-ID"

type actorKey struct{}

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidToken       = errors.New("invalid token")
)

func WithActor(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the authenticated user id stored by Authenticate.
func ActorFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey{}).(uuid.UUID)
	return id, ok
}

// Authenticate resolves the acting user. With a secret it requires an HS256
// bearer token whose subject is the user id; without one it trusts UserIDHeader.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := actorFromRequest(r, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			logger := zerolog.Ctx(r.Context()).With().Str("user_id", userID.String()).Logger()
			ctx := logger.WithContext(WithActor(r.Context(), userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromRequest(r *http.Request, secret []byte) (uuid.UUID, error) {
	if len(secret) == 0 {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			return uuid.Nil, errMissingCredentials
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, errors.New("X-User-ID must be a valid UUID")
		}
		return id, nil
	}

	scheme, tokenStr, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
		return uuid.Nil, errMissingCredentials
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return uuid.Nil, errInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, errInvalidToken
	}
	return id, nil
}

// SignActorToken issues an HS256 token Authenticate accepts for userID.
func SignActorToken(secret []byte, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
