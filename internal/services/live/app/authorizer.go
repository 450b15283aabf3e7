package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/classpulse/live/internal/platform/errors"
	"github.com/classpulse/live/internal/services/live/registry"
)

const (
	tokenCookieName = "cp_token"
	tokenQueryParam = "token"
)

// wsAuthorizer resolves the identity behind a websocket upgrade request.
type wsAuthorizer interface {
	Authenticate(token string) (registry.Identity, error)
}

// identityClaims is the token body issued by the classroom web app.
type identityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// tokenAuthorizer verifies HS256 identity tokens.
type tokenAuthorizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// newTokenAuthorizer returns nil when no secret is configured, which turns
// identity checks off.
func newTokenAuthorizer(secret, issuer string, now func() time.Time) wsAuthorizer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &tokenAuthorizer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    now,
	}
}

func (a *tokenAuthorizer) Authenticate(token string) (registry.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return registry.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "identity token is required")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		options = append(options, jwt.WithIssuer(a.issuer))
	}

	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, options...)
	if err != nil {
		return registry.Identity{}, mapJWTError(err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return registry.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "identity token sub is required")
	}
	return registry.Identity{
		ParticipantID: subject,
		Role:          strings.ToLower(strings.TrimSpace(claims.Role)),
	}, nil
}

// mapJWTError translates jwt library errors to coded errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "identity token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "identity token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "identity token issuer mismatch", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "identity token is invalid", err)
	}
}

// accessTokenFromRequest looks for a token in the cookie, the Authorization
// header, and the query string, in that order.
func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token
		}
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
}
