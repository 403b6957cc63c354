// Package middleware содержит HTTP middleware API кассы.
package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

const (
	authCookieName = "counter_session"
	authTokenTTL   = 12 * time.Hour
	tokenIssuer    = "exchange-counter"
)

var signingMethod = jwt.SigningMethodHS256

// Principal описывает пользователя из подписанного cookie.
type Principal struct {
	UserID string
	Role   model.Role
}

type sessionClaims struct {
	UserID string     `json:"uid"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет JWT из cookie сессии.
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным
// ключом: после перезапуска процесса потребуется повторный вход.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("generate session key: %v", err))
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// Middleware проверяет cookie и добавляет Principal в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		p, err := a.parseToken(cookie.Value)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает запрос, только если роль из cookie входит в список.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// SetAuthCookie выдаёт cookie с подписанным токеном сессии.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, session model.Session) error {
	now := a.now()
	claims := sessionClaims{
		UserID: session.UserID,
		Role:   session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(authTokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(a.secretKey)
	if err != nil {
		return fmt.Errorf("sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(authTokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// ClearAuthCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *AuthMiddleware) parseToken(value string) (Principal, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return a.secretKey, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Principal{}, err
	}
	if claims.UserID == "" || !claims.Role.IsValid() {
		return Principal{}, fmt.Errorf("invalid session claims")
	}

	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// PrincipalFromContext извлекает пользователя из контекста запроса.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
