// internal/auth/observer.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"tankguard-gateway/internal/config"
)

// ObserverAuth handles login and token validation for dashboard observers.
// Devices authenticate with HMAC signatures instead; see Verifier.
type ObserverAuth struct {
	jwtSecret     string
	jwtExpiration time.Duration
	users         []config.ObserverUser
}

// Claims represents observer JWT claims.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func NewObserverAuth(cfg *config.Config) *ObserverAuth {
	return &ObserverAuth{
		jwtSecret:     cfg.Auth.JWTSecret,
		jwtExpiration: time.Duration(cfg.Auth.JWTExpiration) * time.Minute,
		users:         cfg.Auth.Users,
	}
}

// AuthenticateUser validates username and password against configured users.
func (oa *ObserverAuth) AuthenticateUser(username, password string) (string, error) {
	for _, user := range oa.users {
		if user.Username == username {
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				return "", errors.New("invalid password")
			}
			return user.Role, nil
		}
	}
	return "", errors.New("user not found")
}

// GenerateJWT creates a signed token for an authenticated observer.
func (oa *ObserverAuth) GenerateJWT(username, role string) (string, error) {
	claims := &Claims{
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(oa.jwtExpiration).Unix(),
			IssuedAt:  time.Now().Unix(),
			Issuer:    "tankguard-gateway",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(oa.jwtSecret))
}

// ValidateJWT parses and verifies a token string.
func (oa *ObserverAuth) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(oa.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HashPassword creates a bcrypt hash for observer user provisioning.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

type contextKey string

const (
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "role"
)

// JWTMiddleware guards observer HTTP endpoints. The token is taken from the
// Authorization header, or from the "token" query parameter for websocket
// upgrades where custom headers are unavailable.
func (oa *ObserverAuth) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := oa.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
