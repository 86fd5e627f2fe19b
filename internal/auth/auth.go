// internal/auth/auth.go
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"aquacare-relay/internal/config"
)

// Authentication errors
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrNoSecret        = errors.New("jwt secret not configured")
)

type contextKey string

const (
	usernameKey contextKey = "username"
	roleKey     contextKey = "role"
)

// AuthManager guards the operator API. Sensor sessions are not authenticated.
type AuthManager struct {
	config config.AuthConfig
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	return &AuthManager{config: cfg}
}

// Enabled reports whether any credential is configured. Without one the
// operator API stays unmounted.
func (am *AuthManager) Enabled() bool {
	return am.config.JWTSecret != "" || len(am.config.APIKeys) > 0
}

// GenerateJWT creates a new JWT token for a user
func (am *AuthManager) GenerateJWT(username, role string) (string, error) {
	if am.config.JWTSecret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(time.Duration(am.config.JWTExpiration) * time.Minute).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    "aquacare-relay",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(am.config.JWTSecret))
}

// ValidateJWT validates the JWT token
func (am *AuthManager) ValidateJWT(tokenString string) (*Claims, error) {
	if am.config.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAPIKey checks if the provided API key is valid
func (am *AuthManager) ValidateAPIKey(apiKey string) bool {
	for _, validKey := range am.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return true
		}
	}
	return false
}

// AuthenticateUser checks a password against the configured bcrypt hash and returns the user's role.
func (am *AuthManager) AuthenticateUser(username, password string) (string, error) {
	for _, user := range am.config.Users {
		if user.Username != username {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return "", ErrInvalidPassword
		}
		return user.Role, nil
	}
	return "", ErrUserNotFound
}

// HashPassword creates a bcrypt hash from a password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Middleware accepts either an X-API-Key header or a Bearer token.
func (am *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			if !am.ValidateAPIKey(apiKey) {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), roleKey, "service")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		claims, err := am.ValidateJWT(bearerToken[1])
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Username returns the authenticated user stored by Middleware, if any.
func Username(ctx context.Context) string {
	v, _ := ctx.Value(usernameKey).(string)
	return v
}
