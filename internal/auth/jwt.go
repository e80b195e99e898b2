// Package auth - jwt.go handles the HS256 tokens that guard the platform admin surface,
// including lazy secret initialization and scope checking.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopePlatformAdmin is the only scope accepted on /admin routes.
	ScopePlatformAdmin = "platform:admin"

	// JWTSecretEnv names the environment variable holding the signing secret.
	JWTSecretEnv = "ASSESS_JWT_SECRET"

	tokenIssuer = "assessment-api"
)

// ErrInsufficientScope is returned for a valid token that lacks the admin scope.
var ErrInsufficientScope = errors.New("token does not carry the platform admin scope")

var (
	// configuredSecret is the secret from the config file; it wins over the environment.
	configuredSecret string

	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// AdminClaims represents the claims of an admin token
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// SetJWTSecret records the secret from configuration. Call before ValidateJWTSecret.
func SetJWTSecret(secret string) {
	configuredSecret = secret
}

func isDevMode() bool {
	devMode := os.Getenv("ASSESS_DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that a signing secret is available.
// Outside dev mode it fails when neither the config nor ASSESS_JWT_SECRET provides one.
// In dev mode a random secret is generated and a warning logged.
// Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := configuredSecret
		if secret == "" {
			secret = os.Getenv(JWTSecretEnv)
		}

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				slog.Warn("ASSESS_JWT_SECRET not set; using an auto-generated secret, admin tokens will not survive restarts")
			} else {
				jwtSecretErr = errors.New("ASSESS_JWT_SECRET (or auth.jwt_secret) is required outside dev mode; " +
					"generate one with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			slog.Warn("JWT secret is shorter than the recommended 32 characters")
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if validation fails.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateAdminToken issues a platform admin token for subject.
func GenerateAdminToken(subject string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &AdminClaims{
		Scope: ScopePlatformAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(GetJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken parses a token, verifies its signature and expiry, and requires
// the platform admin scope.
func ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Scope != ScopePlatformAdmin {
		return nil, ErrInsufficientScope
	}
	return claims, nil
}
