package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthConfig holds authentication configuration for the admin surface.
type AuthConfig struct {
	Mode     string // "none" or "token"
	Secret   string // HS256 signing secret
	TokenTTL time.Duration
}

// operatorClaims is the token payload issued at login.
type operatorClaims struct {
	OperatorID int64  `json:"operatorId"`
	Session    string `json:"session"`
	jwt.RegisteredClaims
}

// operatorPattern is the fixed login shape; the captured number is the
// operator slot.
var operatorPattern = regexp.MustCompile(`^operator-([0-9]+)$`)

// parseOperator validates the fixed operator format and returns the slot number.
func parseOperator(operator string) (int64, bool) {
	m := operatorPattern.FindStringSubmatch(operator)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// issueToken signs an HS256 token for an operator slot.
func (a AuthConfig) issueToken(operatorID int64, session string) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		OperatorID: operatorID,
		Session:    session,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// requireToken guards a route behind a login-issued bearer token. In
// "none" mode it passes everything through.
func requireToken(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode != "token" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "bearer token required")
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &operatorClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			logger.Warn().Str("path", c.Path()).Msg("rejected invalid token")
			return unauthorized(c, "invalid token")
		}

		c.Locals("operator_id", claims.OperatorID)
		return c.Next()
	}
}
