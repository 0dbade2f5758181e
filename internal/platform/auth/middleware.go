package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserRolesKey  contextKey = "user_roles"
	PatientRefKey contextKey = "user_patient"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	// PatientID links the token to a patient record when the user
	// holds the patient role. Empty for staff accounts.
	PatientID string `json:"pid,omitempty"`
}

type JWTConfig struct {
	Secret []byte
	// Skipper returns true for requests that bypass authentication
	// (health checks, metrics, login/register).
	Skipper func(c echo.Context) bool
}

// JWTMiddleware validates HS256 bearer tokens and places the authenticated
// user id and roles on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))

			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
			if claims.PatientID != "" {
				ctx = context.WithValue(ctx, PatientRefKey, claims.PatientID)
			}
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// IssueToken mints a signed HS256 token for the given user.
func IssueToken(secret []byte, userID string, roles []string, ttl time.Duration) (string, error) {
	return IssueUserToken(secret, userID, "", roles, ttl)
}

// IssueUserToken mints a signed HS256 token carrying the user's linked
// patient record id, used for ownership checks on patient-scoped routes.
func IssueUserToken(secret []byte, userID, patientID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:     roles,
		PatientID: patientID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// PatientRefFromContext returns the patient record id linked to the
// authenticated user, or "" for staff accounts.
func PatientRefFromContext(ctx context.Context) string {
	pid, _ := ctx.Value(PatientRefKey).(string)
	return pid
}
