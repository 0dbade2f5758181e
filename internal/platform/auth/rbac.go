package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// CanAccessPatient reports whether the authenticated user may read data
// belonging to the given patient record. Staff roles see every patient;
// patient accounts see only their own linked record.
func CanAccessPatient(ctx context.Context, patientID string) bool {
	for _, role := range RolesFromContext(ctx) {
		if role == "clinician" || role == "admin" {
			return true
		}
	}
	return patientID != "" && PatientRefFromContext(ctx) == patientID
}
