package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// helper creates an echo context with the given roles set on the request context.
func newContextWithRoles(method, path string, roles []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

var okHandler = func(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// TestRequireRole_AdminAccessesAll verifies that the admin role can access any
// role-protected endpoint regardless of which roles are listed.
func TestRequireRole_AdminAccessesAll(t *testing.T) {
	domainRoles := [][]string{
		{"clinician"},
		{"clinician", "patient"},
		{"patient"},
	}

	for _, roles := range domainRoles {
		c, _ := newContextWithRoles(http.MethodGet, "/", []string{"admin"})
		mw := RequireRole(roles...)
		err := mw(okHandler)(c)
		if err != nil {
			t.Errorf("admin should access endpoint requiring %v, got error: %v", roles, err)
		}
	}
}

// TestRequireRole_ClinicianAcknowledgesAlerts verifies that a clinician can
// reach the alert acknowledgement endpoints, which list clinician and admin.
func TestRequireRole_ClinicianAcknowledgesAlerts(t *testing.T) {
	c, _ := newContextWithRoles(http.MethodPost, "/alerts/a-1/acknowledge", []string{"clinician"})
	mw := RequireRole("clinician", "admin")
	err := mw(okHandler)(c)
	if err != nil {
		t.Errorf("clinician should acknowledge alerts, got error: %v", err)
	}

	// Override management lists the same roles.
	c, _ = newContextWithRoles(http.MethodPost, "/patients/p-1/interaction-overrides", []string{"clinician"})
	mw = RequireRole("clinician", "admin")
	err = mw(okHandler)(c)
	if err != nil {
		t.Errorf("clinician should manage overrides, got error: %v", err)
	}
}

// TestRequireRole_PatientDeniedAcknowledge verifies that a patient role cannot
// acknowledge alerts.
func TestRequireRole_PatientDeniedAcknowledge(t *testing.T) {
	c, _ := newContextWithRoles(http.MethodPost, "/alerts/a-1/acknowledge", []string{"patient"})
	mw := RequireRole("clinician", "admin")
	err := mw(okHandler)(c)
	if err == nil {
		t.Error("patient role should NOT acknowledge alerts")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", httpErr.Code)
	}
}

// TestRequireRole_ClinicianDeniedAdmin verifies that a clinician cannot reach
// admin-only endpoints such as the vocabulary reload.
func TestRequireRole_ClinicianDeniedAdmin(t *testing.T) {
	c, _ := newContextWithRoles(http.MethodPost, "/api/v1/vocabulary/reload", []string{"clinician"})
	mw := RequireRole("admin")
	err := mw(okHandler)(c)
	if err == nil {
		t.Error("clinician role should NOT reload vocabulary")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", httpErr.Code)
	}
}

// TestRequireRole_NoRoleDenied verifies that a request with no roles is denied
// access to any role-protected endpoint.
func TestRequireRole_NoRoleDenied(t *testing.T) {
	// Empty roles slice
	c, _ := newContextWithRoles(http.MethodGet, "/patients", []string{})
	mw := RequireRole("admin", "clinician")
	err := mw(okHandler)(c)
	if err == nil {
		t.Error("empty roles should be denied")
	}

	// Nil roles (no context value)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err = mw(okHandler)(c)
	if err == nil {
		t.Error("nil roles should be denied")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", httpErr.Code)
	}
}
