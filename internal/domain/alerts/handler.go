package alerts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/pkg/pagination"
)

// Handler serves alert reads and the acknowledge transition. Alerts are
// only ever created by the pipeline; there is no create endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/alerts", h.ListForPatient)

	staff := api.Group("", auth.RequireRole("clinician", "admin"))
	staff.GET("/alerts", h.ListAll)
	staff.POST("/alerts/:id/acknowledge", h.Acknowledge)
}

// parseFilter reads the optional type/severity/acknowledged query
// filters shared by both listing endpoints.
func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	if raw := c.QueryParam("type"); raw != "" {
		t := Type(raw)
		if !t.Valid() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid alert type")
		}
		f.Type = &t
	}
	if raw := c.QueryParam("severity"); raw != "" {
		s := Severity(raw)
		if !s.Valid() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid alert severity")
		}
		f.Severity = &s
	}
	if raw := c.QueryParam("acknowledged"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "acknowledged must be true or false")
		}
		f.Acknowledged = &b
	}
	return f, nil
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !auth.CanAccessPatient(c.Request().Context(), patientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	f.PatientID = &patientID

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Alert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAll(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Alert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	reviewerID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown reviewer")
	}

	a, err := h.svc.Acknowledge(c.Request().Context(), id, reviewerID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return echo.NewHTTPError(http.StatusNotFound, "alert not found")
		case errors.Is(err, ErrAlreadyAcknowledged):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, a)
}
