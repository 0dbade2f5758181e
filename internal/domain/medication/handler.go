package medication

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/pkg/pagination"
)

// Handler serves prescription reads and override management. Prescription
// submission lives on the pipeline handler, which owns the trigger.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/prescriptions", h.ListPrescriptions)
	api.GET("/prescriptions/:id", h.GetPrescription)

	staff := api.Group("", auth.RequireRole("clinician", "admin"))
	staff.POST("/patients/:id/interaction-overrides", h.CreateOverride)
	staff.GET("/patients/:id/interaction-overrides", h.ListOverrides)
	staff.DELETE("/patients/:id/interaction-overrides/:overrideID", h.DeleteOverride)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !auth.CanAccessPatient(c.Request().Context(), patientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	if !auth.CanAccessPatient(c.Request().Context(), p.PatientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}
	return c.JSON(http.StatusOK, p)
}

type createOverrideRequest struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
	Note  string `json:"note"`
}

func (h *Handler) CreateOverride(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req createOverrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DrugA == "" || req.DrugB == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "drug_a and drug_b are required")
	}
	reviewerID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown reviewer")
	}

	o, err := h.svc.CreateOverride(c.Request().Context(), patientID, reviewerID, req.DrugA, req.DrugB, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownDrug), errors.Is(err, ErrSameDrugPair):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrOverrideExists):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOverrides(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.Overrides(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*InteractionOverride{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteOverride(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	overrideID, err := uuid.Parse(c.Param("overrideID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid override id")
	}
	if err := h.svc.DeleteOverride(c.Request().Context(), patientID, overrideID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "override not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
