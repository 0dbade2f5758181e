package pipeline

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/carepulse/carepulse/internal/domain/patient"
	"github.com/carepulse/carepulse/internal/domain/vitals"
	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/internal/platform/middleware"
)

// Handler owns the pipeline trigger endpoints. Vitals and prescription
// submission live here rather than on their domain handlers because
// every submission runs the pipeline.
type Handler struct {
	orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{orch: orch}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/vitals", h.RecordVitals)
	api.POST("/patients/:id/prescriptions", h.SubmitPrescription)
}

func (h *Handler) RecordVitals(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !auth.CanAccessPatient(c.Request().Context(), patientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}
	var req vitals.RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.orch.RunVitals(c.Request().Context(), patientID, req)
	if err != nil {
		return runError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

type prescriptionRequest struct {
	OCRText string `json:"ocr_text"`
}

// SubmitPrescription accepts either a JSON body carrying already-
// extracted text or a multipart upload with a "file" part for OCR.
func (h *Handler) SubmitPrescription(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !auth.CanAccessPatient(c.Request().Context(), patientID.String()) {
		return echo.NewHTTPError(http.StatusForbidden, "access restricted to own record")
	}
	uploadedBy, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown uploader")
	}

	var in PrescriptionInput
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "file part is required")
		}
		src, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "uploaded file is unreadable")
		}
		defer src.Close()
		doc, err := io.ReadAll(src)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "uploaded file is unreadable")
		}
		if len(doc) == 0 {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "uploaded file is empty")
		}
		in = PrescriptionInput{
			Document:    doc,
			ContentType: fh.Header.Get("Content-Type"),
			Filename:    fh.Filename,
		}
		if in.ContentType == "" {
			in.ContentType = "application/octet-stream"
		}
	} else {
		var req prescriptionRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		// Clients paste scanner output here; strip the control characters
		// OCR apps tend to leave behind before the text hits the parser.
		text := middleware.SanitizeString(req.OCRText)
		if text == "" {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "ocr_text is required")
		}
		in = PrescriptionInput{Text: text}
	}

	result, err := h.orch.RunPrescription(c.Request().Context(), patientID, uploadedBy, in)
	if err != nil {
		return runError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func runError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, patient.ErrPatientInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
