package vocab

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carepulse/carepulse/internal/platform/auth"
	"github.com/carepulse/carepulse/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("clinician", "admin"))
	readGroup.GET("/vocabulary/drugs", h.ListDrugs)
	readGroup.GET("/vocabulary/interactions", h.ListInteractions)
	readGroup.GET("/vocabulary/stats", h.GetStats)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/vocabulary/reload", h.Reload)
	adminGroup.POST("/vocabulary/import", h.Import)
}

func (h *Handler) ListDrugs(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDrugs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// interactionView decorates a record with drug names resolved from the
// live snapshot.
type interactionView struct {
	*InteractionRecord
	DrugAName string `json:"drug_a_name"`
	DrugBName string `json:"drug_b_name"`
}

func (h *Handler) ListInteractions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInteractions(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	snap := h.svc.Store().Snapshot()
	views := make([]interactionView, 0, len(items))
	for _, rec := range items {
		v := interactionView{InteractionRecord: rec}
		if d, ok := snap.Drug(rec.DrugAID); ok {
			v.DrugAName = d.Name
		}
		if d, ok := snap.Drug(rec.DrugBID); ok {
			v.DrugBName = d.Name
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}

func (h *Handler) Reload(c echo.Context) error {
	snap, err := h.svc.Reload(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"drugs":        snap.DrugCount(),
		"interactions": snap.InteractionCount(),
	})
}

// Import accepts a multipart CSV upload under the "file" field and loads
// it into the vocabulary.
func (h *Handler) Import(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart file field is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open upload")
	}
	defer f.Close()

	stats, err := h.svc.ImportCSV(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
