package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func scrape(t *testing.T) string {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Handler()(c); err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/p-1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := scrape(t)
	if !strings.Contains(body, "carepulse_http_requests_total") {
		t.Error("expected request counter in exposition output")
	}
	// The registered route, not the concrete path, is the endpoint label.
	if !strings.Contains(body, `endpoint="/api/v1/patients/:id"`) {
		t.Error("expected route template as endpoint label")
	}
	if strings.Contains(body, `endpoint="/api/v1/patients/p-1"`) {
		t.Error("concrete path should not appear as endpoint label")
	}
}

func TestMiddleware_RecordsErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/alerts", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "nope")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRecordPipelineRun(t *testing.T) {
	RecordPipelineRun("completed", 120*time.Millisecond)
	RecordPipelineRun("partial", 80*time.Millisecond)

	body := scrape(t)
	if !strings.Contains(body, `carepulse_pipeline_runs_total{status="completed"}`) {
		t.Error("expected completed pipeline run counter")
	}
	if !strings.Contains(body, `carepulse_pipeline_runs_total{status="partial"}`) {
		t.Error("expected partial pipeline run counter")
	}
	if !strings.Contains(body, "carepulse_pipeline_run_duration_seconds") {
		t.Error("expected pipeline duration histogram")
	}
}

func TestRecordAlertCreated(t *testing.T) {
	RecordAlertCreated("urgent", "vitals_threshold")

	body := scrape(t)
	if !strings.Contains(body, `carepulse_alerts_created_total{severity="urgent",type="vitals_threshold"}`) {
		t.Error("expected alert counter with severity and type labels")
	}
}

func TestRecordRiskScore(t *testing.T) {
	RecordRiskScore("hypertension", "moderate")

	body := scrape(t)
	if !strings.Contains(body, `carepulse_risk_scores_computed_total{level="moderate",risk_type="hypertension"}`) {
		t.Error("expected risk score counter")
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	RecordUpstreamRequest("ocr", "timeout")
	RecordUpstreamRequest("chat", "ok")

	body := scrape(t)
	if !strings.Contains(body, `carepulse_upstream_requests_total{outcome="timeout",service="ocr"}`) {
		t.Error("expected ocr upstream counter")
	}
	if !strings.Contains(body, `carepulse_upstream_requests_total{outcome="ok",service="chat"}`) {
		t.Error("expected chat upstream counter")
	}
}

func TestAlertsOpenGauge(t *testing.T) {
	AlertsOpen.Set(3)

	body := scrape(t)
	if !strings.Contains(body, "carepulse_alerts_open 3") {
		t.Error("expected open alerts gauge value")
	}
}
