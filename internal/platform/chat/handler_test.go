package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carepulse/carepulse/internal/platform/auth"
)

func testSummary(data ContextData, err error) SummaryFunc {
	return func(ctx context.Context, patientID string) (ContextData, error) {
		return data, err
	}
}

func postChat(t *testing.T, h *Handler, patientID, body string) *httptest.ResponseRecorder {
	return postChatAs(t, h, patientID, body, []string{"clinician"}, "")
}

func postChatAs(t *testing.T, h *Handler, patientID, body string, roles []string, patientRef string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/patients/"+patientID+"/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := context.WithValue(req.Context(), auth.UserRolesKey, roles)
	if patientRef != "" {
		ctx = context.WithValue(ctx, auth.PatientRefKey, patientRef)
	}
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/patients/:id/chat")
	c.SetParamNames("id")
	c.SetParamValues(patientID)

	if err := h.Chat(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestChat_Success(t *testing.T) {
	var gotContext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotContext = req.Context
		w.Write([]byte(`{"response":"All good.","model":"health-assistant-v2","success":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	summary := testSummary(ContextData{AgeYears: 42, Latest: &VitalsSnapshot{HeartRate: f(70)}}, nil)
	h := NewHandler(client, summary, zerolog.Nop())

	rec := postChat(t, h, "p-1", `{"message":"How am I doing?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp chatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Response != "All good." {
		t.Errorf("unexpected reply: %q", resp.Response)
	}
	if resp.Model != "health-assistant-v2" {
		t.Errorf("unexpected model: %q", resp.Model)
	}
	if !strings.Contains(gotContext, "Age: 42 years") {
		t.Errorf("patient context not sent: %q", gotContext)
	}
}

func TestChat_FallbackOnCollaboratorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, WithMaxRetries(1), WithBackoff(time.Millisecond))
	h := NewHandler(client, testSummary(ContextData{}, nil), zerolog.Nop())

	rec := postChat(t, h, "p-1", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded reply must be 200, got %d", rec.Code)
	}

	var resp chatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success {
		t.Error("expected success=false on fallback")
	}
	if resp.Response != fallbackReply {
		t.Errorf("unexpected fallback text: %q", resp.Response)
	}
	if resp.Model != fallbackModel {
		t.Errorf("expected %q model, got %q", fallbackModel, resp.Model)
	}
}

func TestChat_FallbackWhenDisabled(t *testing.T) {
	client := NewClient("", 5*time.Second)
	h := NewHandler(client, testSummary(ContextData{}, nil), zerolog.Nop())

	rec := postChat(t, h, "p-1", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp chatResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.Model != fallbackModel {
		t.Errorf("expected local fallback, got success=%v model=%q", resp.Success, resp.Model)
	}
}

func TestChat_UnknownPatient(t *testing.T) {
	client := NewClient("", 5*time.Second)
	h := NewHandler(client, testSummary(ContextData{}, ErrUnknownPatient), zerolog.Nop())

	rec := postChat(t, h, "missing", `{"message":"hello"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestChat_OwnRecordOnly(t *testing.T) {
	client := NewClient("", 5*time.Second)
	h := NewHandler(client, testSummary(ContextData{}, nil), zerolog.Nop())

	rec := postChatAs(t, h, "p-2", `{"message":"hello"}`, []string{"patient"}, "p-1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another patient's record, got %d", rec.Code)
	}

	rec = postChatAs(t, h, "p-1", `{"message":"hello"}`, []string{"patient"}, "p-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own record, got %d", rec.Code)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	client := NewClient("", 5*time.Second)
	h := NewHandler(client, testSummary(ContextData{}, nil), zerolog.Nop())

	rec := postChat(t, h, "p-1", `{"message":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChat_ContextErrorDegrades(t *testing.T) {
	var gotContext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotContext = req.Context
		w.Write([]byte(`{"response":"ok","model":"m","success":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	h := NewHandler(client, testSummary(ContextData{}, errors.New("db down")), zerolog.Nop())

	rec := postChat(t, h, "p-1", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotContext != "" {
		t.Errorf("expected empty context on summary failure, got %q", gotContext)
	}
}
