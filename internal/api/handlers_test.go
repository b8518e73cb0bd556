package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amoria-labs/followup/internal/followup"
	"github.com/amoria-labs/followup/internal/models"
	"github.com/amoria-labs/followup/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SaveCompanion(models.Companion{Name: "Luna", Personality: "shy, caring", IsActive: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := followup.NewService(st, nil)
	return NewServer(svc, opts...), st
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return resp
}

func TestScheduleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.routes()

	rr := postJSON(t, mux, "/followups/schedule", models.ScheduleRequest{UserID: "u1", CompanionName: "Luna"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp.Status != string(models.APIStatusScheduled) {
		t.Errorf("status = %q, want scheduled", resp.Status)
	}
}

func TestScheduleEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.routes()

	rr := postJSON(t, mux, "/followups/schedule", models.ScheduleRequest{CompanionName: "Luna"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d, want 400", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/followups/schedule", bytes.NewReader([]byte("{not json")))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", rr.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/followups/schedule", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, get)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", rr.Code)
	}
}

func TestMessageEventEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	mux := srv.routes()

	rr := postJSON(t, mux, "/followups/events", models.MessageEventRequest{UserID: "u1", CompanionName: "Luna"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	sched, err := st.GetSchedule("u1", "Luna")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched == nil {
		t.Fatal("message event should have created the schedule")
	}
	if sched.Conversation.TotalUserMessages != 1 {
		t.Errorf("TotalUserMessages = %d, want 1 (default is_user_message)", sched.Conversation.TotalUserMessages)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.routes()

	req := httptest.NewRequest(http.MethodGet, "/followups/status?user_id=u1&companion_name=Luna", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeResponse(t, rr)
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if exists, _ := result["exists"].(bool); exists {
		t.Error("missing schedule should report exists=false")
	}

	// Missing query params are a client error.
	req = httptest.NewRequest(http.MethodGet, "/followups/status", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d, want 400", rr.Code)
	}
}

func TestTriggerEndpointDisabledByDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.routes()

	rr := postJSON(t, mux, "/followups/trigger", models.TriggerRequest{
		UserID: "u1", CompanionName: "Luna", ActionType: string(models.TimerTwelveHourReflection),
	})
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when trigger is disabled", rr.Code)
	}
}

func TestTriggerEndpointEnabled(t *testing.T) {
	srv, st := newTestServer(t, WithManualTrigger())
	mux := srv.routes()

	// No schedule yet: 404.
	rr := postJSON(t, mux, "/followups/trigger", models.TriggerRequest{
		UserID: "u1", CompanionName: "Luna", ActionType: string(models.TimerTwelveHourReflection),
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a schedule", rr.Code)
	}

	svc := followup.NewService(st, nil)
	if _, err := svc.CreateOrResetSchedule(context.Background(), "u1", "Luna", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rr = postJSON(t, mux, "/followups/trigger", models.TriggerRequest{
		UserID: "u1", CompanionName: "Luna", ActionType: string(models.TimerTwelveHourReflection),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}

	// Unknown action type is rejected before touching the service.
	rr = postJSON(t, mux, "/followups/trigger", models.TriggerRequest{
		UserID: "u1", CompanionName: "Luna", ActionType: "72h_message",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid action: status = %d, want 400", rr.Code)
	}
}

func TestActiveEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	mux := srv.routes()

	svc := followup.NewService(st, nil)
	if _, err := svc.CreateOrResetSchedule(context.Background(), "u1", "Luna", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateOrResetSchedule(context.Background(), "u2", "Luna", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/followups/active", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeResponse(t, rr)
	list, ok := resp.Result.([]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 active schedules, got %d", len(list))
	}
}
