package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/verifybot/internal/metrics"
	"github.com/hitoshi/verifybot/internal/middleware"
	"github.com/hitoshi/verifybot/internal/model"
)

// --- モック ---

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockSessionLister struct {
	sessionsFn func() []model.SessionInfo
}

func (m *mockSessionLister) Sessions() []model.SessionInfo {
	if m.sessionsFn != nil {
		return m.sessionsFn()
	}
	return nil
}

func newTestRouter(store Pinger, sessions SessionLister, gatherer prometheus.Gatherer) http.Handler {
	return NewRouter(&RouterDeps{
		Store:    store,
		Sessions: sessions,
		Gatherer: gatherer,
	})
}

func TestRouter_Alive(t *testing.T) {
	router := newTestRouter(&mockPinger{}, &mockSessionLister{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GET / status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "Bot is alive!" {
		t.Errorf("GET / body = %q", w.Body.String())
	}
}

func TestRouter_HealthOK(t *testing.T) {
	router := newTestRouter(&mockPinger{}, &mockSessionLister{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

// TestRouter_HealthStoreDown は台帳に疎通できない場合に503と統一エラーを返すことを検証する。
func TestRouter_HealthStoreDown(t *testing.T) {
	store := &mockPinger{
		pingFn: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("ping context should carry a deadline")
			}
			return errors.New("connection refused")
		},
	}
	router := newTestRouter(store, &mockSessionLister{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeStore {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeStore)
	}
}

func TestRouter_ListSessions(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessions := &mockSessionLister{
		sessionsFn: func() []model.SessionInfo {
			return []model.SessionInfo{
				{ID: "s-1", MemberKey: "1001", State: model.StateAwaitingInput, StartedAt: started, TimeoutDeadline: started.Add(3 * time.Minute)},
				{MemberKey: "1002"},
			}
		},
	}
	router := newTestRouter(&mockPinger{}, sessions, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/sessions status = %d", w.Code)
	}
	var body sessionListResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Count != 2 || len(body.Sessions) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Sessions[0].State != "awaiting_input" || body.Sessions[0].StartedAt == nil || !body.Sessions[0].StartedAt.Equal(started) {
		t.Errorf("unexpected first session: %+v", body.Sessions[0])
	}
	if body.Sessions[1].StartedAt != nil {
		t.Errorf("admission placeholder should omit started_at: %+v", body.Sessions[1])
	}
}

func TestRouter_ListSessionsEmpty(t *testing.T) {
	router := newTestRouter(&mockPinger{}, &mockSessionLister{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.SessionStarted(model.SessionInfo{MemberKey: "1001"})

	router := newTestRouter(&mockPinger{}, &mockSessionLister{}, reg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "verifybot_sessions_started_total 1") {
		t.Errorf("metrics output missing counter:\n%s", w.Body.String())
	}
}

func TestRouter_MetricsDisabledWithoutGatherer(t *testing.T) {
	router := newTestRouter(&mockPinger{}, &mockSessionLister{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
