package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordedRequest struct {
	method string
	status int
}

type stubObserver struct {
	requests []recordedRequest
}

func (s *stubObserver) ObserveRequest(method string, status int, _ time.Duration) {
	s.requests = append(s.requests, recordedRequest{method: method, status: status})
}

func TestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := &stubObserver{}

	h := Logger(zap.New(core), obs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/shift", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fail", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	if entries[0].ContextMap()["status"] != int64(http.StatusOK) {
		t.Fatalf("first status = %v, want 200", entries[0].ContextMap()["status"])
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Fatalf("5xx must be logged at error level, got %s", entries[1].Level)
	}

	if len(obs.requests) != 2 || obs.requests[1] != (recordedRequest{method: http.MethodPost, status: http.StatusServiceUnavailable}) {
		t.Fatalf("unexpected observed requests: %+v", obs.requests)
	}
}
