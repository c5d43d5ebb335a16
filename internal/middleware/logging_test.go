package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/libraryfront/internal/credential"
)

func serveLogged(t *testing.T, req *http.Request, handler http.HandlerFunc) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewLoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/catalogue", nil)
	entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	if entry["msg"] != "http_request" || entry["method"] != "GET" || entry["path"] != "/catalogue" {
		t.Errorf("entry = %v", entry)
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
	if _, ok := entry["client_id"]; ok {
		t.Error("client_id should be omitted without client")
	}
}

// TestLoggingMiddleware_IncludesClientID はクライアントIDがログに含まれることを検証する。
func TestLoggingMiddleware_IncludesClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req = req.WithContext(credential.WithClientID(req.Context(), "c1"))

	entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {})

	if entry["client_id"] != "c1" {
		t.Errorf("client_id = %v, want c1", entry["client_id"])
	}
}

// TestLoggingMiddleware_Redirect_LogsLocation はリダイレクト先が記録されることを検証する。
func TestLoggingMiddleware_Redirect_LogsLocation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	if entry["status"] != float64(302) || entry["location"] != "/login" {
		t.Errorf("entry = %v", entry)
	}
}

// TestLoggingMiddleware_LevelByStatus はステータスコードに応じたログレベルを検証する。
func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		entry := serveLogged(t, req, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		if entry["level"] != tt.want {
			t.Errorf("status %d: level = %v, want %s", tt.status, entry["level"], tt.want)
		}
	}
}
