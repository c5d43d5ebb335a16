package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/libraryfront/internal/backend"
)

type mockForwarder struct {
	forwardFn func(ctx context.Context, method, path, rawQuery string) (*backend.Response, error)
}

func (m *mockForwarder) Forward(ctx context.Context, method, path, rawQuery string, body io.Reader, contentType string, opts ...backend.RequestOption) (*backend.Response, error) {
	return m.forwardFn(ctx, method, path, rawQuery)
}

var _ CatalogForwarder = (*mockForwarder)(nil)

func TestCatalogHandler_Proxy_ForwardsPathAndQuery(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	fwd := &mockForwarder{
		forwardFn: func(_ context.Context, method, path, rawQuery string) (*backend.Response, error) {
			gotMethod, gotPath, gotQuery = method, path, rawQuery
			return &backend.Response{StatusCode: http.StatusOK, Body: []byte(`{"content":[]}`)}, nil
		},
	}
	h := NewCatalogHandler(fwd, &mockSessions{})

	w := httptest.NewRecorder()
	h.Proxy(w, httptest.NewRequest(http.MethodGet, "/api/books/search?q=go&page=1", nil))

	if gotMethod != http.MethodGet || gotPath != "/books/search" || gotQuery != "q=go&page=1" {
		t.Errorf("forwarded %s %s ? %s", gotMethod, gotPath, gotQuery)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != `{"content":[]}` {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestCatalogHandler_Proxy_KeepsContentType(t *testing.T) {
	fwd := &mockForwarder{
		forwardFn: func(context.Context, string, string, string) (*backend.Response, error) {
			return &backend.Response{StatusCode: http.StatusOK, ContentType: "image/png", Body: []byte{0x89}}, nil
		},
	}
	h := NewCatalogHandler(fwd, &mockSessions{})

	w := httptest.NewRecorder()
	h.Proxy(w, httptest.NewRequest(http.MethodGet, "/api/books/1/cover", nil))

	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestCatalogHandler_Proxy_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"見つからない", &backend.Error{Kind: backend.KindNotFound, StatusCode: 404}, http.StatusNotFound},
		{"バックエンド停止", &backend.Error{Kind: backend.KindTransport}, http.StatusServiceUnavailable},
		{"セッション期限切れ", &backend.SessionExpiredError{Method: "GET", Path: "/books"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := &mockForwarder{
				forwardFn: func(context.Context, string, string, string) (*backend.Response, error) {
					return nil, tt.err
				},
			}
			h := NewCatalogHandler(fwd, &mockSessions{session: authenticatedSession()})

			w := httptest.NewRecorder()
			h.Proxy(w, httptest.NewRequest(http.MethodGet, "/api/books", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCatalogHandler_Proxy_RejectsPathsOutsideCatalog(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"親ディレクトリ", "/api/books/../auth/me"},
		{"エンコードされた親ディレクトリ", "/api/books/%2e%2e/profile"},
		{"カレントディレクトリ", "/api/books/./1"},
		{"空のセグメント", "/api/books//1"},
		{"バックスラッシュ", "/api/books/..%5Cauth"},
		{"接頭辞だけ一致", "/api/booksellers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			fwd := &mockForwarder{
				forwardFn: func(context.Context, string, string, string) (*backend.Response, error) {
					called = true
					return &backend.Response{StatusCode: http.StatusOK}, nil
				},
			}
			h := NewCatalogHandler(fwd, &mockSessions{})

			w := httptest.NewRecorder()
			h.Proxy(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if called {
				t.Error("request should not be forwarded")
			}
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
			}
		})
	}
}

func TestCatalogPath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/api/books", "/books", true},
		{"/api/books/", "/books/", true},
		{"/api/books/42/cover", "/books/42/cover", true},
		{"/api/categories/3", "/categories/3", true},
		{"/api/books/../categories", "", false},
		{"/api/profile", "", false},
	}
	for _, tt := range tests {
		got, ok := catalogPath(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("catalogPath(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
