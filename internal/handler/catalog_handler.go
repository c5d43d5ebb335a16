package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/libraryfront/internal/backend"
)

// CatalogForwarder はカタログのリクエストをバックエンドへ転送する。
type CatalogForwarder interface {
	Forward(ctx context.Context, method, path, rawQuery string, body io.Reader, contentType string, opts ...backend.RequestOption) (*backend.Response, error)
}

// CatalogHandler は書籍・カテゴリのAPIをバックエンドへそのまま中継する。
// レスポンスの中身は解釈しない。
type CatalogHandler struct {
	forwarder CatalogForwarder
	expirer   SessionExpirer
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(forwarder CatalogForwarder, expirer SessionExpirer) *CatalogHandler {
	return &CatalogHandler{
		forwarder: forwarder,
		expirer:   expirer,
	}
}

// 中継を許可するバックエンドのパス。
var catalogPrefixes = []string{"/books", "/categories"}

// Proxy はGET /api/books/* と GET /api/categories/* を転送する。
// Bearerトークンはクライアントの資格情報から付与される。
// ドットセグメントを含むパスやカタログ以外のパスは転送せず404を返す。
func (h *CatalogHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	path, ok := catalogPath(r.URL.Path)
	if !ok {
		NotFound(w, r)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), r.Method, path, r.URL.RawQuery, nil, "")
	if err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// catalogPath は/apiを除いた転送先のパスを返す。
// chiはパスを正規化しないため、"."や".."のセグメント・バックスラッシュ・
// 空のセグメントを含むパスは拒否する。
func catalogPath(requestPath string) (string, bool) {
	p := strings.TrimPrefix(requestPath, "/api")
	if strings.Contains(p, "\\") {
		return "", false
	}
	segments := strings.Split(strings.TrimSuffix(p, "/"), "/")
	for i, seg := range segments {
		if i == 0 {
			continue
		}
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	for _, prefix := range catalogPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return p, true
		}
	}
	return "", false
}
