package handler

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// SessionSnapshotter は描画時点のセッション状態を返す。
type SessionSnapshotter interface {
	Snapshot(ctx context.Context) model.Session
}

// page は画面の定義。
type page struct {
	Path     string
	Title    string
	Template string
}

// 未認証専用の画面。認証済みの場合は/homeへリダイレクトされる。
var publicOnlyPages = []page{
	{Path: "/login", Title: "Connexion", Template: "login.html"},
	{Path: "/register", Title: "Inscription", Template: "register.html"},
	{Path: "/forgot-password", Title: "Mot de passe oublié", Template: "forgot_password.html"},
	{Path: "/reset-password", Title: "Nouveau mot de passe", Template: "reset_password.html"},
}

// 認証が必要な画面。未認証の場合は/loginへリダイレクトされる。
var protectedPages = []page{
	{Path: "/home", Title: "Accueil", Template: "page.html"},
	{Path: "/dashboard", Title: "Tableau de bord", Template: "page.html"},
	{Path: "/catalogue", Title: "Catalogue", Template: "page.html"},
	{Path: "/emprunts", Title: "Mes emprunts", Template: "page.html"},
	{Path: "/historique", Title: "Historique", Template: "page.html"},
	{Path: "/about", Title: "À propos", Template: "page.html"},
	{Path: "/contact", Title: "Contact", Template: "page.html"},
	{Path: "/profile", Title: "Mon profil", Template: "profile.html"},
}

// pageData はテンプレートに渡す値。
type pageData struct {
	Title      string
	Page       string
	Session    model.Session
	Notices    []model.Notice
	CSRFField  string
	CSRFToken  string
	ResetToken string
}

// PageHandler はサーバー側で描画する画面のハンドラー。
// 描画時に溜まっている通知を取り出して表示する。
type PageHandler struct {
	sessions  SessionSnapshotter
	notices   NoticeBoard
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewPageHandler はテンプレートを読み込んでPageHandlerを生成する。
func NewPageHandler(sessions SessionSnapshotter, notices NoticeBoard, logger *slog.Logger) (*PageHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	templates := make(map[string]*template.Template)
	for _, pages := range [][]page{publicOnlyPages, protectedPages} {
		for _, p := range pages {
			if _, ok := templates[p.Template]; ok {
				continue
			}
			t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+p.Template)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", p.Template, err)
			}
			templates[p.Template] = t
		}
	}

	return &PageHandler{
		sessions:  sessions,
		notices:   notices,
		templates: templates,
		logger:    logger,
	}, nil
}

// Render はpの画面を描画するハンドラーを返す。
func (h *PageHandler) Render(p page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{
			Title:      p.Title,
			Page:       p.Path,
			Session:    h.sessions.Snapshot(r.Context()),
			CSRFField:  middleware.CSRFFormField,
			CSRFToken:  middleware.CSRFTokenFromContext(r.Context()),
			ResetToken: r.URL.Query().Get("token"),
		}
		if clientID, ok := credential.ClientIDFromContext(r.Context()); ok {
			data.Notices = h.notices.Drain(clientID)
		}

		// 途中まで書き込んだ状態でエラーにならないよう、バッファに描画してから返す
		var buf bytes.Buffer
		if err := h.templates[p.Template].ExecuteTemplate(&buf, "layout", data); err != nil {
			h.logger.Error("failed to render page",
				slog.String("page", p.Path),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	}
}

// RedirectHome は/homeへ302でリダイレクトする。
// /homeは保護されているため、未認証の場合はさらに/loginへ誘導される。
func RedirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, middleware.HomePath, http.StatusFound)
}

// NotFound は未定義のパスを処理する。APIは404を返し、画面は/homeへリダイレクトする。
func NotFound(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeNotFound,
			Message:  "Ressource introuvable.",
			Category: "system",
			Action:   "Vérifiez l'adresse demandée.",
		})
		return
	}
	RedirectHome(w, r)
}
