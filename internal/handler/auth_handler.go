// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/notice"
)

// AuthSessions は認証ハンドラーが必要とするセッション操作。
// 全ての操作はコンテキストのクライアントIDを対象にする。
type AuthSessions interface {
	SessionExpirer
	middleware.SessionChecker
	Login(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error)
	Register(ctx context.Context, req model.RegisterRequest) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context) bool
	Snapshot(ctx context.Context) model.Session
	ClearError(ctx context.Context)
}

// NoticeBoard はクライアントごとの通知キュー。
type NoticeBoard interface {
	notice.Notifier
	Drain(clientID string) []model.Notice
}

// registerRequest は登録フォームの入力値。確認用パスワードはバックエンドに送らない。
type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phoneNumber"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type confirmationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type noticesResponse struct {
	Notices []model.Notice `json:"notices"`
}

// AuthHandler は認証関連のHTTPハンドラー。
// JSONリクエストにはJSONで、HTMLフォームの送信には303リダイレクトで応答する。
type AuthHandler struct {
	sessions AuthSessions
	notices  NoticeBoard
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions AuthSessions, notices NoticeBoard, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		sessions: sessions,
		notices:  notices,
		logger:   logger,
	}
}

// Login はログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if apiErr := decodeRequest(w, r, &creds); apiErr != nil {
		h.reject(w, r, apiErr, middleware.LoginPath)
		return
	}
	if apiErr := validateLogin(creds); apiErr != nil {
		h.reject(w, r, apiErr, middleware.LoginPath)
		return
	}

	if _, err := h.sessions.Login(r.Context(), creds); err != nil {
		h.fail(w, r, err, middleware.LoginPath)
		return
	}

	h.succeed(w, r, http.StatusOK, h.sessions.Snapshot(r.Context()), middleware.HomePath)
}

// Register は新規登録を処理する。成功後はログイン画面へ誘導する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		h.reject(w, r, apiErr, "/register")
		return
	}
	if apiErr := validateRegister(req); apiErr != nil {
		h.reject(w, r, apiErr, "/register")
		return
	}

	err := h.sessions.Register(r.Context(), model.RegisterRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(w, r, err, "/register")
		return
	}

	h.succeed(w, r, http.StatusCreated, confirmationResponse{Success: true}, middleware.LoginPath)
}

// Logout はログアウトを処理する。
// バックエンドへの通知が失敗してもローカルの状態は破棄済みのため成功として応答する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Warn("logout completed with error", slog.String("error", err.Error()))
	}
	h.succeed(w, r, http.StatusOK, confirmationResponse{Success: true}, middleware.LoginPath)
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		h.reject(w, r, apiErr, "/forgot-password")
		return
	}
	if apiErr := validateForgotPassword(req.Email); apiErr != nil {
		h.reject(w, r, apiErr, "/forgot-password")
		return
	}

	if err := h.sessions.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err, "/forgot-password")
		return
	}
	h.succeed(w, r, http.StatusOK, confirmationResponse{Success: true}, middleware.LoginPath)
}

// ResetPassword は再設定トークンで新しいパスワードを設定する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		h.reject(w, r, apiErr, "/reset-password")
		return
	}
	retry := "/reset-password?token=" + url.QueryEscape(req.Token)
	if apiErr := validateResetPassword(req); apiErr != nil {
		h.reject(w, r, apiErr, retry)
		return
	}

	err := h.sessions.ResetPassword(r.Context(), model.ResetPasswordRequest{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.fail(w, r, err, retry)
		return
	}
	h.succeed(w, r, http.StatusOK, confirmationResponse{Success: true}, middleware.LoginPath)
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
// POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		h.reject(w, r, apiErr, "/profile")
		return
	}
	errs := fieldErrors{}
	errs.require("currentPassword", req.CurrentPassword, "Le mot de passe actuel est requis")
	errs.require("newPassword", req.NewPassword, "Le nouveau mot de passe est requis")
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		errs["confirmPassword"] = "Les mots de passe ne correspondent pas"
	}
	if apiErr := errs.err(); apiErr != nil {
		h.reject(w, r, apiErr, "/profile")
		return
	}

	if err := h.sessions.ChangePassword(r.Context(), req); err != nil {
		h.fail(w, r, err, "/profile")
		return
	}
	h.succeed(w, r, http.StatusOK, confirmationResponse{Success: true}, "/profile")
}

// Verify はトークンの有効性を確認する。無効な場合はサイレントログアウト済み。
// GET /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, verifyResponse{Valid: h.sessions.VerifyToken(r.Context())})
}

// Session は現在のセッション状態を返す。トークンは含めない。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Snapshot(r.Context()))
}

// ClearError は直近のエラーメッセージを消去する。
// DELETE /auth/session/error
func (h *AuthHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearError(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Notices は溜まっている通知を取り出して返す。取り出した通知はキューから消える。
// GET /auth/notices
func (h *AuthHandler) Notices(w http.ResponseWriter, r *http.Request) {
	notices := []model.Notice{}
	if clientID, ok := credential.ClientIDFromContext(r.Context()); ok {
		if drained := h.notices.Drain(clientID); drained != nil {
			notices = drained
		}
	}
	writeJSON(w, http.StatusOK, noticesResponse{Notices: notices})
}

// succeed は成功レスポンスを返す。フォーム送信の場合はnextへ303でリダイレクトする。
func (h *AuthHandler) succeed(w http.ResponseWriter, r *http.Request, statusCode int, body any, next string) {
	if !wantsJSON(r) {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	writeJSON(w, statusCode, body)
}

// fail はセッション操作の失敗を返す。
// フォーム送信の場合、エラーはセッションのLastErrorと通知に残っているため
// 入力画面へ戻すだけでよい。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error, retry string) {
	if !wantsJSON(r) {
		handleFormError(w, r, h.sessions, err, retry)
		return
	}
	handleServiceError(w, r, h.sessions, err)
}

// reject は入力エラーを返す。フォーム送信の場合は警告を通知して入力画面へ戻す。
func (h *AuthHandler) reject(w http.ResponseWriter, r *http.Request, apiErr *model.APIError, retry string) {
	if !wantsJSON(r) {
		h.notices.Notify(r.Context(), model.Notice{Level: model.NoticeWarning, Message: apiErr.Message})
		http.Redirect(w, r, retry, http.StatusSeeOther)
		return
	}
	writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
}
