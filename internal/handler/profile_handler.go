package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	GetStatistics(ctx context.Context) (*model.UserStatistics, error)
	UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (*model.Profile, error)
	UpdatePreferences(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Profile, error)
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error
	// DeleteAccount は退会処理を実行する。成功時はこのクライアントのセッションも破棄される。
	DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) error
}

type accountDeletedResponse struct {
	Success  bool   `json:"success"`
	Redirect string `json:"redirect"`
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
	expirer SessionExpirer
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, expirer SessionExpirer) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		expirer: expirer,
	}
}

// GetProfile はプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfile(r.Context())
	if err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetStatistics は貸出統計を返す。
// GET /api/profile/statistics
func (h *ProfileHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatistics(r.Context())
	if err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UpdateProfile はプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePreferences は表示・通知設定を更新する。
// PUT /api/profile/preferences
func (h *ProfileHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req model.UpdatePreferencesRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	p, err := h.service.UpdatePreferences(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ChangePassword はパスワードを変更する。
// PUT /api/profile/change-password
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.ChangePassword(r.Context(), req); err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationResponse{Success: true})
}

// DeleteAccount は退会処理を行い、ログイン画面への遷移を指示する。
// DELETE /api/profile/account
func (h *ProfileHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req model.DeleteAccountRequest
	if apiErr := decodeRequest(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), req); err != nil {
		handleServiceError(w, r, h.expirer, err)
		return
	}
	writeJSON(w, http.StatusOK, accountDeletedResponse{Success: true, Redirect: middleware.LoginPath})
}
