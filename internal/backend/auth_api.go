package backend

import (
	"context"
	"net/http"

	"github.com/hitoshi/libraryfront/internal/model"
)

// AuthAPI は /auth/* エンドポイントのクライアント。
type AuthAPI struct {
	client *Client
}

// NewAuthAPI はAuthAPIを生成する。
func NewAuthAPI(client *Client) *AuthAPI {
	return &AuthAPI{client: client}
}

// Login は POST /auth/login を呼び出す。
// アクセストークンまたはユーザーIDが欠けた応答はmodel.ErrInvalidLoginResponseとして扱う。
func (a *AuthAPI) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := a.client.Post(ctx, "/auth/login", req, &resp, Anonymous()); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, a.client.fail(ctx, &Error{
			Kind:       KindUnexpected,
			Method:     http.MethodPost,
			Path:       "/auth/login",
			StatusCode: http.StatusOK,
			Err:        err,
		})
	}
	return &resp, nil
}

// Register は POST /auth/register を呼び出す。
func (a *AuthAPI) Register(ctx context.Context, req model.RegisterRequest) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := a.client.Post(ctx, "/auth/register", req, &resp, Anonymous()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout は POST /auth/logout を呼び出す。
func (a *AuthAPI) Logout(ctx context.Context, token string) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := a.client.Post(ctx, "/auth/logout", nil, &resp, WithToken(token)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify は GET /auth/verify を呼び出し、トークンの有効性を返す。
func (a *AuthAPI) Verify(ctx context.Context, token string) (bool, error) {
	var resp model.VerifyResponse
	if err := a.client.Get(ctx, "/auth/verify", &resp, WithToken(token)); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// ForgotPassword は POST /auth/forgot-password を呼び出す。
func (a *AuthAPI) ForgotPassword(ctx context.Context, email string) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := a.client.Post(ctx, "/auth/forgot-password", model.ForgotPasswordRequest{Email: email}, &resp, Anonymous()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword は POST /auth/reset-password を呼び出す。
func (a *AuthAPI) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := a.client.Post(ctx, "/auth/reset-password", req, &resp, Anonymous()); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword は POST /auth/change-password を呼び出す。
func (a *AuthAPI) ChangePassword(ctx context.Context, token string, req model.ChangePasswordRequest) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := a.client.Post(ctx, "/auth/change-password", req, &resp, WithToken(token)); err != nil {
		return nil, err
	}
	return &resp, nil
}
