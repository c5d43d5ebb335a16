package model

import "errors"

// ErrInvalidLoginResponse はログイン応答にアクセストークンまたはユーザーIDが含まれない場合のエラー。
var ErrInvalidLoginResponse = errors.New("invalid login response")

// Credentials はログインフォームの入力値。
// emailフィールドにはユーザー名またはメールアドレスのどちらでも入力できる。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest は POST /auth/login のリクエストボディ。
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// LoginResponse は POST /auth/login のレスポンスボディ。
// ユーザー情報はネストせずフラットに返される。
type LoginResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	UserID       int64    `json:"userId"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
}

// Validate は必須フィールドの存在を検証する。
func (r *LoginResponse) Validate() error {
	if r == nil || r.AccessToken == "" || r.UserID == 0 {
		return ErrInvalidLoginResponse
	}
	return nil
}

// Identity はレスポンスからUserIdentityを生成する。
func (r *LoginResponse) Identity() *UserIdentity {
	return &UserIdentity{
		ID:       r.UserID,
		Username: r.Username,
		Email:    r.Email,
		Roles:    NormalizeRoles(r.Roles),
	}
}

// RegisterRequest は POST /auth/register のリクエストボディ。
type RegisterRequest struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// ForgotPasswordRequest は POST /auth/forgot-password のリクエストボディ。
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest は POST /auth/reset-password のリクエストボディ。
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ChangePasswordRequest はログイン中ユーザーのパスワード変更リクエスト。
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

// VerifyResponse は GET /auth/verify のレスポンスボディ。
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// Confirmation はバックエンドの汎用確認レスポンス。
type Confirmation struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
