package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, backend, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位のバリデーションエラー
	Redirect string            // クライアントに遷移を促すパス
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeBackendError       = "BACKEND_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Requête invalide : %s", reason),
		Category: "validation",
		Action:   "Vérifiez les champs du formulaire puis réessayez.",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
// redirectにはログイン画面のパスを指定する。
func NewSessionExpiredError(redirect string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Session expirée. Veuillez vous reconnecter.",
		Category: "auth",
		Action:   "Reconnectez-vous pour continuer.",
		Redirect: redirect,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "Authentification requise."
	}
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "Vérifiez vos identifiants.",
	}
}

// NewBackendUnavailableError はバックエンドに到達できない場合のエラーを生成する。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "Impossible de contacter le serveur. Vérifiez votre connexion.",
		Category: "backend",
		Action:   "Réessayez dans quelques instants.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Une erreur inattendue est survenue.",
		Category: "system",
		Action:   "Réessayez plus tard.",
	}
}
