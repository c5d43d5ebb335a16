package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/libraryfront/internal/auth"
	"github.com/hitoshi/libraryfront/internal/backend"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
)

// SessionExpirer はバックエンドが401を返したときにクライアントのセッションを処理する。
type SessionExpirer interface {
	// Expire はトークンを更新できた場合にtrueを返す。
	// 更新できなければセッションを破棄してfalseを返す。
	Expire(ctx context.Context) bool
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// wantsJSON はリクエストがJSONの応答を期待しているかを判定する。
// HTMLフォームの送信はリダイレクトで応答する。
func wantsJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return false
	}
	return true
}

// expireSession はSessionExpiredErrorを受けたクライアントのセッションを処理する。
// Managerが処理済みの場合は結果だけを取り出し、二重に処理しない。
func expireSession(ctx context.Context, expirer SessionExpirer, err error) bool {
	var handled *auth.ExpiredError
	if errors.As(err, &handled) {
		return handled.Refreshed
	}
	return expirer.Expire(ctx)
}

// handleServiceError はサービス層・バックエンドから返されたエラーをHTTPレスポンスに変換する。
//
// セッション期限切れの場合はセッションを破棄したうえで、フォーム送信とページには
// ログイン画面へのリダイレクト、APIには401とredirectを返す。
// トークンを更新できた場合は同じURLへ307でリダイレクトし、再送させる。
func handleServiceError(w http.ResponseWriter, r *http.Request, expirer SessionExpirer, err error) {
	if backend.IsSessionExpired(err) {
		if expireSession(r.Context(), expirer, err) {
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusTemporaryRedirect)
			return
		}
		if !wantsJSON(r) || !isAPIPath(r.URL.Path) {
			http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
			return
		}
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError(middleware.LoginPath))
		return
	}

	statusCode, apiErr := toAPIError(err)
	if statusCode == http.StatusInternalServerError {
		slog.Error("internal server error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeAPIErrorResponse(w, statusCode, apiErr)
}

// toAPIError はエラーをHTTPステータスコードと統一エラーに変換する。
func toAPIError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	}

	be, ok := backend.AsError(err)
	if !ok {
		if errors.Is(err, auth.ErrNoClient) {
			return http.StatusUnauthorized, model.NewUnauthorizedError("")
		}
		return http.StatusInternalServerError, model.NewInternalError()
	}

	switch be.Kind {
	case backend.KindTransport:
		return http.StatusServiceUnavailable, model.NewBackendUnavailableError()
	case backend.KindUnauthorized:
		return http.StatusUnauthorized, model.NewUnauthorizedError(be.Message)
	case backend.KindForbidden:
		return http.StatusForbidden, &model.APIError{
			Code:     model.ErrCodeForbidden,
			Message:  backend.MessageOf(be, backend.MsgForbidden),
			Category: "auth",
			Action:   "Contactez un administrateur si nécessaire.",
		}
	case backend.KindNotFound:
		return http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeNotFound,
			Message:  backend.MessageOf(be, backend.MsgNotFound),
			Category: "backend",
			Action:   "Vérifiez l'adresse demandée.",
		}
	case backend.KindValidation:
		return http.StatusUnprocessableEntity, &model.APIError{
			Code:     model.ErrCodeValidationFailed,
			Message:  backend.MessageOf(be, backend.MsgValidation),
			Category: "validation",
			Action:   "Corrigez les champs signalés puis réessayez.",
			Fields:   be.FieldMap(),
		}
	case backend.KindServer:
		return http.StatusBadGateway, &model.APIError{
			Code:     model.ErrCodeBackendError,
			Message:  backend.MsgServer,
			Category: "backend",
			Action:   "Réessayez plus tard.",
		}
	case backend.KindOther:
		statusCode := be.StatusCode
		if statusCode < 400 || statusCode > 499 {
			statusCode = http.StatusBadGateway
		}
		return statusCode, &model.APIError{
			Code:     model.ErrCodeBackendError,
			Message:  backend.MessageOf(be, backend.MsgGeneric),
			Category: "backend",
			Action:   "Vérifiez votre saisie puis réessayez.",
		}
	default:
		return http.StatusInternalServerError, model.NewInternalError()
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeBackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isAPIPath はJSON APIのパスかを判定する。
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/auth/")
}

// handleFormError はHTMLフォーム送信の失敗を303リダイレクトで返す。
// 通知はバックエンド呼び出し時に積まれているため、ここでは遷移先だけを決める。
func handleFormError(w http.ResponseWriter, r *http.Request, expirer SessionExpirer, err error, retry string) {
	if backend.IsSessionExpired(err) {
		if expireSession(r.Context(), expirer, err) {
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusTemporaryRedirect)
			return
		}
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}

	if statusCode, _ := toAPIError(err); statusCode == http.StatusInternalServerError {
		slog.Error("form submission failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, retry, http.StatusSeeOther)
}
