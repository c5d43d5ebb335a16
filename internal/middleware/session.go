// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/libraryfront/internal/credential"
)

// ClientCookieName はブラウザを識別するCookieの名前。
// 資格情報・認証セッション・通知は全てこの値をキーにする。
const ClientCookieName = "client_id"

// ClientCookieConfig はクライアントCookieの設定。
type ClientCookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// NewClientMiddleware はHTTP Only CookieからクライアントIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い、または形式が不正な場合は新しいIDを発行してCookieに設定する。
func NewClientMiddleware(config ClientCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(ClientCookieName); err == nil && validClientID(cookie.Value) {
				clientID = cookie.Value
			}

			if clientID == "" {
				id, err := generateClientID()
				if err != nil {
					slog.Error("failed to generate client ID", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				clientID = id
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := credential.WithClientID(r.Context(), clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// generateClientID は暗号的に安全なクライアントIDを生成する。
func generateClientID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validClientID はgenerateClientIDが生成する形式（64桁の16進数）かを判定する。
func validClientID(v string) bool {
	if len(v) != 64 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
