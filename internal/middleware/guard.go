package middleware

import (
	"context"
	"net/http"
)

// ルートガードのリダイレクト先。
const (
	LoginPath = "/login"
	HomePath  = "/home"
)

// SessionChecker は描画時点の認証状態を返す。
type SessionChecker interface {
	IsAuthenticated(ctx context.Context) bool
}

// ProtectedRedirect は保護ページのガード判定。
// 未認証ならログイン画面へのリダイレクト先とtrueを返す。
func ProtectedRedirect(isAuthenticated bool) (string, bool) {
	if isAuthenticated {
		return "", false
	}
	return LoginPath, true
}

// PublicOnlyRedirect は未認証専用ページ（ログイン・登録など）のガード判定。
// 認証済みならホームへのリダイレクト先とtrueを返す。
func PublicOnlyRedirect(isAuthenticated bool) (string, bool) {
	if !isAuthenticated {
		return "", false
	}
	return HomePath, true
}

// NewRequireAuthenticatedMiddleware は未認証のリクエストをloginPathへ302でリダイレクトする。
// 元のアクセス先は保持しない。
func NewRequireAuthenticatedMiddleware(checker SessionChecker, loginPath string) func(next http.Handler) http.Handler {
	return newGuard(checker, func(authenticated bool) (string, bool) {
		if _, redirect := ProtectedRedirect(authenticated); redirect {
			return loginPath, true
		}
		return "", false
	})
}

// NewRequireAnonymousMiddleware は認証済みのリクエストをhomePathへ302でリダイレクトする。
func NewRequireAnonymousMiddleware(checker SessionChecker, homePath string) func(next http.Handler) http.Handler {
	return newGuard(checker, func(authenticated bool) (string, bool) {
		if _, redirect := PublicOnlyRedirect(authenticated); redirect {
			return homePath, true
		}
		return "", false
	})
}

func newGuard(checker SessionChecker, decide func(bool) (string, bool)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if target, redirect := decide(checker.IsAuthenticated(r.Context())); redirect {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
