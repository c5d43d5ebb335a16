// Package credential はブラウザ単位の資格情報（トークンとユーザー識別情報）の
// 保存・読み出し・削除を提供する。
package credential

import "context"

type contextKey string

var clientIDContextKey = contextKey("client_id")

// WithClientID はコンテキストにクライアントIDを注入する。
// クライアントIDはブラウザごとのclient_id Cookieの値で、資格情報のスコープになる。
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}

// ClientIDFromContext はコンテキストからクライアントIDを取得する。
// 未設定の場合は空文字とfalseを返す。
func ClientIDFromContext(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(clientIDContextKey).(string)
	if !ok || clientID == "" {
		return "", false
	}
	return clientID, true
}
