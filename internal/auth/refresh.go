package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/libraryfront/internal/model"
)

// ErrRefreshUnsupported はトークンの更新に対応していない場合のエラー。
var ErrRefreshUnsupported = errors.New("token refresh is not supported")

// TokenRefresher はリフレッシュトークンから新しいトークンを取得する。
// 401を受けたときにサイレントログアウトより先に試される。
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.LoginResponse, error)
}

// NoRefresh は常に更新を断るTokenRefresher。
// バックエンドに更新エンドポイントが無いため、既定ではこれを使う。
type NoRefresh struct{}

// Refresh は常にErrRefreshUnsupportedを返す。
func (NoRefresh) Refresh(context.Context, string) (*model.LoginResponse, error) {
	return nil, ErrRefreshUnsupported
}

var _ TokenRefresher = NoRefresh{}

// ExpiredError はManagerがセッション期限切れを処理済みであることを表す。
// 呼び出し元はRefreshedを見て再試行するかログイン画面へ誘導するかを決める。
type ExpiredError struct {
	Refreshed bool
	Err       error
}

func (e *ExpiredError) Error() string { return e.Err.Error() }

func (e *ExpiredError) Unwrap() error { return e.Err }
