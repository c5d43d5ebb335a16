// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/libraryfront/internal/model"
)

// CredentialRepository はブラウザ単位の資格情報レコードの永続化インターフェース。
// clientIDはclient_id Cookieの値で、ブラウザのオリジン単位のストレージに相当する。
type CredentialRepository interface {
	// Save は資格情報を保存する。既存のレコードは丸ごと上書きする。
	Save(ctx context.Context, clientID string, cred *model.Credential) error

	// FindByClientID は資格情報を取得する。存在しない・期限切れの場合はnilを返す。
	FindByClientID(ctx context.Context, clientID string) (*model.Credential, error)

	// DeleteByClientID は資格情報を削除する。存在しなくてもエラーにしない。
	DeleteByClientID(ctx context.Context, clientID string) error
}
