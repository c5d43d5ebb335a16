// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"strings"
	"time"
)

// UserIdentity はログイン中のユーザーの識別情報を表す。
// バックエンドのログイン応答から生成し、ログインのたびに上書きする。
type UserIdentity struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// NormalizeRoles はロールを集合として扱うため、空白除去・重複排除・ソートを行う。
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// HasRole は指定ロールを保持しているかを返す。
func (u *UserIdentity) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// Credential は永続化される資格情報レコードを表す。
// ログイン成功時に書き込み、ログアウト時（通常・サイレントとも）に削除する。
type Credential struct {
	Token        string
	RefreshToken string
	User         *UserIdentity
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Session はブラウザ単位のメモリ上の認証状態を表す。
// 永続化はされず、TokenとUserのみがCredentialとして保存される。
type Session struct {
	User            *UserIdentity `json:"user"`
	Token           string        `json:"-"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	IsLoading       bool          `json:"isLoading"`
	LastError       string        `json:"error,omitempty"`
}

// SessionFromCredential は永続化済みの資格情報からSessionを復元する。
// credがnilまたはトークンが空の場合は未認証のSessionを返す。
func SessionFromCredential(cred *Credential) Session {
	if cred == nil || cred.Token == "" {
		return Session{}
	}
	return Session{
		User:            cred.User,
		Token:           cred.Token,
		IsAuthenticated: true,
	}
}
