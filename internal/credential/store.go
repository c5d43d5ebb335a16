package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/repository"
)

// DefaultTTL は保持期間が指定されない場合の既定値。
const DefaultTTL = 24 * time.Hour

// Store は資格情報ストア。
// 永続化先はrepository.CredentialRepositoryで差し替える（Postgres / Redis / メモリ）。
type Store struct {
	repo   repository.CredentialRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewStore はStoreを生成する。
// ttlは資格情報の最低保持期間。トークンの有効期限はここでは判定せず、
// 期限切れはバックエンドの401で検出する。
func NewStore(repo repository.CredentialRepository, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Save はトークン・リフレッシュトークン・ユーザー識別情報を書き込む。
// 形状の検証は行わず、既存のレコードを上書きする。
func (s *Store) Save(ctx context.Context, clientID, token, refreshToken string, user *model.UserIdentity) error {
	now := s.now()
	cred := &model.Credential{
		Token:        token,
		RefreshToken: refreshToken,
		User:         user,
		ExpiresAt:    RetainUntil(token, now, s.ttl),
		UpdatedAt:    now,
	}
	if err := s.repo.Save(ctx, clientID, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Read は資格情報を読み出す。
// 未保存・削除済み・保持期間切れの場合はnilを返す。
// ストアに到達できない場合はログに記録し、未保存として扱う。
func (s *Store) Read(ctx context.Context, clientID string) *model.Credential {
	if clientID == "" {
		return nil
	}
	cred, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		s.logger.Warn("credential store unavailable, treating as absent",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if cred == nil || cred.Token == "" {
		return nil
	}
	if !cred.ExpiresAt.IsZero() && !cred.ExpiresAt.After(s.now()) {
		return nil
	}
	return cred
}

// Clear は資格情報を削除する。何度呼んでも同じ結果になる。
func (s *Store) Clear(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	if err := s.repo.DeleteByClientID(ctx, clientID); err != nil {
		s.logger.Error("failed to clear credential",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Token はコンテキストのクライアントに保存されているトークンを返す。
// バックエンドへのリクエストごとに呼ばれ、Bearerヘッダーの値になる。
func (s *Store) Token(ctx context.Context) string {
	clientID, ok := ClientIDFromContext(ctx)
	if !ok {
		return ""
	}
	cred := s.Read(ctx, clientID)
	if cred == nil {
		return ""
	}
	return cred.Token
}
