// Package profile はログイン中ユーザーのプロフィール管理を提供する。
// データはバックエンドが保持し、ここでは呼び出しと通知・退会後のセッション破棄を担う。
package profile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/notice"
)

// 成功時の通知メッセージ。
const (
	MsgProfileUpdated     = "Profil mis à jour avec succès"
	MsgPreferencesUpdated = "Préférences mises à jour"
	MsgPasswordChanged    = "Mot de passe modifié avec succès"
	MsgAccountDeleted     = "Votre compte a été supprimé"
)

// Backend は /api/profile/* を呼び出すインターフェース。
type Backend interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (*model.Profile, error)
	UpdatePreferences(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Profile, error)
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (*model.Confirmation, error)
	GetStatistics(ctx context.Context) (*model.UserStatistics, error)
	DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) (*model.Confirmation, error)
}

// SessionCloser は退会後にクライアントのセッションを破棄する。
type SessionCloser interface {
	SilentLogout(ctx context.Context) error
}

// Service はプロフィール管理のサービス層。
type Service struct {
	backend  Backend
	sessions SessionCloser
	notifier notice.Notifier
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(backend Backend, sessions SessionCloser, notifier notice.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:  backend,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
	}
}

// GetProfile はプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context) (*model.Profile, error) {
	return s.backend.GetProfile(ctx)
}

// GetStatistics は貸出統計を取得する。
func (s *Service) GetStatistics(ctx context.Context) (*model.UserStatistics, error) {
	return s.backend.GetStatistics(ctx)
}

// UpdateProfile はプロフィールを更新する。
func (s *Service) UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (*model.Profile, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)

	p, err := s.backend.UpdateProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, MsgProfileUpdated)
	return p, nil
}

// UpdatePreferences は表示・通知設定を更新する。
func (s *Service) UpdatePreferences(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Profile, error) {
	p, err := s.backend.UpdatePreferences(ctx, req)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, MsgPreferencesUpdated)
	return p, nil
}

// ChangePassword はパスワードを変更する。
// 確認用パスワードが指定されていて一致しない場合はバックエンドを呼ばない。
func (s *Service) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return model.NewInvalidRequestError("mot de passe requis")
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		apiErr := model.NewInvalidRequestError("les mots de passe ne correspondent pas")
		apiErr.Fields = map[string]string{"confirmPassword": "Les mots de passe ne correspondent pas"}
		return apiErr
	}

	if _, err := s.backend.ChangePassword(ctx, req); err != nil {
		return err
	}
	s.notify(ctx, MsgPasswordChanged)
	return nil
}

// DeleteAccount は退会処理を実行する。
// バックエンドでの削除に成功した後、このクライアントの資格情報とセッションを破棄する。
func (s *Service) DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) error {
	if req.Password == "" {
		return model.NewInvalidRequestError("mot de passe requis")
	}

	s.logger.Info("account deletion requested")

	if _, err := s.backend.DeleteAccount(ctx, req); err != nil {
		return err
	}

	if err := s.sessions.SilentLogout(ctx); err != nil {
		// バックエンド側の削除は完了しているため、ここでは失敗として扱わない
		s.logger.Warn("failed to clear session after account deletion", slog.String("error", err.Error()))
	}

	s.logger.Info("account deleted")
	s.notify(ctx, MsgAccountDeleted)
	return nil
}

func (s *Service) notify(ctx context.Context, message string) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, model.Notice{Level: model.NoticeSuccess, Message: message})
	}
}
