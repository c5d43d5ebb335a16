package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/notice"
)

// ErrNoClient はコンテキストにクライアントIDが無い場合のエラー。
var ErrNoClient = errors.New("auth: no client id in context")

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	IdleTTL         time.Duration // 最終アクセスからこの時間を過ぎたManagerを破棄する
	CleanupInterval time.Duration
}

// DefaultRegistryConfig はデフォルトのRegistry設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// Registry はクライアントIDごとのManagerを保持する。
// 起動時に1回だけ生成し、ハンドラーとミドルウェアに注入する。
type Registry struct {
	api       AuthBackend
	store     CredentialStore
	refresher TokenRefresher
	notifier  notice.Notifier
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	config    RegistryConfig
	now       func() time.Time

	mu       sync.Mutex
	managers map[string]*Manager

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry は新しいRegistryを生成する。
// refresherがnilの場合はNoRefreshを使う。
// バックグラウンドで放置されたManagerのクリーンアップを開始する。
func NewRegistry(
	api AuthBackend,
	store CredentialStore,
	refresher TokenRefresher,
	notifier notice.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config RegistryConfig,
) *Registry {
	if refresher == nil {
		refresher = NoRefresh{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		api:       api,
		store:     store,
		refresher: refresher,
		notifier:  notifier,
		metrics:   collector,
		logger:    logger,
		config:    config,
		now:       time.Now,
		managers:  make(map[string]*Manager),
		stopCh:    make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Manager はクライアントIDのManagerを返す。
// 初回アクセス時に生成し、毎回ストアの資格情報と状態を突き合わせる。
func (r *Registry) Manager(ctx context.Context, clientID string) *Manager {
	r.mu.Lock()
	m, ok := r.managers[clientID]
	if !ok {
		m = newManager(clientID, r)
		r.managers[clientID] = m
	}
	r.mu.Unlock()

	m.sync(r.store.Read(credential.WithClientID(ctx, clientID), clientID))
	return m
}

// FromContext はコンテキストのクライアントIDに対応するManagerを返す。
// クライアントIDが無い場合はfalseを返す。
func (r *Registry) FromContext(ctx context.Context) (*Manager, bool) {
	clientID, ok := credential.ClientIDFromContext(ctx)
	if !ok {
		return nil, false
	}
	return r.Manager(ctx, clientID), true
}

// Snapshot はコンテキストのクライアントのセッション状態を返す。
func (r *Registry) Snapshot(ctx context.Context) model.Session {
	m, ok := r.FromContext(ctx)
	if !ok {
		return model.Session{}
	}
	return m.Snapshot()
}

// IsAuthenticated はコンテキストのクライアントが認証済みかを返す。
// ルートガードから描画時点の状態として参照される。
func (r *Registry) IsAuthenticated(ctx context.Context) bool {
	m, ok := r.FromContext(ctx)
	if !ok {
		return false
	}
	return m.IsAuthenticated()
}

// Expire はコンテキストのクライアントのセッション期限切れを処理する。
// トークンを更新できた場合はtrueを返す。
func (r *Registry) Expire(ctx context.Context) bool {
	m, ok := r.FromContext(ctx)
	if !ok {
		return false
	}
	return m.Expire(ctx)
}

// Login はコンテキストのクライアントでログインする。
func (r *Registry) Login(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error) {
	m, ok := r.FromContext(ctx)
	if !ok {
		return nil, ErrNoClient
	}
	return m.Login(ctx, creds)
}

// Register はコンテキストのクライアントで新規登録する。
func (r *Registry) Register(ctx context.Context, req model.RegisterRequest) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return ErrNoClient
	}
	return m.Register(ctx, req)
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
func (r *Registry) ForgotPassword(ctx context.Context, email string) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return ErrNoClient
	}
	return m.ForgotPassword(ctx, email)
}

// ResetPassword は再設定トークンで新しいパスワードを設定する。
func (r *Registry) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return ErrNoClient
	}
	return m.ResetPassword(ctx, req)
}

// ChangePassword はコンテキストのクライアントのパスワードを変更する。
func (r *Registry) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return ErrNoClient
	}
	return m.ChangePassword(ctx, req)
}

// Logout はコンテキストのクライアントをログアウトさせる。
// クライアントIDが無い場合は破棄するものが無いためnilを返す。
func (r *Registry) Logout(ctx context.Context) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return nil
	}
	return m.Logout(ctx)
}

// VerifyToken はコンテキストのクライアントのトークンを検証する。
func (r *Registry) VerifyToken(ctx context.Context) bool {
	m, ok := r.FromContext(ctx)
	if !ok {
		return false
	}
	return m.VerifyToken(ctx)
}

// ClearError はコンテキストのクライアントの直近のエラーを消去する。
func (r *Registry) ClearError(ctx context.Context) {
	if m, ok := r.FromContext(ctx); ok {
		m.ClearError()
	}
}

// SilentLogout はコンテキストのクライアントをバックエンドを呼ばずにログアウトさせる。
func (r *Registry) SilentLogout(ctx context.Context) error {
	m, ok := r.FromContext(ctx)
	if !ok {
		return nil
	}
	return m.SilentLogout(ctx)
}

// Len は保持しているManagerの数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// cleanupLoop はバックグラウンドで放置されたManagerを定期的に削除する。
func (r *Registry) cleanupLoop() {
	interval := r.config.CleanupInterval
	if interval <= 0 {
		interval = DefaultRegistryConfig().CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup(r.now())
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は処理中でなく、最終アクセスがIdleTTLを超えたManagerを削除する。
// 状態はストアに残っているため、次のアクセスで復元される。
func (r *Registry) cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	authenticated := 0
	for clientID, m := range r.managers {
		idle, settled := m.idleSince(now)
		if settled && idle > r.config.IdleTTL {
			delete(r.managers, clientID)
			continue
		}
		if m.IsAuthenticated() {
			authenticated++
		}
	}

	r.metrics.SetActiveSessions(authenticated)
}
