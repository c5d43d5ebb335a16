// Package auth はブラウザ単位の認証セッションのライフサイクルを管理する。
// ログイン・ログアウト・トークン検証の結果を、メモリ上のセッション状態と
// 資格情報ストアの両方へ同時に反映する。
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/libraryfront/internal/backend"
	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/notice"
)

// 失敗時にバックエンドのメッセージが無い場合の既定メッセージ。
const (
	MsgLoginFailed          = "Erreur de connexion"
	MsgRegisterFailed       = "Erreur lors de l'inscription"
	MsgForgotPasswordFailed = "Erreur lors de l'envoi"
	MsgResetPasswordFailed  = "Erreur lors de la réinitialisation"
	MsgChangePasswordFailed = "Erreur lors du changement de mot de passe"
)

// 成功時の通知メッセージ。
const (
	MsgRegistered      = "Inscription réussie ! Vous pouvez maintenant vous connecter."
	MsgLoggedOut       = "Vous êtes déconnecté"
	MsgRecoverySent    = "Un email de récupération a été envoyé"
	MsgPasswordReset   = "Mot de passe réinitialisé avec succès"
	MsgPasswordChanged = "Mot de passe modifié avec succès"
)

// WelcomeMessage はログイン成功時の通知文を返す。
func WelcomeMessage(user *model.UserIdentity) string {
	return fmt.Sprintf("Bienvenue %s !", user.Username)
}

// AuthBackend は認証エンドポイントを呼び出すインターフェース。
type AuthBackend interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.Confirmation, error)
	Logout(ctx context.Context, token string) (*model.Confirmation, error)
	Verify(ctx context.Context, token string) (bool, error)
	ForgotPassword(ctx context.Context, email string) (*model.Confirmation, error)
	ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (*model.Confirmation, error)
	ChangePassword(ctx context.Context, token string, req model.ChangePasswordRequest) (*model.Confirmation, error)
}

// CredentialStore は資格情報の永続化先。
type CredentialStore interface {
	Save(ctx context.Context, clientID, token, refreshToken string, user *model.UserIdentity) error
	Read(ctx context.Context, clientID string) *model.Credential
	Clear(ctx context.Context, clientID string) error
}

// Manager は1つのブラウザ（クライアントID）の認証セッションを管理する。
// Registryが生成し、状態はストアから復元される。
type Manager struct {
	clientID  string
	api       AuthBackend
	store     CredentialStore
	refresher TokenRefresher
	notifier  notice.Notifier
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time

	flight   singleflight.Group
	flightMu sync.Mutex
	flights  map[string]*loginFlight

	mu       sync.Mutex
	session  model.Session // IsLoadingはloadingから算出する
	loading  int
	lastUsed time.Time
}

func newManager(clientID string, r *Registry) *Manager {
	return &Manager{
		clientID:  clientID,
		api:       r.api,
		store:     r.store,
		refresher: r.refresher,
		notifier:  r.notifier,
		metrics:   r.metrics,
		logger:    r.logger.With(slog.String("client_id", clientID)),
		now:       r.now,
		lastUsed:  r.now(),
	}
}

// ClientID はManagerが担当するクライアントIDを返す。
func (m *Manager) ClientID() string {
	return m.clientID
}

// Snapshot は現在のセッション状態のコピーを返す。
func (m *Manager) Snapshot() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	s.IsLoading = m.loading > 0
	if s.User != nil {
		u := *s.User
		u.Roles = append([]string(nil), s.User.Roles...)
		s.User = &u
	}
	return s
}

// IsAuthenticated はトークンを保持しているかを返す。
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsAuthenticated
}

// ClearError は直近のエラーメッセージを消去する。
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.LastError = ""
}

// Login はユーザー名またはメールアドレスとパスワードでログインする。
// 同じ資格情報での同時ログインは1回のバックエンド呼び出しにまとめる。
// 共有の呼び出しは特定の呼び出し元のコンテキストに縛られず、
// 各呼び出し元は自身のコンテキストがキャンセルされた時点で離脱する。
// 成功時は資格情報を保存してから認証済み状態にする。
// 保存前に全ての呼び出し元がキャンセルされた場合は何も反映しない。
func (m *Manager) Login(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error) {
	ctx = m.scope(ctx)
	done := m.begin()
	defer done()

	key := flightKey(creds)
	f := m.joinFlight(ctx, key)
	defer m.leaveFlight(key, f)

	ch := m.flight.DoChan(key, func() (any, error) {
		return m.login(f, creds)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.UserIdentity), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) login(f *loginFlight, creds model.Credentials) (*model.UserIdentity, error) {
	ctx := f.ctx
	resp, err := m.api.Login(ctx, model.LoginRequest{
		UsernameOrEmail: strings.TrimSpace(creds.Email),
		Password:        creds.Password,
	})
	if err == nil {
		err = m.flightErr(f)
	}
	if err != nil {
		m.metrics.RecordAuthEvent(metrics.EventLoginFailure)
		m.recordError(err, MsgLoginFailed)
		return nil, err
	}

	user := resp.Identity()
	if err := m.store.Save(ctx, m.clientID, resp.AccessToken, resp.RefreshToken, user); err != nil {
		m.metrics.RecordAuthEvent(metrics.EventLoginFailure)
		m.recordError(err, MsgLoginFailed)
		m.notify(ctx, model.NoticeError, backend.MsgUnexpected)
		return nil, err
	}

	m.mu.Lock()
	m.session.Token = resp.AccessToken
	m.session.User = user
	m.session.IsAuthenticated = true
	m.session.LastError = ""
	m.mu.Unlock()

	m.metrics.RecordAuthEvent(metrics.EventLoginSuccess)
	m.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	m.notify(ctx, model.NoticeSuccess, WelcomeMessage(user))
	return user, nil
}

// loginFlight は同じ資格情報で合流したログインの呼び出し元を保持する。
// ctxは最後の呼び出し元が離脱した時点でキャンセルされる。
// バックエンド呼び出しの上限時間はHTTPクライアントのタイムアウトで決まる。
type loginFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	callers []context.Context
	waiting int
}

func (m *Manager) joinFlight(ctx context.Context, key string) *loginFlight {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()

	f, ok := m.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &loginFlight{ctx: fctx, cancel: cancel}
		if m.flights == nil {
			m.flights = make(map[string]*loginFlight)
		}
		m.flights[key] = f
	}
	f.callers = append(f.callers, ctx)
	f.waiting++
	return f
}

// leaveFlight は呼び出し元の離脱を記録する。
// 誰も待っていなければ共有の呼び出しをキャンセルし、次のログインは新しく開始させる。
func (m *Manager) leaveFlight(key string, f *loginFlight) {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()

	f.waiting--
	if f.waiting > 0 {
		return
	}
	f.cancel()
	if m.flights[key] == f {
		delete(m.flights, key)
		m.flight.Forget(key)
	}
}

// flightErr はまだ待っている呼び出し元がいればnilを、
// 全員がキャンセル済みなら最初の呼び出し元のエラーを返す。
func (m *Manager) flightErr(f *loginFlight) error {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()

	var first error
	for _, c := range f.callers {
		err := c.Err()
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = f.ctx.Err()
	}
	return first
}

// Register は新規ユーザーを登録する。セッションは変更しない。
func (m *Manager) Register(ctx context.Context, req model.RegisterRequest) error {
	return m.run(ctx, MsgRegisterFailed, MsgRegistered, func(ctx context.Context) error {
		_, err := m.api.Register(ctx, req)
		return err
	})
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	return m.run(ctx, MsgForgotPasswordFailed, MsgRecoverySent, func(ctx context.Context) error {
		_, err := m.api.ForgotPassword(ctx, strings.TrimSpace(email))
		return err
	})
}

// ResetPassword は再設定トークンで新しいパスワードを設定する。
func (m *Manager) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	return m.run(ctx, MsgResetPasswordFailed, MsgPasswordReset, func(ctx context.Context) error {
		_, err := m.api.ResetPassword(ctx, req)
		return err
	})
}

// ChangePassword はログイン中ユーザーのパスワードを変更する。
func (m *Manager) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	token := m.token()
	return m.run(ctx, MsgChangePasswordFailed, MsgPasswordChanged, func(ctx context.Context) error {
		_, err := m.api.ChangePassword(ctx, token, req)
		return err
	})
}

// Logout はバックエンドにログアウトを通知してからローカルの状態を破棄する。
// バックエンド呼び出しが失敗しても資格情報とセッションは必ず破棄され、
// その後でエラーを返す。
func (m *Manager) Logout(ctx context.Context) (err error) {
	ctx = m.scope(ctx)
	done := m.begin()
	defer done()

	defer func() {
		if clearErr := m.reset(ctx); clearErr != nil {
			err = errors.Join(err, clearErr)
		}
		m.metrics.RecordAuthEvent(metrics.EventLogout)
		m.logger.Info("user logged out")
		m.notify(ctx, model.NoticeInfo, MsgLoggedOut)
	}()

	if token := m.token(); token != "" {
		_, err = m.api.Logout(ctx, token)
	}
	return err
}

// SilentLogout はバックエンドを呼ばずにローカルの状態だけを破棄する。
func (m *Manager) SilentLogout(ctx context.Context) error {
	ctx = m.scope(ctx)
	err := m.reset(ctx)
	m.metrics.RecordAuthEvent(metrics.EventSilentLogout)
	m.logger.Info("user logged out silently")
	return err
}

// VerifyToken はトークンの有効性をバックエンドに問い合わせる。
// 無効または問い合わせに失敗した場合は1回だけサイレントログアウトしてfalseを返す。
// トークンを持たない場合はバックエンドを呼ばない。
func (m *Manager) VerifyToken(ctx context.Context) bool {
	ctx = m.scope(ctx)
	token := m.token()
	if token == "" {
		m.SilentLogout(ctx)
		return false
	}

	done := m.begin()
	valid, err := m.api.Verify(ctx, token)
	done()

	if err != nil || !valid {
		m.metrics.RecordAuthEvent(metrics.EventVerifyFailed)
		if err != nil {
			m.logger.Info("token verification failed", slog.String("error", err.Error()))
		}
		m.SilentLogout(ctx)
		return false
	}
	return true
}

// Expire は認証付きリクエストが401を受けたときに呼ばれる。
// リフレッシュトークンで更新できればtrueを返し、
// できなければサイレントログアウトしてfalseを返す。
func (m *Manager) Expire(ctx context.Context) bool {
	ctx = m.scope(ctx)
	if m.tryRefresh(ctx) {
		return true
	}
	m.metrics.RecordAuthEvent(metrics.EventSessionExpired)
	m.logger.Info("session expired")
	m.SilentLogout(ctx)
	return false
}

func (m *Manager) tryRefresh(ctx context.Context) bool {
	cred := m.store.Read(ctx, m.clientID)
	if cred == nil || cred.RefreshToken == "" {
		return false
	}

	resp, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if !errors.Is(err, ErrRefreshUnsupported) {
			m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		}
		return false
	}
	if err := resp.Validate(); err != nil {
		m.logger.Warn("token refresh returned invalid response", slog.String("error", err.Error()))
		return false
	}

	user := resp.Identity()
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	if err := m.store.Save(ctx, m.clientID, resp.AccessToken, refreshToken, user); err != nil {
		m.logger.Warn("failed to save refreshed credential", slog.String("error", err.Error()))
		return false
	}

	m.mu.Lock()
	m.session.Token = resp.AccessToken
	m.session.User = user
	m.session.IsAuthenticated = true
	m.mu.Unlock()

	m.logger.Info("token refreshed")
	return true
}

// sync はストアの資格情報にメモリ上の状態を合わせる。
// 別プロセスでのログイン・ログアウトや期限切れをここで反映する。
func (m *Manager) sync(cred *model.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastUsed = m.now()
	if m.loading > 0 {
		return
	}
	if cred == nil {
		if m.session.IsAuthenticated {
			m.logger.Info("credential no longer stored, session reset")
		}
		m.session.Token = ""
		m.session.User = nil
		m.session.IsAuthenticated = false
		return
	}
	if cred.Token != m.session.Token {
		restored := model.SessionFromCredential(cred)
		restored.LastError = m.session.LastError
		m.session = restored
	}
}

// run はRegister等の共通処理（ロード中カウント・エラー記録・成功通知）を行う。
func (m *Manager) run(ctx context.Context, fallback, success string, call func(context.Context) error) error {
	ctx = m.scope(ctx)
	done := m.begin()
	defer done()

	if err := call(ctx); err != nil {
		if backend.IsSessionExpired(err) {
			err = &ExpiredError{Refreshed: m.Expire(ctx), Err: err}
		}
		m.recordError(err, fallback)
		return err
	}
	m.notify(ctx, model.NoticeSuccess, success)
	return nil
}

// reset はストアの資格情報とメモリ上のセッションを破棄する。
// 呼び出し元がキャンセル済みでも破棄は行う。
func (m *Manager) reset(ctx context.Context) error {
	err := m.store.Clear(context.WithoutCancel(ctx), m.clientID)

	m.mu.Lock()
	m.session.Token = ""
	m.session.User = nil
	m.session.IsAuthenticated = false
	m.session.LastError = ""
	m.mu.Unlock()

	return err
}

// begin はロード中カウントを増やし、直近のエラーを消去する。
// 戻り値の関数でカウントを戻す。
func (m *Manager) begin() func() {
	m.mu.Lock()
	m.loading++
	m.session.LastError = ""
	m.lastUsed = m.now()
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.loading--
			m.mu.Unlock()
		})
	}
}

func (m *Manager) recordError(err error, fallback string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	msg := backend.MessageOf(err, fallback)
	m.mu.Lock()
	m.session.LastError = msg
	m.mu.Unlock()
}

func (m *Manager) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Token
}

func (m *Manager) idleSince(now time.Time) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastUsed), m.loading == 0
}

func (m *Manager) notify(ctx context.Context, level, message string) {
	if m.notifier != nil {
		m.notifier.Notify(ctx, model.Notice{Level: level, Message: message})
	}
}

// scope はコンテキストにこのManagerのクライアントIDを設定する。
// 通知とBearerトークンの付与先がこのクライアントになる。
func (m *Manager) scope(ctx context.Context) context.Context {
	if id, ok := credential.ClientIDFromContext(ctx); ok && id == m.clientID {
		return ctx
	}
	return credential.WithClientID(ctx, m.clientID)
}

// flightKey は同時ログインをまとめるためのキーを返す。
// 識別子は大文字小文字と前後の空白を無視し、パスワードはハッシュ化して含める。
func flightKey(creds model.Credentials) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(creds.Email)) + "\x00" + creds.Password))
	return hex.EncodeToString(sum[:])
}

var (
	_ AuthBackend     = (*backend.AuthAPI)(nil)
	_ CredentialStore = (*credential.Store)(nil)
)
