package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/libraryfront/internal/auth"
	"github.com/hitoshi/libraryfront/internal/backend"
	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
)

// --- モック定義 ---

type mockSessions struct {
	loginFn          func(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error)
	registerFn       func(ctx context.Context, req model.RegisterRequest) error
	forgotPasswordFn func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, req model.ResetPasswordRequest) error
	changePasswordFn func(ctx context.Context, req model.ChangePasswordRequest) error
	logoutFn         func(ctx context.Context) error
	verifyFn         func(ctx context.Context) bool
	expireFn         func(ctx context.Context) bool

	session      model.Session
	expireCalls  int
	clearedError bool
}

func (m *mockSessions) Login(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return &model.UserIdentity{ID: 1, Username: creds.Email}, nil
}

func (m *mockSessions) Register(ctx context.Context, req model.RegisterRequest) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return nil
}

func (m *mockSessions) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockSessions) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, req)
	}
	return nil
}

func (m *mockSessions) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, req)
	}
	return nil
}

func (m *mockSessions) Logout(ctx context.Context) error {
	m.session = model.Session{}
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockSessions) VerifyToken(ctx context.Context) bool {
	if m.verifyFn != nil {
		return m.verifyFn(ctx)
	}
	return m.session.IsAuthenticated
}

func (m *mockSessions) Expire(ctx context.Context) bool {
	m.expireCalls++
	if m.expireFn != nil {
		return m.expireFn(ctx)
	}
	m.session = model.Session{}
	return false
}

func (m *mockSessions) Snapshot(ctx context.Context) model.Session { return m.session }

func (m *mockSessions) IsAuthenticated(ctx context.Context) bool { return m.session.IsAuthenticated }

func (m *mockSessions) ClearError(ctx context.Context) {
	m.clearedError = true
	m.session.LastError = ""
}

type mockBoard struct {
	notified []model.Notice
	pending  map[string][]model.Notice
}

func (m *mockBoard) Notify(ctx context.Context, n model.Notice) {
	m.notified = append(m.notified, n)
}

func (m *mockBoard) Drain(clientID string) []model.Notice {
	out := m.pending[clientID]
	delete(m.pending, clientID)
	return out
}

var _ AuthSessions = (*mockSessions)(nil)
var _ NoticeBoard = (*mockBoard)(nil)

// --- ヘルパー ---

func authenticatedSession() model.Session {
	return model.Session{
		User:            &model.UserIdentity{ID: 1, Username: "alice", Email: "alice@example.com", Roles: []string{"READER"}},
		Token:           "T",
		IsAuthenticated: true,
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

func TestAuthHandler_Login_JSON_Success(t *testing.T) {
	sessions := &mockSessions{}
	sessions.loginFn = func(ctx context.Context, creds model.Credentials) (*model.UserIdentity, error) {
		if creds.Email != "alice" || creds.Password != "secret1" {
			t.Errorf("creds = %+v", creds)
		}
		sessions.session = authenticatedSession()
		return sessions.session.User, nil
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"alice","password":"secret1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["isAuthenticated"] != true {
		t.Errorf("body = %v", body)
	}
	// トークンはレスポンスに含めない
	if _, ok := body["Token"]; ok {
		t.Error("token must not be exposed")
	}
}

func TestAuthHandler_Login_JSON_ValidationError(t *testing.T) {
	called := false
	sessions := &mockSessions{
		loginFn: func(context.Context, model.Credentials) (*model.UserIdentity, error) {
			called = true
			return nil, nil
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"","password":"123"}`))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q", body.Code)
	}
	if body.Fields["email"] == "" || body.Fields["password"] == "" {
		t.Errorf("fields = %v", body.Fields)
	}
	if called {
		t.Error("login should not be attempted with invalid input")
	}
}

func TestAuthHandler_Login_JSON_BackendRejects(t *testing.T) {
	sessions := &mockSessions{
		loginFn: func(context.Context, model.Credentials) (*model.UserIdentity, error) {
			return nil, &backend.Error{Kind: backend.KindUnauthorized, StatusCode: 401, Message: "Identifiants invalides"}
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"alice","password":"wrongpw"}`))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeError(t, w)
	if body.Message != "Identifiants invalides" {
		t.Errorf("message = %q", body.Message)
	}
	if sessions.expireCalls != 0 {
		t.Error("failed login must not be treated as session expiry")
	}
}

func TestAuthHandler_Login_Form_RedirectsHomeOnSuccess(t *testing.T) {
	h := NewAuthHandler(&mockSessions{}, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, formRequest("/auth/login", url.Values{"email": {"alice"}, "password": {"secret1"}}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/home" {
		t.Errorf("Location = %q, want /home", loc)
	}
}

func TestAuthHandler_Login_Form_RedirectsLoginOnFailure(t *testing.T) {
	sessions := &mockSessions{
		loginFn: func(context.Context, model.Credentials) (*model.UserIdentity, error) {
			return nil, &backend.Error{Kind: backend.KindUnauthorized, StatusCode: 401}
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, formRequest("/auth/login", url.Values{"email": {"alice"}, "password": {"secret1"}}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestAuthHandler_Login_Form_InvalidInputNotifies(t *testing.T) {
	board := &mockBoard{}
	h := NewAuthHandler(&mockSessions{}, board, nil)

	w := httptest.NewRecorder()
	h.Login(w, formRequest("/auth/login", url.Values{"email": {"alice"}}))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
	if len(board.notified) != 1 || board.notified[0].Level != model.NoticeWarning {
		t.Fatalf("notices = %+v", board.notified)
	}
	if !strings.Contains(board.notified[0].Message, "Le mot de passe est requis") {
		t.Errorf("message = %q", board.notified[0].Message)
	}
}

func TestAuthHandler_Register(t *testing.T) {
	valid := `{"username":"bob","email":"bob@example.com","password":"password1","confirmPassword":"password1","firstName":"Bob","lastName":"Martin"}`

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"正常", valid, http.StatusCreated, ""},
		{"確認不一致", strings.Replace(valid, `"confirmPassword":"password1"`, `"confirmPassword":"other"`, 1), http.StatusBadRequest, "confirmPassword"},
		{"メール形式不正", strings.Replace(valid, "bob@example.com", "bob", 1), http.StatusBadRequest, "email"},
		{"ユーザー名が短い", strings.Replace(valid, `"username":"bob"`, `"username":"bo"`, 1), http.StatusBadRequest, "username"},
		{"パスワードが短い", strings.ReplaceAll(valid, "password1", "short"), http.StatusBadRequest, "password"},
		{"不正なJSON", `{`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.RegisterRequest
			sessions := &mockSessions{
				registerFn: func(_ context.Context, req model.RegisterRequest) error {
					got = req
					return nil
				},
			}
			h := NewAuthHandler(sessions, &mockBoard{}, nil)

			w := httptest.NewRecorder()
			h.Register(w, jsonRequest(http.MethodPost, "/auth/register", tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantField != "" {
				if body := decodeError(t, w); body.Fields[tt.wantField] == "" {
					t.Errorf("fields = %v, want %s", body.Fields, tt.wantField)
				}
			}
			if tt.wantStatus == http.StatusCreated && (got.Username != "bob" || got.FirstName != "Bob") {
				t.Errorf("register request = %+v", got)
			}
		})
	}
}

func TestAuthHandler_Register_Form_RedirectsToLogin(t *testing.T) {
	h := NewAuthHandler(&mockSessions{}, &mockBoard{}, nil)

	form := url.Values{
		"username": {"bob"}, "email": {"bob@example.com"},
		"password": {"password1"}, "confirmPassword": {"password1"},
		"firstName": {"Bob"}, "lastName": {"Martin"},
		"csrf_token": {"ignored"},
	}
	w := httptest.NewRecorder()
	h.Register(w, formRequest("/auth/register", form))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestAuthHandler_Logout_BackendErrorStillSucceeds(t *testing.T) {
	sessions := &mockSessions{
		session: authenticatedSession(),
		logoutFn: func(context.Context) error {
			return &backend.Error{Kind: backend.KindServer, StatusCode: 500}
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Logout(w, jsonRequest(http.MethodPost, "/auth/logout", ""))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if sessions.session.IsAuthenticated {
		t.Error("session should be cleared")
	}
}

func TestAuthHandler_Logout_Form_RedirectsToLogin(t *testing.T) {
	h := NewAuthHandler(&mockSessions{session: authenticatedSession()}, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Logout(w, formRequest("/auth/logout", url.Values{}))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestAuthHandler_ForgotAndResetPassword(t *testing.T) {
	var gotEmail string
	var gotReset model.ResetPasswordRequest
	sessions := &mockSessions{
		forgotPasswordFn: func(_ context.Context, email string) error {
			gotEmail = email
			return nil
		},
		resetPasswordFn: func(_ context.Context, req model.ResetPasswordRequest) error {
			gotReset = req
			return nil
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.ForgotPassword(w, jsonRequest(http.MethodPost, "/auth/forgot-password", `{"email":"alice@example.com"}`))
	if w.Code != http.StatusOK || gotEmail != "alice@example.com" {
		t.Errorf("forgot: status = %d, email = %q", w.Code, gotEmail)
	}

	w = httptest.NewRecorder()
	h.ResetPassword(w, jsonRequest(http.MethodPost, "/auth/reset-password", `{"token":"tok","newPassword":"newpassword","confirmPassword":"newpassword"}`))
	if w.Code != http.StatusOK || gotReset.Token != "tok" || gotReset.NewPassword != "newpassword" {
		t.Errorf("reset: status = %d, req = %+v", w.Code, gotReset)
	}
}

func TestAuthHandler_ResetPassword_Form_FailureKeepsToken(t *testing.T) {
	sessions := &mockSessions{
		resetPasswordFn: func(context.Context, model.ResetPasswordRequest) error {
			return &backend.Error{Kind: backend.KindOther, StatusCode: 400, Message: "Token expiré"}
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.ResetPassword(w, formRequest("/auth/reset-password", url.Values{"token": {"a b"}, "newPassword": {"newpassword"}}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/reset-password?token=a+b" {
		t.Errorf("Location = %q", loc)
	}
}

func TestAuthHandler_ChangePassword_SessionExpiredHandledByManager(t *testing.T) {
	sessions := &mockSessions{
		session: authenticatedSession(),
		changePasswordFn: func(context.Context, model.ChangePasswordRequest) error {
			return &auth.ExpiredError{Err: &backend.SessionExpiredError{Method: "POST", Path: "/auth/change-password"}}
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.ChangePassword(w, jsonRequest(http.MethodPost, "/auth/change-password", `{"currentPassword":"a","newPassword":"b"}`))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeSessionExpired || body.Redirect != "/login" {
		t.Errorf("body = %+v", body)
	}
	if sessions.expireCalls != 0 {
		t.Errorf("Expire calls = %d, want 0 (already handled)", sessions.expireCalls)
	}
}

func TestAuthHandler_Verify(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"有効", true},
		{"無効", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mockSessions{verifyFn: func(context.Context) bool { return tt.valid }}
			h := NewAuthHandler(sessions, &mockBoard{}, nil)

			w := httptest.NewRecorder()
			h.Verify(w, httptest.NewRequest(http.MethodGet, "/auth/verify", nil))

			var body verifyResponse
			json.NewDecoder(w.Body).Decode(&body)
			if w.Code != http.StatusOK || body.Valid != tt.valid {
				t.Errorf("status = %d, valid = %v", w.Code, body.Valid)
			}
		})
	}
}

func TestAuthHandler_SessionAndClearError(t *testing.T) {
	s := authenticatedSession()
	s.LastError = "Erreur de connexion"
	sessions := &mockSessions{session: s}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Session(w, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	var body struct {
		User            *model.UserIdentity `json:"user"`
		IsAuthenticated bool                `json:"isAuthenticated"`
		Error           string              `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if !body.IsAuthenticated || body.User.Username != "alice" || body.Error != "Erreur de connexion" {
		t.Errorf("body = %+v", body)
	}

	w = httptest.NewRecorder()
	h.ClearError(w, httptest.NewRequest(http.MethodDelete, "/auth/session/error", nil))
	if w.Code != http.StatusNoContent || !sessions.clearedError {
		t.Errorf("status = %d, cleared = %v", w.Code, sessions.clearedError)
	}
}

func TestAuthHandler_Notices_DrainsClientQueue(t *testing.T) {
	board := &mockBoard{pending: map[string][]model.Notice{
		"c1": {{Level: model.NoticeSuccess, Message: "Bienvenue alice !"}},
	}}
	h := NewAuthHandler(&mockSessions{}, board, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/notices", nil)
	req = req.WithContext(credential.WithClientID(req.Context(), "c1"))
	w := httptest.NewRecorder()
	h.Notices(w, req)

	var body noticesResponse
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Notices) != 1 || body.Notices[0].Message != "Bienvenue alice !" {
		t.Errorf("notices = %+v", body.Notices)
	}

	// 2回目は空配列（nullではない）
	w = httptest.NewRecorder()
	h.Notices(w, req)
	if !strings.Contains(w.Body.String(), `"notices":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAuthHandler_NoClient_ReturnsUnauthorized(t *testing.T) {
	sessions := &mockSessions{
		loginFn: func(context.Context, model.Credentials) (*model.UserIdentity, error) {
			return nil, auth.ErrNoClient
		},
	}
	h := NewAuthHandler(sessions, &mockBoard{}, nil)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"alice","password":"secret1"}`))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
