package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialprofile/internal/middleware"
	"github.com/hitoshi/socialprofile/internal/model"
	"github.com/hitoshi/socialprofile/internal/security"
)

// --- モック定義 ---

type mockAuthService struct {
	providers        []model.Provider
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code, previousSessionID string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Providers() []model.Provider {
	if m.providers != nil {
		return m.providers
	}
	return []model.Provider{model.ProviderGoogle}
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code, previousSessionID string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code, previousSessionID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockLoginRecorder struct {
	results []string
}

func (m *mockLoginRecorder) RecordLogin(provider, result string) {
	m.results = append(m.results, provider+":"+result)
}

// --- ヘルパー ---

func newTestSigner(t *testing.T) *security.CookieSigner {
	t.Helper()
	signer, err := security.NewCookieSigner("handler-test-secret")
	if err != nil {
		t.Fatalf("NewCookieSigner() error = %v", err)
	}
	return signer
}

type authHandlerFixture struct {
	handler  *AuthHandler
	signer   *security.CookieSigner
	state    *middleware.OAuthState
	recorder *mockLoginRecorder
}

func newAuthHandlerFixture(t *testing.T, svc AuthServiceInterface) *authHandlerFixture {
	t.Helper()
	signer := newTestSigner(t)
	cfg := middleware.CookieConfig{MaxAge: 86400}
	state := middleware.NewOAuthState(signer, cfg)
	recorder := &mockLoginRecorder{}
	return &authHandlerFixture{
		handler:  NewAuthHandler(svc, middleware.NewSessionCookie(signer, cfg), state, recorder),
		signer:   signer,
		state:    state,
		recorder: recorder,
	}
}

// withProvider はchiのURLパラメータを設定したリクエストを返す。
func withProvider(req *http.Request, provider string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// callbackRequest は有効なstate Cookie付きのコールバックリクエストを生成する。
func (f *authHandlerFixture) callbackRequest(t *testing.T, provider, query string) *http.Request {
	t.Helper()
	w := httptest.NewRecorder()
	state, err := f.state.Issue(w, provider)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	query = strings.ReplaceAll(query, "{state}", state)
	req := httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/callback?"+query, nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	return withProvider(req, provider)
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func assertRedirectHome(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want %q", loc, "/")
	}
}

// --- Login ---

func TestAuthHandler_Login_RedirectsToProviderWithState(t *testing.T) {
	f := newAuthHandlerFixture(t, &mockAuthService{})

	w := httptest.NewRecorder()
	f.handler.Login(w, withProvider(httptest.NewRequest(http.MethodGet, "/auth/google", nil), "google"))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}

	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if loc.Host != "accounts.google.com" {
		t.Errorf("redirect host = %q, want %q", loc.Host, "accounts.google.com")
	}

	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in redirect URL")
	}
	if findCookie(resp, "oauth_state") == nil {
		t.Error("expected oauth_state cookie to be set")
	}
}

func TestAuthHandler_Login_UnavailableProviderReturns404(t *testing.T) {
	tests := []string{"facebook", "twitter", ""}

	for _, provider := range tests {
		t.Run(provider, func(t *testing.T) {
			f := newAuthHandlerFixture(t, &mockAuthService{
				getLoginURLFn: func(_, _ string) (string, error) {
					t.Error("GetLoginURL should not be called")
					return "", nil
				},
			})

			w := httptest.NewRecorder()
			f.handler.Login(w, withProvider(httptest.NewRequest(http.MethodGet, "/auth/"+provider, nil), provider))

			if w.Result().StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
			}
		})
	}
}

func TestAuthHandler_Login_ServiceErrorReturns500(t *testing.T) {
	f := newAuthHandlerFixture(t, &mockAuthService{
		getLoginURLFn: func(_, _ string) (string, error) {
			return "", errors.New("boom")
		},
	})

	w := httptest.NewRecorder()
	f.handler.Login(w, withProvider(httptest.NewRequest(http.MethodGet, "/auth/google", nil), "google"))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

// --- Callback ---

func TestAuthHandler_Callback_Success_SetsSessionCookie(t *testing.T) {
	var gotProvider, gotCode, gotPrevious string
	f := newAuthHandlerFixture(t, &mockAuthService{
		handleCallbackFn: func(_ context.Context, provider, code, previous string) (*model.Session, error) {
			gotProvider, gotCode, gotPrevious = provider, code, previous
			return &model.Session{
				ID:        "new-session-id",
				User:      &model.UserRecord{Provider: model.ProviderGoogle, ID: "1234"},
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	})

	req := f.callbackRequest(t, "google", "code=auth-code&state={state}")
	req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{ID: "old-session-id"}))
	w := httptest.NewRecorder()

	f.handler.Callback(w, req)

	resp := w.Result()
	assertRedirectHome(t, resp)

	if gotProvider != "google" || gotCode != "auth-code" || gotPrevious != "old-session-id" {
		t.Errorf("HandleCallback(%q, %q, %q), want (google, auth-code, old-session-id)", gotProvider, gotCode, gotPrevious)
	}

	c := findCookie(resp, middleware.SessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie to be set")
	}
	if id, err := f.signer.Verify(c.Value); err != nil || id != "new-session-id" {
		t.Errorf("session cookie id = %q (err=%v), want %q", id, err, "new-session-id")
	}
	if !c.HttpOnly || c.MaxAge != 86400 {
		t.Errorf("session cookie attributes = %+v", c)
	}
}

func TestAuthHandler_Callback_FailuresRedirectHomeWithoutSession(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		validState bool
		wantResult string
	}{
		{"access denied", "error=access_denied&state={state}", true, "google:access_denied"},
		{"provider error", "error=server_error&state={state}", true, "google:provider_error"},
		{"state mismatch", "code=c&state=forged", true, "google:state_mismatch"},
		{"missing state cookie", "code=c&state=abc", false, "google:state_mismatch"},
		{"missing code", "state={state}", true, "google:missing_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthHandlerFixture(t, &mockAuthService{
				handleCallbackFn: func(_ context.Context, _, _, _ string) (*model.Session, error) {
					t.Error("HandleCallback should not be called")
					return nil, nil
				},
			})

			var req *http.Request
			if tt.validState {
				req = f.callbackRequest(t, "google", tt.query)
			} else {
				req = withProvider(httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+tt.query, nil), "google")
			}
			w := httptest.NewRecorder()

			f.handler.Callback(w, req)

			resp := w.Result()
			assertRedirectHome(t, resp)
			if findCookie(resp, middleware.SessionCookieName) != nil {
				t.Error("session cookie should not be set on failure")
			}
			if c := findCookie(resp, "oauth_state"); c == nil || c.MaxAge >= 0 {
				t.Errorf("oauth_state cookie should be cleared on failure, got %+v", c)
			}
			if len(f.recorder.results) != 1 || f.recorder.results[0] != tt.wantResult {
				t.Errorf("recorded = %v, want [%s]", f.recorder.results, tt.wantResult)
			}
		})
	}
}

func TestAuthHandler_Callback_ExchangeFailureRedirectsHome(t *testing.T) {
	f := newAuthHandlerFixture(t, &mockAuthService{
		handleCallbackFn: func(_ context.Context, _, _, _ string) (*model.Session, error) {
			return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureExchange, errors.New("invalid_grant"))
		},
	})

	w := httptest.NewRecorder()
	f.handler.Callback(w, f.callbackRequest(t, "google", "code=bad&state={state}"))

	resp := w.Result()
	assertRedirectHome(t, resp)
	if findCookie(resp, middleware.SessionCookieName) != nil {
		t.Error("session cookie should not be set on failure")
	}
	// 交換失敗はサービス側で記録される
	if len(f.recorder.results) != 0 {
		t.Errorf("recorded = %v, want none", f.recorder.results)
	}
}

func TestAuthHandler_Callback_UnconfiguredProviderReturns404(t *testing.T) {
	f := newAuthHandlerFixture(t, &mockAuthService{})

	w := httptest.NewRecorder()
	f.handler.Callback(w, withProvider(httptest.NewRequest(http.MethodGet, "/auth/facebook/callback?code=x", nil), "facebook"))

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- Logout ---

func TestAuthHandler_Logout_DeletesSessionAndClearsCookie(t *testing.T) {
	var deleted string
	f := newAuthHandlerFixture(t, &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			deleted = sessionID
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: f.signer.Sign("session-to-delete")})
	req = req.WithContext(middleware.ContextWithSession(req.Context(), &model.Session{ID: "session-to-delete"}))
	w := httptest.NewRecorder()

	f.handler.Logout(w, req)

	resp := w.Result()
	assertRedirectHome(t, resp)
	if deleted != "session-to-delete" {
		t.Errorf("deleted session = %q, want %q", deleted, "session-to-delete")
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected session cookie to be cleared, got %v", c)
	}
}

func TestAuthHandler_Logout_AnonymousIsNoop(t *testing.T) {
	var called string
	f := newAuthHandlerFixture(t, &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			called = sessionID
			return nil
		},
	})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := httptest.NewRecorder()
		f.handler.Logout(w, httptest.NewRequest(method, "/logout", nil))

		resp := w.Result()
		assertRedirectHome(t, resp)
		if called != "" {
			t.Errorf("%s: Logout called with %q, want empty session ID", method, called)
		}
		if len(resp.Cookies()) != 0 {
			t.Errorf("%s: unexpected cookies %v", method, resp.Cookies())
		}
	}
}

func TestAuthHandler_Logout_ServiceErrorStillClearsCookie(t *testing.T) {
	f := newAuthHandlerFixture(t, &mockAuthService{
		logoutFn: func(_ context.Context, _ string) error {
			return errors.New("store unavailable")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: f.signer.Sign("sid")})
	w := httptest.NewRecorder()

	f.handler.Logout(w, req)

	resp := w.Result()
	assertRedirectHome(t, resp)
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected session cookie to be cleared, got %v", c)
	}
}
