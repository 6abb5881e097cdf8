// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialprofile/internal/middleware"
	"github.com/hitoshi/socialprofile/internal/model"
)

// homePath はログイン・ログアウト後のリダイレクト先。
const homePath = "/"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Providers() []model.Provider
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code, previousSessionID string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// LoginRecorder はトークン交換前に失敗したログイン試行を記録する。
type LoginRecorder interface {
	RecordLogin(provider, result string)
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	cookie   *middleware.SessionCookie
	state    *middleware.OAuthState
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	cookie *middleware.SessionCookie,
	state *middleware.OAuthState,
	recorder LoginRecorder,
) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookie:   cookie,
		state:    state,
		recorder: recorder,
	}
}

// Login はOAuthフローを開始し、IdPの認可エンドポイントへリダイレクトする。
// GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.configuredProvider(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	state, err := h.state.Issue(w, provider)
	if err != nil {
		slog.Error("failed to issue oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	url, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		slog.Error("failed to build login url",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はIdPからのリダイレクトを処理する。
// 成功・失敗にかかわらずホームへリダイレクトし、失敗時はセッションを変更しない。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.configuredProvider(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query()

	// 1. ユーザーが同意を拒否した、またはIdPがエラーを返した
	if errCode := query.Get("error"); errCode != "" {
		h.state.Clear(w)
		reason := model.FailureProviderError
		if errCode == "access_denied" {
			reason = model.FailureAccessDenied
		}
		h.fail(w, r, provider, reason, slog.String("error", errCode),
			slog.String("error_description", query.Get("error_description")))
		return
	}

	// 2. stateの検証
	if err := h.state.Verify(w, r, provider, query.Get("state")); err != nil {
		h.fail(w, r, provider, model.FailureStateMismatch, slog.String("error", err.Error()))
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.fail(w, r, provider, model.FailureMissingCode)
		return
	}

	// 4. トークン交換とセッション発行（メトリクスはサービス側で記録する）
	var previousSessionID string
	if current := middleware.SessionFromContext(r.Context()); current != nil {
		previousSessionID = current.ID
	}

	session, err := h.service.HandleCallback(r.Context(), provider, code, previousSessionID)
	if err != nil {
		slog.Warn("oauth callback failed",
			slog.String("provider", provider),
			slog.String("reason", model.FailureReason(err)),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}

	// 5. 新しいセッションIDをCookieに設定
	h.cookie.Set(w, session.ID)
	http.Redirect(w, r, homePath, http.StatusFound)
}

// Logout はセッションを破棄してホームへリダイレクトする。
// 未ログインの状態で呼ばれても何もせずにリダイレクトする。
// GET, POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if current := middleware.SessionFromContext(r.Context()); current != nil {
		sessionID = current.ID
	} else if id, ok := h.cookie.Read(r); ok {
		sessionID = id
	}

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		slog.Error("failed to logout", slog.String("error", err.Error()))
		// ログアウト失敗してもCookieはクリアする
	}

	if h.cookie.Present(r) {
		h.cookie.Clear(w)
	}

	http.Redirect(w, r, homePath, http.StatusFound)
}

// configuredProvider はURLパラメータのプロバイダーがログイン可能な場合にその名前を返す。
func (h *AuthHandler) configuredProvider(r *http.Request) (string, bool) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", false
	}
	if !slices.Contains(h.service.Providers(), provider) {
		return "", false
	}
	return string(provider), true
}

// fail はコールバックの失敗を記録してホームへリダイレクトする。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, provider, reason string, attrs ...any) {
	args := append([]any{
		slog.String("provider", provider),
		slog.String("reason", reason),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}, attrs...)
	slog.Warn("oauth callback failed", args...)

	if h.recorder != nil {
		h.recorder.RecordLogin(provider, reason)
	}
	http.Redirect(w, r, homePath, http.StatusFound)
}
