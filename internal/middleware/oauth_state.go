package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/socialprofile/internal/security"
)

const (
	// stateCookieName はOAuthのstateパラメータを保持するCookieの名前。
	stateCookieName = "oauth_state"

	// stateCookieMaxAge はIdPでの同意画面の操作に許容する時間（秒）。
	stateCookieMaxAge = 600
)

// ErrStateMismatch はコールバックのstateがCookieの値と一致しないことを示す。
var ErrStateMismatch = errors.New("oauth state mismatch")

// OAuthState はOAuthの認可リクエストとコールバックを対応付けるstateを管理する。
// stateはプロバイダー名と組にして署名付きCookieに保存し、コールバック時に
// クエリパラメータと照合する（ダブルサブミット方式）。
type OAuthState struct {
	signer *security.CookieSigner
	config CookieConfig
}

// NewOAuthState はOAuthStateを生成する。
func NewOAuthState(signer *security.CookieSigner, config CookieConfig) *OAuthState {
	return &OAuthState{signer: signer, config: config}
}

// Issue は新しいstateを生成してCookieに保存し、そのstateを返す。
func (s *OAuthState) Issue(w http.ResponseWriter, provider string) (string, error) {
	state, err := generateStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    s.signer.Sign(provider + ":" + state),
		Path:     "/auth/",
		Domain:   s.config.Domain,
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	return state, nil
}

// Verify はコールバックで受け取ったstateをCookieの値と照合し、Cookieを削除する。
// stateは一度しか使えない。
func (s *OAuthState) Verify(w http.ResponseWriter, r *http.Request, provider, state string) error {
	s.Clear(w)

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("%w: missing state cookie", ErrStateMismatch)
	}

	value, err := s.signer.Verify(cookie.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}

	cookieProvider, cookieState, ok := strings.Cut(value, ":")
	if !ok || cookieProvider != provider {
		return fmt.Errorf("%w: provider mismatch", ErrStateMismatch)
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(cookieState), []byte(state)) != 1 {
		return fmt.Errorf("%w: state value mismatch", ErrStateMismatch)
	}

	return nil
}

// Clear はstate Cookieを削除する。
func (s *OAuthState) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth/",
		Domain:   s.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateStateToken は暗号的に安全なstateを生成する。
func generateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
