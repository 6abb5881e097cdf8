package middleware

import (
	"net/http"

	"github.com/hitoshi/socialprofile/internal/security"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "sid"

// CookieConfig はアプリケーションが発行するCookieの共通属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // セッションCookieの有効期間（秒）
}

// SessionCookie は署名付きセッションCookieの読み書きを行う。
// 値は "<セッションID>.<HMAC>" 形式で、改ざんされたCookieは無いものとして扱う。
type SessionCookie struct {
	signer *security.CookieSigner
	config CookieConfig
}

// NewSessionCookie はSessionCookieを生成する。
func NewSessionCookie(signer *security.CookieSigner, config CookieConfig) *SessionCookie {
	return &SessionCookie{signer: signer, config: config}
}

// Read はリクエストのCookieから検証済みのセッションIDを取得する。
// Cookieが無い、または署名が不正な場合は空文字列とfalseを返す。
func (c *SessionCookie) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	id, err := c.signer.Verify(cookie.Value)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Present はリクエストにセッションCookieが付いているかを返す。署名は検証しない。
func (c *SessionCookie) Present(r *http.Request) bool {
	_, err := r.Cookie(SessionCookieName)
	return err == nil
}

// Set はセッションIDを署名してCookieに設定する。
func (c *SessionCookie) Set(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.signer.Sign(sessionID),
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   c.config.MaxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear はセッションCookieを削除する。
func (c *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
