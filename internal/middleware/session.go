// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialprofile/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionStore はセッションミドルウェアが必要とする操作。
// auth.Serviceが実装する。
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	StartAnonymousSession(ctx context.Context) (*model.Session, error)
	TouchSession(ctx context.Context, session *model.Session) error
}

// SessionOptions はセッションの保存ポリシー。
type SessionOptions struct {
	// SaveUninitialized がtrueの場合、セッションを持たない訪問者にも空のセッションを発行する。
	SaveUninitialized bool
	// Resave がtrueの場合、認証済みリクエストのたびに有効期限を延長する。
	Resave bool
}

// NewSessionMiddleware は署名付きCookieからセッションを読み込み、
// リクエストコンテキストに注入するミドルウェアを返す。
// セッションが無いリクエストも拒否せず、匿名として後続に渡す。
// ストアの障害時も匿名として扱い、ページ表示は継続する。
func NewSessionMiddleware(store SessionStore, cookie *SessionCookie, opts SessionOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var session *model.Session
			if id, ok := cookie.Read(r); ok {
				found, err := store.GetSession(ctx, id)
				if err != nil {
					// 一時的な障害でセッションを失わないよう、Cookieには触れずに匿名として扱う
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					annotateRequest(ctx, nil)
					next.ServeHTTP(w, r.WithContext(ContextWithSession(ctx, nil)))
					return
				}
				session = found
			}

			// 期限切れ・改ざんされたCookieは削除する
			if session == nil && cookie.Present(r) && !opts.SaveUninitialized {
				cookie.Clear(w)
			}

			switch {
			case session == nil && opts.SaveUninitialized:
				created, err := store.StartAnonymousSession(ctx)
				if err != nil {
					slog.Error("failed to start anonymous session",
						slog.String("error", err.Error()),
					)
					break
				}
				session = created
				cookie.Set(w, session.ID)
			case session.IsAuthenticated() && opts.Resave:
				if err := store.TouchSession(ctx, session); err != nil {
					slog.Warn("failed to extend session",
						slog.String("error", err.Error()),
					)
					break
				}
				cookie.Set(w, session.ID)
			}

			annotateRequest(ctx, session)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(ctx, session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションが無い場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
