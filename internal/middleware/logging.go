package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/socialprofile/internal/model"
)

// RequestIDHeader はリクエストIDを返すレスポンスヘッダー。
const RequestIDHeader = "X-Request-ID"

// requestLogContextKey はリクエストログの付加情報を格納するためのキー。
var requestLogContextKey = contextKey("request_log")

// requestLog は内側のミドルウェアからアクセスログに付加する情報。
type requestLog struct {
	requestID     string
	authenticated bool
	provider      string
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、authenticatedを含み、
// 認証済みの場合はproviderも含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			info := &requestLog{requestID: uuid.NewString()}
			w.Header().Set(RequestIDHeader, info.requestID)
			ctx := context.WithValue(r.Context(), requestLogContextKey, info)

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("request_id", info.requestID),
				slog.Bool("authenticated", info.authenticated),
			}
			if info.provider != "" {
				attrs = append(attrs, slog.String("provider", info.provider))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}

// RequestIDFromContext はリクエストIDを返す。ロギングミドルウェアを通過していない場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		return info.requestID
	}
	return ""
}

// annotateRequest はセッションの認証状態をアクセスログに反映する。
func annotateRequest(ctx context.Context, session *model.Session) {
	info, ok := ctx.Value(requestLogContextKey).(*requestLog)
	if !ok || !session.IsAuthenticated() {
		return
	}
	info.authenticated = true
	info.provider = string(session.User.Provider)
}
