package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialprofile/internal/middleware"
	"github.com/hitoshi/socialprofile/internal/model"
)

// PageRenderer はプロフィールページのHTMLを生成する。
type PageRenderer interface {
	Render(user *model.UserRecord, providers []model.Provider) (string, error)
}

// ProviderLister はログイン可能なプロバイダーを返す。
type ProviderLister interface {
	Providers() []model.Provider
}

// HomeHandler はトップページのHTTPハンドラー。
type HomeHandler struct {
	renderer  PageRenderer
	providers ProviderLister
}

// NewHomeHandler はHomeHandlerを生成する。
func NewHomeHandler(renderer PageRenderer, providers ProviderLister) *HomeHandler {
	return &HomeHandler{renderer: renderer, providers: providers}
}

// Show はログイン中ならプロフィールを、未ログインならログインリンクを表示する。
// GET /
func (h *HomeHandler) Show(w http.ResponseWriter, r *http.Request) {
	var user *model.UserRecord
	if session := middleware.SessionFromContext(r.Context()); session.IsAuthenticated() {
		user = session.User
	}

	page, err := h.renderer.Render(user, h.providers.Providers())
	if err != nil {
		slog.Error("failed to render home page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}
