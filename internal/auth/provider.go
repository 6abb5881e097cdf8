// Package auth はIdPとのOAuth認可コードフローとセッション発行を提供する。
package auth

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/socialprofile/internal/model"
)

// IdentityProvider は外部IdPとのOAuth2認可コードフローを抽象化する。
// Exchangeは成功時に正規化済みのUserRecordを、失敗時に*model.AuthFailureを返す。
type IdentityProvider interface {
	// Name はプロバイダー種別を返す。
	Name() model.Provider
	// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
	AuthCodeURL(state string) string
	// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
	Exchange(ctx context.Context, code string) (*model.UserRecord, error)
}

// Registry は設定済みのIdentityProviderを保持する。
// 起動時に登録し、以降は読み取り専用として扱う。
type Registry struct {
	providers map[model.Provider]IdentityProvider
}

// NewRegistry は指定されたプロバイダーを登録したRegistryを生成する。
func NewRegistry(providers ...IdentityProvider) *Registry {
	r := &Registry{providers: make(map[model.Provider]IdentityProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Lookup は名前からプロバイダーを取得する。
// 未知の名前はErrUnknownProvider、対応済みだが未設定の場合はErrProviderNotConfiguredを返す。
func (r *Registry) Lookup(name string) (IdentityProvider, error) {
	provider, err := model.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	p, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrProviderNotConfigured, provider)
	}
	return p, nil
}

// Providers は登録済みプロバイダーを表示順（google, facebook）で返す。
func (r *Registry) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return providerOrder(out[i]) < providerOrder(out[j])
	})
	return out
}

func providerOrder(p model.Provider) int {
	switch p {
	case model.ProviderGoogle:
		return 0
	case model.ProviderFacebook:
		return 1
	default:
		return 2
	}
}
