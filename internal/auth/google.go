package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hitoshi/socialprofile/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer             = "https://accounts.google.com"
	defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultGoogleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultGooglePeopleURL   = "https://people.googleapis.com/v1/people/me"
)

// GoogleScopes はGoogleログインで要求するスコープ。
// 誕生日と住所はPeople APIから取得する。
var GoogleScopes = []string{
	oidc.ScopeOpenID,
	"profile",
	"email",
	"https://www.googleapis.com/auth/user.birthday.read",
	"https://www.googleapis.com/auth/user.addresses.read",
}

// GoogleConfig はGoogleプロバイダーの設定。
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient はトークン交換とAPI呼び出しに使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string
	PeopleURL   string
}

// GoogleProvider はGoogleのOAuth2/OpenID Connectによる認証を提供する。
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	oidcProvider *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	client       *http.Client
	peopleURL    string
}

// NewGoogleProvider はGoogleProviderを生成する。
// エンドポイントは静的に設定するため、起動時にディスカバリーのための通信は発生しない。
func NewGoogleProvider(config GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.JWKSURL == "" {
		config.JWKSURL = defaultGoogleJWKSURL
	}
	if config.PeopleURL == "" {
		config.PeopleURL = defaultGooglePeopleURL
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	providerConfig := &oidc.ProviderConfig{
		IssuerURL:   googleIssuer,
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		UserInfoURL: config.UserInfoURL,
		JWKSURL:     config.JWKSURL,
		Algorithms:  []string{oidc.RS256},
	}
	oidcProvider := providerConfig.NewProvider(oidc.ClientContext(context.Background(), client))

	return &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       GoogleScopes,
			Endpoint:     endpoint,
		},
		oidcProvider: oidcProvider,
		verifier:     oidcProvider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		client:       client,
		peopleURL:    config.PeopleURL,
	}
}

// Name はプロバイダー種別を返す。
func (p *GoogleProvider) Name() model.Provider {
	return model.ProviderGoogle
}

// AuthCodeURL はGoogleの認可URLを生成する。
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// googleClaims はuserinfoエンドポイントのレスポンスのうち使用する項目。
type googleClaims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Exchange は認可コードをトークンに交換し、userinfoとPeople APIからプロフィールを組み立てる。
// id_tokenが返された場合は署名を検証し、userinfoのsubと一致することを確認する。
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.UserRecord, error) {
	ctx = oidc.ClientContext(ctx, p.client)

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureExchange, err)
	}

	var idSubject string
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureExchange,
				fmt.Errorf("failed to verify id_token: %w", err))
		}
		idSubject = idToken.Subject
	}

	info, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureProfile, err)
	}

	var claims googleClaims
	if err := info.Claims(&claims); err != nil {
		return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureProfile,
			fmt.Errorf("failed to parse userinfo claims: %w", err))
	}
	if claims.Sub == "" {
		return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureProfile,
			fmt.Errorf("empty sub in userinfo response"))
	}
	if idSubject != "" && idSubject != claims.Sub {
		return nil, model.NewAuthFailure(model.ProviderGoogle, model.FailureProfile,
			fmt.Errorf("id_token subject does not match userinfo subject"))
	}

	user := mapGoogleProfile(claims)

	// 誕生日と住所は任意項目のため、取得に失敗してもログインは継続する
	extra, err := p.fetchPeople(ctx, token)
	if err != nil {
		slog.Warn("failed to fetch google people profile",
			slog.String("error", err.Error()),
		)
	} else {
		user.Birthday = extra.birthday()
		for _, a := range extra.Addresses {
			if a.FormattedValue != "" {
				user.Addresses = append(user.Addresses, model.Address{FormattedValue: a.FormattedValue})
			}
		}
	}

	return user, nil
}

// mapGoogleProfile はuserinfoのクレームをUserRecordに変換する。
func mapGoogleProfile(c googleClaims) *model.UserRecord {
	user := &model.UserRecord{
		Provider:    model.ProviderGoogle,
		ID:          c.Sub,
		DisplayName: c.Name,
	}
	if c.Email != "" {
		user.Emails = []model.Value{{Value: c.Email}}
	}
	if c.Picture != "" {
		user.Photos = []model.Value{{Value: c.Picture}}
	}
	return user
}

// googlePerson はPeople API people.getのレスポンスのうち使用する項目。
type googlePerson struct {
	Birthdays []struct {
		Date *struct {
			Year  int `json:"year"`
			Month int `json:"month"`
			Day   int `json:"day"`
		} `json:"date"`
		Text string `json:"text"`
	} `json:"birthdays"`
	Addresses []struct {
		FormattedValue string `json:"formattedValue"`
	} `json:"addresses"`
}

// birthday は最初に見つかった誕生日を返す。
// 年が非公開の場合はMM-DD、年がある場合はYYYY-MM-DD形式にする。
func (p *googlePerson) birthday() string {
	for _, b := range p.Birthdays {
		if b.Date != nil && b.Date.Month > 0 && b.Date.Day > 0 {
			if b.Date.Year > 0 {
				return fmt.Sprintf("%04d-%02d-%02d", b.Date.Year, b.Date.Month, b.Date.Day)
			}
			return fmt.Sprintf("%02d-%02d", b.Date.Month, b.Date.Day)
		}
		if b.Text != "" {
			return b.Text
		}
	}
	return ""
}

// fetchPeople はPeople APIから誕生日と住所を取得する。
func (p *GoogleProvider) fetchPeople(ctx context.Context, token *oauth2.Token) (*googlePerson, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.peopleURL+"?personFields=birthdays,addresses", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create people request: %w", err)
	}

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("people request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read people response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("people fetch failed with status %d", resp.StatusCode)
	}

	var person googlePerson
	if err := json.Unmarshal(body, &person); err != nil {
		return nil, fmt.Errorf("failed to parse people response: %w", err)
	}

	return &person, nil
}

// compile-time interface check
var _ IdentityProvider = (*GoogleProvider)(nil)
