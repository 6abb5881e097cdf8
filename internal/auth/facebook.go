package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/socialprofile/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const defaultFacebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookScopes はFacebookログインで要求するスコープ。
var FacebookScopes = []string{"email", "public_profile"}

// FacebookConfig はFacebookプロバイダーの設定。
type FacebookConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// HTTPClient はトークン交換とGraph API呼び出しに使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	GraphURL string
}

// FacebookProvider はFacebookのOAuth2による認証を提供する。
type FacebookProvider struct {
	oauth2Config *oauth2.Config
	client       *http.Client
	graphURL     string
}

// NewFacebookProvider はFacebookProviderを生成する。
func NewFacebookProvider(config FacebookConfig) *FacebookProvider {
	endpoint := facebook.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	if config.GraphURL == "" {
		config.GraphURL = defaultFacebookGraphURL
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &FacebookProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     config.AppID,
			ClientSecret: config.AppSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       FacebookScopes,
			Endpoint:     endpoint,
		},
		client:   client,
		graphURL: config.GraphURL,
	}
}

// Name はプロバイダー種別を返す。
func (p *FacebookProvider) Name() model.Provider {
	return model.ProviderFacebook
}

// AuthCodeURL はFacebookの認可URLを生成する。
func (p *FacebookProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// facebookProfile はGraph API /me のレスポンス。
type facebookProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL          string `json:"url"`
			IsSilhouette bool   `json:"is_silhouette"`
		} `json:"data"`
	} `json:"picture"`
}

// Exchange は認可コードをトークンに交換し、Graph APIからプロフィールを取得する。
func (p *FacebookProvider) Exchange(ctx context.Context, code string) (*model.UserRecord, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, model.NewAuthFailure(model.ProviderFacebook, model.FailureExchange, err)
	}

	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return nil, model.NewAuthFailure(model.ProviderFacebook, model.FailureProfile, err)
	}

	return mapFacebookProfile(profile), nil
}

// fetchProfile はGraph API /me を呼び出す。
func (p *FacebookProvider) fetchProfile(ctx context.Context, token *oauth2.Token) (*facebookProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/me?fields=id,name,email,picture.type(large)", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph request: %w", err)
	}

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph fetch failed with status %d", resp.StatusCode)
	}

	var profile facebookProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse graph response: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("empty id in graph response")
	}

	return &profile, nil
}

// mapFacebookProfile はGraph APIのプロフィールをUserRecordに変換する。
// デフォルトのシルエット画像は写真なしとして扱う。
func mapFacebookProfile(p *facebookProfile) *model.UserRecord {
	user := &model.UserRecord{
		Provider:    model.ProviderFacebook,
		ID:          p.ID,
		DisplayName: p.Name,
	}
	if p.Email != "" {
		user.Emails = []model.Value{{Value: p.Email}}
	}
	if p.Picture.Data.URL != "" && !p.Picture.Data.IsSilhouette {
		user.Photos = []model.Value{{Value: p.Picture.Data.URL}}
	}
	return user
}

// compile-time interface check
var _ IdentityProvider = (*FacebookProvider)(nil)
