// Package view はプロフィールページのHTMLを生成する。
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/hitoshi/socialprofile/internal/model"
	"github.com/hitoshi/socialprofile/internal/security"
)

// PageTitle はページの見出し。
const PageTitle = "Google and Facebook Login Demo"

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Rows}}
<table>
{{- range .Rows}}
  <tr>
    <td>{{.Label}}</td>
    {{- if .Image}}
    <td><img src="{{.Value}}" alt="Profile Picture"/></td>
    {{- else}}
    <td>{{.Value}}</td>
    {{- end}}
  </tr>
{{- end}}
</table>
<a href="/logout">Log Out</a>
{{- else}}
{{- range .Logins}}
<a href="{{.Href}}"><img src="{{.Button}}" alt="{{.Alt}}"/></a>
{{- end}}
{{- end}}
</body>
</html>
`

var page = template.Must(template.New("page").Parse(pageTemplate))

// loginButtons はプロバイダーごとのログインボタン画像と代替テキスト。
var loginButtons = map[model.Provider]struct {
	image string
	alt   string
}{
	model.ProviderGoogle: {
		image: "https://developers.google.com/identity/images/btn_google_signin_dark_normal_web.png",
		alt:   "Sign in with Google",
	},
	model.ProviderFacebook: {
		image: "https://developers.facebook.com/docs/marketing-apis/assets/images/fb-login.png",
		alt:   "Sign in with Facebook",
	},
}

type row struct {
	Label string
	Value string
	Image bool
}

type loginLink struct {
	Href   string
	Button string
	Alt    string
}

type pageData struct {
	Title  string
	Rows   []row
	Logins []loginLink
}

// Renderer はUserRecordからプロフィールページを生成する。
// Renderは副作用を持たず、同じ入力に対して常に同じHTMLを返す。
type Renderer struct {
	sanitizer *security.ProfileSanitizer
}

// NewRenderer はRendererを生成する。
func NewRenderer(sanitizer *security.ProfileSanitizer) *Renderer {
	return &Renderer{sanitizer: sanitizer}
}

// Render はユーザー情報のテーブル、またはログインリンクを含むHTMLを返す。
// userがnilの場合はprovidersごとにログインリンクを1つずつ出力する。
// プロバイダーが返さなかった任意項目は行ごと省略する。
func (r *Renderer) Render(user *model.UserRecord, providers []model.Provider) (string, error) {
	data := pageData{Title: PageTitle}

	if user != nil {
		data.Rows = r.profileRows(user)
	} else {
		for _, p := range providers {
			button, ok := loginButtons[p]
			if !ok {
				continue
			}
			data.Logins = append(data.Logins, loginLink{
				Href:   "/auth/" + string(p),
				Button: button.image,
				Alt:    button.alt,
			})
		}
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return buf.String(), nil
}

// profileRows はプロバイダーごとに表示する行を組み立てる。
// Googleは誕生日と住所、FacebookはプロバイダーIDを追加で表示する。
func (r *Renderer) profileRows(user *model.UserRecord) []row {
	var rows []row

	if photo := r.sanitizer.ImageURL(user.FirstPhoto()); photo != "" {
		rows = append(rows, row{Label: "Profile Picture:", Value: photo, Image: true})
	}
	if r.sanitizer.HasMarkup(user.DisplayName) {
		slog.Debug("profile name contains markup, rendering it as text",
			slog.String("provider", user.Provider.String()),
		)
	}
	rows = append(rows, row{Label: "Name:", Value: r.sanitizer.Text(user.DisplayName)})
	if email := r.sanitizer.Text(user.FirstEmail()); email != "" {
		rows = append(rows, row{Label: "Email:", Value: email})
	}

	switch user.Provider {
	case model.ProviderGoogle:
		if birthday := r.sanitizer.Text(user.Birthday); birthday != "" {
			rows = append(rows, row{Label: "Birthday:", Value: birthday})
		}
		if address := r.sanitizer.Text(user.FirstAddress()); address != "" {
			rows = append(rows, row{Label: "Address:", Value: address})
		}
	case model.ProviderFacebook:
		rows = append(rows, row{Label: "ID:", Value: r.sanitizer.Text(user.ID)})
	}

	return rows
}
