package security

import (
	"html"
	"net/url"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizer はIdPから受け取ったプロフィール値を表示用に無害化する。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
	guard  SSRFGuardService
}

// NewProfileSanitizer はProfileSanitizerを生成する。
// マークアップの検出にはbluemondayのStrictPolicyを使う。
func NewProfileSanitizer(guard SSRFGuardService) *ProfileSanitizer {
	return &ProfileSanitizer{
		policy: bluemonday.StrictPolicy(),
		guard:  guard,
	}
}

// Text は表示用のプレーンテキストを返す。
// 値は書き換えず、前後の空白と制御文字だけを取り除く。
// HTMLとしてのエスケープはテンプレート側で行う。
func (s *ProfileSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw))
}

// HasMarkup は値がHTMLとして解釈されるとタグを含むかを返す。
// "A<B Corp" のようにタグと誤認される平文も検出される。
func (s *ProfileSanitizer) HasMarkup(raw string) bool {
	if !strings.ContainsRune(raw, '<') {
		return false
	}
	return html.UnescapeString(s.policy.Sanitize(raw)) != html.UnescapeString(raw)
}

// ImageURL は表示してよい画像URLを返す。
// httpsかつ内部ネットワークを指さないURLのみ許可し、それ以外は空文字列を返す。
func (s *ProfileSanitizer) ImageURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return ""
	}
	if s.guard != nil {
		if err := s.guard.ValidateURL(raw); err != nil {
			return ""
		}
	}

	return u.String()
}
