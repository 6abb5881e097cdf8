// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderGoogle はGoogleアカウントによるログインを示す。
	ProviderGoogle Provider = "google"
	// ProviderFacebook はFacebookアカウントによるログインを示す。
	ProviderFacebook Provider = "facebook"
)

// ParseProvider は文字列からProviderを解析する。
// 大文字小文字は区別しない。未対応の値の場合はErrUnknownProviderを返す。
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderFacebook:
		return ProviderFacebook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// String はProviderの文字列表現を返す。
func (p Provider) String() string {
	return string(p)
}

// Value はプロフィールの多値項目（メール、写真）の1要素を表す。
type Value struct {
	Value string `json:"value"`
}

// Address は住所情報を表す。表示には整形済み文字列のみを使う。
type Address struct {
	FormattedValue string `json:"formattedValue"`
}

// UserRecord はIdPから取得したプロフィールを正規化したもの。
// セッションに保持され、セッションの寿命を超えて永続化されることはない。
type UserRecord struct {
	Provider    Provider  `json:"provider"`
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Emails      []Value   `json:"emails,omitempty"`
	Photos      []Value   `json:"photos,omitempty"`
	Birthday    string    `json:"birthday,omitempty"`
	Addresses   []Address `json:"addresses,omitempty"`
}

// FirstEmail は先頭のメールアドレスを返す。存在しない場合は空文字列を返す。
func (u *UserRecord) FirstEmail() string {
	if u == nil {
		return ""
	}
	for _, e := range u.Emails {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

// FirstPhoto は先頭の写真URLを返す。存在しない場合は空文字列を返す。
func (u *UserRecord) FirstPhoto() string {
	if u == nil {
		return ""
	}
	for _, p := range u.Photos {
		if p.Value != "" {
			return p.Value
		}
	}
	return ""
}

// FirstAddress は先頭の整形済み住所を返す。存在しない場合は空文字列を返す。
func (u *UserRecord) FirstAddress() string {
	if u == nil {
		return ""
	}
	for _, a := range u.Addresses {
		if a.FormattedValue != "" {
			return a.FormattedValue
		}
	}
	return ""
}

// Clone はUserRecordのディープコピーを返す。
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Emails = append([]Value(nil), u.Emails...)
	c.Photos = append([]Value(nil), u.Photos...)
	c.Addresses = append([]Address(nil), u.Addresses...)
	return &c
}
