package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// cookieSigningInfo はHKDFで署名鍵を導出する際のコンテキスト文字列。
const cookieSigningInfo = "socialprofile session cookie v1"

// ErrInvalidSignature は署名付きCookie値の検証に失敗したことを示す。
var ErrInvalidSignature = errors.New("invalid cookie signature")

// CookieSigner はセッションIDに署名し、改ざんを検出する。
// 署名鍵はSESSION_SECRETからHKDF-SHA256で導出する。
type CookieSigner struct {
	key []byte
}

// NewCookieSigner はCookieSignerを生成する。secretが空の場合はエラーを返す。
func NewCookieSigner(secret string) (*CookieSigner, error) {
	if secret == "" {
		return nil, errors.New("cookie signer requires a non-empty secret")
	}

	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieSigningInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive cookie signing key: %w", err)
	}

	return &CookieSigner{key: key}, nil
}

// Sign は値に署名し "<value>.<signature>" 形式の文字列を返す。
func (s *CookieSigner) Sign(value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

// Verify は署名付き文字列を検証し、元の値を返す。
func (s *CookieSigner) Verify(signed string) (string, error) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", ErrInvalidSignature
	}

	value := signed[:idx]
	signature, err := base64.RawURLEncoding.DecodeString(signed[idx+1:])
	if err != nil {
		return "", ErrInvalidSignature
	}

	if subtle.ConstantTimeCompare(signature, s.mac(value)) != 1 {
		return "", ErrInvalidSignature
	}

	return value, nil
}

func (s *CookieSigner) mac(value string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(value))
	return h.Sum(nil)
}
