package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider は未対応のIdPが指定されたことを示す。
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrProviderNotConfigured は対応済みだが認証情報が未設定のIdPが指定されたことを示す。
	ErrProviderNotConfigured = errors.New("identity provider is not configured")
)

// 認証失敗の理由
const (
	FailureAccessDenied  = "access_denied"
	FailureProviderError = "provider_error"
	FailureStateMismatch = "state_mismatch"
	FailureMissingCode   = "missing_code"
	FailureExchange      = "exchange_failed"
	FailureProfile       = "profile_failed"
	FailureSession       = "session_failed"
)

// AuthFailure はOAuthコールバック処理の失敗を表す。
// コールバックでの失敗はすべてホームへのリダイレクトで回復され、ユーザーには表示されない。
type AuthFailure struct {
	Provider Provider
	Reason   string
	Err      error
}

// NewAuthFailure はAuthFailureを生成する。
func NewAuthFailure(provider Provider, reason string, err error) *AuthFailure {
	return &AuthFailure{Provider: provider, Reason: reason, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *AuthFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s login failed (%s): %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s login failed (%s)", e.Provider, e.Reason)
}

// Unwrap は原因となったエラーを返す。
func (e *AuthFailure) Unwrap() error {
	return e.Err
}

// FailureReason はエラーチェーンからAuthFailureの理由を取り出す。
// AuthFailureを含まない場合はFailureProviderErrorを返す。
func FailureReason(err error) string {
	var af *AuthFailure
	if errors.As(err, &af) {
		return af.Reason
	}
	return FailureProviderError
}
