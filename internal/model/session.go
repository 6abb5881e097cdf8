package model

import "time"

// Session はCookieで識別されるサーバー側のセッションを表す。
// UserがnilのセッションはAnonymous状態を示す。
type Session struct {
	ID        string
	User      *UserRecord
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsAuthenticated はセッションにログイン済みユーザーが紐付いているかを返す。
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil
}

// IsExpired は指定時刻においてセッションが期限切れかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Clone はSessionのディープコピーを返す。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}
