package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input   string
		want    Provider
		wantErr bool
	}{
		{input: "google", want: ProviderGoogle},
		{input: "Facebook", want: ProviderFacebook},
		{input: " GOOGLE ", want: ProviderGoogle},
		{input: "twitter", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Errorf("ParseProvider(%q) error = %v, want ErrUnknownProvider", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProvider(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUserRecord_FirstValues(t *testing.T) {
	u := &UserRecord{
		Emails:    []Value{{Value: ""}, {Value: "ann@example.com"}},
		Photos:    []Value{{Value: "https://example.com/a.png"}},
		Addresses: []Address{{FormattedValue: "1 Main St"}},
	}

	if got := u.FirstEmail(); got != "ann@example.com" {
		t.Errorf("FirstEmail() = %q, want first non-empty value", got)
	}
	if got := u.FirstPhoto(); got != "https://example.com/a.png" {
		t.Errorf("FirstPhoto() = %q", got)
	}
	if got := u.FirstAddress(); got != "1 Main St" {
		t.Errorf("FirstAddress() = %q", got)
	}

	var empty *UserRecord
	if empty.FirstEmail() != "" || empty.FirstPhoto() != "" || empty.FirstAddress() != "" {
		t.Error("nil UserRecord should return empty values")
	}
}

func TestUserRecord_Clone_IsDeep(t *testing.T) {
	u := &UserRecord{
		Provider: ProviderGoogle,
		ID:       "123",
		Emails:   []Value{{Value: "ann@example.com"}},
	}
	c := u.Clone()
	c.Emails[0].Value = "changed@example.com"

	if u.Emails[0].Value != "ann@example.com" {
		t.Error("modifying the clone should not affect the source record")
	}
}

func TestSession_State(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var nilSession *Session
	if nilSession.IsAuthenticated() {
		t.Error("nil session should not be authenticated")
	}

	anon := &Session{ID: "a", ExpiresAt: now.Add(time.Minute)}
	if anon.IsAuthenticated() {
		t.Error("session without user should be anonymous")
	}
	if anon.IsExpired(now) {
		t.Error("session should not be expired before ExpiresAt")
	}
	if !anon.IsExpired(now.Add(time.Minute)) {
		t.Error("session should be expired at ExpiresAt")
	}

	authed := &Session{ID: "b", User: &UserRecord{ID: "1"}}
	if !authed.IsAuthenticated() {
		t.Error("session with user should be authenticated")
	}
	c := authed.Clone()
	c.User.ID = "2"
	if authed.User.ID != "1" {
		t.Error("Session.Clone should copy the user")
	}
}

func TestFailureReason(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("callback: %w", NewAuthFailure(ProviderGoogle, FailureExchange, base))

	if got := FailureReason(wrapped); got != FailureExchange {
		t.Errorf("FailureReason() = %q, want %q", got, FailureExchange)
	}
	if !errors.Is(wrapped, base) {
		t.Error("AuthFailure should unwrap to the cause")
	}
	if got := FailureReason(base); got != FailureProviderError {
		t.Errorf("FailureReason(plain) = %q, want %q", got, FailureProviderError)
	}
}
