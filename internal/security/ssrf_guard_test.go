package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSafeClient_Timeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)

	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"google photo", "https://lh3.googleusercontent.com/a/photo.jpg", false},
		{"facebook graph", "https://graph.facebook.com/v19.0/me", false},
		{"empty", "", true},
		{"http scheme", "http://example.com/a.png", true},
		{"javascript", "javascript:alert(1)", true},
		{"private ip", "https://10.0.0.5/a.png", true},
		{"loopback", "https://127.0.0.1/a.png", true},
		{"metadata ip", "https://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback", "https://[::1]/a.png", true},
		{"localhost", "https://localhost/a.png", true},
		{"sub localhost", "https://app.localhost/a.png", true},
		{"no host", "https:///a.png", true},
	}

	guard := NewSSRFGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}
