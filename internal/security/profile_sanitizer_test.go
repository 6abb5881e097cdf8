package security

import "testing"

func TestProfileSanitizer_Text(t *testing.T) {
	s := NewProfileSanitizer(NewSSRFGuard())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Ann Lee", "Ann Lee"},
		{"empty", "", ""},
		{"ampersand kept as text", "Tom & Jerry", "Tom & Jerry"},
		{"angle bracket kept", "A<B Corp", "A<B Corp"},
		{"tag-like text kept", "x<y>z", "x<y>z"},
		{"markup kept verbatim", "<b>Ann</b>", "<b>Ann</b>"},
		{"control characters removed", "Ann\x00 Lee\n", "Ann Lee"},
		{"trims spaces", "  Ann  ", "Ann"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProfileSanitizer_HasMarkup(t *testing.T) {
	s := NewProfileSanitizer(NewSSRFGuard())

	tests := []struct {
		in   string
		want bool
	}{
		{"Ann Lee", false},
		{"Tom & Jerry", false},
		{"Ann <3 Lee", false},
		{"<script>alert(1)</script>Ann", true},
		{"<b>Ann</b>", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := s.HasMarkup(tt.in); got != tt.want {
				t.Errorf("HasMarkup(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestProfileSanitizer_ImageURL(t *testing.T) {
	s := NewProfileSanitizer(NewSSRFGuard())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"https", "https://lh3.googleusercontent.com/a/photo.jpg", "https://lh3.googleusercontent.com/a/photo.jpg"},
		{"empty", "", ""},
		{"http rejected", "http://example.com/a.png", ""},
		{"javascript rejected", "javascript:alert(1)", ""},
		{"data rejected", "data:image/png;base64,AAAA", ""},
		{"private ip rejected", "https://192.168.1.1/a.png", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ImageURL(tt.in); got != tt.want {
				t.Errorf("ImageURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProfileSanitizer_ImageURL_NilGuard(t *testing.T) {
	s := NewProfileSanitizer(nil)
	if got := s.ImageURL("https://192.168.1.1/a.png"); got != "https://192.168.1.1/a.png" {
		t.Errorf("without guard only the scheme is checked, got %q", got)
	}
}
