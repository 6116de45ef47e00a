package safe

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestJoin(t *testing.T) {
	base := filepath.FromSlash("/srv/exports")
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"Deck_report_acme_2026-03-14.pdf", false},
		{"report.pptx", false},
		{"", true},
		{"..", true},
		{"../etc/passwd", true},
		{"sub/report.pdf", true},
		{`sub\report.pdf`, true},
		{"report..pdf", true},
	}
	for _, tt := range tests {
		got, err := Join(base, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Join(%q) error=%v, wantErr=%v", tt.name, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("Join(%q): got %v, want ErrPathTraversal", tt.name, err)
		}
		if err == nil && got != filepath.Join(base, tt.name) {
			t.Errorf("Join(%q) = %q", tt.name, got)
		}
	}
}

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/hooks/deck", false},
		{"http://127.0.0.1:3000/deck", false},
		{"HTTP://localhost/deck", false},
		{"ftp://example.com/deck", true},
		{"javascript:alert(1)", true},
		{"file:///etc/passwd", true},
		{"http:///no-host", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		err := HTTPURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("HTTPURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestIdentifier(t *testing.T) {
	if err := Identifier("0192f3a4-7b7c-7c3e-9a51-0d2c3b4a5e6f"); err != nil {
		t.Fatalf("uuid rejected: %v", err)
	}
	for _, bad := range []string{"", "../x", "has space", "a/b", strings.Repeat("a", 129)} {
		if err := Identifier(bad); err == nil {
			t.Errorf("Identifier(%q): expected error", bad)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet(strings.NewReader("  upstream down \n")); got != "upstream down" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", int(MaxErrorBody)*2)
	if got := Snippet(strings.NewReader(long)); int64(len(got)) != MaxErrorBody {
		t.Fatalf("length: got %d, want %d", len(got), MaxErrorBody)
	}
}
