package security

import "testing"

// TestSanitize_RemovesHTMLTags はHTMLタグが除去されテキストのみが残ることを検証する。
func TestSanitize_RemovesHTMLTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"script tag", `<script>alert("xss")</script>hello`, "hello"},
		{"anchor tag", `<a href="http://example.com">link</a>`, "link"},
		{"bold tag", "<b>hi</b>", "hi"},
		{"plain text", "ただのテキスト", "ただのテキスト"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力への再適用が結果を変えないことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewContentSanitizer()

	input := `<img src=x onerror=alert(1)>message`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)

	if once != twice {
		t.Errorf("Sanitize is not idempotent: %q != %q", once, twice)
	}
}
