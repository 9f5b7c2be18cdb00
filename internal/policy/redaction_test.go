package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	out, changed := RedactPII("what is the capital of france?")
	if changed || out != "what is the capital of france?" {
		t.Fatalf("RedactPII() = %q, %v", out, changed)
	}
}

func TestLogPreview(t *testing.T) {
	got := LogPreview("hello\n  sam@example.com\t"+strings.Repeat("é", 50), 30)
	if strings.ContainsAny(got, "\n\t") {
		t.Fatalf("preview kept control whitespace: %q", got)
	}
	if strings.Contains(got, "sam@example.com") {
		t.Fatalf("preview leaked email: %q", got)
	}
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 33 {
		t.Fatalf("preview = %q, want 30 runes plus ellipsis", got)
	}
	if got := LogPreview("short", 30); got != "short" {
		t.Fatalf("LogPreview(short) = %q", got)
	}
}
