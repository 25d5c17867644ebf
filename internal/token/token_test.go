package token

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"ascii exact multiple", "abcdefgh", 2},
		{"ascii rounds up", "abcde", 2},
		{"single char", "a", 1},
		{"cjk only", "你好世界", 3},          // ceil(4/1.5)
		{"cjk single", "你", 1},            // ceil(1/1.5)
		{"mixed", "hello你好", 3},           // ceil(5/4 + 2/1.5) = ceil(2.58)
		{"whitespace counts", "a b c d", 2}, // 7 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateASCIIProperty(t *testing.T) {
	// For pure ASCII of length n the estimate is ceil(n/4).
	for n := 1; n <= 64; n++ {
		text := strings.Repeat("x", n)
		want := (n + 3) / 4
		if got := Estimate(text); got != want {
			t.Fatalf("Estimate(%d ascii chars) = %d, want %d", n, got, want)
		}
	}
}

func TestEstimateCJKProperty(t *testing.T) {
	// For pure CJK of length n the estimate is ceil(n/1.5).
	for n := 1; n <= 32; n++ {
		text := strings.Repeat("试", n)
		want := (2*n + 2) / 3 // ceil(n/1.5)
		if got := Estimate(text); got != want {
			t.Fatalf("Estimate(%d cjk chars) = %d, want %d", n, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Run("fits unchanged", func(t *testing.T) {
		if got := Truncate("short", 100); got != "short" {
			t.Errorf("expected unchanged text, got %q", got)
		}
	})

	t.Run("zero budget returns marker only", func(t *testing.T) {
		if got := Truncate("some content here", 0); got != "..." {
			t.Errorf("expected bare marker, got %q", got)
		}
	})

	t.Run("negative budget returns marker only", func(t *testing.T) {
		if got := Truncate("some content here", -5); got != "..." {
			t.Errorf("expected bare marker, got %q", got)
		}
	})

	t.Run("over budget is cut and marked", func(t *testing.T) {
		text := strings.Repeat("word ", 100) // 500 chars, ~125 tokens
		got := Truncate(text, 20)
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected truncation marker suffix, got %q", got)
		}
		if len(got) >= len(text) {
			t.Errorf("expected shorter output, got %d chars from %d", len(got), len(text))
		}
		if Estimate(strings.TrimSuffix(got, "...")) > 20 {
			t.Errorf("truncated content still over budget: %d tokens", Estimate(got))
		}
	})

	t.Run("cjk cut at rune boundary", func(t *testing.T) {
		text := strings.Repeat("记", 60) // ~40 tokens
		got := Truncate(text, 10)
		trimmed := strings.TrimSuffix(got, "...")
		for _, r := range trimmed {
			if r != '记' {
				t.Fatalf("rune corrupted by truncation: %q", r)
			}
		}
	})
}
