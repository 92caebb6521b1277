package id

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		got, err := New()
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		if len(got) != 26 {
			t.Fatalf("New() = %q, want 26 characters", got)
		}
		if got != strings.ToLower(got) {
			t.Fatalf("New() = %q, want lowercase", got)
		}
		if _, dup := seen[got]; dup {
			t.Fatalf("New() produced duplicate %q", got)
		}
		seen[got] = struct{}{}
	}
}
