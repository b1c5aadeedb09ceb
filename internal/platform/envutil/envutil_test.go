package envutil

import (
	"testing"
	"time"
)

func TestParsers(t *testing.T) {
	t.Setenv("RR_INT", "42")
	t.Setenv("RR_BAD_INT", "x")
	t.Setenv("RR_FLOAT", "0.65")
	t.Setenv("RR_BOOL", "yes")
	t.Setenv("RR_DUR", "1500ms")
	t.Setenv("RR_DUR_SECS", "3")
	t.Setenv("RR_STR", "  eu-west  ")

	if got := Int("RR_INT", 1); got != 42 {
		t.Fatalf("Int=%d", got)
	}
	if got := Int("RR_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback=%d", got)
	}
	if got := Float("RR_FLOAT", 0); got != 0.65 {
		t.Fatalf("Float=%v", got)
	}
	if !Bool("RR_BOOL", false) {
		t.Fatalf("Bool=false")
	}
	if Bool("RR_MISSING", false) {
		t.Fatalf("Bool default ignored")
	}
	if got := Duration("RR_DUR", 0); got != 1500*time.Millisecond {
		t.Fatalf("Duration=%v", got)
	}
	if got := Duration("RR_DUR_SECS", 0); got != 3*time.Second {
		t.Fatalf("Duration seconds=%v", got)
	}
	if got := String("RR_STR", "default"); got != "eu-west" {
		t.Fatalf("String=%q", got)
	}
}
