package env

import "testing"

func TestGet(t *testing.T) {
	t.Setenv("FORKFLEET_TEST_VALUE", "  console ")
	if got := Get("FORKFLEET_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	t.Setenv("FORKFLEET_TEST_VALUE", "   ")
	if got := Get("FORKFLEET_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("blank should fall back, got %q", got)
	}
}

func TestFirst(t *testing.T) {
	t.Setenv("FORKFLEET_TEST_A", "")
	t.Setenv("FORKFLEET_TEST_B", "b")
	if got := First("FORKFLEET_TEST_A", "FORKFLEET_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("FORKFLEET_TEST_A"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
