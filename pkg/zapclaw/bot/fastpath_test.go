package bot

import (
	"strings"
	"testing"
)

func testMatcher() *Matcher {
	return NewMatcher(FastPathConfig{
		Enabled:     true,
		PrimaryLink: "https://example.com/comece",
	})
}

func TestMatcherIntents(t *testing.T) {
	m := testMatcher()

	t.Run("affirmative short message", func(t *testing.T) {
		reply, ok := m.Match("Sim!")
		if !ok {
			t.Fatal("expected match")
		}
		if !strings.Contains(reply, "https://example.com/comece") {
			t.Errorf("missing link: %q", reply)
		}
	})

	t.Run("negative experience", func(t *testing.T) {
		reply, ok := m.Match("Nunca joguei")
		if !ok {
			t.Fatal("expected match")
		}
		if !strings.Contains(reply, "https://example.com/comece") {
			t.Errorf("missing link: %q", reply)
		}
	})

	t.Run("how it works", func(t *testing.T) {
		if _, ok := m.Match("como funciona isso?"); !ok {
			t.Error("expected match")
		}
	})

	t.Run("long affirmative goes to model", func(t *testing.T) {
		long := "sim, mas antes queria entender melhor algumas coisas sobre o funcionamento e as regras"
		if _, ok := m.Match(long); ok {
			t.Error("expected no match for long message")
		}
	})

	t.Run("ordinary question no match", func(t *testing.T) {
		if _, ok := m.Match("qual o horário de atendimento?"); ok {
			t.Error("expected no match")
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		if _, ok := m.Match("COMO FUNCIONA"); !ok {
			t.Error("expected match")
		}
	})
}

func TestMatcherDisabled(t *testing.T) {
	t.Run("disabled by config", func(t *testing.T) {
		m := NewMatcher(FastPathConfig{Enabled: false, PrimaryLink: "https://x"})
		if _, ok := m.Match("sim"); ok {
			t.Error("expected no match when disabled")
		}
	})

	t.Run("disabled without primary link", func(t *testing.T) {
		m := NewMatcher(FastPathConfig{Enabled: true})
		if _, ok := m.Match("sim"); ok {
			t.Error("expected no match without link")
		}
	})
}
