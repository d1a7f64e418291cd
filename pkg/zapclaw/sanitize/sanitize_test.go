package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanControlCharacters(t *testing.T) {
	s := New(0)

	t.Run("strips C0 keeps whitespace", func(t *testing.T) {
		got := s.Clean("ol\x00\x01a\tmundo\nlinha\r")
		if got != "ola\tmundo\nlinha" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("strips DEL and C1", func(t *testing.T) {
		got := s.Clean("a\x7fb" + string(rune(0x85)) + "c")
		if got != "abc" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("drops invalid utf8", func(t *testing.T) {
		got := s.Clean("ok\xff\xfe!")
		if got != "ok!" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("keeps genuine replacement char", func(t *testing.T) {
		got := s.Clean("a�b")
		if got != "a�b" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty in empty out", func(t *testing.T) {
		if got := s.Clean(""); got != "" {
			t.Errorf("got %q", got)
		}
	})
}

func TestCleanMixedScript(t *testing.T) {
	s := New(0)

	// One token mixing Cyrillic, Hebrew and CJK runes: classic provider
	// corruption, triggers the filter.
	corrupt := "олאב次е"

	t.Run("drops mixed token keeps clean ones", func(t *testing.T) {
		got := s.Clean("oi " + corrupt + " tudo bem")
		if got != "oi tudo bem" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("two scripts alone do not trigger filter", func(t *testing.T) {
		in := "спасибо obrigado"
		if got := s.Clean(in); got != in {
			t.Errorf("got %q", got)
		}
	})

	t.Run("legitimate cjk text survives", func(t *testing.T) {
		in := "こんにちは 世界"
		if got := s.Clean(in); got != in {
			t.Errorf("got %q", got)
		}
	})

	t.Run("tokens without classifiable runes survive", func(t *testing.T) {
		got := s.Clean("123 :-) " + corrupt)
		if got != "123 :-)" {
			t.Errorf("got %q", got)
		}
	})
}

func TestCleanTruncation(t *testing.T) {
	s := New(50)

	t.Run("at limit untouched", func(t *testing.T) {
		in := strings.Repeat("a", 50)
		if got := s.Clean(in); got != in {
			t.Errorf("got len %d", utf8.RuneCountInString(got))
		}
	})

	t.Run("over limit cut with marker", func(t *testing.T) {
		got := s.Clean(strings.Repeat("a", 80))
		if n := utf8.RuneCountInString(got); n != 50 {
			t.Errorf("rune count = %d, want 50", n)
		}
		if !strings.HasSuffix(got, "…") {
			t.Errorf("missing marker: %q", got)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		in := strings.Repeat("palavra ", 40)
		once := s.Clean(in)
		twice := s.Clean(once)
		if once != twice {
			t.Errorf("not idempotent: %q vs %q", once, twice)
		}
	})
}

func TestCorrupted(t *testing.T) {
	t.Run("three script token", func(t *testing.T) {
		if !Corrupted("олא次") {
			t.Error("want corrupted")
		}
	})

	t.Run("over hard ceiling", func(t *testing.T) {
		if !Corrupted(strings.Repeat("a", HardCeiling+1)) {
			t.Error("want corrupted")
		}
	})

	t.Run("normal text", func(t *testing.T) {
		if Corrupted("uma resposta normal em português") {
			t.Error("want clean")
		}
	})

	t.Run("long but under ceiling", func(t *testing.T) {
		if Corrupted(strings.Repeat("b", HardCeiling)) {
			t.Error("want clean")
		}
	})
}
