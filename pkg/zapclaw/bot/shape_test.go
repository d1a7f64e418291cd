package bot

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatLinksIfPresent(t *testing.T) {
	s := NewShaper(1000, 5)

	t.Run("no links is identity", func(t *testing.T) {
		in := "Uma resposta sem nenhum link."
		if got := s.FormatLinksIfPresent(in); got != in {
			t.Errorf("got %q", got)
		}
	})

	t.Run("markdown link keeps title", func(t *testing.T) {
		got := s.FormatLinksIfPresent("Veja [Guia de início](https://example.com/guia) para começar.")
		want := "1. Guia de início: https://example.com/guia"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("bare url gets keyword label", func(t *testing.T) {
		cases := []struct {
			url   string
			label string
		}{
			{"https://cdn.example.com/tutorial.mp4", "Video tutorial"},
			{"https://example.com/pix", "Pix signup"},
			{"https://example.com/cadastro", "Signup"},
			{"https://example.com/app.apk", "Android app"},
			{"https://example.com/ios", "iOS app"},
			{"https://example.com/ajuda", "Help"},
			{"https://example.com/outra-coisa", "Useful link"},
		}
		for _, c := range cases {
			got := s.FormatLinksIfPresent("olha: " + c.url)
			want := "1. " + c.label + ": " + c.url
			if got != want {
				t.Errorf("url %s: got %q, want %q", c.url, got, want)
			}
		}
	})

	t.Run("dedupes keeping first occurrence", func(t *testing.T) {
		got := s.FormatLinksIfPresent("https://example.com/a e de novo https://example.com/a e https://example.com/b")
		lines := strings.Split(got, "\n")
		if len(lines) != 2 {
			t.Fatalf("got %d lines: %q", len(lines), got)
		}
		if !strings.Contains(lines[0], "/a") || !strings.Contains(lines[1], "/b") {
			t.Errorf("wrong order: %q", got)
		}
	})

	t.Run("bare url inside markdown not duplicated", func(t *testing.T) {
		got := s.FormatLinksIfPresent("[Ajuda](https://example.com/faq)")
		if strings.Count(got, "example.com/faq") != 1 {
			t.Errorf("duplicated: %q", got)
		}
		if !strings.HasPrefix(got, "1. Ajuda:") {
			t.Errorf("lost title: %q", got)
		}
	})

	t.Run("caps at links max", func(t *testing.T) {
		small := NewShaper(1000, 2)
		got := small.FormatLinksIfPresent("https://a.com/1 https://b.com/2 https://c.com/3")
		if n := len(strings.Split(got, "\n")); n != 2 {
			t.Errorf("got %d lines: %q", n, got)
		}
	})

	t.Run("short markdown title falls back to keywords", func(t *testing.T) {
		got := s.FormatLinksIfPresent("[ok](https://example.com/cadastro)")
		if got != "1. Signup: https://example.com/cadastro" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("title length counts runes not bytes", func(t *testing.T) {
		// "Aí" is two runes but three bytes; still too short to keep.
		got := s.FormatLinksIfPresent("[Aí](https://example.com/ajuda)")
		if got != "1. Help: https://example.com/ajuda" {
			t.Errorf("got %q", got)
		}
	})
}

func TestEnforceConciseness(t *testing.T) {
	s := NewShaper(100, 5)

	t.Run("under ceiling is identity", func(t *testing.T) {
		in := "Resposta curta."
		if got := s.EnforceConciseness(in); got != in {
			t.Errorf("got %q", got)
		}
	})

	t.Run("cuts at sentence boundary", func(t *testing.T) {
		in := strings.Repeat("a", 80) + ". Depois vem" + strings.Repeat(" b", 40)
		got := s.EnforceConciseness(in)
		if !strings.HasSuffix(got, ".") {
			t.Errorf("expected sentence cut, got %q", got)
		}
		if utf8.RuneCountInString(got) > 100 {
			t.Errorf("too long: %d runes", utf8.RuneCountInString(got))
		}
	})

	t.Run("early sentence boundary ignored", func(t *testing.T) {
		// Only period is at 20%, far below the 70% floor: fall back to
		// whitespace cut with marker.
		in := strings.Repeat("a", 20) + "." + strings.Repeat(" palavra", 30)
		got := s.EnforceConciseness(in)
		if !strings.HasSuffix(got, "…") {
			t.Errorf("expected marker, got %q", got)
		}
	})

	t.Run("never exceeds ceiling", func(t *testing.T) {
		got := s.EnforceConciseness(strings.Repeat("palavra ", 50))
		if n := utf8.RuneCountInString(got); n > 100 {
			t.Errorf("length = %d", n)
		}
	})
}

func TestShapePipeline(t *testing.T) {
	s := NewShaper(1000, 5)
	got := s.Shape("  Cadastre-se aqui: https://example.com/cadastro  ")
	if got != "1. Signup: https://example.com/cadastro" {
		t.Errorf("got %q", got)
	}
}
