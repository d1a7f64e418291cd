// Package bot – fastpath.go answers a handful of very common questions
// with canned replies, skipping the model entirely.
package bot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxAffirmativeLen bounds the affirmative intent so a long message that
// merely starts with "sim" still goes to the model.
const maxAffirmativeLen = 40

type intent struct {
	name     string
	re       *regexp.Regexp
	maxLen   int
	template string
}

// Intents are checked in order; first match wins. Templates take the
// configured primary link as the single %s argument.
var intents = []intent{
	{
		name:     "affirmative_experience",
		re:       regexp.MustCompile(`^(sim|claro|com certeza|já joguei|ja joguei|jogo sim|yes|sure)[\s!.,]*$`),
		maxLen:   maxAffirmativeLen,
		template: "Que bom! Então você já conhece o caminho. Qualquer coisa é só entrar aqui: %s",
	},
	{
		name:     "negative_experience",
		re:       regexp.MustCompile(`nunca joguei|primeira vez|never played|first time`),
		template: "Sem problema, todo mundo começa de algum lugar! Dá uma olhada aqui pra começar: %s",
	},
	{
		name:     "how_it_works",
		re:       regexp.MustCompile(`como funciona|como que funciona|how does it work`),
		template: "É bem simples: você se cadastra, escolhe como quer participar e pronto. Tudo explicado aqui: %s",
	},
}

// Matcher is the fast-path intent matcher.
type Matcher struct {
	enabled     bool
	primaryLink string
}

// NewMatcher builds a Matcher from config.
func NewMatcher(cfg FastPathConfig) *Matcher {
	return &Matcher{
		enabled:     cfg.Enabled && cfg.PrimaryLink != "",
		primaryLink: cfg.PrimaryLink,
	}
}

// Match returns the canned reply for the message and whether any intent
// matched. Matching is case-insensitive over the trimmed input.
func (m *Matcher) Match(message string) (string, bool) {
	if !m.enabled {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return "", false
	}

	for _, in := range intents {
		if in.maxLen > 0 && utf8.RuneCountInString(normalized) > in.maxLen {
			continue
		}
		if in.re.MatchString(normalized) {
			return fmt.Sprintf(in.template, m.primaryLink), true
		}
	}
	return "", false
}
