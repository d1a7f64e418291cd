// Package sanitize normalizes raw message text before it is stored or fed to
// the model. The main hazard it exists for is encoding corruption coming back
// from flaky providers: replies where Cyrillic, Hebrew and CJK runes are
// interleaved inside a single "word". Script classification is data-driven
// (see scripts.go) so the thresholds can be tested with synthetic strings.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxLen is the rune ceiling applied by Clean.
	DefaultMaxLen = 10000

	// HardCeiling is the rune length above which a persisted row is
	// considered beyond repair by Corrupted.
	HardCeiling = 5000

	// truncationMarker is appended when Clean cuts a string.
	truncationMarker = "…"

	// mixedScriptThreshold: a token survives the corruption filter only if
	// this share of its classifiable runes belongs to a single family.
	mixedScriptThreshold = 0.8

	// corruptSignatureFamilies: distinct non-Latin families co-mingled in
	// one whitespace-free token before the string counts as corrupted.
	corruptSignatureFamilies = 3
)

// Sanitizer applies the inline cleaning policy. The zero value is not usable;
// construct with New.
type Sanitizer struct {
	maxLen int
}

// New returns a Sanitizer with the given rune ceiling (0 uses DefaultMaxLen).
func New(maxLen int) *Sanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Sanitizer{maxLen: maxLen}
}

// Clean normalizes raw text: strips control characters and invalid runes,
// filters mixed-script corruption, enforces the rune ceiling and trims
// surrounding whitespace. Pure; idempotent (Clean(Clean(s)) == Clean(s)).
func (s *Sanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}

	out := stripControl(raw)

	if hasMixedScriptSignature(out) {
		out = filterMixedTokens(out)
	}

	out = strings.TrimSpace(out)

	if utf8.RuneCountInString(out) > s.maxLen {
		runes := []rune(out)
		// The marker counts toward the ceiling so a second pass sees a
		// string at exactly maxLen and leaves it alone.
		keep := s.maxLen - utf8.RuneCountInString(truncationMarker)
		out = strings.TrimSpace(string(runes[:keep])) + truncationMarker
	}

	return out
}

// MaxLen returns the configured rune ceiling.
func (s *Sanitizer) MaxLen() int { return s.maxLen }

// Corrupted reports whether persisted content matches the stronger
// "definitely corrupted" signature used by the destructive cleanup pass:
// a three-plus-script co-occurrence, or a rune length above HardCeiling.
// This is intentionally a separate policy from Clean: Clean repairs,
// Corrupted condemns.
func Corrupted(content string) bool {
	if utf8.RuneCountInString(content) > HardCeiling {
		return true
	}
	return hasMixedScriptSignature(content)
}

// stripControl removes C0 controls (except \n, \r, \t), DEL, C1 controls,
// surrogate code points and invalid UTF-8 bytes.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
			// C0 control or DEL.
		case r >= 0x80 && r <= 0x9F:
			// C1 control.
		case r >= 0xD800 && r <= 0xDFFF:
			// Surrogate code point.
		case r == utf8.RuneError:
			// Keep a genuine U+FFFD, drop decode errors.
			if _, size := utf8.DecodeRuneInString(s[i:]); size > 1 {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hasMixedScriptSignature reports whether any whitespace-free span of the
// input co-mingles corruptSignatureFamilies or more distinct non-Latin
// script families.
func hasMixedScriptSignature(s string) bool {
	for _, token := range strings.FieldsFunc(s, unicode.IsSpace) {
		seen := make(map[string]bool, 4)
		for _, r := range token {
			fam := classify(r)
			if fam == "" || fam == familyLatin {
				continue
			}
			seen[fam] = true
			if len(seen) >= corruptSignatureFamilies {
				return true
			}
		}
	}
	return false
}

// filterMixedTokens tokenizes on whitespace and drops every token whose
// script-classifiable runes are not dominated (>= mixedScriptThreshold) by a
// single family. Tokens with no classifiable runes always survive.
func filterMixedTokens(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	kept := fields[:0]
	for _, token := range fields {
		if tokenDominated(token) {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}

// tokenDominated reports whether one script family accounts for at least
// mixedScriptThreshold of the token's classifiable runes.
func tokenDominated(token string) bool {
	counts := make(map[string]int, 4)
	total := 0
	for _, r := range token {
		fam := classify(r)
		if fam == "" {
			continue
		}
		counts[fam]++
		total++
	}
	if total == 0 {
		return true
	}
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	return float64(best) >= mixedScriptThreshold*float64(total)
}
