package sanitize

const (
	familyLatin    = "latin"
	familyCyrillic = "cyrillic"
	familyHebrew   = "hebrew"
	familyArabic   = "arabic"
	familyCJK      = "cjk"
)

type runeRange struct {
	lo, hi rune
}

// ScriptFamily groups the Unicode ranges that count as one script for the
// mixed-script heuristic. CJK, Hangul, Kana and Thai share a family on
// purpose: legitimate Japanese or Korean text mixes those blocks freely.
type ScriptFamily struct {
	Name   string
	Ranges []runeRange
}

var scriptFamilies = []ScriptFamily{
	{familyLatin, []runeRange{
		{'A', 'Z'},
		{'a', 'z'},
		{0x00C0, 0x024F}, // Latin-1 supplement + extended A/B
	}},
	{familyCyrillic, []runeRange{
		{0x0400, 0x04FF},
	}},
	{familyHebrew, []runeRange{
		{0x0590, 0x05FF},
	}},
	{familyArabic, []runeRange{
		{0x0600, 0x06FF},
		{0x0750, 0x077F},
	}},
	{familyCJK, []runeRange{
		{0x0E00, 0x0E7F}, // Thai
		{0x1100, 0x11FF}, // Hangul jamo
		{0x3040, 0x30FF}, // Hiragana + Katakana
		{0x4E00, 0x9FFF}, // CJK unified
		{0xAC00, 0xD7AF}, // Hangul syllables
	}},
}

// classify returns the script family name for r, or "" when r belongs to no
// tracked family (digits, punctuation, emoji and so on).
func classify(r rune) string {
	for _, fam := range scriptFamilies {
		for _, rr := range fam.Ranges {
			if r >= rr.lo && r <= rr.hi {
				return fam.Name
			}
		}
	}
	return ""
}
