// Package bot – shape.go post-processes model replies for WhatsApp: link
// lists instead of inline URLs, and a hard length ceiling.
package bot

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
)

// labelRule maps URL keywords to a human label. Rules are checked in order;
// the first hit wins.
type labelRule struct {
	keywords []string
	label    string
}

var labelRules = []labelRule{
	{[]string{".mp4", ".webm", ".mov", "video"}, "Video tutorial"},
	{[]string{"pix"}, "Pix signup"},
	{[]string{"cadastro", "signup", "register"}, "Signup"},
	{[]string{"apk", "android"}, "Android app"},
	{[]string{"ios", "iphone", "testflight", ".ipa"}, "iOS app"},
	{[]string{"ajuda", "help", "suporte", "faq"}, "Help"},
}

const fallbackLabel = "Useful link"

// Shaper applies the messaging constraints to outgoing replies.
type Shaper struct {
	maxChars int
	linksMax int
}

// NewShaper builds a Shaper; zero values take the defaults (1000 runes,
// 5 links).
func NewShaper(maxChars, linksMax int) *Shaper {
	if maxChars <= 0 {
		maxChars = 1000
	}
	if linksMax <= 0 {
		linksMax = 5
	}
	return &Shaper{maxChars: maxChars, linksMax: linksMax}
}

// Shape runs the full pipeline: link normalization first, then the length
// ceiling.
func (s *Shaper) Shape(text string) string {
	return s.EnforceConciseness(s.FormatLinksIfPresent(text))
}

type foundLink struct {
	pos   int
	url   string
	title string
}

// FormatLinksIfPresent replaces a reply containing URLs with a numbered
// link list. Markdown [title](url) links keep their title as the label;
// bare URLs get a label from keyword rules. Duplicate URLs keep their
// first occurrence; the list is capped at linksMax. A reply with no links
// passes through untouched.
func (s *Shaper) FormatLinksIfPresent(text string) string {
	var links []foundLink

	mdMatches := markdownLinkRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range mdMatches {
		links = append(links, foundLink{
			pos:   m[0],
			title: text[m[2]:m[3]],
			url:   text[m[4]:m[5]],
		})
	}

	for _, m := range bareURLRe.FindAllStringIndex(text, -1) {
		if insideAny(m[0], mdMatches) {
			continue
		}
		links = append(links, foundLink{pos: m[0], url: trimURL(text[m[0]:m[1]])})
	}

	if len(links) == 0 {
		return text
	}

	sort.SliceStable(links, func(i, j int) bool { return links[i].pos < links[j].pos })

	seen := make(map[string]bool, len(links))
	var lines []string
	for _, l := range links {
		if seen[l.url] {
			continue
		}
		seen[l.url] = true
		lines = append(lines, fmt.Sprintf("%d. %s: %s", len(lines)+1, labelFor(l), l.url))
		if len(lines) == s.linksMax {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// EnforceConciseness trims the reply and cuts it to the rune ceiling,
// preferring a sentence boundary in the last 30% of the ceiling, falling
// back to the last whitespace plus a truncation marker.
func (s *Shaper) EnforceConciseness(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= s.maxChars {
		return text
	}

	runes := []rune(text)[:s.maxChars]
	floor := s.maxChars * 70 / 100

	for i := len(runes) - 1; i >= floor; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}

	cut := len(runes)
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}

// insideAny reports whether pos falls within any markdown match range.
func insideAny(pos int, matches [][]int) bool {
	for _, m := range matches {
		if pos >= m[0] && pos < m[1] {
			return true
		}
	}
	return false
}

// trimURL strips trailing punctuation that regexes tend to swallow.
func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?")
}

// labelFor picks the display label for a link: the markdown title when it
// carries meaning, otherwise the first keyword rule matching the URL.
func labelFor(l foundLink) string {
	if utf8.RuneCountInString(strings.TrimSpace(l.title)) > 2 {
		return strings.TrimSpace(l.title)
	}
	lower := strings.ToLower(l.url)
	for _, rule := range labelRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.label
			}
		}
	}
	return fallbackLabel
}
