// Package textutil provides identifier normalization, tokenization, and small
// string metrics shared by profiling, retrieval, and SQL assistance.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// stopTokens are dropped during tokenization; they carry no retrieval signal.
var stopTokens = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "for": {}, "and": {}, "or": {},
	"to": {}, "in": {}, "on": {}, "by": {}, "with": {}, "is": {}, "are": {},
	"all": {}, "me": {}, "my": {}, "show": {}, "get": {}, "list": {},
}

// archiveTokens mark tables holding historical or backup copies.
var archiveTokens = map[string]struct{}{
	"archive": {}, "archived": {}, "hist": {}, "history": {}, "audit": {},
	"log": {}, "backup": {}, "bak": {}, "old": {}, "tmp": {}, "temp": {},
}

// NormalizeIdentifier converts a database identifier (snake_case or
// CamelCase) into a spaced lowercase phrase: "OrderLineItem" and
// "order_line_item" both become "order line item".
func NormalizeIdentifier(name string) string {
	s := camelBoundary.ReplaceAllString(name, "${1} ${2}")
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Tokens lowercases, splits on non-alphanumerics and camel boundaries, and
// drops stop tokens and single characters.
func Tokens(text string) []string {
	normalized := NormalizeIdentifier(text)
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopTokens[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Variants returns simple morphological alternates of a token: the plural of
// a singular form and vice versa. The token itself is not included.
func Variants(tok string) []string {
	var vars []string
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 3:
		vars = append(vars, tok[:len(tok)-3]+"y")
	case strings.HasSuffix(tok, "ses") || strings.HasSuffix(tok, "xes"):
		vars = append(vars, tok[:len(tok)-2])
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && len(tok) > 2:
		vars = append(vars, tok[:len(tok)-1])
	}
	switch {
	case strings.HasSuffix(tok, "y") && len(tok) > 2 && !isVowel(rune(tok[len(tok)-2])):
		vars = append(vars, tok[:len(tok)-1]+"ies")
	case strings.HasSuffix(tok, "s") || strings.HasSuffix(tok, "x"):
		vars = append(vars, tok+"es")
	default:
		vars = append(vars, tok+"s")
	}
	return vars
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// IsArchiveLabel reports whether an identifier names an archive, history, or
// backup table. Only the trailing token decides: "order_history" is archival,
// "history_of_science" is not.
func IsArchiveLabel(name string) bool {
	toks := strings.Fields(NormalizeIdentifier(name))
	if len(toks) == 0 {
		return false
	}
	_, ok := archiveTokens[toks[len(toks)-1]]
	return ok
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// TruncateCell shortens s to maxChars runes, marking the cut with an ellipsis.
func TruncateCell(s string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s, false
	}
	return string(runes[:maxChars]) + "…", true
}
