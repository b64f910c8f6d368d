package sqlast

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	topRe        = regexp.MustCompile(`(?i)\bTOP\s*\(?\s*(\d+)\s*\)?`)
	limitRe      = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)
	ifnullRe     = regexp.MustCompile(`(?i)\bIFNULL\s*\(`)
	isnullRe     = regexp.MustCompile(`(?i)\bISNULL\s*\(`)
	nvlRe        = regexp.MustCompile(`(?i)\bNVL\s*\(`)
	getdateRe    = regexp.MustCompile(`(?i)\bGETDATE\s*\(\s*\)`)
	nowRe        = regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`)
	sysdateRe    = regexp.MustCompile(`(?i)\bSYSDATE\b`)
	backtickRe   = regexp.MustCompile("`([^`]+)`")
	bracketRe    = regexp.MustCompile(`\[([^\]]+)\]`)
	selectWordRe = regexp.MustCompile(`(?i)^(\s*SELECT)(\s+DISTINCT)?\b`)
	pgCastRe     = regexp.MustCompile(`(?i)::\w+`)
)

// transpile rewrites the portable surface differences between dialects:
// pagination (TOP vs LIMIT), null-coalescing functions, current-timestamp
// functions, and identifier quoting. It does not attempt full grammar
// conversion; validation catches what it cannot express.
func transpile(sql, from, to string) (string, error) {
	if from == to {
		return sql, nil
	}
	out := sql

	// Normalize source-specific spellings to portable forms.
	switch from {
	case DialectMySQL, DialectSQLite:
		out = ifnullRe.ReplaceAllString(out, "COALESCE(")
		out = backtickRe.ReplaceAllString(out, `"$1"`)
	case DialectTSQL:
		out = isnullRe.ReplaceAllString(out, "COALESCE(")
		out = getdateRe.ReplaceAllString(out, "CURRENT_TIMESTAMP")
		out = bracketRe.ReplaceAllString(out, `"$1"`)
	case DialectOracle:
		out = nvlRe.ReplaceAllString(out, "COALESCE(")
		out = sysdateRe.ReplaceAllString(out, "CURRENT_TIMESTAMP")
	case DialectPostgres:
		out = nowRe.ReplaceAllString(out, "CURRENT_TIMESTAMP")
	}

	// Pagination.
	if usesLimit(to) {
		if m := topRe.FindStringSubmatch(out); m != nil && !limitRe.MatchString(out) {
			out = topRe.ReplaceAllString(out, "")
			out = strings.TrimRight(out, " \t\n") + " LIMIT " + m[1]
			out = collapseSpaces(out)
		}
	} else {
		if m := limitRe.FindStringSubmatch(out); m != nil {
			out = limitRe.ReplaceAllString(out, "")
			out = selectWordRe.ReplaceAllString(out, "${1}${2} TOP "+m[1])
			out = collapseSpaces(out)
		}
	}

	// Target-specific quoting.
	switch to {
	case DialectMySQL:
		out = quoteIdentStyle(out, "`", "`")
	case DialectTSQL:
		out = quoteIdentStyle(out, "[", "]")
	}

	return strings.TrimSpace(out), nil
}

// detectDialect guesses the source dialect from surface markers, trying the
// most distinctive ones first. Generic wins when nothing marks the text.
func detectDialect(sql string) string {
	switch {
	case bracketRe.MatchString(sql) || isnullRe.MatchString(sql) ||
		getdateRe.MatchString(sql) || (topRe.MatchString(sql) && !limitRe.MatchString(sql)):
		return DialectTSQL
	case backtickRe.MatchString(sql):
		return DialectMySQL
	case nvlRe.MatchString(sql) || sysdateRe.MatchString(sql):
		return DialectOracle
	case ifnullRe.MatchString(sql):
		return DialectSQLite
	case pgCastRe.MatchString(sql):
		return DialectPostgres
	default:
		return DialectGeneric
	}
}

// quoteIdentStyle converts double-quoted identifiers to the target style.
func quoteIdentStyle(sql, openQ, closeQ string) string {
	var b strings.Builder
	inString := false
	i := 0
	runes := []rune(sql)
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
			i++
		case r == '"' && !inString:
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				b.WriteRune(r)
				i++
				continue
			}
			fmt.Fprintf(&b, "%s%s%s", openQ, string(runes[i+1:end]), closeQ)
			i = end + 1
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

var multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}
