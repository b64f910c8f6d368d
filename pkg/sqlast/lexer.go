package sqlast

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenSymbol
)

type token struct {
	kind tokenKind
	text string
}

// upper returns the keyword form of an identifier token.
func (t token) upper() string {
	return strings.ToUpper(t.text)
}

func (t token) isKeyword(kw string) bool {
	return t.kind == tokenIdent && strings.EqualFold(t.text, kw)
}

// lex tokenizes SQL. It understands line and block comments, single-quoted
// strings with doubled-quote escapes, and the three quoted-identifier styles
// ("x", `x`, [x]). Comments are dropped.
func lex(sql string) ([]token, error) {
	var toks []token
	runes := []rune(sql)
	i := 0
	n := len(runes)

	for i < n {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < n && runes[i+1] == '*':
			j := i + 2
			for j+1 < n && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			if j+1 >= n {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i = j + 2

		case r == '\'':
			start := i
			i++
			closed := false
			for i < n {
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			toks = append(toks, token{kind: tokenString, text: string(runes[start:i])})

		case r == '"' || r == '`':
			start := i
			quote := r
			i++
			closed := false
			for i < n {
				if runes[i] == quote {
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			toks = append(toks, token{kind: tokenQuotedIdent, text: string(runes[start+1 : i-1])})

		case r == '[':
			start := i
			i++
			closed := false
			for i < n {
				if runes[i] == ']' {
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated bracket identifier at offset %d", start)
			}
			toks = append(toks, token{kind: tokenQuotedIdent, text: string(runes[start+1 : i-1])})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) ||
				runes[i] == '_' || runes[i] == '$') {
				i++
			}
			toks = append(toks, token{kind: tokenIdent, text: string(runes[start:i])})

		case unicode.IsDigit(r):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.' ||
				runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			toks = append(toks, token{kind: tokenNumber, text: string(runes[start:i])})

		default:
			toks = append(toks, token{kind: tokenSymbol, text: string(r)})
			i++
		}
	}
	return toks, nil
}
