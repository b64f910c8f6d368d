package sqlast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

// Statement kinds.
const (
	KindSelect  = "select"
	KindInsert  = "insert"
	KindUpdate  = "update"
	KindDelete  = "delete"
	KindDDL     = "ddl"
	KindOther   = "other"
	KindUnknown = "unknown"
)

// Statement is the tolerant parse result: enough structure for guardrails
// and metadata extraction, nothing more.
type Statement struct {
	Kind string

	// IsSelect is true for plain selects and CTE-wrapped selects.
	IsSelect bool

	// HasStar reports a top-level "*" or "alias.*" projection.
	HasStar bool

	// HasLimit reports a LIMIT, TOP, or FETCH FIRST clause.
	HasLimit bool

	// Tables are referenced table names, possibly schema-qualified, in
	// first-appearance order, deduplicated case-insensitively. CTE names are
	// excluded.
	Tables []string

	// Columns are bare identifiers that appear in column position. Best
	// effort: expression-heavy queries yield partial results.
	Columns []string

	// CTEs are the names introduced by a WITH clause.
	CTEs []string
}

// Normalize strips a trailing semicolon and rejects multi-statement input.
// Semicolons inside string literals and comments do not count.
func Normalize(sql string) (string, error) {
	toks, err := lex(sql)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimRight(trimmed, "; \t\n\r")

	semis := 0
	for _, t := range toks {
		if t.kind == tokenSymbol && t.text == ";" {
			semis++
		}
	}
	// One trailing semicolon is fine; anything separating statements is not.
	if strings.HasSuffix(strings.TrimSpace(sql), ";") {
		semis--
	}
	if semis > 0 {
		return "", apperrors.ErrMultipleStatements
	}
	return trimmed, nil
}

// Parse analyzes one normalized statement.
func Parse(sql string) (*Statement, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty statement")
	}
	if err := checkBalance(toks); err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: KindUnknown}
	pos := 0

	// WITH clause: collect CTE names, then continue at the main statement.
	if toks[pos].isKeyword("WITH") {
		pos = parseCTEs(toks, pos+1, stmt)
	}
	if pos >= len(toks) {
		return nil, fmt.Errorf("statement ends inside WITH clause")
	}

	head := toks[pos].upper()
	switch head {
	case "SELECT":
		stmt.Kind = KindSelect
		stmt.IsSelect = true
	case "INSERT":
		stmt.Kind = KindInsert
	case "UPDATE":
		stmt.Kind = KindUpdate
	case "DELETE":
		stmt.Kind = KindDelete
	case "CREATE", "ALTER", "DROP", "TRUNCATE", "GRANT", "REVOKE":
		stmt.Kind = KindDDL
	case "EXEC", "EXECUTE", "CALL", "MERGE", "SET", "USE", "BEGIN", "COMMIT", "ROLLBACK":
		stmt.Kind = KindOther
	default:
		if toks[pos].kind == tokenIdent {
			stmt.Kind = KindOther
		}
	}

	// Scan from the top so tables inside CTE bodies are collected too.
	collectRefs(toks, 0, stmt)
	return stmt, nil
}

// parseCTEs walks "name AS ( … ) [, name AS ( … )]*" and returns the index
// of the main statement head.
func parseCTEs(toks []token, pos int, stmt *Statement) int {
	for pos < len(toks) {
		// Optional RECURSIVE.
		if toks[pos].isKeyword("RECURSIVE") {
			pos++
			continue
		}
		if toks[pos].kind != tokenIdent && toks[pos].kind != tokenQuotedIdent {
			return pos
		}
		stmt.CTEs = append(stmt.CTEs, toks[pos].text)
		pos++

		// Optional column list before AS.
		if pos < len(toks) && toks[pos].text == "(" {
			pos = skipParens(toks, pos)
		}
		if pos < len(toks) && toks[pos].isKeyword("AS") {
			pos++
		}
		if pos < len(toks) && toks[pos].text == "(" {
			pos = skipParens(toks, pos)
		}
		if pos < len(toks) && toks[pos].text == "," {
			pos++
			continue
		}
		return pos
	}
	return pos
}

func skipParens(toks []token, pos int) int {
	depth := 0
	for ; pos < len(toks); pos++ {
		switch toks[pos].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return pos + 1
			}
		}
	}
	return pos
}

func checkBalance(toks []token) error {
	depth := 0
	for _, t := range toks {
		if t.kind != tokenSymbol {
			continue
		}
		switch t.text {
		case "(":
			depth++
		case ")":
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses")
	}
	return nil
}

// tableIntroducers are keywords after which a table reference appears.
var tableIntroducers = map[string]struct{}{
	"FROM": {}, "JOIN": {}, "INTO": {}, "UPDATE": {}, "TABLE": {},
}

// refStopWords end a table-reference list.
var refStopWords = map[string]struct{}{
	"WHERE": {}, "GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {},
	"ON": {}, "SET": {}, "VALUES": {}, "UNION": {}, "EXCEPT": {},
	"INTERSECT": {}, "WINDOW": {}, "FETCH": {}, "OFFSET": {}, "SELECT": {},
	"LEFT": {}, "RIGHT": {}, "INNER": {}, "OUTER": {}, "FULL": {},
	"CROSS": {}, "JOIN": {}, "AS": {},
}

// collectRefs gathers table references, column identifiers, star projection,
// and limit clauses from the token stream.
func collectRefs(toks []token, pos int, stmt *Statement) {
	cteNames := make(map[string]struct{}, len(stmt.CTEs))
	for _, name := range stmt.CTEs {
		cteNames[strings.ToLower(name)] = struct{}{}
	}
	seenTables := make(map[string]struct{})
	seenColumns := make(map[string]struct{})

	selectDepth := -1
	depth := 0
	inSelectList := false

	for i := pos; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokenSymbol {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			case "*":
				if inSelectList && depth == selectDepth {
					stmt.HasStar = true
				}
			}
			continue
		}
		if t.kind != tokenIdent && t.kind != tokenQuotedIdent {
			continue
		}

		switch t.upper() {
		case "SELECT":
			inSelectList = true
			selectDepth = depth
			continue
		case "FROM":
			inSelectList = false
		case "LIMIT", "TOP":
			stmt.HasLimit = true
			continue
		case "FETCH":
			if i+1 < len(toks) && (toks[i+1].isKeyword("FIRST") || toks[i+1].isKeyword("NEXT")) {
				stmt.HasLimit = true
			}
			continue
		}

		if _, ok := tableIntroducers[t.upper()]; ok && t.kind == tokenIdent {
			name, next := readQualifiedName(toks, i+1)
			if name != "" {
				if _, isCTE := cteNames[strings.ToLower(name)]; !isCTE {
					lower := strings.ToLower(name)
					if _, dup := seenTables[lower]; !dup {
						seenTables[lower] = struct{}{}
						stmt.Tables = append(stmt.Tables, name)
					}
				}
			}
			i = next - 1
			continue
		}

		// Plain identifier outside keyword position: column candidate.
		if !isReservedWord(t) {
			name, next := readQualifiedName(toks, i)
			if name != "" {
				column := name
				if j := strings.LastIndex(name, "."); j >= 0 {
					column = name[j+1:]
				}
				lower := strings.ToLower(column)
				if _, dup := seenColumns[lower]; !dup {
					seenColumns[lower] = struct{}{}
					stmt.Columns = append(stmt.Columns, column)
				}
			}
			i = next - 1
		}
	}
	sort.Strings(stmt.Columns)
}

// readQualifiedName reads "a", "a.b", or "a.b.c" starting at pos, returning
// the dotted name and the index after it.
func readQualifiedName(toks []token, pos int) (string, int) {
	var parts []string
	for pos < len(toks) {
		t := toks[pos]
		if t.kind != tokenIdent && t.kind != tokenQuotedIdent {
			break
		}
		if t.kind == tokenIdent && isReservedWord(t) {
			break
		}
		parts = append(parts, t.text)
		pos++
		if pos < len(toks) && toks[pos].kind == tokenSymbol && toks[pos].text == "." {
			pos++
			// "alias.*": the star is handled by the caller's scan.
			if pos < len(toks) && toks[pos].kind == tokenSymbol && toks[pos].text == "*" {
				break
			}
			continue
		}
		break
	}
	return strings.Join(parts, "."), pos
}

var reservedWords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "BY": {}, "ORDER": {},
	"HAVING": {}, "LIMIT": {}, "OFFSET": {}, "FETCH": {}, "FIRST": {},
	"NEXT": {}, "ROWS": {}, "ROW": {}, "ONLY": {}, "AS": {}, "ON": {},
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "IS": {}, "NULL": {},
	"LIKE": {}, "BETWEEN": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {},
	"INNER": {}, "OUTER": {}, "FULL": {}, "CROSS": {}, "UNION": {},
	"EXCEPT": {}, "INTERSECT": {}, "ALL": {}, "DISTINCT": {}, "CASE": {},
	"WHEN": {}, "THEN": {}, "ELSE": {}, "END": {}, "INSERT": {}, "INTO": {},
	"VALUES": {}, "UPDATE": {}, "SET": {}, "DELETE": {}, "CREATE": {},
	"TABLE": {}, "DROP": {}, "ALTER": {}, "WITH": {}, "RECURSIVE": {},
	"ASC": {}, "DESC": {}, "TOP": {}, "EXISTS": {}, "ANY": {}, "SOME": {},
	"COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {}, "COALESCE": {},
	"CAST": {}, "TRUE": {}, "FALSE": {},
}

func isReservedWord(t token) bool {
	if t.kind != tokenIdent {
		return false
	}
	_, ok := reservedWords[t.upper()]
	return ok
}
