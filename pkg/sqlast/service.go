package sqlast

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

const (
	parseCacheSize = 512

	// assistMaxDistance is the edit-distance budget for fuzzy identifier
	// suggestions.
	assistMaxDistance = 2
)

type cacheKey struct {
	sql     string
	dialect string
}

// Service is the SQL analysis facade. Parse results are cached by
// (sql, dialect); the cache is safe for concurrent use.
type Service struct {
	cache  *lru.Cache[cacheKey, *Statement]
	logger *zap.Logger
}

// NewService builds the service with its parse cache.
func NewService(logger *zap.Logger) (*Service, error) {
	cache, err := lru.New[cacheKey, *Statement](parseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}
	return &Service{cache: cache, logger: logger.Named("sqlast")}, nil
}

// Parse returns the cached analysis of one normalized statement.
func (s *Service) Parse(sql, dialect string) (*Statement, error) {
	dialect, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}
	key := cacheKey{sql: sql, dialect: dialect}
	if stmt, ok := s.cache.Get(key); ok {
		return stmt, nil
	}
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, stmt)
	return stmt, nil
}

// ValidationReport carries validation notes; an empty Notes list means clean.
type ValidationReport struct {
	Valid bool     `json:"valid"`
	Notes []string `json:"notes,omitempty"`
}

// Validate parses the statement and reports advisory notes.
func (s *Service) Validate(sql, dialect string) (*ValidationReport, error) {
	stmt, err := s.Parse(sql, dialect)
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{Valid: true}
	if stmt.HasStar {
		report.Notes = append(report.Notes,
			"star projection returns every column; name the columns you need")
	}
	if stmt.IsSelect && !stmt.HasLimit {
		report.Notes = append(report.Notes,
			"no row bound in the statement; the executor applies its own limit")
	}

	d, _ := NormalizeDialect(dialect)
	if usesLimit(d) && topRe.MatchString(sql) {
		report.Notes = append(report.Notes,
			fmt.Sprintf("TOP is not %s syntax; use LIMIT", d))
	}
	if d == DialectTSQL && limitRe.MatchString(sql) {
		report.Notes = append(report.Notes, "LIMIT is not tsql syntax; use TOP")
	}
	return report, nil
}

// Transpile rewrites a statement from one dialect to another.
func (s *Service) Transpile(sql, from, to string) (string, error) {
	fromD, err := NormalizeDialect(from)
	if err != nil {
		return "", err
	}
	toD, err := NormalizeDialect(to)
	if err != nil {
		return "", err
	}
	if _, err := s.Parse(sql, fromD); err != nil {
		return "", err
	}
	return transpile(sql, fromD, toD)
}

// AutoTranspile detects the source dialect from surface markers and rewrites
// to the target. Already-conforming statements pass through unchanged.
func (s *Service) AutoTranspile(sql, to string) (string, error) {
	toD, err := NormalizeDialect(to)
	if err != nil {
		return "", err
	}
	from := detectDialect(sql)
	if from == DialectGeneric || from == toD {
		if _, err := s.Parse(sql, toD); err != nil {
			return "", err
		}
		return sql, nil
	}
	return s.Transpile(sql, from, toD)
}

// Optimize returns advisory rewrite suggestions. The statement itself is
// returned unchanged; suggestions are safe to ignore.
func (s *Service) Optimize(sql, dialect string, card *schema.Card) (string, []string, error) {
	stmt, err := s.Parse(sql, dialect)
	if err != nil {
		return "", nil, err
	}

	var suggestions []string
	if stmt.HasStar {
		suggestions = append(suggestions, "replace * with an explicit column list")
	}
	if stmt.IsSelect && !stmt.HasLimit {
		suggestions = append(suggestions, "add a LIMIT to bound the result")
	}
	if leadingWildcardRe.MatchString(sql) {
		suggestions = append(suggestions,
			"LIKE with a leading wildcard cannot use an index")
	}
	if card != nil {
		for _, name := range stmt.Tables {
			tbl := card.Table(name)
			if tbl != nil && tbl.IsArchive {
				suggestions = append(suggestions,
					fmt.Sprintf("%s is an archive table; the live table usually answers better", name))
			}
		}
	}
	return sql, suggestions, nil
}

var leadingWildcardRe = regexp.MustCompile(`(?i)\bLIKE\s+'%`)

// Metadata lists the table and column references of a statement.
type Metadata struct {
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
}

// ExtractMetadata returns the referenced tables and columns.
func (s *Service) ExtractMetadata(sql, dialect string) (*Metadata, error) {
	stmt, err := s.Parse(sql, dialect)
	if err != nil {
		return nil, err
	}
	return &Metadata{Tables: stmt.Tables, Columns: stmt.Columns}, nil
}

// AssistError derives fix hints from a driver error message and the schema
// card: unresolved identifiers are fuzzy-matched against known table and
// column names, and dialect-mismatch markers get a direct suggestion.
func (s *Service) AssistError(sql, driverMessage, dialect string, card *schema.Card) []string {
	var hints []string

	d, err := NormalizeDialect(dialect)
	if err != nil {
		d = DialectGeneric
	}
	if usesLimit(d) && topRe.MatchString(sql) {
		hints = append(hints, fmt.Sprintf("TOP is not %s syntax; use LIMIT", d))
	}
	if d == DialectTSQL && limitRe.MatchString(sql) {
		hints = append(hints, "LIMIT is not tsql syntax; use TOP")
	}
	if d == DialectPostgres && ifnullRe.MatchString(sql) {
		hints = append(hints, "IFNULL does not exist in postgres; use COALESCE")
	}

	if card != nil {
		for _, ident := range unknownIdentifiers(driverMessage) {
			for _, match := range s.fuzzyMatches(ident, card) {
				hints = append(hints, fmt.Sprintf("unknown identifier %q; did you mean %q?",
					ident, match))
			}
		}
	}
	return hints
}

// Driver messages quote the failing identifier in most dialects.
var quotedIdentifierRes = []*regexp.Regexp{
	regexp.MustCompile(`column "([^"]+)"`),
	regexp.MustCompile(`relation "([^"]+)"`),
	regexp.MustCompile(`table "([^"]+)"`),
	regexp.MustCompile(`Unknown column '([^']+)'`),
	regexp.MustCompile(`no such column: (\S+)`),
	regexp.MustCompile(`no such table: (\S+)`),
	regexp.MustCompile(`Invalid column name '([^']+)'`),
	regexp.MustCompile(`Invalid object name '([^']+)'`),
}

func unknownIdentifiers(message string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, re := range quotedIdentifierRes {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			ident := m[1]
			if _, dup := seen[ident]; !dup {
				seen[ident] = struct{}{}
				out = append(out, ident)
			}
		}
	}
	return out
}

// fuzzyMatches finds card identifiers within the edit-distance budget,
// closest first.
func (s *Service) fuzzyMatches(ident string, card *schema.Card) []string {
	// Qualified idents are matched on their last segment.
	if i := strings.LastIndex(ident, "."); i >= 0 {
		ident = ident[i+1:]
	}
	lower := strings.ToLower(ident)

	type match struct {
		name string
		dist int
	}
	var matches []match
	add := func(name string) {
		d := textutil.Levenshtein(lower, strings.ToLower(name))
		if d > 0 && d <= assistMaxDistance {
			matches = append(matches, match{name: name, dist: d})
		}
	}
	for _, tbl := range card.Tables {
		add(tbl.Name)
		for _, col := range tbl.Columns {
			add(col.Name)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})

	seen := make(map[string]struct{})
	var out []string
	for _, m := range matches {
		if _, dup := seen[m.name]; dup {
			continue
		}
		seen[m.name] = struct{}{}
		out = append(out, m.name)
		if len(out) == 3 {
			break
		}
	}
	return out
}
