package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemalens/schemalens-engine/pkg/apperrors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    string
		wantErr error
	}{
		{
			name: "plain statement untouched",
			sql:  "SELECT 1",
			want: "SELECT 1",
		},
		{
			name: "trailing semicolon stripped",
			sql:  "SELECT 1;",
			want: "SELECT 1",
		},
		{
			name: "trailing semicolon with whitespace",
			sql:  "SELECT 1 ;  \n",
			want: "SELECT 1",
		},
		{
			name:    "two statements rejected",
			sql:     "SELECT 1; DROP TABLE users",
			wantErr: apperrors.ErrMultipleStatements,
		},
		{
			name: "semicolon inside string literal is data",
			sql:  "SELECT 'a;b' AS v",
			want: "SELECT 'a;b' AS v",
		},
		{
			name: "semicolon inside comment ignored",
			sql:  "SELECT 1 -- trailing; note",
			want: "SELECT 1 -- trailing; note",
		},
		{
			name:    "separator after block comment rejected",
			sql:     "SELECT 1 /*abc*/; DROP TABLE t",
			wantErr: apperrors.ErrMultipleStatements,
		},
		{
			name:    "separator after multibyte block comment rejected",
			sql:     "SELECT 1 /*ééé*/; DROP TABLE t",
			wantErr: apperrors.ErrMultipleStatements,
		},
		{
			name: "multibyte block comment in a single statement",
			sql:  "SELECT 1 /* süß ünïcode */ AS v",
			want: "SELECT 1 /* süß ünïcode */ AS v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.sql)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		sql        string
		wantKind   string
		wantSelect bool
	}{
		{"SELECT 1 AS one", KindSelect, true},
		{"select id from orders", KindSelect, true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", KindSelect, true},
		{"DELETE FROM sales.orders", KindDelete, false},
		{"INSERT INTO t VALUES (1)", KindInsert, false},
		{"UPDATE t SET x = 1", KindUpdate, false},
		{"DROP TABLE t", KindDDL, false},
		{"CREATE TABLE t (id int)", KindDDL, false},
		{"EXEC sp_help", KindOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			stmt, err := Parse(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, stmt.Kind)
			assert.Equal(t, tt.wantSelect, stmt.IsSelect)
		})
	}
}

func TestParseCTEWrappedSelect(t *testing.T) {
	stmt, err := Parse("WITH recent AS (SELECT id FROM sales.orders), x AS (SELECT 2) SELECT id FROM recent")
	require.NoError(t, err)

	assert.True(t, stmt.IsSelect)
	assert.ElementsMatch(t, []string{"recent", "x"}, stmt.CTEs)
	// The CTE body's table is collected; the CTE name is not.
	assert.Contains(t, stmt.Tables, "sales.orders")
	assert.NotContains(t, stmt.Tables, "recent")
}

func TestParseStarDetection(t *testing.T) {
	star, err := Parse("SELECT * FROM orders")
	require.NoError(t, err)
	assert.True(t, star.HasStar)

	qualified, err := Parse("SELECT o.* FROM orders o")
	require.NoError(t, err)
	assert.True(t, qualified.HasStar)

	plain, err := Parse("SELECT id, amount FROM orders")
	require.NoError(t, err)
	assert.False(t, plain.HasStar)

	countStar, err := Parse("SELECT COUNT(*) FROM orders")
	require.NoError(t, err)
	assert.False(t, countStar.HasStar)
}

func TestParseTableAndColumnRefs(t *testing.T) {
	stmt, err := Parse("SELECT o.amount, c.region FROM sales.orders o JOIN sales.customers c ON o.customer_id = c.id WHERE o.status = 'open'")
	require.NoError(t, err)

	assert.Contains(t, stmt.Tables, "sales.orders")
	assert.Contains(t, stmt.Tables, "sales.customers")
	assert.Contains(t, stmt.Columns, "amount")
	assert.Contains(t, stmt.Columns, "region")
	assert.Contains(t, stmt.Columns, "customer_id")
	assert.Contains(t, stmt.Columns, "status")
}

func TestParseLimitDetection(t *testing.T) {
	limit, err := Parse("SELECT id FROM t LIMIT 10")
	require.NoError(t, err)
	assert.True(t, limit.HasLimit)

	top, err := Parse("SELECT TOP 10 id FROM t")
	require.NoError(t, err)
	assert.True(t, top.HasLimit)

	fetch, err := Parse("SELECT id FROM t ORDER BY id FETCH FIRST 10 ROWS ONLY")
	require.NoError(t, err)
	assert.True(t, fetch.HasLimit)

	none, err := Parse("SELECT id FROM t")
	require.NoError(t, err)
	assert.False(t, none.HasLimit)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("SELECT (1 FROM t")
	assert.Error(t, err)

	_, err = Parse("SELECT 'unterminated FROM t")
	assert.Error(t, err)

	_, err = Parse("   ")
	assert.Error(t, err)
}
