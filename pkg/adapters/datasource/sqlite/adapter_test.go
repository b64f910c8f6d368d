package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
)

func openTestDB(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(context.Background(), "sqlite://:memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	stmts := []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, region TEXT NOT NULL)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			order_date TEXT,
			amount REAL
		)`,
		`INSERT INTO customers (id, region) VALUES (1, 'north'), (2, 'south')`,
		`INSERT INTO orders (id, customer_id, order_date, amount) VALUES
			(1, 1, '2024-01-05', 10.5),
			(2, 1, '2024-02-11', 20.0),
			(3, 2, '2024-03-02', 7.25)`,
	}
	for _, stmt := range stmts {
		_, err := adapter.db.Exec(stmt)
		require.NoError(t, err)
	}
	return adapter
}

func TestReflect(t *testing.T) {
	adapter := openTestDB(t)

	raw, err := adapter.Reflect(context.Background(), datasource.ReflectOptions{})
	require.NoError(t, err)

	assert.Equal(t, datasource.DialectSQLite, raw.Dialect)
	assert.Equal(t, []string{"main"}, raw.Schemas)
	require.Len(t, raw.Tables, 2)

	var orders *datasource.RawTable
	for i := range raw.Tables {
		if raw.Tables[i].Name == "orders" {
			orders = &raw.Tables[i]
		}
	}
	require.NotNil(t, orders)
	assert.Equal(t, []string{"id"}, orders.PrimaryKey)
	assert.Len(t, orders.Columns, 4)
	assert.Equal(t, int64(3), orders.RowEstimate)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "customer_id", orders.ForeignKeys[0].LocalColumn)
	assert.Equal(t, "customers", orders.ForeignKeys[0].RemoteTable)
	assert.Equal(t, "id", orders.ForeignKeys[0].RemoteColumn)
}

func TestReflectMaxTables(t *testing.T) {
	adapter := openTestDB(t)

	raw, err := adapter.Reflect(context.Background(), datasource.ReflectOptions{MaxTables: 1})
	require.NoError(t, err)
	assert.Len(t, raw.Tables, 1)
}

func TestSampleRows(t *testing.T) {
	adapter := openTestDB(t)

	result, err := adapter.SampleRows(context.Background(), "main", "orders", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Len(t, result.Columns, 4)
}

func TestExecuteQueryAppliesLimit(t *testing.T) {
	adapter := openTestDB(t)

	result, err := adapter.ExecuteQuery(context.Background(), "SELECT id FROM orders ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)

	all, err := adapter.ExecuteQuery(context.Background(), "SELECT id FROM orders", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, all.RowCount)
}

func TestExecuteQueryResolvesMainSchemaQualifier(t *testing.T) {
	adapter := openTestDB(t)

	result, err := adapter.ExecuteQuery(context.Background(),
		"SELECT main.orders.id FROM main.orders ORDER BY 1", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)
}

func TestPathFromURL(t *testing.T) {
	assert.Equal(t, "/tmp/x.db", pathFromURL("sqlite:///tmp/x.db"))
	assert.Equal(t, ":memory:", pathFromURL("sqlite://:memory:"))
	assert.Equal(t, ":memory:", pathFromURL("sqlite://"))
	assert.Equal(t, "data.db", pathFromURL("file://data.db"))
}
