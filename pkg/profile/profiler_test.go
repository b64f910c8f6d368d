package profile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

func ordersRaw() datasource.RawTable {
	return datasource.RawTable{
		Schema: "sales",
		Name:   "orders",
		Columns: []datasource.RawColumn{
			{Name: "id", VendorType: "integer", OrdinalPosition: 1},
			{Name: "customer_id", VendorType: "integer", OrdinalPosition: 2},
			{Name: "order_date", VendorType: "date", OrdinalPosition: 3},
			{Name: "amount", VendorType: "numeric", OrdinalPosition: 4},
			{Name: "status", VendorType: "text", Nullable: true, OrdinalPosition: 5},
			{Name: "notes", VendorType: "text", Nullable: true, OrdinalPosition: 6},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []datasource.RawForeignKey{
			{LocalColumn: "customer_id", RemoteSchema: "sales", RemoteTable: "customers", RemoteColumn: "id"},
		},
		RowEstimate: 1000,
	}
}

func ordersSample() *datasource.QueryResult {
	rows := make([]map[string]any, 0, 40)
	statuses := []string{"open", "shipped", "cancelled", "shipped"}
	for i := range 40 {
		rows = append(rows, map[string]any{
			"id":          int64(i + 1),
			"customer_id": int64(i%7 + 1),
			"order_date":  time.Date(2024, time.Month(i%12+1), 3, 0, 0, 0, 0, time.UTC),
			"amount":      float64(i)*3.5 + 10,
			"status":      statuses[i%len(statuses)],
			"notes":       fmt.Sprintf("free text comment %d long enough to count as prose for role inference", i),
		})
	}
	return &datasource.QueryResult{Rows: rows, RowCount: len(rows)}
}

func TestProfileTableRoles(t *testing.T) {
	tbl := ProfileTable(ordersRaw(), ordersSample(), DefaultConfig())

	require.Equal(t, "sales.orders", tbl.Key)
	assert.Equal(t, schema.RoleKey, tbl.Column("id").Role)
	assert.Equal(t, schema.RoleID, tbl.Column("customer_id").Role)
	assert.Equal(t, schema.RoleDate, tbl.Column("order_date").Role)
	assert.Equal(t, schema.RoleMetric, tbl.Column("amount").Role)
	assert.Equal(t, schema.RoleCategory, tbl.Column("status").Role)
	assert.Equal(t, schema.RoleText, tbl.Column("notes").Role)

	assert.Equal(t, 1, tbl.MetricCount)
	assert.Equal(t, 1, tbl.DateCount)
	assert.False(t, tbl.IsArchive)
}

func TestProfileTableFKFlags(t *testing.T) {
	tbl := ProfileTable(ordersRaw(), ordersSample(), DefaultConfig())

	col := tbl.Column("customer_id")
	require.NotNil(t, col)
	assert.True(t, col.IsForeignKey)
	assert.Equal(t, "sales.customers", col.FKTargetTable)
	assert.Equal(t, "id", col.FKTargetColumn)

	require.Len(t, tbl.ForeignKeys, 1)
	assert.Equal(t, "sales.customers", tbl.ForeignKeys[0].RemoteTableKey)
}

func TestProfileTableEnumeratesLowCardinalityValues(t *testing.T) {
	tbl := ProfileTable(ordersRaw(), ordersSample(), DefaultConfig())

	status := tbl.Column("status")
	assert.ElementsMatch(t, []string{"open", "shipped", "cancelled"}, status.Values)
}

func TestProfileTableRanges(t *testing.T) {
	tbl := ProfileTable(ordersRaw(), ordersSample(), DefaultConfig())

	amount := tbl.Column("amount")
	require.NotNil(t, amount.RangeMin)
	assert.Equal(t, "10", *amount.RangeMin)
	require.NotNil(t, amount.RangeMax)

	orderDate := tbl.Column("order_date")
	require.NotNil(t, orderDate.RangeMin)
	assert.Contains(t, *orderDate.RangeMin, "2024-01")
}

func TestProfileTableNullRate(t *testing.T) {
	raw := datasource.RawTable{
		Schema:  "sales",
		Name:    "leads",
		Columns: []datasource.RawColumn{{Name: "email", VendorType: "text", Nullable: true}},
	}
	sample := &datasource.QueryResult{Rows: []map[string]any{
		{"email": "a@example.com"},
		{"email": nil},
		{"email": "b@example.com"},
		{"email": nil},
	}, RowCount: 4}

	tbl := ProfileTable(raw, sample, DefaultConfig())
	col := tbl.Column("email")
	assert.InDelta(t, 0.5, col.NullRate, 0.001)
	assert.Contains(t, col.Patterns, "email")
}

func TestProfileTableUnsampledMetricRole(t *testing.T) {
	tbl := ProfileTable(ordersRaw(), nil, DefaultConfig())
	assert.Equal(t, schema.RoleMetric, tbl.Column("amount").Role)
	assert.Equal(t, 1, tbl.MetricCount)
}

func TestProfileTableArchiveFlag(t *testing.T) {
	raw := ordersRaw()
	raw.Name = "orders_archive"
	tbl := ProfileTable(raw, nil, DefaultConfig())
	assert.True(t, tbl.IsArchive)
	assert.Equal(t, schema.SampledNone, tbl.Sampled)
}

func TestSampledState(t *testing.T) {
	raw := ordersRaw()
	cfg := DefaultConfig()

	assert.Equal(t, schema.SampledNone, SampledState(raw, nil, cfg))
	assert.Equal(t, schema.SampledPartial,
		SampledState(raw, &datasource.QueryResult{RowCount: 10}, cfg))
	assert.Equal(t, schema.SampledFull,
		SampledState(raw, &datasource.QueryResult{RowCount: 100}, cfg))
}

func TestDetectSemanticTags(t *testing.T) {
	persons := []string{"James Smith", "Mary Jones", "John Doe", "Linda Park"}
	assert.Contains(t, DetectSemanticTags(persons), TagPerson)

	orgs := []string{"Acme Inc", "Globex Corp", "Initech LLC", "Umbrella Ltd"}
	assert.Contains(t, DetectSemanticTags(orgs), TagOrganization)

	locations := []string{"London", "Paris", "Tokyo", "Berlin"}
	assert.Contains(t, DetectSemanticTags(locations), TagLocation)

	assert.Empty(t, DetectSemanticTags(nil))
	assert.Empty(t, DetectSemanticTags([]string{"widget", "gadget", "sprocket"}))
}
