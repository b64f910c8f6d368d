package retrieval

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/schema"
	"github.com/schemalens/schemalens-engine/pkg/textutil"
)

func retrievalCard() *schema.Card {
	return &schema.Card{
		FormatVersion: schema.CardFormatVersion,
		Dialect:       "postgres",
		Tables: map[string]*schema.TableProfile{
			"sales.orders": {
				Key: "sales.orders", Schema: "sales", Name: "orders",
				Archetype: schema.ArchetypeFact,
				Columns: []schema.ColumnProfile{
					{Name: "id", Role: schema.RoleKey, IsPrimaryKey: true},
					{Name: "customer_id", Role: schema.RoleID, IsForeignKey: true},
					{Name: "order_date", Role: schema.RoleDate},
					{Name: "amount", Role: schema.RoleMetric},
					{Name: "status", Role: schema.RoleCategory, Values: []string{"open", "shipped"}},
				},
				MetricCount: 1, DateCount: 1, RowEstimate: 500000,
				Summary: "orders is a fact table; measures: amount.",
			},
			"sales.customers": {
				Key: "sales.customers", Schema: "sales", Name: "customers",
				Archetype: schema.ArchetypeDimension,
				Columns: []schema.ColumnProfile{
					{Name: "id", Role: schema.RoleKey, IsPrimaryKey: true},
					{Name: "full_name", Role: schema.RoleText},
					{Name: "segment", Role: schema.RoleCategory},
				},
				RowEstimate: 20000,
			},
			"hist.orders_archive": {
				Key: "hist.orders_archive", Schema: "hist", Name: "orders_archive",
				Archetype: schema.ArchetypeOperational,
				Columns: []schema.ColumnProfile{
					{Name: "id", Role: schema.RoleKey, IsPrimaryKey: true},
					{Name: "amount", Role: schema.RoleMetric},
				},
				MetricCount: 1, IsArchive: true, RowEstimate: 900000,
			},
		},
	}
}

// fakeEncoder hashes tokens into a fixed number of dimensions, so texts that
// share tokens get similar vectors. Deterministic and offline.
type fakeEncoder struct {
	calls int
	fail  bool
}

func (f *fakeEncoder) Model() string { return "fake-embed" }

func (f *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 16)
		for _, tok := range textutil.Tokens(text) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[h.Sum32()%16]++
		}
		out[i] = vec
	}
	return out, nil
}

func hitIndex(hits []string, key string) int {
	for i, k := range hits {
		if k == key {
			return i
		}
	}
	return -1
}

func TestSearchTablesLexical(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "orders by customer segment", 10,
		StrategyLexical, 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sales.orders", hits[0].TableKey)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearchTablesSingularMatchesPlural(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "latest order amount", 10,
		StrategyLexical, 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sales.orders", hits[0].TableKey)
}

func TestSearchTablesArchivePenalty(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "orders amount", 10, StrategyLexical, 0)
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = h.TableKey
	}
	require.Less(t, hitIndex(keys, "sales.orders"), hitIndex(keys, "hist.orders_archive"))

	for _, h := range hits {
		if h.TableKey == "hist.orders_archive" {
			assert.Equal(t, archiveScorePenalty, h.Components["archive_penalty"])
		}
	}
}

func TestSearchTablesArchiveCueLiftsPenalty(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "archived orders history", 10,
		StrategyLexical, 0)
	for _, h := range hits {
		_, penalized := h.Components["archive_penalty"]
		assert.False(t, penalized, "archive cue should lift the penalty for %s", h.TableKey)
	}
}

func TestSearchTablesAggregationBonus(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "total order amount per month", 10,
		StrategyLexical, 0)
	require.NotEmpty(t, hits)

	var ordersBonus float64
	for _, h := range hits {
		if h.TableKey == "sales.orders" {
			ordersBonus = h.Components["intent_bonus"]
		}
	}
	// Metric-bearing, date-bearing, and fact bonuses all apply.
	assert.InDelta(t, bonusMetricBearing+bonusDateBearing+bonusFact, ordersBonus, 1e-9)
}

func TestSearchTablesOverlapBonus(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchTables(context.Background(), "customers", 10, StrategyLexical, 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sales.customers", hits[0].TableKey)
	assert.Greater(t, hits[0].Components["overlap_bonus"], 0.0)
}

func TestSearchTablesEmbeddingFallback(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())
	require.False(t, e.EmbeddingsReady())

	// Embedding strategies degrade to lexical without an index.
	hits := e.SearchTables(context.Background(), "orders", 5, StrategyEmbeddingTable, 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sales.orders", hits[0].TableKey)
}

func TestEnableEmbeddingsAndCombined(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())
	enc := &fakeEncoder{}

	err := e.EnableEmbeddings(context.Background(), enc, 20)
	require.NoError(t, err)
	require.True(t, e.EmbeddingsReady())

	hits := e.SearchTables(context.Background(), "orders amount", 5, StrategyCombined, 0.6)
	require.NotEmpty(t, hits)
	assert.Equal(t, "sales.orders", hits[0].TableKey)
	assert.Contains(t, hits[0].Components, "embedding")
}

func TestEnableEmbeddingsFailureStaysLexical(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())
	enc := &fakeEncoder{fail: true}

	err := e.EnableEmbeddings(context.Background(), enc, 20)
	require.Error(t, err)
	assert.False(t, e.EmbeddingsReady())

	hits := e.SearchTables(context.Background(), "orders", 5, StrategyCombined, 0)
	require.NotEmpty(t, hits)
}

func TestSearchColumns(t *testing.T) {
	e := NewEngine(retrievalCard(), zap.NewNop())

	hits := e.SearchColumns(context.Background(), "amount", 10, "")
	require.NotEmpty(t, hits)
	assert.Equal(t, "amount", hits[0].Column)

	scoped := e.SearchColumns(context.Background(), "amount", 10, "sales.orders")
	require.NotEmpty(t, scoped)
	for _, h := range scoped {
		assert.Equal(t, "sales.orders", h.TableKey)
	}
}

func TestEmbeddableColumnsCap(t *testing.T) {
	tbl := retrievalCard().Tables["sales.orders"]
	cols := embeddableColumns(tbl, 2)
	require.Len(t, cols, 2)
	// Metric and date roles outrank keys under the cap.
	assert.Equal(t, "amount", cols[0].Name)
	assert.Equal(t, "order_date", cols[1].Name)
}

func TestMinMaxNormalize(t *testing.T) {
	norm := minMaxNormalize(map[string]float64{"a": 2, "b": 4, "c": 6})
	assert.Equal(t, 0.0, norm["a"])
	assert.Equal(t, 0.5, norm["b"])
	assert.Equal(t, 1.0, norm["c"])

	flat := minMaxNormalize(map[string]float64{"a": 0, "b": 0})
	assert.Equal(t, 0.0, flat["a"])

	same := minMaxNormalize(map[string]float64{"a": 3, "b": 3})
	assert.Equal(t, 1.0, same["a"])
}
