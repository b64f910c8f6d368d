package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
	"github.com/schemalens/schemalens-engine/pkg/config"
)

// fakeAdapter serves a canned raw schema and counts calls.
type fakeAdapter struct {
	mu       sync.Mutex
	raw      *datasource.RawSchema
	connErr  error
	reflects int
	samples  int
	// failReflectAfter fails every Reflect call past the Nth success;
	// zero disables.
	failReflectAfter int
}

func (f *fakeAdapter) Reflect(_ context.Context, opts datasource.ReflectOptions) (*datasource.RawSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reflects++
	if f.failReflectAfter > 0 && f.reflects > f.failReflectAfter {
		return nil, errors.New("reflection interrupted")
	}
	if opts.MaxTables > 0 && len(f.raw.Tables) > opts.MaxTables {
		capped := *f.raw
		capped.Tables = f.raw.Tables[:opts.MaxTables]
		return &capped, nil
	}
	return f.raw, nil
}

func (f *fakeAdapter) SampleRows(_ context.Context, _, _ string, _ int) (*datasource.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++
	return &datasource.QueryResult{
		Columns:  []datasource.ColumnInfo{{Name: "id", Type: "INT8"}},
		Rows:     []map[string]any{{"id": int64(1)}},
		RowCount: 1,
	}, nil
}

func (f *fakeAdapter) ExecuteQuery(_ context.Context, _ string, _ int) (*datasource.QueryResult, error) {
	return &datasource.QueryResult{}, nil
}

func (f *fakeAdapter) TestConnection(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connErr
}

func (f *fakeAdapter) Dialect() string { return "postgres" }
func (f *fakeAdapter) Close() error    { return nil }

func (f *fakeAdapter) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

func (f *fakeAdapter) setRaw(raw *datasource.RawSchema) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
}

func salesRaw() *datasource.RawSchema {
	return &datasource.RawSchema{
		Dialect: "postgres",
		Schemas: []string{"sales"},
		Tables: []datasource.RawTable{
			{
				Schema: "sales", Name: "orders",
				Columns: []datasource.RawColumn{
					{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
					{Name: "customer_id", VendorType: "bigint", OrdinalPosition: 2},
					{Name: "amount", VendorType: "numeric", OrdinalPosition: 3},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []datasource.RawForeignKey{
					{LocalColumn: "customer_id", RemoteSchema: "sales", RemoteTable: "customers", RemoteColumn: "id"},
				},
				RowEstimate: 1000,
			},
			{
				Schema: "sales", Name: "customers",
				Columns: []datasource.RawColumn{
					{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
					{Name: "region", VendorType: "text", OrdinalPosition: 2},
				},
				PrimaryKey:  []string{"id"},
				RowEstimate: 100,
			},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:              "postgres://app@db.local/sales",
		RowLimit:                 200,
		MaxCellChars:             120,
		SampleRows:               10,
		SampleTimeoutSeconds:     1,
		ValueConstraintThreshold: 20,
		MinAreaSize:              1,
		MaxTablesFastStart:       100,
		MaxColsForEmbeddings:     20,
	}
}

func startCoordinator(t *testing.T, adapter *fakeAdapter, cfg *config.Config) *Coordinator {
	t.Helper()
	c := NewCoordinator(cfg, adapter, nil, zap.NewNop())
	c.Start(context.Background())
	t.Cleanup(func() { c.Stop(2 * time.Second) })
	return c
}

func waitReady(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, c.state.Ready, 2*time.Second, 10*time.Millisecond)
}

func waitEnriched(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		card := c.Card()
		return card != nil && !card.BuildMeta.FastStart && !c.Status().Enriching
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorFastStartThenEnrich(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw()}
	c := startCoordinator(t, adapter, testConfig())

	waitReady(t, c)
	status := c.Status()
	assert.Equal(t, string(PhaseReady), status.Phase)
	assert.Equal(t, 2, status.TableCount)
	assert.NoError(t, c.Guard())

	waitEnriched(t, c)
	card := c.Card()
	require.NotNil(t, card)
	assert.False(t, card.BuildMeta.FastStart)
	assert.Positive(t, adapter.sampleCount(), "enrichment samples rows")
	assert.Equal(t, string(PhaseReady), c.Status().Phase)
}

func TestCoordinatorGuardBeforeReady(t *testing.T) {
	c := NewCoordinator(testConfig(), &fakeAdapter{raw: salesRaw()}, nil, zap.NewNop())

	err := c.Guard()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotReady)
}

func TestCoordinatorConnectionFailure(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw(), connErr: errors.New("auth failed")}
	c := startCoordinator(t, adapter, testConfig())

	require.Eventually(t, func() bool {
		return c.Status().Phase == string(PhaseFailed)
	}, 2*time.Second, 10*time.Millisecond)

	status := c.Status()
	assert.Contains(t, status.ErrorMessage, "auth failed")
	assert.ErrorIs(t, c.Guard(), apperrors.ErrNotReady)
	assert.Nil(t, c.Card())
}

func TestCoordinatorEnrichFailureKeepsServing(t *testing.T) {
	// The first Reflect feeds fast-start; the second, from enrichment, fails.
	adapter := &fakeAdapter{raw: salesRaw(), failReflectAfter: 1}
	c := startCoordinator(t, adapter, testConfig())

	waitReady(t, c)
	require.Eventually(t, func() bool {
		return !c.Status().Enriching
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, string(PhaseReady), c.Status().Phase)
	card := c.Card()
	require.NotNil(t, card)
	assert.True(t, card.BuildMeta.FastStart, "the fast-start card stays installed")
}

func TestCoordinatorEmptyDatabase(t *testing.T) {
	adapter := &fakeAdapter{raw: &datasource.RawSchema{Dialect: "postgres"}}
	c := startCoordinator(t, adapter, testConfig())

	waitReady(t, c)
	assert.Equal(t, 0, c.Status().TableCount)
	card := c.Card()
	require.NotNil(t, card)
	assert.Empty(t, card.Tables)
}

func TestCoordinatorStop(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw()}
	c := startCoordinator(t, adapter, testConfig())
	waitReady(t, c)

	c.Stop(2 * time.Second)

	assert.Equal(t, string(PhaseStopped), c.Status().Phase)
	assert.ErrorIs(t, c.Guard(), apperrors.ErrNotReady)
}

func TestCoordinatorAdoptsCachedCard(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()

	first := &fakeAdapter{raw: salesRaw()}
	c1 := NewCoordinator(cfg, first, nil, zap.NewNop())
	c1.Start(context.Background())
	waitReady(t, c1)
	waitEnriched(t, c1)
	c1.Stop(2 * time.Second)

	second := &fakeAdapter{raw: salesRaw()}
	c2 := startCoordinator(t, second, cfg)
	waitReady(t, c2)

	card := c2.Card()
	require.NotNil(t, card)
	assert.False(t, card.BuildMeta.FastStart, "the cached enriched card was adopted")
	assert.Equal(t, 0, second.sampleCount(), "no sampling pass when the cache is fresh")
}

func TestCoordinatorCheckDrift(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw()}
	c := startCoordinator(t, adapter, testConfig())
	waitReady(t, c)
	waitEnriched(t, c)

	drifted, err := c.CheckDrift(context.Background())
	require.NoError(t, err)
	assert.False(t, drifted, "unchanged structure is not drift")

	raw := salesRaw()
	raw.Tables = append(raw.Tables, datasource.RawTable{
		Schema: "sales", Name: "refunds",
		Columns: []datasource.RawColumn{
			{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
		},
		PrimaryKey: []string{"id"},
	})
	adapter.setRaw(raw)

	drifted, err = c.CheckDrift(context.Background())
	require.NoError(t, err)
	assert.True(t, drifted)
	require.Eventually(t, func() bool {
		card := c.Card()
		return card != nil && card.TableCount() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorCheckDriftSkipsFastStartCard(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw()}
	c := NewCoordinator(testConfig(), adapter, nil, zap.NewNop())

	card, err := BuildCard(context.Background(), adapter, nil, c.buildOptions(true), zap.NewNop())
	require.NoError(t, err)
	c.install(card)

	// The structure changes underneath, but enrichment owns the first rebuild.
	raw := salesRaw()
	raw.Tables = raw.Tables[:1]
	adapter.setRaw(raw)

	drifted, err := c.CheckDrift(context.Background())
	require.NoError(t, err)
	assert.False(t, drifted)
}

func TestCoordinatorDriftLoopRebuilds(t *testing.T) {
	cfg := testConfig()
	cfg.DriftCheckSeconds = 1
	adapter := &fakeAdapter{raw: salesRaw()}
	c := startCoordinator(t, adapter, cfg)
	waitReady(t, c)
	waitEnriched(t, c)

	raw := salesRaw()
	raw.Tables = append(raw.Tables, datasource.RawTable{
		Schema: "sales", Name: "refunds",
		Columns: []datasource.RawColumn{
			{Name: "id", VendorType: "bigint", OrdinalPosition: 1},
		},
		PrimaryKey: []string{"id"},
	})
	adapter.setRaw(raw)

	require.Eventually(t, func() bool {
		card := c.Card()
		return card != nil && card.TableCount() == 3
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCoordinatorAdoptsCachedCardPastFastStartCap(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	cfg.MaxTablesFastStart = 1

	first := &fakeAdapter{raw: salesRaw()}
	c1 := NewCoordinator(cfg, first, nil, zap.NewNop())
	c1.Start(context.Background())
	waitReady(t, c1)
	waitEnriched(t, c1)
	c1.Stop(2 * time.Second)

	// The fast-start reflection is truncated to one table, so its hash can
	// never match the enriched card; the lookup must probe the full structure.
	second := &fakeAdapter{raw: salesRaw()}
	c2 := startCoordinator(t, second, cfg)
	waitReady(t, c2)

	card := c2.Card()
	require.NotNil(t, card)
	assert.Equal(t, 2, card.TableCount())
	assert.False(t, card.BuildMeta.FastStart)
	assert.Equal(t, 0, second.sampleCount())
}

func TestCoordinatorRetrieverCachedPerCard(t *testing.T) {
	adapter := &fakeAdapter{raw: salesRaw()}
	c := startCoordinator(t, adapter, testConfig())
	waitReady(t, c)
	waitEnriched(t, c)

	r1, err := c.Retriever()
	require.NoError(t, err)
	r2, err := c.Retriever()
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestBuildCardPrunesDanglingFKs(t *testing.T) {
	raw := salesRaw()
	// Point a FK at a table outside the reflected scope.
	raw.Tables[0].ForeignKeys = append(raw.Tables[0].ForeignKeys, datasource.RawForeignKey{
		LocalColumn: "amount", RemoteSchema: "billing", RemoteTable: "invoices", RemoteColumn: "id",
	})

	adapter := &fakeAdapter{raw: raw}
	card, err := BuildCard(context.Background(), adapter, nil, BuildOptions{
		FastStart:   true,
		MaxTables:   100,
		MinAreaSize: 1,
		Fingerprint: "test",
		Version:     "test",
	}, zap.NewNop())
	require.NoError(t, err)

	orders := card.Tables["sales.orders"]
	require.NotNil(t, orders)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "sales.customers", orders.ForeignKeys[0].RemoteTableKey)
	require.NoError(t, card.Validate())
}

func TestBuildCardPartialReflectionFlag(t *testing.T) {
	raw := salesRaw()
	raw.Warnings = []string{"sales.big_table: timeout"}

	adapter := &fakeAdapter{raw: raw}
	card, err := BuildCard(context.Background(), adapter, nil, BuildOptions{
		FastStart:   true,
		MinAreaSize: 1,
		Fingerprint: "test",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, card.BuildMeta.PartialReflection)
}
