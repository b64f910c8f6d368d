package profile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

// samplerParallelism bounds concurrent sample queries so profiling does not
// monopolize the shared connection pool.
const samplerParallelism = 4

// Sampler draws bounded row samples across many tables with a per-table
// deadline. A timed-out or failing table yields a nil sample, never an
// error: sampling is best-effort by contract.
type Sampler struct {
	source  datasource.RowSampler
	rows    int
	timeout time.Duration
	logger  *zap.Logger
}

// NewSampler creates a sampler over the given row source.
func NewSampler(source datasource.RowSampler, rows int, timeout time.Duration, logger *zap.Logger) *Sampler {
	if rows <= 0 {
		rows = datasource.DefaultSampleLimit
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sampler{
		source:  source,
		rows:    rows,
		timeout: timeout,
		logger:  logger.Named("sampler"),
	}
}

// SampleAll samples every table and returns results keyed by table key.
// Tables whose sample failed are present with a nil value so the profiler
// can mark them sampled=none.
func (s *Sampler) SampleAll(ctx context.Context, tables []datasource.RawTable) map[string]*datasource.QueryResult {
	results := make(map[string]*datasource.QueryResult, len(tables))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(samplerParallelism)

	for _, tbl := range tables {
		g.Go(func() error {
			key := schema.TableKey(tbl.Schema, tbl.Name)
			sample := s.sampleOne(gctx, tbl)
			mu.Lock()
			results[key] = sample
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()
	return results
}

func (s *Sampler) sampleOne(ctx context.Context, tbl datasource.RawTable) *datasource.QueryResult {
	tableCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	sample, err := s.source.SampleRows(tableCtx, tbl.Schema, tbl.Name, s.rows)
	if err != nil {
		s.logger.Debug("Table sample failed",
			zap.String("schema", tbl.Schema),
			zap.String("table", tbl.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil
	}
	return sample
}
