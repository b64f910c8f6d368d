package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/apperrors"
	"github.com/schemalens/schemalens-engine/pkg/config"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/profile"
	"github.com/schemalens/schemalens-engine/pkg/retrieval"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

// Coordinator owns the adapter, the schema card store, the optional encoder,
// and the cached retrieval engine. It drives fast-start and enrichment in
// the background and publishes readiness.
type Coordinator struct {
	cfg     *config.Config
	adapter datasource.Adapter
	store   *schema.Store
	state   *State
	encoder retrieval.Encoder
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	retriever    *retrieval.Engine
	retrieverKey string
}

// NewCoordinator wires the coordinator. The encoder may be nil; retrieval
// then stays lexical.
func NewCoordinator(cfg *config.Config, adapter datasource.Adapter,
	encoder retrieval.Encoder, logger *zap.Logger) *Coordinator {

	return &Coordinator{
		cfg:     cfg,
		adapter: adapter,
		store:   schema.NewStore(logger),
		state:   NewState(),
		encoder: encoder,
		logger:  logger.Named("lifecycle"),
	}
}

// Start launches the background build and returns immediately. Readiness is
// observable through Status.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.state.BeginAttempt()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
}

func (c *Coordinator) run(ctx context.Context) {
	if err := c.adapter.TestConnection(ctx); err != nil {
		c.logger.Error("connection test failed", zap.Error(err))
		c.state.MarkFailed(err)
		return
	}
	c.state.MarkRunning()

	opts := c.buildOptions(true)
	card, err := BuildCard(ctx, c.adapter, nil, opts, c.logger)
	if err != nil {
		c.logger.Error("fast-start build failed", zap.Error(err))
		c.state.MarkFailed(err)
		return
	}

	// A cached card with the same structure is already enriched; installing
	// it skips the sampling pass entirely.
	if cached := c.loadCached(c.cacheLookupHash(ctx, card)); cached != nil {
		c.install(cached)
		c.state.MarkReady(cached.TableCount())
		c.logger.Info("cached schema card installed",
			zap.Int("tables", cached.TableCount()))
		c.startDriftLoop(ctx)
		return
	}

	c.install(card)
	c.state.MarkReady(card.TableCount())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.enrich(ctx)
	}()
	c.startDriftLoop(ctx)
}

// cacheLookupHash returns the reflection hash a cached enriched card would
// carry. A fast-start build that hit the table cap hashed a truncated set, so
// the full structure is probed before consulting the cache.
func (c *Coordinator) cacheLookupHash(ctx context.Context, card *schema.Card) string {
	if c.cfg.CacheDir == "" {
		return card.ReflectionHash
	}
	if c.cfg.MaxTablesFastStart <= 0 || card.TableCount() < c.cfg.MaxTablesFastStart {
		return card.ReflectionHash
	}
	probe, err := BuildCard(ctx, c.adapter, nil, c.buildOptions(false), c.logger)
	if err != nil {
		c.logger.Warn("full-structure probe for cache lookup failed", zap.Error(err))
		return card.ReflectionHash
	}
	return probe.ReflectionHash
}

// enrich rebuilds the card with full scope and sampling, builds embeddings,
// and swaps atomically. Failure leaves the fast-start card serving.
func (c *Coordinator) enrich(ctx context.Context) {
	c.state.SetEnriching(true)
	defer c.state.SetEnriching(false)

	sampler := profile.NewSampler(c.adapter, c.cfg.SampleRows, c.cfg.SampleTimeout(), c.logger)
	card, err := BuildCard(ctx, c.adapter, sampler, c.buildOptions(false), c.logger)
	if err != nil {
		// Never regress readiness; the fast-start card keeps serving.
		c.logger.Warn("enrichment failed, keeping current card", zap.Error(err))
		return
	}

	engine := retrieval.NewEngine(card, c.logger)
	if c.encoder != nil {
		if err := engine.EnableEmbeddings(ctx, c.encoder, c.cfg.MaxColsForEmbeddings); err != nil {
			c.logger.Warn("embeddings disabled", zap.Error(err))
		} else {
			card.BuildMeta.EmbeddingsEnabled = true
		}
	}

	c.installWithRetriever(card, engine)
	c.state.UpdateTableCount(card.TableCount())
	c.saveCached(card)
	c.logger.Info("enriched schema card installed", zap.Int("tables", card.TableCount()))
}

// Stop joins background tasks within the grace window and goes STOPPED.
func (c *Coordinator) Stop(grace time.Duration) {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		c.logger.Warn("background tasks did not stop within grace window",
			zap.Duration("grace", grace))
	}
	c.state.MarkStopped()
	c.logger.Info("coordinator stopped")
}

// Guard returns the readiness error served to tools before READY.
func (c *Coordinator) Guard() error {
	if !c.state.Ready() {
		return fmt.Errorf("%w: phase %s", apperrors.ErrNotReady, c.state.Phase())
	}
	return nil
}

// Status snapshots the readiness state machine.
func (c *Coordinator) Status() models.InitStatus {
	return c.state.Snapshot()
}

// Card returns the installed schema card, or nil before the first build.
func (c *Coordinator) Card() *schema.Card {
	return c.store.Get()
}

// Retriever returns the retrieval engine for the installed card, rebuilding
// it when the card or retrieval config changed.
func (c *Coordinator) Retriever() (*retrieval.Engine, error) {
	card := c.store.Get()
	if card == nil {
		return nil, apperrors.ErrNoCard
	}
	key := c.retrieverCacheKey(card)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retriever != nil && c.retrieverKey == key {
		return c.retriever, nil
	}
	c.retriever = retrieval.NewEngine(card, c.logger)
	c.retrieverKey = key
	return c.retriever, nil
}

// startDriftLoop launches the periodic schema drift check when configured.
func (c *Coordinator) startDriftLoop(ctx context.Context) {
	interval := c.cfg.DriftCheckInterval()
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.driftLoop(ctx, interval)
	}()
}

func (c *Coordinator) driftLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.state.Snapshot().Enriching {
				continue
			}
			if _, err := c.CheckDrift(ctx); err != nil {
				c.logger.Warn("drift check failed", zap.Error(err))
			}
		}
	}
}

// CheckDrift re-reflects the full structure and rebuilds when the reflection
// hash moved. A fast-start card is skipped; the in-flight enrichment already
// supersedes it.
func (c *Coordinator) CheckDrift(ctx context.Context) (bool, error) {
	current := c.store.Get()
	if current == nil {
		return false, apperrors.ErrNoCard
	}
	if current.BuildMeta.FastStart {
		return false, nil
	}

	probe, err := BuildCard(ctx, c.adapter, nil, c.buildOptions(false), c.logger)
	if err != nil {
		return false, err
	}
	if probe.ReflectionHash == current.ReflectionHash {
		return false, nil
	}

	c.logger.Info("schema drift detected, rebuilding",
		zap.String("old_hash", current.ReflectionHash),
		zap.String("new_hash", probe.ReflectionHash))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.enrich(ctx)
	}()
	return true, nil
}

func (c *Coordinator) install(card *schema.Card) {
	c.store.Put(card)
	c.mu.Lock()
	c.retriever = nil
	c.retrieverKey = ""
	c.mu.Unlock()
}

func (c *Coordinator) installWithRetriever(card *schema.Card, engine *retrieval.Engine) {
	c.store.Put(card)
	c.mu.Lock()
	c.retriever = engine
	c.retrieverKey = c.retrieverCacheKey(card)
	c.mu.Unlock()
}

// retrieverCacheKey ties the cached engine to the card structure and the
// retrieval-relevant configuration.
func (c *Coordinator) retrieverCacheKey(card *schema.Card) string {
	return fmt.Sprintf("%s|%s|%d", card.ReflectionHash, c.cfg.EmbeddingModel,
		c.cfg.MaxColsForEmbeddings)
}

func (c *Coordinator) buildOptions(fastStart bool) BuildOptions {
	return BuildOptions{
		FastStart:      fastStart,
		MaxTables:      c.cfg.MaxTablesFastStart,
		IncludeSchemas: c.cfg.IncludeSchemas,
		ExcludeSchemas: c.cfg.ExcludeSchemas,
		Profiling: profile.Config{
			SampleRows:               c.cfg.SampleRows,
			ValueConstraintThreshold: c.cfg.ValueConstraintThreshold,
		},
		MinAreaSize:       c.cfg.MinAreaSize,
		MergeArchiveAreas: c.cfg.MergeArchiveAreas,
		Fingerprint:       schema.ConnectionFingerprint(c.cfg.DatabaseURL),
		Version:           c.cfg.Version,
	}
}

func (c *Coordinator) loadCached(reflectionHash string) *schema.Card {
	if c.cfg.CacheDir == "" {
		return nil
	}
	fingerprint := schema.ConnectionFingerprint(c.cfg.DatabaseURL)
	return c.store.LoadFromDir(c.cfg.CacheDir, fingerprint, reflectionHash)
}

func (c *Coordinator) saveCached(card *schema.Card) {
	if c.cfg.CacheDir == "" {
		return
	}
	if err := c.store.SaveToDir(c.cfg.CacheDir, card); err != nil {
		c.logger.Warn("card cache write failed", zap.Error(err))
	}
}
