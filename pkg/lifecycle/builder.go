package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/schemalens/schemalens-engine/pkg/adapters/datasource"
	"github.com/schemalens/schemalens-engine/pkg/graph"
	"github.com/schemalens/schemalens-engine/pkg/profile"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

// BuildOptions configure one card build pass.
type BuildOptions struct {
	// FastStart caps reflection and skips row sampling so the first card
	// lands quickly.
	FastStart bool
	MaxTables int

	IncludeSchemas []string
	ExcludeSchemas []string

	Profiling         profile.Config
	MinAreaSize       int
	MergeArchiveAreas bool

	Fingerprint string
	Version     string
}

// BuildCard runs the full derivation pipeline: reflect, sample (unless fast
// start), profile, graph, subject areas, archetypes. An empty database yields
// a valid empty card, not an error.
func BuildCard(ctx context.Context, adapter datasource.Adapter, sampler *profile.Sampler,
	opts BuildOptions, logger *zap.Logger) (*schema.Card, error) {

	reflectOpts := datasource.ReflectOptions{
		IncludeSchemas: opts.IncludeSchemas,
		ExcludeSchemas: opts.ExcludeSchemas,
	}
	if opts.FastStart {
		reflectOpts.MaxTables = opts.MaxTables
	}

	started := time.Now()
	raw, err := adapter.Reflect(ctx, reflectOpts)
	if err != nil {
		return nil, fmt.Errorf("reflect schema: %w", err)
	}
	for _, warning := range raw.Warnings {
		logger.Warn("table skipped during reflection", zap.String("detail", warning))
	}

	var samples map[string]*datasource.QueryResult
	if !opts.FastStart && sampler != nil {
		samples = sampler.SampleAll(ctx, raw.Tables)
	}

	tables := make(map[string]*schema.TableProfile, len(raw.Tables))
	for _, rawTbl := range raw.Tables {
		key := schema.TableKey(rawTbl.Schema, rawTbl.Name)
		tables[key] = profile.ProfileTable(rawTbl, samples[key], opts.Profiling)
	}
	pruneDanglingFKs(tables, logger)

	g := graph.Build(tables)
	centrality := g.Centrality()
	communities := g.MergeSmall(g.Communities(), opts.MinAreaSize)
	if opts.MergeArchiveAreas {
		communities = graph.CoalesceArchives(communities, tables)
	}
	areas := graph.BuildSubjectAreas(communities, tables, centrality)
	graph.Classify(tables, centrality)

	card := &schema.Card{
		FormatVersion: schema.CardFormatVersion,
		Dialect:       adapter.Dialect(),
		Fingerprint:   opts.Fingerprint,
		Schemas:       sortedSchemas(raw.Schemas),
		SubjectAreas:  areas,
		Tables:        tables,
		Edges:         cardEdges(tables),
		BuiltAt:       time.Now().UTC(),
		ReflectionHash: schema.ReflectionHash(tables, schema.ProfilingParams{
			SampleRows:               opts.Profiling.SampleRows,
			ValueConstraintThreshold: opts.Profiling.ValueConstraintThreshold,
			MinAreaSize:              opts.MinAreaSize,
		}),
		BuildMeta: schema.BuildMeta{
			Version:           opts.Version,
			FastStart:         opts.FastStart,
			PartialReflection: len(raw.Warnings) > 0,
		},
	}

	if err := card.Validate(); err != nil {
		return nil, fmt.Errorf("card validation: %w", err)
	}

	logger.Info("schema card built",
		zap.Int("tables", len(tables)),
		zap.Int("subject_areas", len(areas)),
		zap.Bool("fast_start", opts.FastStart),
		zap.Duration("elapsed", time.Since(started)))
	return card, nil
}

// pruneDanglingFKs drops FK edges whose target fell outside the reflected
// scope, which happens under fast-start caps and partial reflection. The
// card invariant requires every edge to resolve.
func pruneDanglingFKs(tables map[string]*schema.TableProfile, logger *zap.Logger) {
	for key, tbl := range tables {
		kept := tbl.ForeignKeys[:0]
		for _, fk := range tbl.ForeignKeys {
			target, ok := tables[fk.RemoteTableKey]
			if ok && target.Column(fk.RemoteColumn) != nil {
				kept = append(kept, fk)
				continue
			}
			logger.Debug("dropping unresolvable fk",
				zap.String("table", key),
				zap.String("target", fk.RemoteTableKey))
			if col := tbl.Column(fk.LocalColumn); col != nil {
				col.IsForeignKey = false
				col.FKTargetTable = ""
				col.FKTargetColumn = ""
			}
		}
		tbl.ForeignKeys = kept
	}
}

func cardEdges(tables map[string]*schema.TableProfile) []schema.Edge {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var edges []schema.Edge
	for _, key := range keys {
		for _, fk := range tables[key].ForeignKeys {
			edges = append(edges, schema.Edge{
				SourceTable:  key,
				SourceColumn: fk.LocalColumn,
				TargetTable:  fk.RemoteTableKey,
				TargetColumn: fk.RemoteColumn,
			})
		}
	}
	return edges
}

func sortedSchemas(schemas []string) []string {
	out := append([]string(nil), schemas...)
	sort.Strings(out)
	return out
}
