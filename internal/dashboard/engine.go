package dashboard

import (
	"context"
	"time"

	"orderlens/internal/aggregate"
	"orderlens/internal/cache"
	"orderlens/internal/core"
	"orderlens/internal/filter"
	"orderlens/internal/log"
	"orderlens/internal/storage"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Snapshot is every aggregate the dashboard renders for one combination of
// dataset, filter and view.
type Snapshot struct {
	DatasetID  string            `json:"dataset_id"`
	Generation uint64            `json:"generation"`
	Filter     filter.Spec       `json:"filter"`
	View       View              `json:"view"`
	Matched    int               `json:"matched_orders"`
	Summary    core.SummaryStats `json:"summary"`
	Series     core.TimeSeries   `json:"series"`
	Breakdown  *core.Breakdown   `json:"breakdown,omitempty"`
	Columns    []string          `json:"columns"`
	ComputedAt time.Time         `json:"computed_at"`
}

// Engine computes snapshots and caches them by input.
type Engine struct {
	cache     cache.Cache[Snapshot]
	flight    singleflight.Group
	breakdown aggregate.BreakdownOptions
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine wires an engine. c may be nil to disable caching.
func NewEngine(c cache.Cache[Snapshot], opts aggregate.BreakdownOptions, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Engine{
		cache:     c,
		breakdown: opts,
		logger:    logger.WithComponent(log.ComponentDashboard),
		now:       time.Now,
	}
}

// CacheKey identifies the inputs of a snapshot.
func CacheKey(ds storage.Dataset, spec filter.Spec, view View) string {
	return ds.ID.String() + "#" + spec.Fingerprint() + "#" + view.key()
}

// Purge forgets every cached snapshot.
func (e *Engine) Purge() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// Compute filters ds with spec and runs the three aggregations
// concurrently over the same read-only subset. Identical concurrent calls
// share one computation. The shared computation is detached from any single
// caller, so a caller that gives up only stops waiting; the others still get
// the result and it is cached for the next request.
func (e *Engine) Compute(ctx context.Context, ds storage.Dataset, spec filter.Spec, view View) (Snapshot, error) {
	if err := view.Validate(); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	key := CacheKey(ds, spec, view)
	if e.cache != nil {
		if snap, ok := e.cache.Get(key); ok {
			e.logger.DebugContext(ctx, "Snapshot served from cache", log.FieldDatasetID, snap.DatasetID, log.FieldCacheHit, true)
			return snap, nil
		}
	}

	detached := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (any, error) {
		snap, err := e.compute(detached, ds, spec, view)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Set(key, snap)
		}
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (e *Engine) compute(ctx context.Context, ds storage.Dataset, spec filter.Spec, view View) (Snapshot, error) {
	start := e.now()
	columns := aggregate.Columns(ds.Orders)
	if columns == nil {
		columns = []string{}
	}
	snap := Snapshot{
		DatasetID: ds.ID.String(),
		Filter:    spec,
		View:      view,
		Columns:   columns,
	}

	matched := filter.Apply(ds.Orders, spec)
	snap.Matched = len(matched)
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap.Summary = aggregate.Summarize(matched, spec.Metric)
		return gctx.Err()
	})
	g.Go(func() error {
		series, err := aggregate.BucketByTime(matched, spec.Metric, view.Granularity)
		if err != nil {
			return err
		}
		snap.Series = series
		return gctx.Err()
	})
	if view.BreakdownColumn != "" {
		g.Go(func() error {
			b := aggregate.BreakdownWith(matched, spec.Metric, view.BreakdownColumn, view.TopN, e.breakdown)
			snap.Breakdown = &b
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap.ComputedAt = e.now()
	e.logger.DebugContext(ctx, "Snapshot computed",
		log.FieldDatasetID, snap.DatasetID,
		log.FieldMetric, string(spec.Metric),
		log.FieldGranularity, string(view.Granularity),
		log.FieldKept, snap.Matched,
		log.FieldDuration, snap.ComputedAt.Sub(start).Milliseconds())
	return snap, nil
}
