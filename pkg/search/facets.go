package search

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// dateWindows is the fixed ladder of rolling windows for date facets.
var dateWindows = []struct {
	Label string
	Days  int
}{
	{"last_day", 1},
	{"last_week", 7},
	{"last_month", 30},
	{"last_quarter", 90},
	{"last_year", 365},
}

// FacetGenerator computes per-dimension aggregate counts scoped to the
// main query's matched set. Facets are an enhancement: every failure
// path degrades to fewer (or no) facets rather than a failed search.
type FacetGenerator struct {
	db       *sql.DB
	builder  *Builder
	settings *config.Settings
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewFacetGenerator creates a facet generator sharing the service's
// builder so facet queries provably use the main query's predicates.
func NewFacetGenerator(db *sql.DB, builder *Builder, settings *config.Settings, logger *observability.Logger, metrics *observability.Metrics) *FacetGenerator {
	return &FacetGenerator{db: db, builder: builder, settings: settings, logger: logger, metrics: metrics}
}

// Generate runs all facet dimension queries concurrently, bounded by
// the configured fan-out cap. A failing dimension is logged and
// skipped; Generate itself never returns an error alongside facets.
func (g *FacetGenerator) Generate(ctx context.Context, q *SearchQuery) *SearchFacets {
	cfg := g.settings.Snapshot()

	facets := &SearchFacets{}
	var mu sync.Mutex

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.FacetConcurrency)

	for _, dim := range []string{DimNodeType, DimTags, DimAuthor, DimStatus} {
		dim := dim
		grp.Go(func() error {
			values, err := g.dimensionFacet(ctx, q, dim)
			if err != nil {
				g.logger.WithError(err).WithField("dimension", dim).Warn("facet dimension failed")
				g.recordFailure(dim)
				return nil
			}
			mu.Lock()
			switch dim {
			case DimNodeType:
				facets.NodeTypes = values
			case DimTags:
				facets.Tags = values
			case DimAuthor:
				facets.Authors = values
			case DimStatus:
				facets.Statuses = values
			}
			mu.Unlock()
			return nil
		})
	}

	for _, field := range q.FacetFields {
		field := field
		grp.Go(func() error {
			values, err := g.metadataFacet(ctx, q, field)
			if err != nil {
				g.logger.WithError(err).WithField("field", field).Warn("metadata facet failed")
				g.recordFailure("metadata")
				return nil
			}
			if len(values) == 0 {
				return nil
			}
			mu.Lock()
			if facets.Metadata == nil {
				facets.Metadata = make(map[string][]FacetValue)
			}
			facets.Metadata[field] = values
			mu.Unlock()
			return nil
		})
	}

	for _, window := range dateWindows {
		window := window
		grp.Go(func() error {
			count, err := g.dateWindowCount(ctx, q, window.Days)
			if err != nil {
				g.logger.WithError(err).WithField("window", window.Label).Warn("date facet failed")
				g.recordFailure("dates")
				return nil
			}
			if count == 0 {
				return nil
			}
			mu.Lock()
			facets.Dates = append(facets.Dates, DateFacet{Window: window.Label, Days: window.Days, Count: count})
			mu.Unlock()
			return nil
		})
	}

	// Goroutines swallow their own errors, so Wait only reflects
	// context cancellation.
	_ = grp.Wait()

	mu.Lock()
	defer mu.Unlock()
	sortDateFacets(facets.Dates)
	return facets
}

func (g *FacetGenerator) recordFailure(dimension string) {
	if g.metrics != nil {
		g.metrics.FacetFailuresTotal.WithLabelValues(dimension).Inc()
	}
}

func (g *FacetGenerator) dimensionFacet(ctx context.Context, q *SearchQuery, dimension string) ([]FacetValue, error) {
	query, args, err := g.builder.BuildFacet(q, dimension)
	if err != nil {
		return nil, err
	}
	return g.runFacetQuery(ctx, query, args)
}

func (g *FacetGenerator) metadataFacet(ctx context.Context, q *SearchQuery, field string) ([]FacetValue, error) {
	query, args, err := g.builder.BuildMetadataFacet(q, field)
	if err != nil {
		return nil, err
	}
	return g.runFacetQuery(ctx, query, args)
}

func (g *FacetGenerator) runFacetQuery(ctx context.Context, query string, args []interface{}) ([]FacetValue, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("facet query failed: %w", err)
	}
	defer rows.Close()

	var values []FacetValue
	for rows.Next() {
		var v FacetValue
		var value sql.NullString
		if err := rows.Scan(&value, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan facet row: %w", err)
		}
		if !value.Valid || value.String == "" {
			continue
		}
		v.Value = value.String
		values = append(values, v)
	}
	return values, rows.Err()
}

func (g *FacetGenerator) dateWindowCount(ctx context.Context, q *SearchQuery, days int) (int, error) {
	query, args, err := g.builder.BuildDateFacet(q, days)
	if err != nil {
		return 0, err
	}
	var count int
	if err := g.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("date facet query failed: %w", err)
	}
	return count, nil
}

func sortDateFacets(dates []DateFacet) {
	for i := 1; i < len(dates); i++ {
		for j := i; j > 0 && dates[j].Days < dates[j-1].Days; j-- {
			dates[j], dates[j-1] = dates[j-1], dates[j]
		}
	}
}

// FacetStats holds a per-dimension diversity score derived from the
// facet value distribution.
type FacetStats struct {
	Diversity map[string]float64 `json:"diversity"`
}

// CalculateFacetStats computes Shannon entropy per dimension: higher
// entropy means matches spread evenly over many values, zero means one
// value dominates completely.
func CalculateFacetStats(facets *SearchFacets) FacetStats {
	stats := FacetStats{Diversity: make(map[string]float64)}
	if facets == nil {
		return stats
	}

	stats.Diversity[DimNodeType] = shannonEntropy(facets.NodeTypes)
	stats.Diversity[DimTags] = shannonEntropy(facets.Tags)
	stats.Diversity[DimAuthor] = shannonEntropy(facets.Authors)
	stats.Diversity[DimStatus] = shannonEntropy(facets.Statuses)
	for field, values := range facets.Metadata {
		stats.Diversity["metadata:"+field] = shannonEntropy(values)
	}
	return stats
}

func shannonEntropy(values []FacetValue) float64 {
	total := 0
	for _, v := range values {
		total += v.Count
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, v := range values {
		if v.Count == 0 {
			continue
		}
		p := float64(v.Count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
