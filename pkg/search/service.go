package search

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/PolycarpusTack/alexandria-search/pkg/async"
	"github.com/PolycarpusTack/alexandria-search/pkg/config"
	"github.com/PolycarpusTack/alexandria-search/pkg/events"
	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

var tracer = otel.Tracer("github.com/PolycarpusTack/alexandria-search/pkg/search")

// ResultCache is the subset of the cache layer the service needs.
// Values are the JSON-encoded response envelope.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Service orchestrates one search call end to end: validation, query
// execution, facets, suggestions, caching, and analytics. Facets and
// suggestions are best-effort; only the primary query and its count are
// allowed to fail the call.
type Service struct {
	db        *sql.DB
	settings  *config.Settings
	validator *Validator
	builder   *Builder
	facets    *FacetGenerator
	suggester *Suggester
	analytics *Analytics
	similar   *SimilarityFinder
	indexer   *Indexer
	cache     ResultCache
	bus       *events.Bus
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// ServiceOptions wires the service's collaborators. DB, Settings, and
// Logger are required; Cache, Bus, and Metrics are optional.
type ServiceOptions struct {
	DB       *sql.DB
	ReadDB   *sql.DB
	Settings *config.Settings
	Cache    ResultCache
	Bus      *events.Bus
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// NewService assembles the search service and its components.
func NewService(opts ServiceOptions) *Service {
	readDB := opts.ReadDB
	if readDB == nil {
		readDB = opts.DB
	}

	builder := NewBuilder(opts.Settings)
	return &Service{
		db:        readDB,
		settings:  opts.Settings,
		validator: NewValidator(opts.Settings),
		builder:   builder,
		facets:    NewFacetGenerator(readDB, builder, opts.Settings, opts.Logger, opts.Metrics),
		suggester: NewSuggester(readDB, opts.Settings, time.Minute),
		analytics: NewAnalytics(opts.DB, opts.Logger),
		similar:   NewSimilarityFinder(readDB, opts.Logger),
		indexer:   NewIndexer(opts.DB, opts.Settings, opts.Logger, opts.Metrics),
		cache:     opts.Cache,
		bus:       opts.Bus,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Analytics exposes the analytics component for handlers and jobs.
func (s *Service) Analytics() *Analytics { return s.analytics }

// Indexer exposes the index maintenance component.
func (s *Service) Indexer() *Indexer { return s.indexer }

// Similar exposes the similarity finder.
func (s *Service) Similar() *SimilarityFinder { return s.similar }

// Validator exposes request validation for the dry-run endpoint.
func (s *Service) Validator() *Validator { return s.validator }

// UpdateSettings applies a new tuning block. Invalid settings are
// rejected and the previous block stays in effect.
func (s *Service) UpdateSettings(cfg config.SearchConfig) error {
	if err := s.settings.Update(cfg); err != nil {
		return err
	}
	s.logger.Info("search settings updated")
	return nil
}

// Settings returns the current tuning snapshot.
func (s *Service) Settings() config.SearchConfig {
	return s.settings.Snapshot()
}

// Search executes one search request. Validation failures return a
// *ValidationError before any store I/O. The whole call runs under the
// configured deadline; facet and suggestion work gets a shorter
// best-effort budget inside it.
func (s *Service) Search(ctx context.Context, q *SearchQuery) (*SearchResults, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}

	cfg := s.settings.Snapshot()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.type", string(q.Type)),
		attribute.Int("search.limit", q.Pagination.Limit),
	)

	if res := s.validator.Validate(q); !res.Valid {
		span.SetStatus(codes.Error, "validation failed")
		return nil, &ValidationError{Errors: res.Errors}
	}

	applied, fellBack := s.resolveType(ctx, q.Type, cfg)
	if q.Pagination.Limit == 0 {
		q.Pagination.Limit = 10
	}

	if s.validator.IsExpensiveQuery(q) {
		s.logger.WithFields(map[string]interface{}{
			"type":  string(applied),
			"limit": q.Pagination.Limit,
		}).Warn("executing expensive search query")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout)
	defer cancel()

	if cached, ok := s.cachedResults(ctx, q, applied); ok {
		cached.Took = time.Since(start).Milliseconds()
		// A cached response is still a search: it counts toward
		// analytics and emits the performed event.
		s.recordEvent(q, applied, cached)
		return cached, nil
	}

	exec := *q
	exec.Type = applied

	results, err := s.executeSearch(ctx, &exec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		s.recordMetrics(applied, start, -1, err)
		return nil, err
	}

	results.AppliedType = applied
	results.FallbackApplied = fellBack
	s.enrich(ctx, &exec, results, cfg)
	results.Took = time.Since(start).Milliseconds()

	s.recordMetrics(applied, start, len(results.Results), nil)
	s.recordEvent(q, applied, results)
	s.storeResults(ctx, q, applied, results)

	span.SetAttributes(attribute.Int("search.results", len(results.Results)))
	return results, nil
}

// resolveType downgrades semantic and hybrid requests to basic until an
// embedding backend exists. The downgrade is always reported to the
// caller via FallbackApplied, never silent.
func (s *Service) resolveType(ctx context.Context, requested SearchType, cfg config.SearchConfig) (SearchType, bool) {
	switch requested {
	case SearchTypeSemantic, SearchTypeHybrid:
		if !cfg.EnableSemantic {
			s.logger.WithField("requested", string(requested)).Info("semantic search unavailable, falling back to basic")
			if s.metrics != nil {
				s.metrics.FallbacksTotal.WithLabelValues(string(requested), string(SearchTypeBasic)).Inc()
			}
			return SearchTypeBasic, true
		}
		// Semantic execution still routes through the text engine.
		return SearchTypeBasic, true
	case "":
		return SearchTypeBasic, false
	default:
		return requested, false
	}
}

// executeSearch runs the primary query and the matching count in
// parallel.
func (s *Service) executeSearch(ctx context.Context, q *SearchQuery) (*SearchResults, error) {
	query, args, err := s.builder.Build(q)
	if err != nil {
		return nil, &SearchExecutionError{Op: "build", Err: err}
	}
	countQuery, countArgs, err := s.builder.BuildCount(q)
	if err != nil {
		return nil, &SearchExecutionError{Op: "build count", Err: err}
	}

	results := &SearchResults{}
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return &SearchExecutionError{Op: "query", Err: err}
		}
		defer rows.Close()

		scanned, err := scanResults(rows, q)
		if err != nil {
			return &SearchExecutionError{Op: "scan", Err: err}
		}
		results.Results = scanned
		return nil
	})

	grp.Go(func() error {
		if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&results.Total); err != nil {
			return &SearchExecutionError{Op: "count", Err: err}
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	results.HasMore = q.Pagination.Offset+len(results.Results) < results.Total
	return results, nil
}

// enrich attaches facets and suggestions under the best-effort budget.
// A budget overrun or component failure leaves the response without
// that enrichment.
func (s *Service) enrich(ctx context.Context, q *SearchQuery, results *SearchResults, cfg config.SearchConfig) {
	if !q.IncludeFacets && !q.IncludeSuggestions {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.FacetTimeout)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)

	if q.IncludeFacets {
		grp.Go(func() error {
			results.Facets = s.facets.Generate(ctx, q)
			return nil
		})
	}
	if q.IncludeSuggestions {
		grp.Go(func() error {
			suggestions, err := s.suggester.Suggest(ctx, q.Text)
			if err != nil {
				s.logger.WithError(err).Warn("suggestion lookup failed")
				return nil
			}
			results.Suggestions = suggestions
			return nil
		})
	}
	_ = grp.Wait()
}

// recordEvent writes the analytics event and publishes the search
// notification, both fire-and-forget.
func (s *Service) recordEvent(q *SearchQuery, applied SearchType, results *SearchResults) {
	event := &AnalyticsEvent{
		Query:       q.Text,
		SearchType:  applied,
		ResultCount: results.Total,
		Took:        results.Took,
		Filters:     q.Filters,
		SessionID:   q.SessionID,
		UserID:      q.UserID,
	}

	async.SafeGo(context.Background(), 5*time.Second, "search analytics", func(ctx context.Context) error {
		return s.analytics.RecordSearchEvent(ctx, event)
	})

	if s.bus != nil {
		s.bus.Publish(events.TypeSearchPerformed, map[string]interface{}{
			"query":        q.Text,
			"type":         string(applied),
			"result_count": results.Total,
			"fallback":     results.FallbackApplied,
		})
	}
}

func (s *Service) recordMetrics(applied SearchType, start time.Time, resultCount int, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.SearchesTotal.WithLabelValues(string(applied), status).Inc()
	s.metrics.SearchDuration.WithLabelValues(string(applied)).Observe(time.Since(start).Seconds())
	if err == nil {
		s.metrics.SearchResultCount.WithLabelValues(string(applied)).Observe(float64(resultCount))
		if resultCount == 0 {
			s.metrics.ZeroResultSearches.Inc()
		}
	}
}

// cacheKey derives a stable key from everything that affects the
// response.
func cacheKey(q *SearchQuery, applied SearchType) string {
	payload := struct {
		Query   *SearchQuery `json:"query"`
		Applied SearchType   `json:"applied"`
	}{q, applied}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Service) cachedResults(ctx context.Context, q *SearchQuery, applied SearchType) (*SearchResults, bool) {
	if s.cache == nil {
		return nil, false
	}
	key := cacheKey(q, applied)
	if key == "" {
		return nil, false
	}

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Debug("result cache lookup failed")
		return nil, false
	}
	if !found {
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.WithLabelValues("results").Inc()
		}
		return nil, false
	}

	var results SearchResults
	if err := json.Unmarshal(data, &results); err != nil {
		s.logger.WithError(err).Warn("discarding corrupt cached search results")
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues("results").Inc()
	}
	return &results, true
}

func (s *Service) storeResults(ctx context.Context, q *SearchQuery, applied SearchType, results *SearchResults) {
	if s.cache == nil {
		return
	}
	key := cacheKey(q, applied)
	if key == "" {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		s.logger.WithError(err).Debug("result cache store failed")
	}
}

// FindSimilar returns nodes similar to the given node.
func (s *Service) FindSimilar(ctx context.Context, nodeID string, limit int) ([]SimilarNode, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	ctx, span := tracer.Start(ctx, "search.FindSimilar")
	defer span.End()
	span.SetAttributes(attribute.String("node.id", nodeID))

	nodes, err := s.similar.FindSimilar(ctx, nodeID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "similarity search failed")
		return nil, err
	}
	return nodes, nil
}

// Suggest returns query completions for a prefix.
func (s *Service) Suggest(ctx context.Context, prefix string) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.suggester.Suggest(ctx, prefix)
}
