// Package search implements full-text search over the knowledge base.
//
// # Overview
//
// The package covers the whole search path: request validation, SQL
// query construction for every search strategy, concurrent facet
// generation, query suggestions, similarity lookups, search analytics,
// and index maintenance. PostgreSQL does the heavy lifting (tsvector
// ranking, trigram similarity, recursive link traversal); this package
// builds the queries and assembles the response.
//
// # Search Strategies
//
// Seven request types are accepted:
//
//   - basic: plainto_tsquery match ranked by ts_rank
//   - advanced: infix AND/OR/NOT mini-language translated to tsquery
//   - fuzzy: pg_trgm similarity against title and content
//   - exact: case-insensitive substring match, title ranked first
//   - graph_traversal: recursive walk over node links from a start node
//   - semantic, hybrid: accepted and downgraded to basic until an
//     embedding backend exists; the response flags the fallback
//
// # Orchestration
//
// Service.Search validates first and fails fast without touching the
// store. The primary query and its count run in parallel under the
// configured deadline. Facets and suggestions run under a shorter
// best-effort budget: when they miss it, the response ships without
// them. Analytics recording is fire-and-forget.
//
// Example:
//
//	svc := search.NewService(search.ServiceOptions{
//		DB:       cm.Primary(),
//		ReadDB:   cm.Replica(),
//		Settings: settings,
//		Logger:   logger,
//	})
//
//	results, err := svc.Search(ctx, &search.SearchQuery{
//		Text:          "connection pooling",
//		Type:          search.SearchTypeBasic,
//		IncludeFacets: true,
//		Pagination:    search.Pagination{Limit: 20},
//	})
//
// # Injection Safety
//
// Every user-supplied value, including metadata keys, is a bound
// parameter. The only strings interpolated into SQL are allow-listed
// column names and code-controlled integers.
//
// # Related Packages
//
//   - pkg/config: runtime-mutable tuning via Settings
//   - pkg/storage/postgres: connection management and result cache
//   - pkg/events: search.performed notifications
package search
