package search

import (
	"time"
)

// SearchType selects the query strategy used for a search call.
type SearchType string

const (
	SearchTypeBasic          SearchType = "basic"
	SearchTypeAdvanced       SearchType = "advanced"
	SearchTypeFuzzy          SearchType = "fuzzy"
	SearchTypeExact          SearchType = "exact"
	SearchTypeSemantic       SearchType = "semantic"
	SearchTypeHybrid         SearchType = "hybrid"
	SearchTypeGraphTraversal SearchType = "graph_traversal"
)

// SortDirection is the ordering direction for an explicit sort.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort overrides the default relevance ordering.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Pagination bounds the result window. Limit is capped by the
// configured MaxResults.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DateRange filters on a timestamp column. From must not be after To.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// NumericRange filters on a numeric metadata field. Min must not
// exceed Max.
type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// SearchFilters narrows the matched set. All fields are optional;
// empty slices and nil pointers mean "no constraint".
type SearchFilters struct {
	NodeTypes      []string                `json:"node_types,omitempty"`
	Statuses       []string                `json:"statuses,omitempty"`
	Tags           []string                `json:"tags,omitempty"`
	Author         string                  `json:"author,omitempty"`
	Created        *DateRange              `json:"created,omitempty"`
	Updated        *DateRange              `json:"updated,omitempty"`
	ParentID       string                  `json:"parent_id,omitempty"`
	MetadataEquals map[string]string       `json:"metadata_equals,omitempty"`
	MetadataRanges map[string]NumericRange `json:"metadata_ranges,omitempty"`
	ExcludeIDs     []string                `json:"exclude_ids,omitempty"`
}

// SearchQuery is one immutable search request. Construct one per call.
type SearchQuery struct {
	Text               string         `json:"text"`
	Type               SearchType     `json:"type"`
	Filters            *SearchFilters `json:"filters,omitempty"`
	Pagination         Pagination     `json:"pagination"`
	Sort               *Sort          `json:"sort,omitempty"`
	IncludeFacets      bool           `json:"include_facets"`
	IncludeSuggestions bool           `json:"include_suggestions"`
	IncludeHighlights  bool           `json:"include_highlights"`

	// FacetFields requests facet counts over additional metadata keys
	// beyond the fixed dimensions.
	FacetFields []string `json:"facet_fields,omitempty"`

	// StartNodeID and MaxDepth apply to graph_traversal searches only.
	StartNodeID string `json:"start_node_id,omitempty"`
	MaxDepth    int    `json:"max_depth,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// SearchResult is one matched node projection.
type SearchResult struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Excerpt       string            `json:"excerpt,omitempty"`
	NodeType      string            `json:"node_type"`
	Status        string            `json:"status,omitempty"`
	Author        string            `json:"author,omitempty"`
	Score         float64           `json:"score"`
	MatchedFields []string          `json:"matched_fields,omitempty"`
	Highlights    []string          `json:"highlights,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	// Depth is the traversal distance for graph searches, zero otherwise.
	Depth int `json:"depth,omitempty"`
}

// SearchResults is the response envelope for one search call.
type SearchResults struct {
	Results     []SearchResult `json:"results"`
	Total       int            `json:"total"`
	Took        int64          `json:"took"`
	Facets      *SearchFacets  `json:"facets,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	HasMore     bool           `json:"has_more"`

	// AppliedType is the strategy that actually executed. It differs
	// from the requested type when semantic/hybrid fell back to basic.
	AppliedType     SearchType `json:"applied_type"`
	FallbackApplied bool       `json:"fallback_applied,omitempty"`
}

// FacetValue is one value/count pair within a facet dimension.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DateFacet is the count of matches updated within a rolling window.
type DateFacet struct {
	Window string `json:"window"`
	Days   int    `json:"days"`
	Count  int    `json:"count"`
}

// SearchFacets carries per-dimension counts, each sorted by count
// descending. Counts exclude the query's own filter on that dimension.
type SearchFacets struct {
	NodeTypes []FacetValue            `json:"node_types,omitempty"`
	Tags      []FacetValue            `json:"tags,omitempty"`
	Authors   []FacetValue            `json:"authors,omitempty"`
	Statuses  []FacetValue            `json:"statuses,omitempty"`
	Metadata  map[string][]FacetValue `json:"metadata,omitempty"`
	Dates     []DateFacet             `json:"dates,omitempty"`
}

// SimilarityType tags which signal produced a similarity candidate.
type SimilarityType string

const (
	SimilarityContent       SimilarityType = "content"
	SimilarityTags          SimilarityType = "tags"
	SimilarityRelationships SimilarityType = "relationships"
	SimilaritySemantic      SimilarityType = "semantic"
)

// SimilarNode is one "find similar" candidate with a score in [0,100].
type SimilarNode struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	NodeType       string         `json:"node_type"`
	Score          float64        `json:"score"`
	SimilarityType SimilarityType `json:"similarity_type"`
	Reasons        []string       `json:"reasons,omitempty"`
}

// AnalyticsEvent is one recorded search. Append-only once created.
type AnalyticsEvent struct {
	ID          string         `json:"id"`
	Query       string         `json:"query"`
	SearchType  SearchType     `json:"search_type"`
	ResultCount int            `json:"result_count"`
	Took        int64          `json:"took"`
	Filters     *SearchFilters `json:"filters,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// QueryCount is one entry of the top-queries leaderboard.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// DailyCount is one point of the per-day search volume series.
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// SearchAnalytics aggregates search activity over a date range.
type SearchAnalytics struct {
	TotalSearches  int          `json:"total_searches"`
	AvgTookMs      float64      `json:"avg_took_ms"`
	TopQueries     []QueryCount `json:"top_queries"`
	Daily          []DailyCount `json:"daily"`
	ZeroResultRate float64      `json:"zero_result_rate"`
}

// Trend classifies the direction of a trending query.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// TrendingSearch compares a query's volume between two adjacent
// windows of equal length.
type TrendingSearch struct {
	Query         string  `json:"query"`
	CurrentCount  int     `json:"current_count"`
	PreviousCount int     `json:"previous_count"`
	ChangePct     float64 `json:"change_pct"`
	Trend         Trend   `json:"trend"`
}

// IndexStatus reports corpus indexing coverage.
type IndexStatus struct {
	TotalDocuments   int        `json:"total_documents"`
	IndexedDocuments int        `json:"indexed_documents"`
	PendingDocuments int        `json:"pending_documents"`
	LastIndexedAt    *time.Time `json:"last_indexed_at,omitempty"`
	Health           float64    `json:"health"`
}
