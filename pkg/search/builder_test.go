package search

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
)

func TestBuild_Basic(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.Build(&SearchQuery{Text: "cache invalidation", Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)

	assert.Contains(t, sql, "plainto_tsquery('english', $1)")
	assert.Contains(t, sql, "ts_rank")
	assert.Contains(t, sql, "ORDER BY rank DESC")
	assert.Contains(t, sql, "LIMIT $2 OFFSET $3")
	assert.Equal(t, []interface{}{"cache invalidation", 10, 0}, args)
}

func TestBuild_SemanticAndHybridMapToBasic(t *testing.T) {
	b := NewBuilder(testSettings())

	basicSQL, basicArgs, err := b.Build(&SearchQuery{Text: "query", Type: SearchTypeBasic, Pagination: Pagination{Limit: 5}})
	require.NoError(t, err)

	for _, st := range []SearchType{SearchTypeSemantic, SearchTypeHybrid} {
		sql, args, err := b.Build(&SearchQuery{Text: "query", Type: st, Pagination: Pagination{Limit: 5}})
		require.NoError(t, err)
		assert.Equal(t, basicSQL, sql)
		assert.Equal(t, basicArgs, args)
	}
}

func TestBuild_Advanced(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.Build(&SearchQuery{
		Text:       `cache AND (redis OR memcached) NOT "old version"`,
		Type:       SearchTypeAdvanced,
		Pagination: Pagination{Limit: 10},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "to_tsquery('english', $1)")
	require.NotEmpty(t, args)
	tsquery, ok := args[0].(string)
	require.True(t, ok)
	assert.Contains(t, tsquery, "cache & ( redis | memcached )")
	assert.Contains(t, tsquery, "! (old <-> version)")
}

func TestBuild_Fuzzy(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.Build(&SearchQuery{Text: "postgers", Type: SearchTypeFuzzy, Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)

	assert.Contains(t, sql, "similarity(n.title, $1)")
	assert.Contains(t, sql, "similarity(n.content, $2)")
	assert.Contains(t, args, 0.3)
}

func TestBuild_FuzzyDisabled(t *testing.T) {
	cfg := config.DefaultSearchConfig()
	cfg.EnableFuzzy = false
	b := NewBuilder(config.NewSettings(cfg))

	_, _, err := b.Build(&SearchQuery{Text: "postgers", Type: SearchTypeFuzzy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy search is disabled")
}

func TestBuild_Exact(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.Build(&SearchQuery{Text: "exact phrase", Type: SearchTypeExact, Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)

	assert.Contains(t, sql, "ILIKE")
	assert.Contains(t, sql, "CASE WHEN n.title ILIKE $1 THEN 2.0 ELSE 1.0 END")
	assert.Contains(t, args, "%exact phrase%")
}

func TestBuild_Graph(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.Build(&SearchQuery{
		Text:        "linked",
		Type:        SearchTypeGraphTraversal,
		StartNodeID: "node-1",
		MaxDepth:    4,
		Pagination:  Pagination{Limit: 10},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "WITH RECURSIVE walk")
	assert.Contains(t, sql, "MIN(depth)")
	assert.Contains(t, sql, "ORDER BY reach.depth ASC, rank DESC")
	assert.Equal(t, "node-1", args[0])
	assert.Equal(t, 4, args[1])
}

func TestBuild_GraphRequiresStartNode(t *testing.T) {
	b := NewBuilder(testSettings())

	_, _, err := b.Build(&SearchQuery{Text: "x", Type: SearchTypeGraphTraversal})
	require.Error(t, err)
}

func TestBuild_Filters(t *testing.T) {
	b := NewBuilder(testSettings())

	minVal := 1.0
	sql, args, err := b.Build(&SearchQuery{
		Text: "query",
		Filters: &SearchFilters{
			NodeTypes:      []string{"article", "note"},
			Statuses:       []string{"published"},
			Tags:           []string{"go"},
			Author:         "kim",
			ParentID:       "p1",
			MetadataEquals: map[string]string{"team": "infra"},
			MetadataRanges: map[string]NumericRange{"priority": {Min: &minVal}},
			ExcludeIDs:     []string{"x1"},
		},
		Pagination: Pagination{Limit: 10},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "n.node_type = ANY(")
	assert.Contains(t, sql, "n.status = ANY(")
	assert.Contains(t, sql, "n.tags && ")
	assert.Contains(t, sql, "n.author = ")
	assert.Contains(t, sql, "n.parent_id = ")
	assert.Contains(t, sql, "n.metadata->>")
	assert.Contains(t, sql, "::numeric >= ")
	assert.Contains(t, sql, "NOT (n.id = ANY(")

	// Metadata key and value are both bound, never interpolated.
	assert.NotContains(t, sql, "team")
	assert.NotContains(t, sql, "infra")
	assert.Contains(t, args, "team")
	assert.Contains(t, args, "infra")
}

func TestBuild_InjectionSafety(t *testing.T) {
	b := NewBuilder(testSettings())

	hostile := "'; DROP TABLE knowledge_nodes; --"
	sql, args, err := b.Build(&SearchQuery{
		Text: hostile,
		Filters: &SearchFilters{
			Author:         hostile,
			MetadataEquals: map[string]string{hostile: hostile},
		},
		Pagination: Pagination{Limit: 10},
	})
	require.NoError(t, err)

	assert.NotContains(t, sql, "DROP TABLE")
	found := 0
	for _, a := range args {
		if s, ok := a.(string); ok && strings.Contains(s, "DROP TABLE") {
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 3)
}

func TestBuild_ExplicitSort(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, _, err := b.Build(&SearchQuery{
		Text:       "query",
		Sort:       &Sort{Field: "created_at", Direction: SortAsc},
		Pagination: Pagination{Limit: 10},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY n.created_at ASC")
}

func TestBuild_HighlightExpr(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, _, err := b.Build(&SearchQuery{Text: "query", IncludeHighlights: true, Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)
	assert.Contains(t, sql, "ts_headline")
	assert.Contains(t, sql, "MaxFragments=3")

	sql, _, err = b.Build(&SearchQuery{Text: "query", Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)
	assert.Contains(t, sql, "left(n.content, 240)")
}

func TestBuildCount_SharesPredicates(t *testing.T) {
	b := NewBuilder(testSettings())

	q := &SearchQuery{
		Text:       "query",
		Filters:    &SearchFilters{NodeTypes: []string{"article"}},
		Pagination: Pagination{Limit: 10},
	}

	countSQL, countArgs, err := b.BuildCount(q)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(countSQL, "SELECT COUNT(*)"))
	assert.Contains(t, countSQL, "plainto_tsquery")
	assert.Contains(t, countSQL, "n.node_type = ANY(")
	assert.NotContains(t, countSQL, "LIMIT")
	assert.Len(t, countArgs, 2)
}

func TestBuildFacet_SelfExclusion(t *testing.T) {
	b := NewBuilder(testSettings())

	q := &SearchQuery{
		Text: "query",
		Filters: &SearchFilters{
			NodeTypes: []string{"article"},
			Statuses:  []string{"published"},
		},
	}

	sql, _, err := b.BuildFacet(q, DimNodeType)
	require.NoError(t, err)
	assert.NotContains(t, sql, "n.node_type = ANY(")
	assert.Contains(t, sql, "n.status = ANY(")
	assert.Contains(t, sql, "GROUP BY n.node_type")

	sql, _, err = b.BuildFacet(q, DimStatus)
	require.NoError(t, err)
	assert.Contains(t, sql, "n.node_type = ANY(")
	assert.NotContains(t, sql, "n.status = ANY(")
}

func TestBuildFacet_Tags(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, _, err := b.BuildFacet(&SearchQuery{Text: "query"}, DimTags)
	require.NoError(t, err)
	assert.Contains(t, sql, "CROSS JOIN LATERAL unnest(n.tags)")
	assert.Contains(t, sql, fmt.Sprintf("LIMIT %d", facetLimit))
}

func TestBuildFacet_UnknownDimension(t *testing.T) {
	b := NewBuilder(testSettings())

	_, _, err := b.BuildFacet(&SearchQuery{Text: "query"}, "rating")
	require.Error(t, err)
}

func TestBuildMetadataFacet_BindsField(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.BuildMetadataFacet(&SearchQuery{Text: "query"}, "team'; --")
	require.NoError(t, err)

	assert.NotContains(t, sql, "team'; --")
	assert.Contains(t, args, "team'; --")
	assert.Contains(t, sql, "n.metadata ? $")
}

func TestBuildDateFacet(t *testing.T) {
	b := NewBuilder(testSettings())

	sql, args, err := b.BuildDateFacet(&SearchQuery{Text: "query"}, 30)
	require.NoError(t, err)
	assert.Contains(t, sql, "make_interval(days => $")
	assert.Contains(t, args, 30)
}

func TestTranslateBooleanQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cache redis", "cache & redis"},
		{"cache AND redis", "cache & redis"},
		{"cache OR redis", "cache | redis"},
		{"NOT redis", "! redis"},
		{"cache AND NOT redis", "cache & ! redis"},
		{`"connection pool"`, "(connection <-> pool)"},
		{"post*", "post:*"},
		{"cache AND (redis OR memcached)", "cache & ( redis | memcached )"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, translateBooleanQuery(tc.in))
		})
	}
}

func TestSanitizeTsTerm(t *testing.T) {
	assert.Equal(t, "cache", sanitizeTsTerm("ca&|!:*che"))
	assert.Equal(t, "it''s", sanitizeTsTerm("it's"))
	assert.Equal(t, "", sanitizeTsTerm("&|!"))
}
