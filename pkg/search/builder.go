package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
)

// Facet dimension names. These double as the omit keys for facet
// self-exclusion: a facet query drops the main query's filter on its
// own dimension so the full option space stays visible.
const (
	DimNodeType = "node_type"
	DimTags     = "tags"
	DimAuthor   = "author"
	DimStatus   = "status"
)

// facetLimit caps the number of values returned per facet dimension.
const facetLimit = 20

// sortColumns maps allow-listed sort fields to columns. Only these
// names are ever interpolated into query text; everything user-supplied
// is a bound parameter.
var sortColumns = map[string]string{
	"created_at": "n.created_at",
	"updated_at": "n.updated_at",
	"title":      "n.title",
}

// predicateBuilder assembles AND-ed predicates with positional $N
// parameters. Templates reference parameters as $%d and are renumbered
// as values are bound, so fragments compose in any order.
type predicateBuilder struct {
	conds []string
	args  []interface{}
	next  int
}

func newPredicateBuilder(start int) *predicateBuilder {
	return &predicateBuilder{next: start}
}

// add binds values and appends the renumbered condition.
func (pb *predicateBuilder) add(template string, values ...interface{}) {
	ph := make([]interface{}, len(values))
	for i, v := range values {
		pb.args = append(pb.args, v)
		ph[i] = pb.next
		pb.next++
	}
	pb.conds = append(pb.conds, fmt.Sprintf(template, ph...))
}

// bind adds a value without a condition and returns its $ index.
// Used for parameters referenced from the select list.
func (pb *predicateBuilder) bind(v interface{}) int {
	pb.args = append(pb.args, v)
	idx := pb.next
	pb.next++
	return idx
}

func (pb *predicateBuilder) where() string {
	if len(pb.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(pb.conds, " AND ")
}

// Builder translates validated search requests into parameterized SQL.
// It is stateless apart from the runtime settings snapshot taken per
// call.
type Builder struct {
	settings *config.Settings
}

// NewBuilder creates a query builder bound to the runtime settings.
func NewBuilder(settings *config.Settings) *Builder {
	return &Builder{settings: settings}
}

// effectiveType maps semantic and hybrid to basic. The orchestrator
// performs (and logs) this fallback before building; mapping here as
// well keeps the builder total over all declared types.
func effectiveType(t SearchType) SearchType {
	switch t {
	case SearchTypeSemantic, SearchTypeHybrid, "":
		return SearchTypeBasic
	default:
		return t
	}
}

// Build produces the primary query and its bound parameters for the
// request's search type.
func (b *Builder) Build(q *SearchQuery) (string, []interface{}, error) {
	cfg := b.settings.Snapshot()
	switch effectiveType(q.Type) {
	case SearchTypeBasic:
		return b.buildRanked(q, cfg, "plainto_tsquery('english', $%d)", Sanitize(q.Text))
	case SearchTypeAdvanced:
		return b.buildRanked(q, cfg, "to_tsquery('english', $%d)", translateBooleanQuery(Sanitize(q.Text)))
	case SearchTypeFuzzy:
		return b.buildFuzzy(q, cfg)
	case SearchTypeExact:
		return b.buildExact(q, cfg)
	case SearchTypeGraphTraversal:
		return b.buildGraph(q, cfg)
	default:
		return "", nil, fmt.Errorf("unsupported search type %q", q.Type)
	}
}

// BuildCount produces a count-only query sharing the primary query's
// filter predicates, used for total/hasMore computation.
func (b *Builder) BuildCount(q *SearchQuery) (string, []interface{}, error) {
	cfg := b.settings.Snapshot()
	pb := newPredicateBuilder(1)

	if effectiveType(q.Type) == SearchTypeGraphTraversal {
		head, err := graphCTE(pb, q)
		if err != nil {
			return "", nil, err
		}
		b.textPredicate(pb, q, cfg)
		b.appendFilters(pb, q.Filters, "")
		sql := head + `SELECT COUNT(*) FROM knowledge_nodes n JOIN reach ON n.id = reach.id` + pb.where()
		return sql, pb.args, nil
	}

	b.textPredicate(pb, q, cfg)
	b.appendFilters(pb, q.Filters, "")
	return "SELECT COUNT(*) FROM knowledge_nodes n" + pb.where(), pb.args, nil
}

// textPredicate appends the match condition for the request's search
// type. Facet and count queries reuse it so all of them observe the
// same matched set.
func (b *Builder) textPredicate(pb *predicateBuilder, q *SearchQuery, cfg config.SearchConfig) {
	text := Sanitize(q.Text)
	switch effectiveType(q.Type) {
	case SearchTypeAdvanced:
		pb.add("n.search_vector @@ to_tsquery('english', $%d)", translateBooleanQuery(text))
	case SearchTypeFuzzy:
		pb.add("GREATEST(similarity(n.title, $%d), similarity(n.content, $%d)) >= $%d",
			text, text, cfg.FuzzyThreshold)
	case SearchTypeExact:
		pat := "%" + text + "%"
		pb.add("(n.title ILIKE $%d OR n.content ILIKE $%d)", pat, pat)
	default:
		pb.add("n.search_vector @@ plainto_tsquery('english', $%d)", text)
	}
}

// buildRanked covers basic and advanced: a tsquery match plus a
// ts_rank expression, recency as tiebreaker.
func (b *Builder) buildRanked(q *SearchQuery, cfg config.SearchConfig, tsqueryExpr, boundText string) (string, []interface{}, error) {
	pb := newPredicateBuilder(1)

	rankIdx := pb.bind(boundText)
	tsquery := fmt.Sprintf(tsqueryExpr, rankIdx)
	rank := fmt.Sprintf("ts_rank(n.search_vector, %s)", tsquery)
	excerpt := b.excerptExpr(q, cfg, tsquery)

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(selectColumns(excerpt, rank, "0"))
	sql.WriteString(" FROM knowledge_nodes n")

	pb.conds = append(pb.conds, fmt.Sprintf("n.search_vector @@ %s", tsquery))
	b.appendFilters(pb, q.Filters, "")

	sql.WriteString(pb.where())
	sql.WriteString(b.orderClause(q, "rank DESC, n.updated_at DESC, n.id ASC"))
	appendPagination(&sql, pb, q.Pagination)

	return sql.String(), pb.args, nil
}

// buildFuzzy uses trigram similarity against title and content,
// thresholded by the configured minimum.
func (b *Builder) buildFuzzy(q *SearchQuery, cfg config.SearchConfig) (string, []interface{}, error) {
	if !cfg.EnableFuzzy {
		return "", nil, fmt.Errorf("fuzzy search is disabled")
	}
	pb := newPredicateBuilder(1)

	text := Sanitize(q.Text)
	tIdx := pb.bind(text)
	cIdx := pb.bind(text)
	rank := fmt.Sprintf("GREATEST(similarity(n.title, $%d), similarity(n.content, $%d))", tIdx, cIdx)
	excerpt := b.excerptExpr(q, cfg, "")

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(selectColumns(excerpt, rank, "0"))
	sql.WriteString(" FROM knowledge_nodes n")

	pb.add(rank+" >= $%d", cfg.FuzzyThreshold)
	b.appendFilters(pb, q.Filters, "")

	sql.WriteString(pb.where())
	sql.WriteString(b.orderClause(q, "rank DESC, n.updated_at DESC, n.id ASC"))
	appendPagination(&sql, pb, q.Pagination)

	return sql.String(), pb.args, nil
}

// buildExact is a case-insensitive substring match; title matches rank
// above body matches.
func (b *Builder) buildExact(q *SearchQuery, cfg config.SearchConfig) (string, []interface{}, error) {
	pb := newPredicateBuilder(1)

	pat := "%" + Sanitize(q.Text) + "%"
	rankIdx := pb.bind(pat)
	rank := fmt.Sprintf("CASE WHEN n.title ILIKE $%d THEN 2.0 ELSE 1.0 END", rankIdx)
	excerpt := b.excerptExpr(q, cfg, "")

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(selectColumns(excerpt, rank, "0"))
	sql.WriteString(" FROM knowledge_nodes n")

	pb.add("(n.title ILIKE $%d OR n.content ILIKE $%d)", pat, pat)
	b.appendFilters(pb, q.Filters, "")

	sql.WriteString(pb.where())
	sql.WriteString(b.orderClause(q, "rank DESC, n.updated_at DESC, n.id ASC"))
	appendPagination(&sql, pb, q.Pagination)

	return sql.String(), pb.args, nil
}

// graphCTE binds the traversal parameters and returns the recursive
// reachability prelude. Multiple paths to one node collapse to the
// minimum depth.
func graphCTE(pb *predicateBuilder, q *SearchQuery) (string, error) {
	if q.StartNodeID == "" {
		return "", fmt.Errorf("graph traversal requires a start node")
	}
	depth := q.MaxDepth
	if depth <= 0 {
		depth = 3
	}
	startIdx := pb.bind(q.StartNodeID)
	depthIdx := pb.bind(depth)
	return fmt.Sprintf(`WITH RECURSIVE walk AS (
	SELECT l.target_id AS id, 1 AS depth
	FROM node_links l
	WHERE l.source_id = $%d
	UNION
	SELECT l.target_id, w.depth + 1
	FROM node_links l
	JOIN walk w ON l.source_id = w.id
	WHERE w.depth < $%d
), reach AS (
	SELECT id, MIN(depth) AS depth FROM walk GROUP BY id
)
`, startIdx, depthIdx), nil
}

// buildGraph joins the text match with recursive reachability from the
// start node. Nearer matches always outrank farther ones.
func (b *Builder) buildGraph(q *SearchQuery, cfg config.SearchConfig) (string, []interface{}, error) {
	pb := newPredicateBuilder(1)

	head, err := graphCTE(pb, q)
	if err != nil {
		return "", nil, err
	}

	text := Sanitize(q.Text)
	rankIdx := pb.bind(text)
	tsquery := fmt.Sprintf("plainto_tsquery('english', $%d)", rankIdx)
	rank := fmt.Sprintf("ts_rank(n.search_vector, %s)", tsquery)
	excerpt := b.excerptExpr(q, cfg, tsquery)

	var sql strings.Builder
	sql.WriteString(head)
	sql.WriteString("SELECT ")
	sql.WriteString(selectColumns(excerpt, rank, "reach.depth"))
	sql.WriteString(" FROM knowledge_nodes n JOIN reach ON n.id = reach.id")

	pb.conds = append(pb.conds, fmt.Sprintf("n.search_vector @@ %s", tsquery))
	b.appendFilters(pb, q.Filters, "")

	sql.WriteString(pb.where())
	sql.WriteString(" ORDER BY reach.depth ASC, rank DESC, n.updated_at DESC, n.id ASC")
	appendPagination(&sql, pb, q.Pagination)

	return sql.String(), pb.args, nil
}

// selectColumns is the uniform projection every variant scans.
func selectColumns(excerptExpr, rankExpr, depthExpr string) string {
	return fmt.Sprintf(
		"n.id, n.title, %s AS excerpt, n.node_type, n.status, n.author, n.tags, n.metadata, n.created_at, n.updated_at, %s AS rank, %s AS depth",
		excerptExpr, rankExpr, depthExpr,
	)
}

// excerptExpr returns either a ts_headline call (when highlights are
// requested and a tsquery is available) or a plain truncation. Headline
// options are built from code-controlled integers only.
func (b *Builder) excerptExpr(q *SearchQuery, cfg config.SearchConfig, tsquery string) string {
	if q.IncludeHighlights && tsquery != "" {
		maxWords := cfg.HighlightFragmentSize / 6
		if maxWords < 10 {
			maxWords = 10
		}
		return fmt.Sprintf(
			"ts_headline('english', n.content, %s, 'MaxFragments=%d, MaxWords=%d, MinWords=5, FragmentDelimiter=\" ... \"')",
			tsquery, cfg.HighlightMaxFragments, maxWords,
		)
	}
	return "left(n.content, 240)"
}

// orderClause returns the ORDER BY for the request, honoring an
// explicit allow-listed sort and falling back to the type's default.
func (b *Builder) orderClause(q *SearchQuery, def string) string {
	if q.Sort != nil && q.Sort.Field != "" && q.Sort.Field != "relevance" {
		col, ok := sortColumns[q.Sort.Field]
		if ok {
			dir := "DESC"
			if q.Sort.Direction == SortAsc {
				dir = "ASC"
			}
			return fmt.Sprintf(" ORDER BY %s %s, n.id ASC", col, dir)
		}
	}
	return " ORDER BY " + def
}

func appendPagination(sql *strings.Builder, pb *predicateBuilder, p Pagination) {
	limitIdx := pb.bind(p.Limit)
	offsetIdx := pb.bind(p.Offset)
	fmt.Fprintf(sql, " LIMIT $%d OFFSET $%d", limitIdx, offsetIdx)
}

// appendFilters translates SearchFilters into AND-ed predicates.
// omit names a facet dimension (or "metadata:<field>") whose filter is
// skipped, implementing facet self-exclusion. Every value is bound;
// metadata keys are bound too, never interpolated.
func (b *Builder) appendFilters(pb *predicateBuilder, f *SearchFilters, omit string) {
	if f == nil {
		return
	}

	if len(f.NodeTypes) > 0 && omit != DimNodeType {
		pb.add("n.node_type = ANY($%d)", pq.Array(f.NodeTypes))
	}
	if len(f.Statuses) > 0 && omit != DimStatus {
		pb.add("n.status = ANY($%d)", pq.Array(f.Statuses))
	}
	if len(f.Tags) > 0 && omit != DimTags {
		pb.add("n.tags && $%d", pq.Array(f.Tags))
	}
	if f.Author != "" && omit != DimAuthor {
		pb.add("n.author = $%d", f.Author)
	}
	if f.ParentID != "" {
		pb.add("n.parent_id = $%d", f.ParentID)
	}
	if f.Created != nil {
		if f.Created.From != nil {
			pb.add("n.created_at >= $%d", *f.Created.From)
		}
		if f.Created.To != nil {
			pb.add("n.created_at <= $%d", *f.Created.To)
		}
	}
	if f.Updated != nil {
		if f.Updated.From != nil {
			pb.add("n.updated_at >= $%d", *f.Updated.From)
		}
		if f.Updated.To != nil {
			pb.add("n.updated_at <= $%d", *f.Updated.To)
		}
	}
	for _, key := range sortedKeys(f.MetadataEquals) {
		if omit == "metadata:"+key {
			continue
		}
		pb.add("n.metadata->>$%d = $%d", key, f.MetadataEquals[key])
	}
	for _, key := range sortedRangeKeys(f.MetadataRanges) {
		r := f.MetadataRanges[key]
		if r.Min != nil {
			pb.add("(n.metadata->>$%d)::numeric >= $%d", key, *r.Min)
		}
		if r.Max != nil {
			pb.add("(n.metadata->>$%d)::numeric <= $%d", key, *r.Max)
		}
	}
	if len(f.ExcludeIDs) > 0 {
		pb.add("NOT (n.id = ANY($%d))", pq.Array(f.ExcludeIDs))
	}
}

// BuildFacet produces an aggregate query for one fixed dimension,
// scoped by the main query's text predicate and every filter except the
// one on the faceted dimension.
func (b *Builder) BuildFacet(q *SearchQuery, dimension string) (string, []interface{}, error) {
	cfg := b.settings.Snapshot()
	pb := newPredicateBuilder(1)
	b.textPredicate(pb, q, cfg)
	b.appendFilters(pb, q.Filters, dimension)

	var valueExpr, from string
	switch dimension {
	case DimNodeType:
		valueExpr, from = "n.node_type", "knowledge_nodes n"
	case DimTags:
		valueExpr, from = "t.tag", "knowledge_nodes n CROSS JOIN LATERAL unnest(n.tags) AS t(tag)"
	case DimAuthor:
		valueExpr, from = "n.author", "knowledge_nodes n"
	case DimStatus:
		valueExpr, from = "n.status", "knowledge_nodes n"
	default:
		return "", nil, fmt.Errorf("unknown facet dimension %q", dimension)
	}

	sql := fmt.Sprintf(
		"SELECT %s AS value, COUNT(*) AS count FROM %s%s GROUP BY %s ORDER BY count DESC, value ASC LIMIT %d",
		valueExpr, from, pb.where(), valueExpr, facetLimit,
	)
	return sql, pb.args, nil
}

// BuildMetadataFacet aggregates over an arbitrary metadata key. The
// key is a bound parameter on both the projection and the existence
// check.
func (b *Builder) BuildMetadataFacet(q *SearchQuery, field string) (string, []interface{}, error) {
	cfg := b.settings.Snapshot()
	pb := newPredicateBuilder(1)

	valueIdx := pb.bind(field)
	b.textPredicate(pb, q, cfg)
	pb.add("n.metadata ? $%d", field)
	b.appendFilters(pb, q.Filters, "metadata:"+field)

	sql := fmt.Sprintf(
		"SELECT n.metadata->>$%d AS value, COUNT(*) AS count FROM knowledge_nodes n%s GROUP BY value ORDER BY count DESC, value ASC LIMIT %d",
		valueIdx, pb.where(), facetLimit,
	)
	return sql, pb.args, nil
}

// BuildDateFacet counts matches updated within the trailing window of
// the given number of days.
func (b *Builder) BuildDateFacet(q *SearchQuery, days int) (string, []interface{}, error) {
	cfg := b.settings.Snapshot()
	pb := newPredicateBuilder(1)
	b.textPredicate(pb, q, cfg)
	pb.add("n.updated_at >= NOW() - make_interval(days => $%d)", days)
	b.appendFilters(pb, q.Filters, "")

	return "SELECT COUNT(*) FROM knowledge_nodes n" + pb.where(), pb.args, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRangeKeys(m map[string]NumericRange) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
