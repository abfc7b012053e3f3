package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
)

// ValidationResult is the outcome of validating one search request.
// Warnings are advisory and never block execution.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator checks and sanitizes search requests before any query is
// built. Limits come from the runtime settings snapshot taken per call.
type Validator struct {
	settings *config.Settings
}

// NewValidator creates a validator bound to the runtime settings.
func NewValidator(settings *config.Settings) *Validator {
	return &Validator{settings: settings}
}

var validSearchTypes = map[SearchType]bool{
	SearchTypeBasic:          true,
	SearchTypeAdvanced:       true,
	SearchTypeFuzzy:          true,
	SearchTypeExact:          true,
	SearchTypeSemantic:       true,
	SearchTypeHybrid:         true,
	SearchTypeGraphTraversal: true,
}

// sortFields are the only fields an explicit sort may reference.
var sortFields = map[string]bool{
	"relevance":  true,
	"created_at": true,
	"updated_at": true,
	"title":      true,
}

const (
	// maxTagFilters is the tag-list size past which we warn about
	// degraded query plans.
	maxTagFilters = 20

	// maxGraphDepth bounds recursive traversal searches.
	maxGraphDepth = 10
)

// reservedChars are stripped by Sanitize; their presence produces a
// warning, not an error.
var reservedChars = "<>{}[]\\"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Validate checks a search request. The returned result carries one
// message per offending field so a UI can point at each problem.
func (v *Validator) Validate(q *SearchQuery) ValidationResult {
	cfg := v.settings.Snapshot()
	res := ValidationResult{Valid: true}

	fail := func(format string, args ...interface{}) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...interface{}) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		fail("text: search text is required")
	} else if len(text) > cfg.MaxTextLength {
		fail("text: search text exceeds maximum length of %d characters", cfg.MaxTextLength)
	}
	if strings.ContainsAny(text, reservedChars) {
		warn("text: reserved characters will be stripped before execution")
	}

	if q.Type != "" && !validSearchTypes[q.Type] {
		fail("type: unknown search type %q", q.Type)
	}

	if q.Pagination.Offset < 0 {
		fail("pagination.offset: offset must not be negative")
	}
	if q.Pagination.Limit < 0 {
		fail("pagination.limit: limit must not be negative")
	}
	if q.Pagination.Limit > cfg.MaxResults {
		fail("pagination.limit: limit %d exceeds maximum of %d", q.Pagination.Limit, cfg.MaxResults)
	}

	if q.Sort != nil {
		if !sortFields[q.Sort.Field] {
			fail("sort.field: unknown sort field %q", q.Sort.Field)
		}
		if q.Sort.Direction != "" && q.Sort.Direction != SortAsc && q.Sort.Direction != SortDesc {
			fail("sort.direction: direction must be %q or %q", SortAsc, SortDesc)
		}
	}

	if q.Type == SearchTypeAdvanced {
		for _, msg := range checkAdvancedSyntax(text) {
			fail("text: %s", msg)
		}
	}

	if q.Type == SearchTypeGraphTraversal {
		if q.StartNodeID == "" {
			fail("start_node_id: graph traversal requires a start node")
		}
		if q.MaxDepth < 0 || q.MaxDepth > maxGraphDepth {
			fail("max_depth: depth must be between 0 and %d", maxGraphDepth)
		}
	}

	if q.Filters != nil {
		v.validateFilters(q.Filters, fail, warn)
	}

	return res
}

func (v *Validator) validateFilters(f *SearchFilters, fail, warn func(string, ...interface{})) {
	if f.Created != nil && f.Created.From != nil && f.Created.To != nil && f.Created.From.After(*f.Created.To) {
		fail("filters.created: date range start is after end")
	}
	if f.Updated != nil && f.Updated.From != nil && f.Updated.To != nil && f.Updated.From.After(*f.Updated.To) {
		fail("filters.updated: date range start is after end")
	}
	for field, r := range f.MetadataRanges {
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			fail("filters.metadata_ranges.%s: min exceeds max", field)
		}
	}
	if len(f.Tags) > maxTagFilters {
		warn("filters.tags: %d tag filters may degrade performance", len(f.Tags))
	}
}

// booleanOperators recognized by the advanced mini-language.
var booleanOperators = map[string]bool{"AND": true, "OR": true, "NOT": true}

// checkAdvancedSyntax validates the infix boolean mini-language:
// balanced quotes and parentheses, no leading/trailing operators, no
// consecutive operators (NOT may follow AND/OR, as in `a AND NOT b`).
func checkAdvancedSyntax(text string) []string {
	var msgs []string

	if strings.Count(text, `"`)%2 != 0 {
		msgs = append(msgs, "unbalanced quotes in advanced query")
	}

	depth := 0
	balanced := true
	for _, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				balanced = false
			}
		}
	}
	if depth != 0 || !balanced {
		msgs = append(msgs, "unbalanced parentheses in advanced query")
	}

	tokens := strings.Fields(strings.NewReplacer("(", " ", ")", " ").Replace(text))
	prevOp := ""
	for i, tok := range tokens {
		upper := strings.ToUpper(strings.Trim(tok, `"`))
		isOp := booleanOperators[upper]

		if isOp && i == 0 && upper != "NOT" {
			msgs = append(msgs, fmt.Sprintf("query must not start with operator %s", upper))
		}
		if isOp && i == len(tokens)-1 {
			msgs = append(msgs, fmt.Sprintf("query must not end with operator %s", upper))
		}
		if isOp && prevOp != "" && upper != "NOT" {
			msgs = append(msgs, fmt.Sprintf("consecutive operators %s %s", prevOp, upper))
		}

		if isOp {
			prevOp = upper
		} else {
			prevOp = ""
		}
	}

	return msgs
}

// Sanitize strips reserved characters, trims, and collapses internal
// whitespace. It is idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !strings.ContainsRune(reservedChars, r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// IsExpensiveQuery flags queries likely to scan large portions of the
// corpus. The orchestrator logs these; results are never silently
// altered.
func (v *Validator) IsExpensiveQuery(q *SearchQuery) bool {
	cfg := v.settings.Snapshot()
	text := strings.TrimSpace(q.Text)
	hasFilters := q.Filters != nil && q.Filters.hasAny()

	if len(text) < 3 && !hasFilters {
		return true
	}
	if strings.Trim(text, "*? ") == "" {
		return true
	}
	if q.Pagination.Limit > cfg.MaxResults/2 && !hasFilters {
		return true
	}
	if q.Filters != nil {
		if spansOverAYear(q.Filters.Created) || spansOverAYear(q.Filters.Updated) {
			return true
		}
	}
	return false
}

func spansOverAYear(r *DateRange) bool {
	if r == nil || r.From == nil || r.To == nil {
		return false
	}
	return r.To.Sub(*r.From) > 365*24*time.Hour
}

func (f *SearchFilters) hasAny() bool {
	return len(f.NodeTypes) > 0 ||
		len(f.Statuses) > 0 ||
		len(f.Tags) > 0 ||
		f.Author != "" ||
		f.Created != nil ||
		f.Updated != nil ||
		f.ParentID != "" ||
		len(f.MetadataEquals) > 0 ||
		len(f.MetadataRanges) > 0 ||
		len(f.ExcludeIDs) > 0
}
