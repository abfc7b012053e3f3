package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
)

// suggestionCacheSize bounds the in-process prefix cache.
const suggestionCacheSize = 512

// Suggester serves query completions from recorded search terms,
// ordered by popularity. Lookups for hot prefixes are served from an
// in-process cache so typeahead traffic stays off the database.
type Suggester struct {
	db       *sql.DB
	settings *config.Settings
	cache    *expirable.LRU[string, []string]
}

// NewSuggester creates a suggester with a TTL-bounded prefix cache.
func NewSuggester(db *sql.DB, settings *config.Settings, ttl time.Duration) *Suggester {
	return &Suggester{
		db:       db,
		settings: settings,
		cache:    expirable.NewLRU[string, []string](suggestionCacheSize, nil, ttl),
	}
}

// Suggest returns up to the configured number of completions for the
// given prefix. Prefixes shorter than two characters return nothing.
func (s *Suggester) Suggest(ctx context.Context, prefix string) ([]string, error) {
	cfg := s.settings.Snapshot()

	normalized := strings.ToLower(Sanitize(prefix))
	if len(normalized) < 2 {
		return nil, nil
	}

	if cached, ok := s.cache.Get(normalized); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT term
		FROM search_suggestions
		WHERE term LIKE $1 || '%'
		ORDER BY search_count DESC, last_searched_at DESC
		LIMIT $2`,
		normalized, cfg.SuggestionCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}

	s.cache.Add(normalized, suggestions)
	return suggestions, nil
}

// Invalidate drops all cached prefixes. Used after bulk imports that
// shift term popularity wholesale.
func (s *Suggester) Invalidate() {
	s.cache.Purge()
}
