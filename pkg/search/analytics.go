package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// Analytics records search activity and answers aggregate questions
// about it. Events are append-only; recording failures are logged by
// callers and never fail a search.
type Analytics struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAnalytics creates an analytics recorder backed by the given store.
func NewAnalytics(db *sql.DB, logger *observability.Logger) *Analytics {
	return &Analytics{db: db, logger: logger}
}

// RecordSearchEvent stores one search event and bumps the suggestion
// frequency for the normalized query term.
func (a *Analytics) RecordSearchEvent(ctx context.Context, event *AnalyticsEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var filtersJSON []byte
	if event.Filters != nil {
		var err error
		filtersJSON, err = json.Marshal(event.Filters)
		if err != nil {
			return fmt.Errorf("failed to encode event filters: %w", err)
		}
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO search_events (id, query, search_type, result_count, took_ms, filters, session_id, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Query, string(event.SearchType), event.ResultCount,
		event.Took, nullBytes(filtersJSON), nullString(event.SessionID),
		nullString(event.UserID), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record search event: %w", err)
	}

	return a.bumpSuggestion(ctx, event.Query)
}

// bumpSuggestion upserts the normalized query term into the suggestion
// table so future prefix lookups can surface it.
func (a *Analytics) bumpSuggestion(ctx context.Context, query string) error {
	term := Sanitize(query)
	if term == "" {
		return nil
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO search_suggestions (term, search_count, last_searched_at)
		VALUES (lower($1), 1, NOW())
		ON CONFLICT (term)
		DO UPDATE SET search_count = search_suggestions.search_count + 1, last_searched_at = NOW()`,
		term,
	)
	if err != nil {
		return fmt.Errorf("failed to update suggestion term: %w", err)
	}
	return nil
}

// RecordSearchInteraction stores a result click so ranking quality can
// be reviewed later.
func (a *Analytics) RecordSearchInteraction(ctx context.Context, eventID, nodeID string, position int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO search_interactions (id, event_id, node_id, position, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New().String(), eventID, nodeID, position,
	)
	if err != nil {
		return fmt.Errorf("failed to record search interaction: %w", err)
	}
	return nil
}

// GetSearchAnalytics aggregates activity between from and to inclusive.
func (a *Analytics) GetSearchAnalytics(ctx context.Context, from, to time.Time, topN int) (*SearchAnalytics, error) {
	if topN <= 0 {
		topN = 10
	}

	analytics := &SearchAnalytics{}

	var avgTook sql.NullFloat64
	var zeroResults int
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(took_ms), 0),
		       COUNT(*) FILTER (WHERE result_count = 0)
		FROM search_events
		WHERE created_at >= $1 AND created_at <= $2`,
		from, to,
	).Scan(&analytics.TotalSearches, &avgTook, &zeroResults)
	if err != nil {
		return nil, fmt.Errorf("failed to load search totals: %w", err)
	}
	analytics.AvgTookMs = avgTook.Float64
	if analytics.TotalSearches > 0 {
		analytics.ZeroResultRate = float64(zeroResults) / float64(analytics.TotalSearches)
	}

	topQueries, err := a.topQueries(ctx, from, to, topN)
	if err != nil {
		return nil, err
	}
	analytics.TopQueries = topQueries

	daily, err := a.dailyCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	analytics.Daily = daily

	return analytics, nil
}

func (a *Analytics) topQueries(ctx context.Context, from, to time.Time, topN int) ([]QueryCount, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT lower(query), COUNT(*) AS searches
		FROM search_events
		WHERE created_at >= $1 AND created_at <= $2 AND query <> ''
		GROUP BY lower(query)
		ORDER BY searches DESC, lower(query) ASC
		LIMIT $3`,
		from, to, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load top queries: %w", err)
	}
	defer rows.Close()

	var out []QueryCount
	for rows.Next() {
		var qc QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top query: %w", err)
		}
		out = append(out, qc)
	}
	return out, rows.Err()
}

func (a *Analytics) dailyCounts(ctx context.Context, from, to time.Time) ([]DailyCount, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*)
		FROM search_events
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY day
		ORDER BY day ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily search counts: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// GetTrendingSearches compares each query's volume in the last window
// days against the window before it and classifies the direction.
func (a *Analytics) GetTrendingSearches(ctx context.Context, windowDays, limit int) ([]TrendingSearch, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT lower(query),
		       COUNT(*) FILTER (WHERE created_at >= NOW() - make_interval(days => $1)) AS current_count,
		       COUNT(*) FILTER (WHERE created_at <  NOW() - make_interval(days => $1)) AS previous_count
		FROM search_events
		WHERE created_at >= NOW() - make_interval(days => $2) AND query <> ''
		GROUP BY lower(query)
		HAVING COUNT(*) FILTER (WHERE created_at >= NOW() - make_interval(days => $1)) > 0
		ORDER BY current_count DESC, lower(query) ASC
		LIMIT $3`,
		windowDays, windowDays*2, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load trending searches: %w", err)
	}
	defer rows.Close()

	var out []TrendingSearch
	for rows.Next() {
		var ts TrendingSearch
		if err := rows.Scan(&ts.Query, &ts.CurrentCount, &ts.PreviousCount); err != nil {
			return nil, fmt.Errorf("failed to scan trending search: %w", err)
		}
		ts.ChangePct, ts.Trend = classifyTrend(ts.PreviousCount, ts.CurrentCount)
		out = append(out, ts)
	}
	return out, rows.Err()
}

// classifyTrend computes the percentage change between two window counts
// and buckets it. Movement within ten percent either way reads as
// stable; a query with no previous volume is a new arrival trending up.
func classifyTrend(previous, current int) (float64, Trend) {
	if previous == 0 {
		if current == 0 {
			return 0, TrendStable
		}
		return 100, TrendUp
	}

	change := (float64(current) - float64(previous)) / float64(previous) * 100
	change = math.Round(change*100) / 100

	switch {
	case change > 10:
		return change, TrendUp
	case change < -10:
		return change, TrendDown
	default:
		return change, TrendStable
	}
}

// CleanupOldAnalytics deletes events older than the retention window
// and returns how many rows were removed. Interactions cascade via FK.
func (a *Analytics) CleanupOldAnalytics(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	res, err := a.db.ExecContext(ctx, `
		DELETE FROM search_events
		WHERE created_at < NOW() - make_interval(days => $1)`,
		retentionDays,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old search events: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted events: %w", err)
	}

	if deleted > 0 {
		a.logger.WithFields(map[string]interface{}{
			"deleted":        deleted,
			"retention_days": retentionDays,
		}).Info("cleaned up old search analytics")
	}
	return deleted, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
