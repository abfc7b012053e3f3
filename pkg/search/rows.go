package search

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// fragmentDelimiter matches the ts_headline option set by the builder.
const fragmentDelimiter = " ... "

// scanResults maps result rows into domain objects. Every column is
// treated as potentially NULL and mapped to a typed default so store
// irregularities never surface as scan failures mid-response.
func scanResults(rows *sql.Rows, q *SearchQuery) ([]SearchResult, error) {
	results := make([]SearchResult, 0, q.Pagination.Limit)

	for rows.Next() {
		var (
			id, title, excerpt, nodeType, status, author sql.NullString
			tags                                         pq.StringArray
			metadataJSON                                 []byte
			createdAt, updatedAt                         sql.NullTime
			rank                                         sql.NullFloat64
			depth                                        sql.NullInt64
		)

		if err := rows.Scan(
			&id, &title, &excerpt, &nodeType, &status, &author,
			&tags, &metadataJSON, &createdAt, &updatedAt, &rank, &depth,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		r := SearchResult{
			ID:        id.String,
			Title:     title.String,
			NodeType:  nodeType.String,
			Status:    status.String,
			Author:    author.String,
			Score:     rank.Float64,
			Tags:      tags,
			Metadata:  decodeMetadata(metadataJSON),
			CreatedAt: createdAt.Time,
			UpdatedAt: updatedAt.Time,
			Depth:     int(depth.Int64),
		}

		if q.IncludeHighlights {
			r.Highlights = splitFragments(excerpt.String)
			if len(r.Highlights) > 0 {
				r.Excerpt = r.Highlights[0]
			}
		} else {
			r.Excerpt = excerpt.String
		}
		r.MatchedFields = matchedFields(r, q.Text)

		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return results, nil
}

// decodeMetadata flattens a JSONB column into string values. Non-string
// scalars are rendered with their JSON form; nested values are dropped.
func decodeMetadata(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64, bool:
			encoded, err := json.Marshal(val)
			if err == nil {
				out[k] = string(encoded)
			}
		}
	}
	return out
}

func splitFragments(headline string) []string {
	if headline == "" {
		return nil
	}
	parts := strings.Split(headline, fragmentDelimiter)
	fragments := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			fragments = append(fragments, trimmed)
		}
	}
	return fragments
}

// matchedFields reports which projected fields contain any query term.
// Coarse by design: the store already decided the row matches.
func matchedFields(r SearchResult, text string) []string {
	terms := strings.Fields(strings.ToLower(Sanitize(text)))
	if len(terms) == 0 {
		return nil
	}

	title := strings.ToLower(r.Title)
	body := strings.ToLower(r.Excerpt)

	var fields []string
	for _, t := range terms {
		if booleanOperators[strings.ToUpper(t)] {
			continue
		}
		if strings.Contains(title, t) {
			fields = append(fields, "title")
			break
		}
	}
	for _, t := range terms {
		if booleanOperators[strings.ToUpper(t)] {
			continue
		}
		if strings.Contains(body, t) {
			fields = append(fields, "content")
			break
		}
	}
	if len(fields) == 0 {
		fields = append(fields, "content")
	}
	return fields
}

// nullTime converts a nullable timestamp to a *time.Time.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
