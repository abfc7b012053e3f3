package search

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/PolycarpusTack/alexandria-search/pkg/async"
	"github.com/PolycarpusTack/alexandria-search/pkg/config"
	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// maxKeywords bounds the stored keyword list per document.
const maxKeywords = 15

// reindexWorkers bounds concurrent per-node updates during a full
// reindex pass.
const reindexWorkers = 4

// Indexer maintains the search_index bookkeeping table and the
// per-node search vectors.
type Indexer struct {
	db       *sql.DB
	settings *config.Settings
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewIndexer creates an indexer.
func NewIndexer(db *sql.DB, settings *config.Settings, logger *observability.Logger, metrics *observability.Metrics) *Indexer {
	return &Indexer{db: db, settings: settings, logger: logger, metrics: metrics}
}

// UpdateIndex refreshes the index entry for one node. Unchanged content
// (by hash) is skipped. Failures wrap the node ID so batch callers can
// report which document broke.
func (ix *Indexer) UpdateIndex(ctx context.Context, nodeID string) error {
	var title, content string
	var tags pq.StringArray
	err := ix.db.QueryRowContext(ctx, `
		SELECT title, content, tags FROM knowledge_nodes WHERE id = $1`,
		nodeID,
	).Scan(&title, &content, &tags)
	if err == sql.ErrNoRows {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("node not found")}
	}
	if err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to load node: %w", err)}
	}

	hash := contentHash(title, content, tags)

	var existing sql.NullString
	err = ix.db.QueryRowContext(ctx, `
		SELECT content_hash FROM search_index WHERE node_id = $1`,
		nodeID,
	).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to load index entry: %w", err)}
	}
	if existing.Valid && existing.String == hash {
		return nil
	}

	keywords := extractKeywords(title+" "+content, maxKeywords)
	tokenCount := len(strings.Fields(content))

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to begin index transaction: %w", err)}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE knowledge_nodes
		SET search_vector = setweight(to_tsvector('english', title), 'A') ||
		                    setweight(to_tsvector('english', coalesce(content, '')), 'B') ||
		                    setweight(to_tsvector('english', array_to_string(tags, ' ')), 'C')
		WHERE id = $1`,
		nodeID,
	)
	if err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to refresh search vector: %w", err)}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO search_index (node_id, content_hash, token_count, keywords, indexed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (node_id)
		DO UPDATE SET content_hash = $2, token_count = $3, keywords = $4, indexed_at = NOW()`,
		nodeID, hash, tokenCount, pq.Array(keywords),
	)
	if err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to upsert index entry: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to commit index update: %w", err)}
	}

	if ix.metrics != nil {
		ix.metrics.DocumentsIndexed.Inc()
	}
	return nil
}

// RemoveFromIndex drops the index entry for a deleted node.
func (ix *Indexer) RemoveFromIndex(ctx context.Context, nodeID string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM search_index WHERE node_id = $1`, nodeID)
	if err != nil {
		return &IndexUpdateError{NodeID: nodeID, Err: fmt.Errorf("failed to remove index entry: %w", err)}
	}
	return nil
}

// ReindexAll walks the whole corpus in keyset-paginated batches and
// refreshes every node's index entry. Per-node failures are collected
// and reported at the end; one broken document never aborts the pass.
func (ix *Indexer) ReindexAll(ctx context.Context) (int, error) {
	cfg := ix.settings.Snapshot()
	batchSize := cfg.IndexBatchSize

	total := 0
	failed := 0
	lastID := ""

	for {
		ids, err := ix.nodeBatch(ctx, lastID, batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}
		lastID = ids[len(ids)-1]

		errs := async.Batch(ctx, ids, reindexWorkers, "reindex", time.Minute,
			func(ctx context.Context, id string) error {
				return ix.UpdateIndex(ctx, id)
			})
		for _, err := range errs {
			failed++
			ix.logger.WithError(err).Warn("node reindex failed")
			if ix.metrics != nil {
				ix.metrics.IndexFailuresTotal.Inc()
			}
		}
		total += len(ids) - len(errs)

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}

	ix.logger.WithFields(map[string]interface{}{
		"indexed": total,
		"failed":  failed,
	}).Info("full reindex complete")

	if failed > 0 {
		return total, fmt.Errorf("reindex finished with %d failed documents", failed)
	}
	return total, nil
}

func (ix *Indexer) nodeBatch(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT id FROM knowledge_nodes
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load node batch: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Status reports index coverage: how much of the corpus has a current
// index entry and when the last entry was written.
func (ix *Indexer) Status(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{}

	var lastIndexed sql.NullTime
	err := ix.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM knowledge_nodes),
			(SELECT COUNT(*) FROM search_index),
			(SELECT MAX(indexed_at) FROM search_index)`,
	).Scan(&status.TotalDocuments, &status.IndexedDocuments, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to load index status: %w", err)
	}

	status.LastIndexedAt = nullTime(lastIndexed)
	status.PendingDocuments = status.TotalDocuments - status.IndexedDocuments
	if status.PendingDocuments < 0 {
		status.PendingDocuments = 0
	}
	if status.TotalDocuments > 0 {
		status.Health = float64(status.IndexedDocuments) / float64(status.TotalDocuments)
	} else {
		status.Health = 1
	}
	if ix.metrics != nil {
		ix.metrics.IndexHealth.Set(status.Health)
	}
	return status, nil
}

func contentHash(title, content string, tags []string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	for _, t := range tags {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stopwords excluded from extracted keywords.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "were": true, "will": true, "with": true,
}

// extractKeywords returns the most frequent non-stopword terms of at
// least three characters, most frequent first.
func extractKeywords(text string, limit int) []string {
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) < 3 || stopwords[word] {
			continue
		}
		freq[word]++
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
