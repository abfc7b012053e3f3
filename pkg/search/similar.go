package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
)

// similarityWeights rank the signals against each other. A node scored
// by several signals keeps its highest raw score; the weights only
// decide which signal wins a tie. Kept as a package variable so
// operators can retune the preference without touching the queries.
var similarityWeights = map[SimilarityType]float64{
	SimilarityContent:       0.5,
	SimilarityTags:          0.3,
	SimilarityRelationships: 0.2,
}

// sameTypeBoost is added to candidates sharing the source node's type.
const sameTypeBoost = 0.2

// SimilarityFinder locates nodes related to a source node by blending
// content overlap, shared tags, and shared link structure.
type SimilarityFinder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSimilarityFinder creates a similarity finder.
func NewSimilarityFinder(db *sql.DB, logger *observability.Logger) *SimilarityFinder {
	return &SimilarityFinder{db: db, logger: logger}
}

type sourceNode struct {
	ID       string
	Title    string
	Content  string
	NodeType string
	Tags     []string
}

// FindSimilar returns up to limit nodes similar to nodeID, scored in
// [0,100]. The three signal queries run concurrently; a signal that
// fails is logged and skipped so the remaining signals still produce
// results.
func (f *SimilarityFinder) FindSimilar(ctx context.Context, nodeID string, limit int) ([]SimilarNode, error) {
	if limit <= 0 {
		limit = 10
	}

	src, err := f.loadSource(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	var content, tags, links []SimilarNode
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		res, err := f.contentCandidates(gctx, src, limit*3)
		if err != nil {
			f.logger.WithError(err).WithField("node_id", nodeID).Warn("content similarity signal failed")
			return nil
		}
		content = res
		return nil
	})

	if len(src.Tags) > 0 {
		grp.Go(func() error {
			res, err := f.tagCandidates(gctx, src, limit*3)
			if err != nil {
				f.logger.WithError(err).WithField("node_id", nodeID).Warn("tag similarity signal failed")
				return nil
			}
			tags = res
			return nil
		})
	}

	grp.Go(func() error {
		res, err := f.relationshipCandidates(gctx, src, limit*3)
		if err != nil {
			f.logger.WithError(err).WithField("node_id", nodeID).Warn("relationship similarity signal failed")
			return nil
		}
		links = res
		return nil
	})

	_ = grp.Wait()

	candidates := make([]SimilarNode, 0, len(content)+len(tags)+len(links))
	candidates = append(candidates, content...)
	candidates = append(candidates, tags...)
	candidates = append(candidates, links...)

	merged := mergeSimilar(candidates, src.NodeType)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (f *SimilarityFinder) loadSource(ctx context.Context, nodeID string) (*sourceNode, error) {
	src := &sourceNode{ID: nodeID}
	var tags pq.StringArray
	err := f.db.QueryRowContext(ctx, `
		SELECT title, content, node_type, tags
		FROM knowledge_nodes
		WHERE id = $1`,
		nodeID,
	).Scan(&src.Title, &src.Content, &src.NodeType, &tags)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source node: %w", err)
	}
	src.Tags = tags
	return src, nil
}

// contentCandidates ranks other nodes by full-text match against the
// source's title and leading content, scaled to [0,100].
func (f *SimilarityFinder) contentCandidates(ctx context.Context, src *sourceNode, limit int) ([]SimilarNode, error) {
	sample := src.Title + " " + truncateWords(src.Content, 50)
	query := Sanitize(sample)
	if query == "" {
		return nil, nil
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.node_type,
		       LEAST(ts_rank(n.search_vector, plainto_tsquery('english', $1)) * 100, 100) AS score
		FROM knowledge_nodes n
		WHERE n.id <> $2
		  AND n.status <> 'archived'
		  AND n.search_vector @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`,
		query, src.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("content similarity query failed: %w", err)
	}
	defer rows.Close()

	return scanSimilar(rows, SimilarityContent, "matching content")
}

// tagCandidates scores other nodes by the fraction of the source's tags
// they share.
func (f *SimilarityFinder) tagCandidates(ctx context.Context, src *sourceNode, limit int) ([]SimilarNode, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.node_type,
		       (SELECT COUNT(*) FROM unnest(n.tags) t WHERE t = ANY($1))::float / $2 * 100 AS score
		FROM knowledge_nodes n
		WHERE n.id <> $3
		  AND n.status <> 'archived'
		  AND n.tags && $1
		ORDER BY score DESC
		LIMIT $4`,
		pq.Array(src.Tags), len(src.Tags), src.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tag similarity query failed: %w", err)
	}
	defer rows.Close()

	return scanSimilar(rows, SimilarityTags, "shared tags")
}

// relationshipCandidates scores nodes by their graph edges to the
// source: direct links count alongside links reached through the
// source's neighbors, capped at five edges for a full score.
func (f *SimilarityFinder) relationshipCandidates(ctx context.Context, src *sourceNode, limit int) ([]SimilarNode, error) {
	rows, err := f.db.QueryContext(ctx, `
		WITH neighbors AS (
			SELECT CASE WHEN source_id = $1 THEN target_id ELSE source_id END AS id
			FROM node_links
			WHERE source_id = $1 OR target_id = $1
		), reachable AS (
			SELECT id FROM neighbors
			UNION ALL
			SELECT CASE WHEN l.source_id = nb.id THEN l.target_id ELSE l.source_id END AS id
			FROM neighbors nb
			JOIN node_links l ON l.source_id = nb.id OR l.target_id = nb.id
		)
		SELECT n.id, n.title, n.node_type,
		       LEAST(COUNT(*), 5)::float / 5 * 100 AS score
		FROM reachable r
		JOIN knowledge_nodes n ON n.id = r.id
		WHERE n.id <> $1
		  AND n.status <> 'archived'
		GROUP BY n.id, n.title, n.node_type
		ORDER BY score DESC
		LIMIT $2`,
		src.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("relationship similarity query failed: %w", err)
	}
	defer rows.Close()

	return scanSimilar(rows, SimilarityRelationships, "linked in the knowledge graph")
}

func scanSimilar(rows *sql.Rows, sim SimilarityType, reason string) ([]SimilarNode, error) {
	var out []SimilarNode
	for rows.Next() {
		var n SimilarNode
		if err := rows.Scan(&n.ID, &n.Title, &n.NodeType, &n.Score); err != nil {
			return nil, fmt.Errorf("failed to scan similarity candidate: %w", err)
		}
		n.SimilarityType = sim
		n.Reasons = []string{reason}
		out = append(out, n)
	}
	return out, rows.Err()
}

// mergeSimilar deduplicates candidates across signals. Each node keeps
// its highest raw signal score, accumulates all reasons, and gains a
// boost when it shares the source's type. When two signals score a node
// equally, the heavier-weighted signal is reported. Output is sorted by
// score descending with ID as the tiebreak.
func mergeSimilar(candidates []SimilarNode, sourceType string) []SimilarNode {
	byID := make(map[string]*SimilarNode)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		existing, ok := byID[c.ID]
		if !ok {
			merged := c
			byID[c.ID] = &merged
			order = append(order, c.ID)
			continue
		}
		existing.Reasons = appendUnique(existing.Reasons, c.Reasons...)
		if c.Score > existing.Score ||
			(c.Score == existing.Score && similarityWeights[c.SimilarityType] > similarityWeights[existing.SimilarityType]) {
			existing.Score = c.Score
			existing.SimilarityType = c.SimilarityType
		}
	}

	out := make([]SimilarNode, 0, len(byID))
	for _, id := range order {
		n := *byID[id]
		if sourceType != "" && n.NodeType == sourceType {
			n.Score += n.Score * sameTypeBoost
		}
		if n.Score > 100 {
			n.Score = 100
		}
		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
