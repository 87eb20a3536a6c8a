package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"expograph/internal/embed"
	"expograph/internal/graph"
	"expograph/pkg/logger"
)

// Service answers the read-only queries downstream consumers (dashboards,
// report generators) run against the graph. It never mutates anything.
type Service struct {
	exec   graph.Executor
	embed  embed.Func
	logger *zap.Logger
}

// NewService creates a recommendation service. embedFn may be nil, which
// disables semantic search but leaves the graph queries available.
func NewService(exec graph.Executor, embedFn embed.Func) *Service {
	return &Service{
		exec:   exec,
		embed:  embedFn,
		logger: logger.Get(),
	}
}

// StreamsForVisitor returns the streams a current-edition visitor is linked
// to through their declared specializations
func (s *Service) StreamsForVisitor(ctx context.Context, badgeID string) ([]string, error) {
	rows, err := s.exec.Execute(ctx, fmt.Sprintf(`
		MATCH (v:%s {badge_id: $badge})-[:%s]->(st:Stream)
		RETURN st.name AS name
		ORDER BY name
	`, graph.LabelVisitor, graph.RelSpecializationToStream), map[string]any{"badge": badgeID}, false)
	if err != nil {
		return nil, err
	}
	streams := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			streams = append(streams, name)
		}
	}
	return streams, nil
}

// RecommendSessions suggests current-edition sessions in the visitor's
// streams, excluding sessions whose normalized title matches one the same
// visitor already attended in a past edition.
func (s *Service) RecommendSessions(ctx context.Context, badgeID string, limit int) ([]graph.Recommendation, error) {
	if limit < 1 {
		limit = 10
	}
	query := fmt.Sprintf(`
		MATCH (v:%s {badge_id: $badge})-[:%s]->(st:Stream)<-[:%s]-(sess:%s)
		WHERE NOT EXISTS {
			MATCH (v)-[:%s]->()-[:%s]->(past)
			WHERE past.key_text = sess.key_text
		}
		WITH sess, collect(DISTINCT st.name) AS streams, count(DISTINCT st) AS overlap
		RETURN sess.session_id AS session_id, sess.title AS title, streams, overlap
		ORDER BY overlap DESC, session_id
		LIMIT $limit
	`, graph.LabelVisitor, graph.RelSpecializationToStream, graph.RelSessionStream, graph.LabelSession,
		graph.RelSameVisitor, graph.RelAttendedSession)

	rows, err := s.exec.Execute(ctx, query, map[string]any{
		"badge": badgeID,
		"limit": limit,
	}, false)
	if err != nil {
		return nil, err
	}

	recs := make([]graph.Recommendation, 0, len(rows))
	for _, row := range rows {
		rec := graph.Recommendation{
			SessionID: stringValue(row, "session_id"),
			Title:     stringValue(row, "title"),
		}
		if names, ok := row["streams"].([]any); ok {
			for _, n := range names {
				if name, ok := n.(string); ok {
					rec.Streams = append(rec.Streams, name)
				}
			}
		}
		if overlap, ok := row["overlap"].(int64); ok {
			rec.Score = float64(overlap)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// SearchSessions embeds the query text and ranks current-edition sessions
// by cosine similarity over their stored embedding vectors
func (s *Service) SearchSessions(ctx context.Context, text string, limit int) ([]graph.Recommendation, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("semantic search is not configured")
	}
	if limit < 1 {
		limit = 10
	}

	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	rows, err := s.exec.Execute(ctx, fmt.Sprintf(`
		MATCH (sess:%s)
		WHERE sess.embedding IS NOT NULL
		RETURN sess.session_id AS session_id, sess.title AS title, sess.embedding AS embedding
	`, graph.LabelSession), nil, false)
	if err != nil {
		return nil, err
	}

	recs := make([]graph.Recommendation, 0, len(rows))
	for _, row := range rows {
		var vec []float32
		if err := json.Unmarshal([]byte(stringValue(row, "embedding")), &vec); err != nil {
			s.logger.Warn("Skipping session with unparseable embedding",
				zap.String("session_id", stringValue(row, "session_id")),
				zap.Error(err),
			)
			continue
		}
		score := cosineSimilarity(queryVec, vec)
		if math.IsNaN(score) {
			continue
		}
		recs = append(recs, graph.Recommendation{
			SessionID: stringValue(row, "session_id"),
			Title:     stringValue(row, "title"),
			Score:     score,
		})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func stringValue(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
