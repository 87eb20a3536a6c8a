package recommend

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExecutor struct {
	rows    map[string][]map[string]any
	queries []string
}

func (f *fakeExecutor) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	for substr, rows := range f.rows {
		if strings.Contains(query, substr) {
			return rows, nil
		}
	}
	return nil, nil
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.True(t, math.IsNaN(cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})))
	assert.True(t, math.IsNaN(cosineSimilarity([]float32{0, 0}, []float32{1, 2})))
	assert.True(t, math.IsNaN(cosineSimilarity(nil, nil)))
}

func TestStreamsForVisitor(t *testing.T) {
	exec := &fakeExecutor{rows: map[string][]map[string]any{
		"st.name AS name": {
			{"name": "StreamA"},
			{"name": "StreamB"},
		},
	}}
	s := NewService(exec, nil)
	streams, err := s.StreamsForVisitor(context.Background(), "B1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"StreamA", "StreamB"}, streams)
}

func TestRecommendSessions(t *testing.T) {
	exec := &fakeExecutor{rows: map[string][]map[string]any{
		"AS overlap": {
			{"session_id": "s1", "title": "Cardiology Update", "streams": []any{"StreamA", "StreamB"}, "overlap": int64(2)},
			{"session_id": "s2", "title": "Imaging Basics", "streams": []any{"StreamA"}, "overlap": int64(1)},
		},
	}}
	s := NewService(exec, nil)
	recs, err := s.RecommendSessions(context.Background(), "B1", 10)
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "s1", recs[0].SessionID)
	assert.Equal(t, []string{"StreamA", "StreamB"}, recs[0].Streams)
	assert.Equal(t, 2.0, recs[0].Score)

	// Repeat-attendance exclusion is done in the query itself.
	assert.Contains(t, exec.queries[0], "NOT EXISTS")
	assert.Contains(t, exec.queries[0], "SAME_VISITOR")
}

func TestSearchSessions_RanksByCosine(t *testing.T) {
	exec := &fakeExecutor{rows: map[string][]map[string]any{
		"embedding IS NOT NULL": {
			{"session_id": "aligned", "title": "A", "embedding": "[1,0]"},
			{"session_id": "orthogonal", "title": "B", "embedding": "[0,1]"},
			{"session_id": "diagonal", "title": "C", "embedding": "[1,1]"},
			{"session_id": "broken", "title": "D", "embedding": "not json"},
		},
	}}
	embedFn := func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	s := NewService(exec, embedFn)
	recs, err := s.SearchSessions(context.Background(), "hearts", 2)
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "aligned", recs[0].SessionID)
	assert.Equal(t, "diagonal", recs[1].SessionID)
	assert.Greater(t, recs[0].Score, recs[1].Score)
}

func TestSearchSessions_WithoutEmbedder(t *testing.T) {
	s := NewService(&fakeExecutor{}, nil)
	_, err := s.SearchSessions(context.Background(), "anything", 5)
	assert.Error(t, err)
}
