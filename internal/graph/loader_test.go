package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// countingExecutor records each call's row count and reports every row as
// merged/linked.
type countingExecutor struct {
	calls      []int
	lastQuery  string
	lastParams map[string]any
}

func (c *countingExecutor) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	c.lastQuery = query
	c.lastParams = params
	n := 0
	if params != nil {
		if rows, ok := params["rows"].([]map[string]any); ok {
			n = len(rows)
		}
	}
	c.calls = append(c.calls, n)
	key := "merged"
	if strings.Contains(query, "AS linked") {
		key = "linked"
	}
	return []map[string]any{{key: int64(n)}}, nil
}

func makeRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"badge_id": fmt.Sprintf("B%d", i), "session_id": fmt.Sprintf("s%d", i)}
	}
	return rows
}

func TestUpsertVisitors_ChunksLargeInputs(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	merged, err := l.UpsertVisitors(context.Background(), LabelVisitor, makeRows(2500))
	assert.NoError(t, err)
	assert.Equal(t, 2500, merged)
	assert.Equal(t, []int{1000, 1000, 500}, exec.calls)
	assert.Contains(t, exec.lastQuery, "MERGE (v:Visitor {badge_id: row.badge_id})")
}

func TestUpsertSessions_UsesSessionKey(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	merged, err := l.UpsertSessions(context.Background(), LabelSessionLastYear, makeRows(3))
	assert.NoError(t, err)
	assert.Equal(t, 3, merged)
	assert.Contains(t, exec.lastQuery, "MERGE (s:SessionLastYear {session_id: row.session_id})")
}

func TestUpsertStreams_PreservesExistingDescription(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	merged, err := l.UpsertStreams(context.Background(), []Stream{
		{Name: "StreamA", Description: "desc"},
		{Name: "StreamB"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, merged)
	// An empty incoming description must not clobber a stored one.
	assert.Contains(t, exec.lastQuery, "ON MATCH SET")
	assert.Contains(t, exec.lastQuery, "ELSE s.description")
}

func TestLinkAttendance_SetsScanTime(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	rows := []map[string]any{
		{"badge_id": "B1", "key_text": "introtooncology", "scan_time": "2025-06-01T10:00:00"},
	}
	linked, err := l.LinkAttendance(context.Background(), LabelVisitor, LabelSession, rows)
	assert.NoError(t, err)
	assert.Equal(t, 1, linked)
	assert.Contains(t, exec.lastQuery, "MERGE (v)-[r:ATTENDED_SESSION]->(s)")
	assert.Contains(t, exec.lastQuery, "key_text: row.key_text")
}

func TestLinkSameVisitor_TagsEdition(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	_, err := l.LinkSameVisitor(context.Background(), LabelVisitorLastYear, EditionLastYear)
	assert.NoError(t, err)
	assert.Contains(t, exec.lastQuery, "MERGE (c)-[r:SAME_VISITOR]->(p)")
	assert.Equal(t, EditionLastYear, exec.lastParams["edition"])
}

func TestLoader_RejectsUnsafeLabels(t *testing.T) {
	l := NewLoader(&countingExecutor{})

	_, err := l.UpsertVisitors(context.Background(), "Visitor) DETACH DELETE (n", nil)
	assert.Error(t, err)
	_, err = l.UpsertSessions(context.Background(), "bad label", nil)
	assert.Error(t, err)
	_, err = l.LinkAttendance(context.Background(), LabelVisitor, "bad;label", nil)
	assert.Error(t, err)
	_, err = l.LinkSessionStreams(context.Background(), "bad label")
	assert.Error(t, err)
	_, err = l.LinkSameVisitor(context.Background(), "bad label", EditionLastYear)
	assert.Error(t, err)
}

func TestUpsertVisitors_EmptyInput(t *testing.T) {
	exec := &countingExecutor{}
	l := NewLoader(exec)

	merged, err := l.UpsertVisitors(context.Background(), LabelVisitor, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, merged)
	assert.Empty(t, exec.calls)
}
