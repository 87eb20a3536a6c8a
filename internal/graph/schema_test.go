package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "expograph/pkg/errors"
)

// fakeExecutor scripts responses by query substring and records every query
// it sees.
type fakeExecutor struct {
	queries   []string
	responses map[string][]map[string]any
	failures  map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		responses: make(map[string][]map[string]any),
		failures:  make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	for substr, err := range f.failures {
		if strings.Contains(query, substr) {
			return nil, err
		}
	}
	for substr, rows := range f.responses {
		if strings.Contains(query, substr) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeExecutor) queriesContaining(substr string) []string {
	var matched []string
	for _, q := range f.queries {
		if strings.Contains(q, substr) {
			matched = append(matched, q)
		}
	}
	return matched
}

func TestEnsureConstraints_SkipsExisting(t *testing.T) {
	exec := newFakeExecutor()
	exec.responses["SHOW CONSTRAINTS"] = []map[string]any{
		{"labelsOrTypes": []any{"Visitor"}, "properties": []any{"badge_id"}},
	}

	m := NewSchemaManager(exec)
	specs := []ConstraintSpec{
		{Label: "Visitor", Property: "badge_id"},
		{Label: "Stream", Property: "name"},
	}
	assert.NoError(t, m.EnsureConstraints(context.Background(), specs))

	created := exec.queriesContaining("CREATE CONSTRAINT")
	assert.Len(t, created, 1)
	assert.Contains(t, created[0], "Stream")
	assert.Contains(t, created[0], "IF NOT EXISTS")
}

func TestEnsureConstraints_FailureIsFatal(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures["CREATE CONSTRAINT"] = errors.New("no admin rights")

	m := NewSchemaManager(exec)
	err := m.EnsureConstraints(context.Background(), []ConstraintSpec{{Label: "Visitor", Property: "badge_id"}})
	assert.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeGraph))
}

func TestEnsureConstraints_RejectsUnsafeIdentifiers(t *testing.T) {
	m := NewSchemaManager(newFakeExecutor())
	err := m.EnsureConstraints(context.Background(), []ConstraintSpec{{Label: "Visitor) DETACH DELETE (n", Property: "badge_id"}})
	assert.Error(t, err)
}

func TestEnsureIndexes_FailureIsNotFatal(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures["CREATE INDEX"] = errors.New("index limit reached")

	m := NewSchemaManager(exec)
	specs := []IndexSpec{
		{Label: "Session", Property: "key_text"},
		{Label: "Visitor", Property: "specialization"},
	}
	// Missing indexes degrade performance, not correctness.
	assert.NoError(t, m.EnsureIndexes(context.Background(), specs))
	assert.Len(t, exec.queriesContaining("CREATE INDEX"), 2)
}

func TestEnsureIndexes_SkipsExisting(t *testing.T) {
	exec := newFakeExecutor()
	exec.responses["SHOW INDEXES"] = []map[string]any{
		{"labelsOrTypes": []any{"Session"}, "properties": []any{"key_text"}},
		// Composite entries never match single-property specs.
		{"labelsOrTypes": []any{"Visitor"}, "properties": []any{"badge_id", "email"}},
	}

	m := NewSchemaManager(exec)
	specs := []IndexSpec{
		{Label: "Session", Property: "key_text"},
		{Label: "Visitor", Property: "badge_id"},
	}
	assert.NoError(t, m.EnsureIndexes(context.Background(), specs))

	created := exec.queriesContaining("CREATE INDEX")
	assert.Len(t, created, 1)
	assert.Contains(t, created[0], "Visitor")
}

func TestDefaultConstraints_CoverEveryLabelKey(t *testing.T) {
	specs := DefaultConstraints()
	byPair := make(map[string]bool, len(specs))
	for _, spec := range specs {
		byPair[spec.Label+"."+spec.Property] = true
	}
	for _, label := range VisitorLabels() {
		assert.True(t, byPair[label+".badge_id"], "missing badge_id constraint for %s", label)
	}
	for _, label := range SessionLabels() {
		assert.True(t, byPair[label+".session_id"], "missing session_id constraint for %s", label)
	}
	assert.True(t, byPair["Stream.name"])
}

func TestValidIdentifier(t *testing.T) {
	assert.NoError(t, ValidIdentifier("Visitor"))
	assert.NoError(t, ValidIdentifier("VisitorLastYear"))
	assert.NoError(t, ValidIdentifier("badge_id"))
	assert.NoError(t, ValidIdentifier("_internal"))

	assert.Error(t, ValidIdentifier(""))
	assert.Error(t, ValidIdentifier("9lives"))
	assert.Error(t, ValidIdentifier("bad name"))
	assert.Error(t, ValidIdentifier("n) DETACH DELETE (m"))
	assert.Error(t, ValidIdentifier("name;drop"))
}
