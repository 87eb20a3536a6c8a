package relate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"expograph/internal/graph"
	"expograph/internal/mapping"
	apperrors "expograph/pkg/errors"
	"expograph/pkg/logger"
)

// LabelStats reports one visitor label's relationship-builder run. Potential
// counts edges that would exist if none were present (visitors × streams per
// distinct value); Skipped is how much of the run was a no-op.
type LabelStats struct {
	Label          string
	DistinctValues int
	Unmapped       int
	Processed      int
	Created        int
	Skipped        int
	Potential      int
	Err            error
}

// Builder creates SPECIALIZATION_TO_STREAM edges from visitors to stream
// nodes. Work is batched per distinct raw specialization string, not per
// visitor, which bounds query count to the number of distinct strings and
// keeps the step tractable on tens of thousands of visitor nodes.
type Builder struct {
	exec    graph.Executor
	mapping *mapping.SpecializationMapping
	logger  *zap.Logger
}

// NewBuilder creates a relationship builder
func NewBuilder(exec graph.Executor, m *mapping.SpecializationMapping) *Builder {
	return &Builder{
		exec:    exec,
		mapping: m,
		logger:  logger.Get(),
	}
}

// BuildRelationships processes one visitor label. With createOnlyNew, only
// edges not already present are created, so repeated runs are strictly
// additive; otherwise an unconditional MERGE upserts every pair.
func (b *Builder) BuildRelationships(ctx context.Context, visitorLabel, field string, createOnlyNew bool) (*LabelStats, error) {
	stats := &LabelStats{Label: visitorLabel}
	if err := validateIdentifiers(visitorLabel, field); err != nil {
		return stats, err
	}

	values, err := b.distinctValues(ctx, visitorLabel, field)
	if err != nil {
		return stats, err
	}
	stats.DistinctValues = len(values)

	for _, value := range values {
		streams := b.mapping.StreamsFor(value)
		if len(streams) == 0 {
			stats.Unmapped++
			b.logger.Debug("No streams mapped for specialization",
				zap.String("label", visitorLabel),
				zap.String("value", value),
			)
			continue
		}

		visitorCount, err := b.countVisitors(ctx, visitorLabel, field, value)
		if err != nil {
			return stats, err
		}
		stats.Processed += visitorCount
		stats.Potential += visitorCount * len(streams)

		created, err := b.createEdges(ctx, visitorLabel, field, value, streams, createOnlyNew)
		if err != nil {
			return stats, err
		}
		stats.Created += created
	}
	stats.Skipped = stats.Potential - stats.Created

	b.logger.Info("Specialization relationships built",
		zap.String("label", visitorLabel),
		zap.Int("distinct_values", stats.DistinctValues),
		zap.Int("unmapped", stats.Unmapped),
		zap.Int("processed", stats.Processed),
		zap.Int("created", stats.Created),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// BuildAll runs every visitor label. Labels operate on disjoint node sets,
// so they run concurrently; a failure in one label is caught, recorded on
// its stats entry and does not prevent the others from completing.
func (b *Builder) BuildAll(ctx context.Context, labels []string, field string, createOnlyNew bool) map[string]*LabelStats {
	results := make(map[string]*LabelStats, len(labels))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, label := range labels {
		label := label
		g.Go(func() error {
			stats, err := b.BuildRelationships(ctx, label, field, createOnlyNew)
			if err != nil {
				stats.Err = apperrors.NewLabelProcessingFailed(label, err)
				b.logger.Error("Label processing failed, continuing with remaining labels",
					zap.String("label", label),
					zap.Error(err),
				)
			}
			mu.Lock()
			results[label] = stats
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (b *Builder) distinctValues(ctx context.Context, label, field string) ([]string, error) {
	query := fmt.Sprintf(`
		MATCH (v:%s)
		WHERE v.%s IS NOT NULL AND v.%s <> ''
		RETURN DISTINCT v.%s AS value
	`, label, field, field, field)
	rows, err := b.exec.Execute(ctx, query, nil, false)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if value, ok := row["value"].(string); ok && value != "" {
			values = append(values, value)
		}
	}
	return values, nil
}

func (b *Builder) countVisitors(ctx context.Context, label, field, value string) (int, error) {
	query := fmt.Sprintf(`
		MATCH (v:%s {%s: $value})
		RETURN count(v) AS visitors
	`, label, field)
	rows, err := b.exec.Execute(ctx, query, map[string]any{"value": value}, false)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, nil
	}
	visitors, _ := rows[0]["visitors"].(int64)
	return int(visitors), nil
}

func (b *Builder) createEdges(ctx context.Context, label, field, value string, streams []string, createOnlyNew bool) (int, error) {
	var query string
	if createOnlyNew {
		query = fmt.Sprintf(`
			MATCH (v:%s {%s: $value})
			UNWIND $streams AS streamName
			MATCH (s:Stream)
			WHERE toLower(s.name) = toLower(streamName)
			AND NOT (v)-[:%s]->(s)
			CREATE (v)-[:%s]->(s)
			RETURN count(*) AS created
		`, label, field, graph.RelSpecializationToStream, graph.RelSpecializationToStream)
	} else {
		query = fmt.Sprintf(`
			MATCH (v:%s {%s: $value})
			UNWIND $streams AS streamName
			MATCH (s:Stream)
			WHERE toLower(s.name) = toLower(streamName)
			MERGE (v)-[:%s]->(s)
			RETURN count(*) AS created
		`, label, field, graph.RelSpecializationToStream)
	}

	rows, err := b.exec.Execute(ctx, query, map[string]any{
		"value":   value,
		"streams": streams,
	}, true)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, nil
	}
	created, _ := rows[0]["created"].(int64)
	return int(created), nil
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if err := graph.ValidIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}
