package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"expograph/internal/graph"
	apperrors "expograph/pkg/errors"
	"expograph/pkg/logger"
)

// Stats reports one embedding run
type Stats struct {
	Processed         int
	WithEmbeddings    int
	WithStreamContext int
	ByLabel           map[string]int
	BatchErrors       int
}

// Generator computes a dense vector per session node and persists it as a
// serialized node property for semantic search. Per session the states are
// {no-embedding, embedded}; re-embedding happens only when createOnlyNew is
// false. Each batch is selected and written back inside one transaction, so
// two overlapping runs cannot both claim the same embedding-less sessions.
type Generator struct {
	exec   graph.BatchExecutor
	embed  Func
	logger *zap.Logger

	// BatchSize bounds peak memory; sessions are processed in fixed-size
	// batches keyed by an id cursor.
	BatchSize int
	// IncludeStreamDescriptions appends resolved stream descriptions to the
	// composite text. This materially changes the semantic content of the
	// embedding, so it is an explicit toggle rather than a hidden default.
	IncludeStreamDescriptions bool
	// Labels are the session labels to process
	Labels []string
}

// NewGenerator creates an embedding generator over the default session labels
func NewGenerator(exec graph.BatchExecutor, embedFn Func, batchSize int, includeStreamDescriptions bool) *Generator {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Generator{
		exec:                      exec,
		embed:                     embedFn,
		logger:                    logger.Get(),
		BatchSize:                 batchSize,
		IncludeStreamDescriptions: includeStreamDescriptions,
		Labels:                    graph.SessionLabels(),
	}
}

// ComputeEmbeddings processes every session label. With createOnlyNew, only
// sessions lacking an embedding are selected; otherwise every session is
// re-embedded. A failing batch is logged and skipped; later batches and
// labels still run.
func (g *Generator) ComputeEmbeddings(ctx context.Context, createOnlyNew bool) (*Stats, error) {
	stats := &Stats{ByLabel: make(map[string]int, len(g.Labels))}

	descriptions, err := g.streamDescriptions(ctx)
	if err != nil {
		return stats, err
	}

	for _, label := range g.Labels {
		if err := g.processLabel(ctx, label, createOnlyNew, descriptions, stats); err != nil {
			return stats, err
		}
	}

	g.logger.Info("Embedding run complete",
		zap.Int("processed", stats.Processed),
		zap.Int("with_embeddings", stats.WithEmbeddings),
		zap.Int("with_stream_context", stats.WithStreamContext),
		zap.Int("batch_errors", stats.BatchErrors),
	)
	return stats, nil
}

func (g *Generator) processLabel(ctx context.Context, label string, createOnlyNew bool, descriptions map[string]string, stats *Stats) error {
	if err := graph.ValidIdentifier(label); err != nil {
		return err
	}

	filter := ""
	if createOnlyNew {
		filter = "AND s.embedding IS NULL"
	}
	selectQuery := fmt.Sprintf(`
		MATCH (s:%s)
		WHERE s.session_id > $cursor %s
		RETURN s.session_id AS id,
			coalesce(s.title, '') AS title,
			coalesce(s.synopsis, '') AS synopsis,
			coalesce(s.venue, '') AS venue,
			coalesce(s.key_text, '') AS key_text,
			coalesce(s.streams, '') AS streams
		ORDER BY s.session_id
		LIMIT $limit
	`, label, filter)
	writeQuery := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (s:%s {session_id: row.id})
		SET s.embedding = row.embedding,
			s.embedding_model_context = row.with_context
		RETURN count(s) AS written
	`, label)

	cursor := ""
	batch := 0
	for {
		batch++
		sessions, written, withContext, err := g.processBatch(ctx, selectQuery, writeQuery, cursor, descriptions)
		if err != nil && len(sessions) == 0 {
			// The select itself failed; there is no batch to contain.
			return err
		}
		if len(sessions) == 0 {
			break
		}
		cursor = sessions[len(sessions)-1].ID
		stats.Processed += len(sessions)

		if err != nil {
			// Batch boundary is the unit of recovery: the transaction rolled
			// back, nothing was persisted. Record, skip, move on.
			stats.BatchErrors++
			g.logger.Error("Embedding batch failed, skipping",
				zap.String("label", label),
				zap.Int("batch", batch),
				zap.Error(apperrors.NewBatchProcessingFailed(label, batch, err)),
			)
			continue
		}
		stats.WithEmbeddings += written
		stats.WithStreamContext += withContext
		stats.ByLabel[label] += written
	}

	return nil
}

// processBatch selects one batch of sessions, embeds their composite text and
// writes the vectors back, all inside a single write transaction: between the
// select and the write no other run can claim the same sessions. The driver
// may re-invoke the unit on transient failures, so all accumulation resets at
// the top.
func (g *Generator) processBatch(ctx context.Context, selectQuery, writeQuery, cursor string, descriptions map[string]string) (sessions []graph.SessionText, written, withContext int, err error) {
	err = g.exec.ExecuteTx(ctx, func(run graph.TxFunc) error {
		sessions = sessions[:0]
		written, withContext = 0, 0

		rows, err := run(selectQuery, map[string]any{
			"cursor": cursor,
			"limit":  g.BatchSize,
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			sessions = append(sessions, graph.SessionText{
				ID:       stringValue(row, "id"),
				Title:    stringValue(row, "title"),
				Synopsis: stringValue(row, "synopsis"),
				Venue:    stringValue(row, "venue"),
				KeyText:  stringValue(row, "key_text"),
				Streams:  stringValue(row, "streams"),
			})
		}
		if len(sessions) == 0 {
			return nil
		}

		texts := make([]string, len(sessions))
		contextFlags := make([]bool, len(sessions))
		for i, session := range sessions {
			texts[i], contextFlags[i] = g.compositeText(session, descriptions)
		}

		vectors, err := g.embed(ctx, texts)
		if err != nil {
			return err
		}

		writeRows := make([]map[string]any, 0, len(sessions))
		contextCount := 0
		for i, session := range sessions {
			serialized, err := json.Marshal(vectors[i])
			if err != nil {
				return fmt.Errorf("failed to serialize embedding for %s: %w", session.ID, err)
			}
			writeRows = append(writeRows, map[string]any{
				"id":           session.ID,
				"embedding":    string(serialized),
				"with_context": contextFlags[i],
			})
			if contextFlags[i] {
				contextCount++
			}
		}

		result, err := run(writeQuery, map[string]any{"rows": writeRows})
		if err != nil {
			return err
		}
		if len(result) == 1 {
			if v, ok := result[0]["written"].(int64); ok {
				written = int(v)
			}
		}
		withContext = contextCount
		return nil
	})
	return sessions, written, withContext, err
}

// compositeText builds the text an embedding is computed from: title,
// synopsis, venue, normalized-title key and the raw stream labels, plus
// resolved stream descriptions when the toggle is on. Returns whether any
// description was appended.
func (g *Generator) compositeText(s graph.SessionText, descriptions map[string]string) (string, bool) {
	parts := make([]string, 0, 8)
	for _, part := range []string{s.Title, s.Synopsis, s.Venue, s.KeyText, s.Streams} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	withContext := false
	if g.IncludeStreamDescriptions && s.Streams != "" {
		seen := make(map[string]bool)
		for _, fragment := range strings.Split(s.Streams, ";") {
			name := strings.ToLower(strings.TrimSpace(fragment))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			if desc, ok := descriptions[name]; ok && desc != "" {
				parts = append(parts, desc)
				withContext = true
			}
		}
	}

	return strings.Join(parts, "\n"), withContext
}

// streamDescriptions loads the stream vocabulary once per run, keyed by
// lower-cased name for case-insensitive lookup
func (g *Generator) streamDescriptions(ctx context.Context) (map[string]string, error) {
	rows, err := g.exec.Execute(ctx, `
		MATCH (s:Stream)
		RETURN s.name AS name, coalesce(s.description, '') AS description
	`, nil, false)
	if err != nil {
		return nil, err
	}
	descriptions := make(map[string]string, len(rows))
	for _, row := range rows {
		name := strings.ToLower(strings.TrimSpace(stringValue(row, "name")))
		if name != "" {
			descriptions[name] = stringValue(row, "description")
		}
	}
	return descriptions, nil
}

func stringValue(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
