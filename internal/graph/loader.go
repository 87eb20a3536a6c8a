package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"expograph/pkg/logger"
)

// loadBatchSize bounds the number of rows sent per UNWIND statement
const loadBatchSize = 1000

// Loader materializes nodes and edges from the enriched flat tables. Every
// statement is MERGE-style against a constrained key, so repeated loads of
// identical input are no-ops.
type Loader struct {
	exec   Executor
	logger *zap.Logger
}

// NewLoader creates a graph loader
func NewLoader(exec Executor) *Loader {
	return &Loader{
		exec:   exec,
		logger: logger.Get(),
	}
}

// UpsertVisitors merges visitor nodes keyed by badge identifier. Row maps
// must contain a badge_id entry; remaining entries become node properties.
func (l *Loader) UpsertVisitors(ctx context.Context, label string, rows []map[string]any) (int, error) {
	if err := ValidIdentifier(label); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (v:%s {badge_id: row.badge_id})
		SET v += row
		RETURN count(v) AS merged
	`, label)
	return l.runBatches(ctx, query, rows, "merged")
}

// UpsertSessions merges session nodes keyed by session identifier
func (l *Loader) UpsertSessions(ctx context.Context, label string, rows []map[string]any) (int, error) {
	if err := ValidIdentifier(label); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (s:%s {session_id: row.session_id})
		SET s += row
		RETURN count(s) AS merged
	`, label)
	return l.runBatches(ctx, query, rows, "merged")
}

// UpsertStreams merges stream nodes keyed by name. An empty incoming
// description never clobbers an existing one.
func (l *Loader) UpsertStreams(ctx context.Context, streams []Stream) (int, error) {
	rows := make([]map[string]any, 0, len(streams))
	for _, s := range streams {
		rows = append(rows, map[string]any{"name": s.Name, "description": s.Description})
	}
	query := `
		UNWIND $rows AS row
		MERGE (s:Stream {name: row.name})
		ON CREATE SET s.description = row.description
		ON MATCH SET s.description = CASE WHEN row.description <> '' THEN row.description ELSE s.description END
		RETURN count(s) AS merged
	`
	return l.runBatches(ctx, query, rows, "merged")
}

// LinkSessionStreams splits each session's semicolon-delimited stream field
// and merges SESSION_STREAM edges. Stream names match case-insensitively.
func (l *Loader) LinkSessionStreams(ctx context.Context, sessionLabel string) (int, error) {
	if err := ValidIdentifier(sessionLabel); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		MATCH (sess:%s)
		WHERE sess.streams IS NOT NULL AND sess.streams <> ''
		UNWIND [part IN split(sess.streams, ';') | trim(part)] AS streamName
		WITH sess, streamName
		WHERE streamName <> ''
		MATCH (st:Stream)
		WHERE toLower(st.name) = toLower(streamName)
		MERGE (sess)-[:SESSION_STREAM]->(st)
		RETURN count(*) AS linked
	`, sessionLabel)
	rows, err := l.exec.Execute(ctx, query, nil, true)
	if err != nil {
		return 0, err
	}
	linked := 0
	if len(rows) == 1 {
		linked = int(getInt64(rows[0], "linked", 0))
	}
	l.logger.Info("Session streams linked",
		zap.String("label", sessionLabel),
		zap.Int("linked", linked),
	)
	return linked, nil
}

// LinkAttendance merges ATTENDED_SESSION edges from enriched scan rows.
// Rows carry badge_id, key_text and scan_time; rows whose visitor or
// session is absent from the graph simply match nothing.
func (l *Loader) LinkAttendance(ctx context.Context, visitorLabel, sessionLabel string, rows []map[string]any) (int, error) {
	if err := ValidIdentifier(visitorLabel); err != nil {
		return 0, err
	}
	if err := ValidIdentifier(sessionLabel); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (v:%s {badge_id: row.badge_id})
		MATCH (s:%s {key_text: row.key_text})
		MERGE (v)-[r:ATTENDED_SESSION]->(s)
		SET r.scan_time = row.scan_time
		RETURN count(r) AS linked
	`, visitorLabel, sessionLabel)
	return l.runBatches(ctx, query, rows, "linked")
}

// LinkSameVisitor merges SAME_VISITOR edges between current-edition and
// past-edition visitors sharing a badge identifier. The edition tag records
// which past edition the match came from.
func (l *Loader) LinkSameVisitor(ctx context.Context, pastLabel, edition string) (int, error) {
	if err := ValidIdentifier(pastLabel); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		MATCH (c:%s)
		MATCH (p:%s {badge_id: c.badge_id})
		MERGE (c)-[r:SAME_VISITOR]->(p)
		SET r.edition = $edition
		RETURN count(r) AS linked
	`, LabelVisitor, pastLabel)
	rows, err := l.exec.Execute(ctx, query, map[string]any{"edition": edition}, true)
	if err != nil {
		return 0, err
	}
	linked := 0
	if len(rows) == 1 {
		linked = int(getInt64(rows[0], "linked", 0))
	}
	l.logger.Info("Same-visitor links merged",
		zap.String("past_label", pastLabel),
		zap.String("edition", edition),
		zap.Int("linked", linked),
	)
	return linked, nil
}

// runBatches chunks rows to bound statement size and sums the returned count
func (l *Loader) runBatches(ctx context.Context, query string, rows []map[string]any, countKey string) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += loadBatchSize {
		end := start + loadBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		result, err := l.exec.Execute(ctx, query, map[string]any{"rows": rows[start:end]}, true)
		if err != nil {
			return total, err
		}
		if len(result) == 1 {
			total += int(getInt64(result[0], countKey, 0))
		}
	}
	return total, nil
}
