package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "expograph/pkg/errors"
	"expograph/pkg/logger"
)

// ConstraintSpec names one uniqueness constraint
type ConstraintSpec struct {
	Label    string
	Property string
}

// IndexSpec names one secondary index
type IndexSpec struct {
	Label    string
	Property string
}

// SchemaManager declares constraints and indexes before any data loads.
// Both operations are idempotent: anything already present is skipped.
type SchemaManager struct {
	exec   Executor
	logger *zap.Logger
}

// NewSchemaManager creates a schema manager
func NewSchemaManager(exec Executor) *SchemaManager {
	return &SchemaManager{
		exec:   exec,
		logger: logger.Get(),
	}
}

// DefaultConstraints returns the uniqueness constraints for every node
// label's key property. These are the only deduplication mechanism in the
// pipeline: every mutation is a MERGE against one of these keys.
func DefaultConstraints() []ConstraintSpec {
	specs := make([]ConstraintSpec, 0, 6)
	for _, label := range VisitorLabels() {
		specs = append(specs, ConstraintSpec{Label: label, Property: KeyBadgeID})
	}
	for _, label := range SessionLabels() {
		specs = append(specs, ConstraintSpec{Label: label, Property: KeySessionID})
	}
	specs = append(specs, ConstraintSpec{Label: LabelStream, Property: KeyStream})
	return specs
}

// DefaultIndexes returns the secondary indexes used by the loaders and the
// read-only query surface. Missing one degrades performance, not correctness.
func DefaultIndexes() []IndexSpec {
	specs := make([]IndexSpec, 0, 5)
	for _, label := range SessionLabels() {
		specs = append(specs, IndexSpec{Label: label, Property: "key_text"})
	}
	for _, label := range VisitorLabels() {
		specs = append(specs, IndexSpec{Label: label, Property: "specialization"})
	}
	return specs
}

// EnsureConstraints creates each missing uniqueness constraint. A creation
// failure is fatal: without the constraint, re-running ingestion risks
// duplicate nodes.
func (m *SchemaManager) EnsureConstraints(ctx context.Context, specs []ConstraintSpec) error {
	existing, err := m.existingPairs(ctx, "SHOW CONSTRAINTS YIELD labelsOrTypes, properties RETURN labelsOrTypes, properties")
	if err != nil {
		return err
	}

	for _, spec := range specs {
		if err := ValidIdentifier(spec.Label); err != nil {
			return err
		}
		if err := ValidIdentifier(spec.Property); err != nil {
			return err
		}
		if existing[pairKey(spec.Label, spec.Property)] {
			m.logger.Debug("Constraint already exists, skipping",
				zap.String("label", spec.Label),
				zap.String("property", spec.Property),
			)
			continue
		}

		query := fmt.Sprintf(
			"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			strings.ToLower(spec.Label), spec.Property, spec.Label, spec.Property,
		)
		if _, err := m.exec.Execute(ctx, query, nil, true); err != nil {
			return apperrors.NewConstraintCreationFailed(spec.Label, spec.Property, err)
		}
		m.logger.Info("Constraint created",
			zap.String("label", spec.Label),
			zap.String("property", spec.Property),
		)
	}
	return nil
}

// EnsureIndexes creates each missing secondary index. Individual failures
// are logged and do not abort the batch.
func (m *SchemaManager) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	existing, err := m.existingPairs(ctx, "SHOW INDEXES YIELD labelsOrTypes, properties RETURN labelsOrTypes, properties")
	if err != nil {
		return err
	}

	for _, spec := range specs {
		if err := ValidIdentifier(spec.Label); err != nil {
			return err
		}
		if err := ValidIdentifier(spec.Property); err != nil {
			return err
		}
		if existing[pairKey(spec.Label, spec.Property)] {
			m.logger.Debug("Index already exists, skipping",
				zap.String("label", spec.Label),
				zap.String("property", spec.Property),
			)
			continue
		}

		query := fmt.Sprintf(
			"CREATE INDEX %s_%s_idx IF NOT EXISTS FOR (n:%s) ON (n.%s)",
			strings.ToLower(spec.Label), spec.Property, spec.Label, spec.Property,
		)
		if _, err := m.exec.Execute(ctx, query, nil, true); err != nil {
			m.logger.Warn("Index creation failed, continuing",
				zap.String("label", spec.Label),
				zap.String("property", spec.Property),
				zap.Error(err),
			)
		} else {
			m.logger.Info("Index created",
				zap.String("label", spec.Label),
				zap.String("property", spec.Property),
			)
		}
	}
	return nil
}

// existingPairs lists (label, property) pairs already covered by a
// constraint or index
func (m *SchemaManager) existingPairs(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := m.exec.Execute(ctx, query, nil, false)
	if err != nil {
		return nil, err
	}

	pairs := make(map[string]bool)
	for _, row := range rows {
		labels := getStringSlice(row, "labelsOrTypes")
		properties := getStringSlice(row, "properties")
		// Single-label, single-property schema entries only; composite
		// entries never match our specs.
		if len(labels) == 1 && len(properties) == 1 {
			pairs[pairKey(labels[0], properties[0])] = true
		}
	}
	return pairs, nil
}

func pairKey(label, property string) string {
	return label + "|" + property
}
