package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "expograph/pkg/errors"
	"expograph/pkg/logger"
)

// DefaultQueryTimeout bounds every query so no operation blocks indefinitely
const DefaultQueryTimeout = 60 * time.Second

// Executor dispatches one query per call. Read calls never mutate; write
// calls run inside a single driver-managed transaction with retry on
// transient transport failures.
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error)
}

// TxFunc runs one statement inside the enclosing managed transaction
type TxFunc func(query string, params map[string]any) ([]map[string]any, error)

// BatchExecutor extends Executor with a multi-statement unit of work that
// commits or rolls back as one write transaction. Callers that must not
// observe state changes between their own statements use this instead of
// separate Execute calls.
type BatchExecutor interface {
	Executor
	ExecuteTx(ctx context.Context, fn func(run TxFunc) error) error
}

// Client owns the single Neo4j connection pool shared by every component
// for the process lifetime. Callers must Close it on shutdown.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient connects to Neo4j, verifies connectivity and runs a trivial
// count probe. Missing credentials or an unreachable store is fatal here,
// before any mutation is attempted.
func NewClient(ctx context.Context, uri, user, password, database string) (*Client, error) {
	if uri == "" {
		return nil, apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if user == "" {
		return nil, apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if password == "" {
		return nil, apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}

	c := &Client{
		driver:   driver,
		database: database,
		timeout:  DefaultQueryTimeout,
		logger:   logger.Get(),
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}

	// Startup probe: a trivial count query proves we can actually run
	// statements, not just open a socket.
	rows, err := c.Execute(ctx, "MATCH (n) RETURN count(n) AS node_count", nil, false)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if len(rows) == 1 {
		c.logger.Info("Connected to Neo4j",
			zap.String("uri", uri),
			zap.Int64("node_count", getInt64(rows[0], "node_count", 0)),
		)
	}

	return c, nil
}

// Close releases the connection pool
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Execute runs one query in its own session. Writes go through
// ExecuteWrite so the driver retries transient failures; reads go through
// ExecuteRead and can be routed to followers.
func (c *Client) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	}

	var out any
	var err error
	if write {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return out.([]map[string]any), nil
}

// ExecuteTx runs fn inside one managed write transaction. Every statement fn
// issues through run sees the same snapshot and commits atomically; an error
// from fn rolls the whole unit back. The driver may re-invoke fn on transient
// failures, so fn must be safe to run more than once. Errors from fn are
// returned unwrapped so their classification survives.
func (c *Client) ExecuteTx(ctx context.Context, fn func(run TxFunc) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		run := func(query string, params map[string]any) ([]map[string]any, error) {
			result, err := tx.Run(ctx, query, params)
			if err != nil {
				return nil, err
			}
			records, err := result.Collect(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]any, 0, len(records))
			for _, record := range records {
				rows = append(rows, record.AsMap())
			}
			return rows, nil
		}
		return nil, fn(run)
	})
	return err
}
