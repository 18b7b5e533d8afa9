// Package postgres implements the store contract on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/capitalize-ai/advisor-platform/internal/store"
	"github.com/capitalize-ai/advisor-platform/pkg/logger"
)

// DBTX is implemented by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// TableNames holds the (optionally prefixed) table names.
type TableNames struct {
	Conversations string
	Messages      string
	Members       string
}

// NewTableNames creates table names with the given prefix, e.g. "dev_".
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Conversations: prefix + "conversations",
		Messages:      prefix + "conversation_messages",
		Members:       prefix + "organization_members",
	}
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *logger.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a Store.
func New(pool *pgxpool.Pool, tables *TableNames, log *logger.Logger) *Store {
	return &Store{
		pool:   pool,
		tables: tables,
		logger: log,
	}
}

// CreateConnectionPool creates a pgx pool and verifies the connection.
// Port 6543 (a transaction-mode pooler) gets the describe-cache exec mode,
// since it cannot hold prepared statements.
func CreateConnectionPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MinConns = 2

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// executor returns the transaction stored in ctx, or the pool.
func (s *Store) executor(ctx context.Context) DBTX {
	if tx := getTx(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *Store) logRollbackFailure(err error) {
	s.logger.Error("transaction rollback failed", zap.Error(err))
}
