// Package postgres provides the PostgreSQL connection pool, migration
// runner, and the durable store backing the Knowledge Graph Core.
package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store persists entities, relationships, and community assignments
// for internal/graph.Graph so a process restart does not lose the
// accumulated knowledge graph.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
