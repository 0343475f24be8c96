// Package pgstore implements the pgx-backed alternative to the default
// file-backed engine for the encrypted KV store: same Put/Get/Remove/
// Flush/ApproximateSize/ForEach contract, backed by a single table over a
// pgxpool.Pool instead of an in-memory map plus append-only log.
//
// Pool construction, schema init from an inline SQL template, and a
// context.Background() call site for the synchronous store.Backend
// contract (which does not thread a context through) follow the same
// pgxpool.Pool field/Exec/QueryRow usage pattern used elsewhere for
// Postgres-backed components in this codebase.
package pgstore

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
)

// validTable restricts table names (an identifier embedded directly into
// the query text, since pgx params can't bind identifiers) to a safe
// charset via an allow-list check.
var validTable = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const schemaSQLTemplate = `
CREATE TABLE IF NOT EXISTS %s (
	k BYTEA PRIMARY KEY,
	v BYTEA NOT NULL
);
`

// Store is a pgx-backed encrypted KV store, an alternative to the default
// file-backed internal/sse/store.Store for deployments that want a shared,
// durable backend instead of a per-process log file. Table is namespaced
// per scheme/directory via the table parameter given to Open, so distinct
// Sophos/Diana/Janus stores can share one database.
type Store struct {
	pool  *pgxpool.Pool
	table string
	puts  uint64 // approximate_size, mirroring store.Store's semantics
}

var _ store.Backend = (*Store)(nil)

// Open connects to connStr and ensures table exists, creating it with a
// (k, v) BYTEA layout on first use (idempotent connect-then-init-schema
// two-step).
func Open(ctx context.Context, connStr, table string) (*Store, error) {
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("pgstore: invalid table name %q: %w", table, sseerr.ErrInvalidArgument)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgstore: unable to connect: %w: %v", sseerr.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping failed: %w: %v", sseerr.ErrStorageUnavailable, err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaSQLTemplate, table)); err != nil {
		return nil, fmt.Errorf("pgstore: schema init failed: %w: %v", sseerr.ErrStorageUnavailable, err)
	}

	log.Printf("[Store] connected to pgx-backed KV store, table=%s", table)
	return &Store{pool: pool, table: table}, nil
}

// Put inserts or overwrites the value at k.
func (s *Store) Put(k, v []byte) error {
	if len(k) > store.MaxKeySize {
		return fmt.Errorf("pgstore: key exceeds %d bytes: %w", store.MaxKeySize, sseerr.ErrInvalidArgument)
	}
	sql := fmt.Sprintf(`INSERT INTO %s (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`, s.table)
	if _, err := s.pool.Exec(context.Background(), sql, k, v); err != nil {
		return fmt.Errorf("pgstore: put failed: %w: %v", sseerr.ErrStorageUnavailable, err)
	}
	s.puts++
	return nil
}

// Get returns the value at k and whether it was present.
func (s *Store) Get(k []byte) ([]byte, bool) {
	sql := fmt.Sprintf(`SELECT v FROM %s WHERE k = $1`, s.table)
	var v []byte
	err := s.pool.QueryRow(context.Background(), sql, k).Scan(&v)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Remove deletes the value at k, returning whether a value was present.
func (s *Store) Remove(k []byte) (bool, error) {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE k = $1`, s.table)
	tag, err := s.pool.Exec(context.Background(), sql, k)
	if err != nil {
		return false, fmt.Errorf("pgstore: remove failed: %w: %v", sseerr.ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Flush is a no-op: every Put/Remove above already commits its own
// statement, so there is no write-behind buffer to drain. Kept to satisfy
// store.Backend's durable-after-flush contract (trivially true here).
func (s *Store) Flush(blocking bool) error {
	return nil
}

// ApproximateSize returns the number of puts observed, matching
// store.Store's "counts puts, not live keys" semantics.
func (s *Store) ApproximateSize() uint64 {
	return s.puts
}

// ForEach iterates the live key set in unspecified order.
func (s *Store) ForEach(fn func(k, v []byte)) {
	sql := fmt.Sprintf(`SELECT k, v FROM %s`, s.table)
	rows, err := s.pool.Query(context.Background(), sql)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return
		}
		fn(k, v)
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
