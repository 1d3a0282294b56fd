package livestate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// stateLockKey identifies the archiver's advisory lock; it only needs to be unique
// among advisory locks taken against the same database
const stateLockKey = 0x626f78636173

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS archiver;
CREATE TABLE IF NOT EXISTS archiver.state (
	id         integer PRIMARY KEY,
	document   jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// PostgresStore persists state as a single JSONB row, for deployments where the
// archiver runs on a host without reliable local disk
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// EnsureSchema creates the state table if it doesn't already exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

// Lock takes a session-level advisory lock, pinned to a dedicated connection for as
// long as the lock is held
func (s *PostgresStore) Lock(ctx context.Context) (func(), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", stateLockKey); err != nil {
		conn.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to acquire state lock: %w", err)
	}
	return func() {
		conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", stateLockKey)
		conn.Close()
	}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM archiver.state WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return NewDocument(), nil
	}
	if err != nil {
		return NewDocument(), errors.Join(ErrCorruptState, err)
	}
	return decodeDocument(data)
}

func (s *PostgresStore) Save(ctx context.Context, doc *Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO archiver.state (id, document, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`, string(data))
	if err != nil {
		return err
	}
	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if numRowsAffected != int64(1) {
		return fmt.Errorf("failed to save state: expected to affect 1 rows; instead affected %d", numRowsAffected)
	}
	return nil
}
