package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			project_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, seq)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init transcript schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, projectID string) (Transcript, error) {
	return loadTurns(ctx, s.pool, projectID)
}

func (s *PostgresStore) Append(ctx context.Context, projectID string, reset bool, turn Turn) (Transcript, error) {
	if err := validateTurn(turn); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes writers on the same project across processes sharing the database.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, projectID); err != nil {
		return nil, fmt.Errorf("lock transcript: %w", err)
	}

	if reset {
		if _, err := tx.Exec(ctx, `DELETE FROM transcript_turns WHERE project_id=$1`, projectID); err != nil {
			return nil, fmt.Errorf("reset transcript: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transcript_turns (project_id, seq, role, content)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3 FROM transcript_turns WHERE project_id=$1`,
		projectID,
		string(turn.Role),
		turn.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	out, err := loadTurns(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, projectID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transcript_turns WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTurns(ctx context.Context, q querier, projectID string) (Transcript, error) {
	rows, err := q.Query(ctx,
		`SELECT role, content FROM transcript_turns WHERE project_id=$1 ORDER BY seq ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	out := make(Transcript, 0, 16)
	for rows.Next() {
		var (
			turn Turn
			role string
		)
		if err := rows.Scan(&role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		turn.Role = Role(role)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return out, nil
}
