package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in a single documents table with a
// jsonb payload. Filters compile to jsonb containment so equality queries
// can use the GIN index created by the migrations.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore() PostgresStore {
	return PostgresStore{Pool: nil}
}

func (s *PostgresStore) Connect(ctx context.Context, connString string) error {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("unable to parse database configuration: %w", err)
	}

	s.Pool, err = pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("unable to create database pool: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() {
	s.Pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) Put(ctx context.Context, collection, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", collection, id, err)
	}

	if _, err := s.Pool.Exec(ctx, `
		INSERT INTO tbl_document (collection, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id) DO UPDATE SET data = $3, updated_at = now()`,
		collection, id, data); err != nil {
		return fmt.Errorf("failed to put document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string, out any) error {
	var data []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT data FROM tbl_document WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, order []Ordering) ([]json.RawMessage, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM tbl_document WHERE collection = $1`)
	args := []any{collection}

	for _, f := range filters {
		match, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter on %s: %w", f.Field, err)
		}
		args = append(args, match)
		switch f.Op {
		case OpEqual:
			fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
		case OpNotEqual:
			fmt.Fprintf(&sb, ` AND NOT data @> $%d::jsonb`, len(args))
		default:
			return nil, fmt.Errorf("unsupported filter op: %d", f.Op)
		}
	}

	for i, o := range order {
		if i == 0 {
			sb.WriteString(` ORDER BY `)
		} else {
			sb.WriteString(`, `)
		}
		args = append(args, o.Field)
		fmt.Fprintf(&sb, `data->>$%d::text`, len(args))
		if o.Desc {
			sb.WriteString(` DESC`)
		}
	}

	rows, err := s.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var results []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document from %s: %w", collection, err)
		}
		results = append(results, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents from %s: %w", collection, err)
	}
	return results, nil
}

func (s *PostgresStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch write: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, op := range ops {
		data, err := json.Marshal(op.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal document %s/%s: %w", op.Collection, op.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tbl_document (collection, id, data, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (collection, id) DO UPDATE SET data = $3, updated_at = now()`,
			op.Collection, op.ID, data); err != nil {
			return fmt.Errorf("failed to write document %s/%s: %w", op.Collection, op.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch write: %w", err)
	}
	return nil
}
