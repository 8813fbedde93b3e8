package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/knotworks/strata/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// KV stores values of one collection as JSONB rows keyed by id.
type KV[T any] struct {
	conn       pgxIConn
	collection string
}

// NewKV returns a collection-scoped key-value store on the given connection.
func NewKV[T any](conn pgxIConn, collection string) *KV[T] {
	return &KV[T]{conn: conn, collection: collection}
}

var _ store.KVStorage[struct{}] = (*KV[struct{}])(nil)

func (kv *KV[T]) GetByID(ctx context.Context, id string) (*T, error) {
	row := kv.conn.QueryRow(ctx,
		`SELECT data FROM kv_store WHERE collection = $1 AND id = $2`,
		kv.collection, id,
	)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", kv.collection, id, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", kv.collection, id, err)
	}
	return &out, nil
}

func (kv *KV[T]) GetByIDs(ctx context.Context, ids []string) ([]*T, error) {
	out := make([]*T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := kv.conn.Query(ctx,
		`SELECT id, data FROM kv_store WHERE collection = $1 AND id = ANY($2)`,
		kv.collection, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s batch: %w", kv.collection, err)
	}
	defer rows.Close()

	byID := make(map[string]*T, len(ids))
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", kv.collection, id, err)
		}
		byID[id] = &item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

func (kv *KV[T]) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := kv.conn.Query(ctx,
		`SELECT id FROM kv_store WHERE collection = $1 ORDER BY id`,
		kv.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", kv.collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (kv *KV[T]) Upsert(ctx context.Context, items map[string]T) error {
	for id, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", kv.collection, id, err)
		}
		_, err = kv.conn.Exec(ctx,
			`INSERT INTO kv_store (collection, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
			kv.collection, id, raw,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", kv.collection, id, err)
		}
	}
	return nil
}

func (kv *KV[T]) Drop(ctx context.Context) error {
	_, err := kv.conn.Exec(ctx,
		`DELETE FROM kv_store WHERE collection = $1`,
		kv.collection,
	)
	if err != nil {
		return fmt.Errorf("failed to drop %s: %w", kv.collection, err)
	}
	return nil
}
