package pgx

import (
	"context"
	"fmt"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/store"

	"github.com/pgvector/pgvector-go"
)

// Embedder is the slice of the model client the vector index needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// Vector stores embeddings in one of the vector tables created by the
// migrations and answers nearest-neighbor queries with pgvector cosine
// distance. The table name must be a migration-owned identifier, it is
// interpolated into SQL.
type Vector struct {
	conn     pgxIConn
	embedder Embedder
	table    string
}

// NewVector returns a vector store over the given table, e.g.
// "entity_vectors" or "chunk_vectors".
func NewVector(conn pgxIConn, embedder Embedder, table string) *Vector {
	return &Vector{conn: conn, embedder: embedder, table: table}
}

var _ store.VectorStorage = (*Vector)(nil)

func (v *Vector) Upsert(ctx context.Context, records map[string]store.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	inputs := make([][]byte, 0, len(records))
	for id, rec := range records {
		ids = append(ids, id)
		inputs = append(inputs, []byte(rec.Content))
	}

	vecs, err := v.embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vecs) != len(ids) {
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(ids))
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (id, entity_name, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   entity_name = EXCLUDED.entity_name,
		   content = EXCLUDED.content,
		   embedding = EXCLUDED.embedding`, v.table)
	for i, id := range ids {
		rec := records[id]
		_, err := v.conn.Exec(ctx, stmt,
			id,
			util.SanitizeStoredText(rec.EntityName),
			util.SanitizeStoredText(rec.Content),
			pgvector.NewVector(vecs[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", id, err)
		}
	}
	return nil
}

func (v *Vector) Query(ctx context.Context, text string, topK int) ([]store.VectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := v.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := v.conn.Query(ctx, fmt.Sprintf(
		`SELECT id, entity_name, 1 - (embedding <=> $1) AS score
		 FROM %s
		 ORDER BY embedding <=> $1
		 LIMIT $2`, v.table),
		pgvector.NewVector(queryVec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var hits []store.VectorHit
	for rows.Next() {
		var hit store.VectorHit
		if err := rows.Scan(&hit.ID, &hit.EntityName, &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
