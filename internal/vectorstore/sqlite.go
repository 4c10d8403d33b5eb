package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mtmatch/internal/core"
	"mtmatch/internal/embedding"
)

// SQLiteStore keeps vectors in a SQLite table as little-endian float32 blobs.
// Ranking is a full scan over the doc-type partition with the cosine computed
// in process, which is exact and fast enough for the dataset sizes here.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// NewSQLiteStore opens (or creates) the vector table on db. dim is the
// expected embedding dimensionality; vectors read back with a different
// dimension surface ErrDimensionMismatch.
func NewSQLiteStore(db *sql.DB, dim int) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL,
		embedding BLOB NOT NULL,
		cluster_id TEXT NOT NULL DEFAULT '',
		content_preview TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_doc_type ON vectors (doc_type);
	CREATE INDEX IF NOT EXISTS idx_vectors_cluster ON vectors (cluster_id);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create vectors table: %w", err)
	}
	return &SQLiteStore{db: db, dim: dim}, nil
}

// Put saves or replaces a vector. Zero vectors are rejected with
// ErrZeroVector so cosine ranking stays well defined.
func (s *SQLiteStore) Put(ctx context.Context, v core.VectorEmbedding) error {
	if embedding.IsZero(v.Embedding) {
		return ErrZeroVector
	}
	blob := encodeVector(v.Embedding)
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vectors (id, doc_type, embedding, cluster_id, content_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, string(v.DocType), blob, v.ClusterID, v.ContentPreview, createdAt)
	if err != nil {
		return fmt.Errorf("failed to store vector %s: %w", v.ID, err)
	}
	return nil
}

// Get fetches a vector by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.VectorEmbedding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_type, embedding, cluster_id, content_preview, created_at
		FROM vectors WHERE id = ?`, id)
	return s.scanVector(row)
}

// Delete removes a vector; absent ids are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete vector %s: %w", id, err)
	}
	return nil
}

// ListByDocType returns every vector in a partition.
func (s *SQLiteStore) ListByDocType(ctx context.Context, docType core.DocType) ([]core.VectorEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_type, embedding, cluster_id, content_preview, created_at
		FROM vectors WHERE doc_type = ?`, string(docType))
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// ListByCluster returns the vectors assigned to a cluster.
func (s *SQLiteStore) ListByCluster(ctx context.Context, clusterID string) ([]core.VectorEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_type, embedding, cluster_id, content_preview, created_at
		FROM vectors WHERE cluster_id = ?`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors by cluster: %w", err)
	}
	defer rows.Close()
	return s.collect(rows)
}

// UpdateCluster reassigns a vector's cluster id.
func (s *SQLiteStore) UpdateCluster(ctx context.Context, id, clusterID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vectors SET cluster_id = ? WHERE id = ?`, clusterID, id)
	if err != nil {
		return fmt.Errorf("failed to update cluster for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TopK ranks the docType partition against query by cosine similarity.
func (s *SQLiteStore) TopK(ctx context.Context, query []float64, docType core.DocType, k int) ([]Match, error) {
	vectors, err := s.ListByDocType(ctx, docType)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(vectors))
	for _, v := range vectors {
		matches = append(matches, Match{
			ID:         v.ID,
			Similarity: embedding.Cosine(query, v.Embedding),
			ClusterID:  v.ClusterID,
			Preview:    v.ContentPreview,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of vectors in a partition.
func (s *SQLiteStore) Count(ctx context.Context, docType core.DocType) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE doc_type = ?`, string(docType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

// Close is a no-op; the SQLite handle is owned by the caller and shared with
// the document store.
func (s *SQLiteStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanVector(row rowScanner) (*core.VectorEmbedding, error) {
	var v core.VectorEmbedding
	var docType string
	var blob []byte
	err := row.Scan(&v.ID, &docType, &blob, &v.ClusterID, &v.ContentPreview, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vector: %w", err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	if s.dim > 0 && len(vec) != s.dim {
		return nil, fmt.Errorf("%w: vector %s has %d dims, want %d", ErrDimensionMismatch, v.ID, len(vec), s.dim)
	}
	v.DocType = core.DocType(docType)
	v.Embedding = vec
	return &v, nil
}

func (s *SQLiteStore) collect(rows *sql.Rows) ([]core.VectorEmbedding, error) {
	var out []core.VectorEmbedding
	for rows.Next() {
		v, err := s.scanVector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// encodeVector packs a float64 slice into a length-prefixed little-endian
// float32 blob. Float32 halves the storage at no practical cost to cosine
// ranking.
func encodeVector(vec []float64) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, int32(len(vec)))
	for _, v := range vec {
		_ = binary.Write(buf, binary.LittleEndian, float32(v))
	}
	return buf.Bytes()
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to decode vector length: %w", err)
	}
	if length < 0 || int(length)*4 != len(data)-4 {
		return nil, fmt.Errorf("corrupt vector blob: declared %d floats in %d bytes", length, len(data))
	}
	out := make([]float64, length)
	for i := range out {
		var f float32
		if err := binary.Read(buf, binary.LittleEndian, &f); err != nil {
			return nil, fmt.Errorf("failed to decode vector value: %w", err)
		}
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("corrupt vector blob: non-finite value at %d", i)
		}
		out[i] = float64(f)
	}
	return out, nil
}
