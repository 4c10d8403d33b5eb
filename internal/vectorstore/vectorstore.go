// Package vectorstore persists dense vectors keyed by reference id and ranks
// them by cosine similarity within a doc-type partition.
package vectorstore

import (
	"context"
	"errors"

	"mtmatch/internal/core"
)

var (
	// ErrNotFound is returned when no vector exists for an id.
	ErrNotFound = errors.New("vector not found")
	// ErrZeroVector is returned by Put for zero-magnitude vectors, whose
	// cosine is undefined. Callers treat it as a skip, not a failure.
	ErrZeroVector = errors.New("zero-magnitude vector skipped")
	// ErrDimensionMismatch indicates a stored vector of the wrong
	// dimensionality — store corruption, fatal for the current request.
	ErrDimensionMismatch = errors.New("stored vector has wrong dimensionality")
)

// Match is one ranked similarity-search result.
type Match struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	ClusterID  string  `json:"clusterId,omitempty"`
	Preview    string  `json:"preview,omitempty"`
}

// Store is the vector index abstraction. Implementations must preserve exact
// cosine ranking semantics at the similarity-threshold boundary; a full scan
// is acceptable at the thousands-of-vectors scale this system runs at.
type Store interface {
	// Put saves or replaces a vector. Zero vectors return ErrZeroVector.
	Put(ctx context.Context, v core.VectorEmbedding) error

	// Get fetches a vector by id, ErrNotFound when absent.
	Get(ctx context.Context, id string) (*core.VectorEmbedding, error)

	// Delete removes a vector. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// ListByDocType returns every vector in a partition.
	ListByDocType(ctx context.Context, docType core.DocType) ([]core.VectorEmbedding, error)

	// ListByCluster returns the vectors assigned to a cluster.
	ListByCluster(ctx context.Context, clusterID string) ([]core.VectorEmbedding, error)

	// UpdateCluster reassigns a vector's cluster id.
	UpdateCluster(ctx context.Context, id, clusterID string) error

	// TopK ranks the docType partition against query by cosine similarity,
	// highest first.
	TopK(ctx context.Context, query []float64, docType core.DocType, k int) ([]Match, error)

	// Count returns the number of vectors in a partition.
	Count(ctx context.Context, docType core.DocType) (int64, error)

	// Close releases the underlying handle.
	Close() error
}
