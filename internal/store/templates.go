package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mtmatch/internal/core"
)

const templateColumns = `id, message_type, buyer_id, seller_id, template_content,
	variable_fields, cluster_id, centroid, message_count, confidence,
	quality_score, description, sample_message_ids, created_at`

// SaveTemplate inserts or replaces a template. The (type, buyer, seller,
// cluster) quadruple is unique; saving a second template with the same key
// but a different id returns ErrDuplicateTemplate.
func (s *Store) SaveTemplate(ctx context.Context, t core.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO templates
		(id, message_type, buyer_id, seller_id, template_content, variable_fields,
		 cluster_id, centroid, message_count, confidence, quality_score,
		 description, sample_message_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MessageType, t.BuyerID, t.SellerID, t.TemplateContent,
		marshal(t.VariableFields), t.ClusterID, marshal(t.CentroidEmbedding),
		t.MessageCount, t.Confidence, t.QualityScore, t.Description,
		marshal(t.SampleMessageIDs), t.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("template (%s,%s,%s,%s): %w",
				t.MessageType, t.BuyerID, t.SellerID, t.ClusterID, ErrDuplicateTemplate)
		}
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	return nil
}

// GetTemplate fetches a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// GetTemplateByClusterKey fetches the template owning a cluster key, if any.
// Extraction uses this to stay idempotent across re-runs.
func (s *Store) GetTemplateByClusterKey(ctx context.Context, messageType, buyerID, sellerID, clusterID string) (*core.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE message_type = ? AND buyer_id = ? AND seller_id = ? AND cluster_id = ?`,
		messageType, buyerID, sellerID, clusterID)
	return scanTemplate(row)
}

// ListTemplates returns every template, newest first.
func (s *Store) ListTemplates(ctx context.Context) ([]core.Template, error) {
	return s.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC`)
}

// ListTemplatesByType returns templates for one MT type.
func (s *Store) ListTemplatesByType(ctx context.Context, messageType string) ([]core.Template, error) {
	return s.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE message_type = ? ORDER BY created_at DESC`,
		messageType)
}

// FindTemplates shortlists candidate templates for a message: same type and
// trading pair, ordered by stored confidence descending.
func (s *Store) FindTemplates(ctx context.Context, messageType, buyerID, sellerID string) ([]core.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE message_type = ? AND buyer_id = ? AND seller_id = ?
		ORDER BY confidence DESC`,
		messageType, buyerID, sellerID)
}

// CountTemplates returns the total template count.
func (s *Store) CountTemplates(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return n, nil
}

// CountTemplatesByType aggregates template counts per MT type.
func (s *Store) CountTemplatesByType(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT message_type, COUNT(*) FROM templates GROUP BY message_type`)
}

// DeleteTemplate removes a template row.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	return nil
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]core.Template, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func scanTemplate(row rowScanner) (*core.Template, error) {
	var t core.Template
	var variableFields, centroid, sampleIDs string
	err := row.Scan(&t.ID, &t.MessageType, &t.BuyerID, &t.SellerID,
		&t.TemplateContent, &variableFields, &t.ClusterID, &centroid,
		&t.MessageCount, &t.Confidence, &t.QualityScore, &t.Description,
		&sampleIDs, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	if err := unmarshalInto(variableFields, &t.VariableFields); err != nil {
		return nil, fmt.Errorf("corrupt variable_fields for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(centroid, &t.CentroidEmbedding); err != nil {
		return nil, fmt.Errorf("corrupt centroid for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(sampleIDs, &t.SampleMessageIDs); err != nil {
		return nil, fmt.Errorf("corrupt sample_message_ids for %s: %w", t.ID, err)
	}
	return &t, nil
}
