package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mtmatch/internal/core"
)

const transactionColumns = `id, swift_message_id, template_id, message_type,
	extracted_data, user_entered_data, match_confidence, matching_details,
	status, buyer_id, seller_id, structured_analysis, processed_at, metadata,
	audit_trail`

// SaveTransaction inserts or replaces a transaction. swift_message_id is
// unique: re-analysis updates the same row, never creates a second one.
func (s *Store) SaveTransaction(ctx context.Context, t core.Transaction) error {
	var analysis any
	if t.StructuredAnalysis != nil {
		analysis = marshal(t.StructuredAnalysis)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions
		(id, swift_message_id, template_id, message_type, extracted_data,
		 user_entered_data, match_confidence, matching_details, status,
		 buyer_id, seller_id, structured_analysis, processed_at, metadata,
		 audit_trail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SwiftMessageID, t.TemplateID, t.MessageType,
		marshal(t.ExtractedData), marshal(t.UserEnteredData),
		t.MatchConfidence, marshal(t.MatchingDetails), string(t.Status),
		t.BuyerID, t.SellerID, analysis, t.ProcessedAt, marshal(t.Metadata),
		marshal(t.AuditTrail))
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", t.ID, err)
	}
	return nil
}

// GetTransaction fetches a transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// GetTransactionByMessage fetches the transaction for a message, if one
// exists.
func (s *Store) GetTransactionByMessage(ctx context.Context, messageID string) (*core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE swift_message_id = ?`, messageID)
	return scanTransaction(row)
}

// ListTransactions returns every transaction, newest first.
func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY processed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
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

// CountTransactionsByStatus aggregates transaction counts per status.
func (s *Store) CountTransactionsByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT status, COUNT(*) FROM transactions GROUP BY status`)
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var t core.Transaction
	var extracted, userEntered, details, metadata, audit, status string
	var analysis sql.NullString
	var processedAt time.Time
	err := row.Scan(&t.ID, &t.SwiftMessageID, &t.TemplateID, &t.MessageType,
		&extracted, &userEntered, &t.MatchConfidence, &details, &status,
		&t.BuyerID, &t.SellerID, &analysis, &processedAt, &metadata, &audit)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.Status = core.TransactionStatus(status)
	t.ProcessedAt = processedAt
	if err := unmarshalInto(extracted, &t.ExtractedData); err != nil {
		return nil, fmt.Errorf("corrupt extracted_data for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(userEntered, &t.UserEnteredData); err != nil {
		return nil, fmt.Errorf("corrupt user_entered_data for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(details, &t.MatchingDetails); err != nil {
		return nil, fmt.Errorf("corrupt matching_details for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", t.ID, err)
	}
	if err := unmarshalInto(audit, &t.AuditTrail); err != nil {
		return nil, fmt.Errorf("corrupt audit_trail for %s: %w", t.ID, err)
	}
	if analysis.Valid && analysis.String != "" {
		var a core.StructuredAnalysis
		if err := unmarshalInto(analysis.String, &a); err != nil {
			return nil, fmt.Errorf("corrupt structured_analysis for %s: %w", t.ID, err)
		}
		t.StructuredAnalysis = &a
	}
	return &t, nil
}
