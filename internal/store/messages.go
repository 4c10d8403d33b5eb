package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mtmatch/internal/core"
)

const messageColumns = `id, message_type, raw_content, parsed_fields, sender_id,
	receiver_id, timestamp, status, cluster_id, template_id, notes`

// SaveMessage inserts or replaces a message.
func (s *Store) SaveMessage(ctx context.Context, m core.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
		(id, message_type, raw_content, parsed_fields, sender_id, receiver_id,
		 timestamp, status, cluster_id, template_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MessageType, m.RawContent, marshal(m.ParsedFields),
		m.SenderID, m.ReceiverID, m.Timestamp, string(m.Status),
		m.ClusterID, m.TemplateID, m.Notes)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", m.ID, err)
	}
	return nil
}

// GetMessage fetches a message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// ListMessages returns messages filtered by status and/or type; empty filters
// match everything.
func (s *Store) ListMessages(ctx context.Context, status, messageType string) ([]core.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages`
	var conds []string
	var args []any
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if messageType != "" {
		conds = append(conds, "message_type = ?")
		args = append(args, messageType)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp"
	return s.queryMessages(ctx, query, args...)
}

// ListMessagesByStatus returns every message in the given status.
func (s *Store) ListMessagesByStatus(ctx context.Context, status core.ProcessingStatus) ([]core.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE status = ? ORDER BY timestamp`,
		string(status))
}

// ListMessagesByTemplate returns messages claimed by a template.
func (s *Store) ListMessagesByTemplate(ctx context.Context, templateID string) ([]core.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE template_id = ? ORDER BY timestamp`,
		templateID)
}

// unmatchedSortColumns whitelists sort keys for the paged unmatched listing.
var unmatchedSortColumns = map[string]string{
	"timestamp":   "timestamp",
	"messageType": "message_type",
	"senderId":    "sender_id",
	"receiverId":  "receiver_id",
	"status":      "status",
}

// ListUnmatched pages through messages awaiting a template match
// (status EMBEDDED or CLUSTERED). Returns the page and the total count.
func (s *Store) ListUnmatched(ctx context.Context, page, size int, sortBy, sortDirection string) ([]core.Message, int64, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 || size > 500 {
		size = 20
	}
	col, ok := unmatchedSortColumns[sortBy]
	if !ok {
		col = "timestamp"
	}
	dir := "ASC"
	if strings.EqualFold(sortDirection, "desc") {
		dir = "DESC"
	}

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE status IN (?, ?)`,
		string(core.StatusEmbedded), string(core.StatusClustered)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count unmatched messages: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM messages WHERE status IN (?, ?)
		ORDER BY %s %s LIMIT ? OFFSET ?`, messageColumns, col, dir)
	msgs, err := s.queryMessages(ctx, query,
		string(core.StatusEmbedded), string(core.StatusClustered), size, page*size)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// UpdateMessageStatus transitions a message's status.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status core.ProcessingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return requireRow(res, id)
}

// AssignCluster records a message's cluster and template membership and moves
// it to CLUSTERED.
func (s *Store) AssignCluster(ctx context.Context, id, clusterID, templateID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET cluster_id = ?, template_id = ?, status = ?
		WHERE id = ?`,
		clusterID, templateID, string(core.StatusClustered), id)
	if err != nil {
		return fmt.Errorf("failed to assign cluster: %w", err)
	}
	return requireRow(res, id)
}

// AssignTemplateMatch records the matched template and moves the message to
// TEMPLATE_MATCHED.
func (s *Store) AssignTemplateMatch(ctx context.Context, id, templateID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET template_id = ?, status = ? WHERE id = ?`,
		templateID, string(core.StatusTemplateMatched), id)
	if err != nil {
		return fmt.Errorf("failed to assign template match: %w", err)
	}
	return requireRow(res, id)
}

// CountMessagesByStatus aggregates message counts per status.
func (s *Store) CountMessagesByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT status, COUNT(*) FROM messages GROUP BY status`)
}

// CountMessagesByType aggregates message counts per MT type.
func (s *Store) CountMessagesByType(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT message_type, COUNT(*) FROM messages GROUP BY message_type`)
}

// DeleteMessage removes a message row.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*core.Message, error) {
	var m core.Message
	var parsedFields, status string
	err := row.Scan(&m.ID, &m.MessageType, &m.RawContent, &parsedFields,
		&m.SenderID, &m.ReceiverID, &m.Timestamp, &status,
		&m.ClusterID, &m.TemplateID, &m.Notes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Status = core.ProcessingStatus(status)
	if err := unmarshalInto(parsedFields, &m.ParsedFields); err != nil {
		return nil, fmt.Errorf("corrupt parsed_fields for %s: %w", m.ID, err)
	}
	return &m, nil
}

func (s *Store) countBy(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
