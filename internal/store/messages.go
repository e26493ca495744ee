package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// Flags carries the mutable part of a stored message.
type Flags struct {
	Read     bool
	LabelIDs []gmail.LabelID
}

// Filter narrows Query results. Zero values select everything; a nil
// Unread selects both read and unread messages.
type Filter struct {
	Sender string
	Unread *bool
	Since  time.Time
	Limit  int
}

const messageColumns = "id, sender, subject, body, received_at, is_read, label_ids"

// SaveMessage upserts one message and refreshes its label rows. Saving
// the same ID again overwrites the previous row.
func (s *Store) SaveMessage(ctx context.Context, msg gmail.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message has no id")
	}
	labelJSON, err := json.Marshal(msg.LabelIDs)
	if err != nil {
		return fmt.Errorf("marshaling label ids for %s: %w", msg.ID, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (
			id, sender, subject, body, received_at, is_read, label_ids
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), msg.Sender, msg.Subject, msg.Body,
		msg.ReceivedAt.UTC(), boolToInt(msg.Read), string(labelJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}
	if err := replaceLabelRows(ctx, tx, msg.ID, msg.LabelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Messages returns every stored message in insertion order.
func (s *Store) Messages(ctx context.Context) ([]gmail.Message, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+messageColumns+" FROM messages ORDER BY rowid",
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []gmail.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// UpdateFlags rewrites the read flag and label set of a stored message,
// leaving the rest of the row alone. It fails if the message was never
// saved.
func (s *Store) UpdateFlags(ctx context.Context, id gmail.MessageID, flags Flags) error {
	labelJSON, err := json.Marshal(flags.LabelIDs)
	if err != nil {
		return fmt.Errorf("marshaling label ids for %s: %w", id, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE messages SET is_read = ?, label_ids = ? WHERE id = ?",
		boolToInt(flags.Read), string(labelJSON), string(id),
	)
	if err != nil {
		return fmt.Errorf("updating flags for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating flags for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("message %s not in store", id)
	}
	if err := replaceLabelRows(ctx, tx, id, flags.LabelIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Query returns messages matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]gmail.Message, error) {
	var conditions []string
	var args []interface{}

	if f.Sender != "" {
		conditions = append(conditions, "sender LIKE ?")
		args = append(args, "%"+f.Sender+"%")
	}
	if f.Unread != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, boolToInt(!*f.Unread))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "received_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := "SELECT " + messageColumns + " FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []gmail.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func replaceLabelRows(ctx context.Context, tx *sqlx.Tx, id gmail.MessageID, labels []gmail.LabelID) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message_labels WHERE message_id = ?", string(id),
	); err != nil {
		return fmt.Errorf("clearing label rows for %s: %w", id, err)
	}
	for _, label := range labels {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO message_labels (message_id, label_id) VALUES (?, ?)",
			string(id), string(label),
		); err != nil {
			return fmt.Errorf("inserting label row for %s: %w", id, err)
		}
	}
	return nil
}

// scanMessage scans one message row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (gmail.Message, error) {
	var (
		msg        gmail.Message
		id         string
		receivedAt time.Time
		isRead     int
		labelJSON  string
	)

	err := rows.Scan(&id, &msg.Sender, &msg.Subject, &msg.Body, &receivedAt, &isRead, &labelJSON)
	if err != nil {
		return gmail.Message{}, fmt.Errorf("scanning message row: %w", err)
	}

	msg.ID = gmail.MessageID(id)
	msg.ReceivedAt = receivedAt
	msg.Read = isRead != 0

	if labelJSON != "" {
		if err := json.Unmarshal([]byte(labelJSON), &msg.LabelIDs); err != nil {
			return gmail.Message{}, fmt.Errorf("unmarshaling label ids: %w", err)
		}
	}
	return msg, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
