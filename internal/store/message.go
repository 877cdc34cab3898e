package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on message_id).
// The read flag only moves forward so a re-applied older snapshot can
// never un-read a message.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (message_id, native_id, chat_id, contact, direction, message_type,
			mime_type, body, mms_id, state, read_status, ts, ts_sent, ts_delivered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			native_id = excluded.native_id,
			body = excluded.body,
			state = excluded.state,
			read_status = MAX(messages.read_status, excluded.read_status),
			ts_sent = excluded.ts_sent,
			ts_delivered = excluded.ts_delivered`,
		m.MessageID, m.NativeID, m.ChatID, m.Contact, m.Direction, m.Type,
		m.MimeType, m.Body, m.MmsID, m.State, m.Read, m.Timestamp, m.TimestampSent, m.TimestampDelivered, now)
	return err
}

// GetMessage returns a message by id, or nil if not found.
func (db *DB) GetMessage(messageID string) (*Message, error) {
	row := db.QueryRow(`
		SELECT message_id, native_id, chat_id, contact, direction, message_type,
			mime_type, body, mms_id, state, read_status, ts, ts_sent, ts_delivered
		FROM messages WHERE message_id = ?`, messageID)
	var m Message
	err := row.Scan(&m.MessageID, &m.NativeID, &m.ChatID, &m.Contact, &m.Direction, &m.Type,
		&m.MimeType, &m.Body, &m.MmsID, &m.State, &m.Read, &m.Timestamp, &m.TimestampSent, &m.TimestampDelivered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT message_id, native_id, chat_id, contact, direction, message_type,
			mime_type, body, mms_id, state, read_status, ts, ts_sent, ts_delivered
		FROM messages
		WHERE chat_id = ? AND ts < ?
		ORDER BY ts DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.NativeID, &m.ChatID, &m.Contact, &m.Direction, &m.Type,
			&m.MimeType, &m.Body, &m.MmsID, &m.State, &m.Read, &m.Timestamp, &m.TimestampSent, &m.TimestampDelivered); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessageRead advances a message's read flag. Forward-only; a message
// already read is left untouched.
func (db *DB) MarkMessageRead(messageID string) error {
	_, err := db.Exec(`UPDATE messages SET read_status = ? WHERE message_id = ? AND read_status < ?`,
		Read, messageID, Read)
	return err
}

// ListMessageIDs returns all message ids of a chat, oldest first.
func (db *DB) ListMessageIDs(chatID string) ([]string, error) {
	rows, err := db.Query(`SELECT message_id FROM messages WHERE chat_id = ? ORDER BY ts ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

// DeleteMessage removes a message and (via cascade) its parts.
func (db *DB) DeleteMessage(messageID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE message_id = ?`, messageID)
	return err
}

// ReplaceParts replaces all MIME parts of a message with the given ordered list.
func (db *DB) ReplaceParts(messageID string, parts []Part) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM message_parts WHERE message_id = ?`, messageID); err != nil {
		return err
	}
	for i, p := range parts {
		if _, err := tx.Exec(`
			INSERT INTO message_parts (message_id, seq, mime_type, file_name, text, blob)
			VALUES (?, ?, ?, ?, ?, ?)`,
			messageID, i, p.MimeType, p.FileName, p.Text, p.Blob); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetParts returns the ordered MIME parts of a message.
func (db *DB) GetParts(messageID string) ([]Part, error) {
	rows, err := db.Query(`
		SELECT message_id, seq, mime_type, file_name, text, blob
		FROM message_parts WHERE message_id = ? ORDER BY seq ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.MessageID, &p.Seq, &p.MimeType, &p.FileName, &p.Text, &p.Blob); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}
