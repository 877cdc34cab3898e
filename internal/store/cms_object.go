package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertCmsObject inserts or updates a reconciliation record (idempotent on
// message_type + message_id). Status columns only move forward; re-applying
// an older record never regresses push, read or delete progress.
func (db *DB) UpsertCmsObject(o *CmsObject) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO cms_objects (folder, uid, message_type, message_id, push_status, read_status, delete_status, native_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_type, message_id) DO UPDATE SET
			folder = excluded.folder,
			uid = CASE WHEN excluded.uid > 0 THEN excluded.uid ELSE cms_objects.uid END,
			push_status = MAX(cms_objects.push_status, excluded.push_status),
			read_status = MAX(cms_objects.read_status, excluded.read_status),
			delete_status = MAX(cms_objects.delete_status, excluded.delete_status),
			native_id = excluded.native_id,
			updated_at = excluded.updated_at`,
		o.Folder, o.UID, o.Type, o.MessageID, o.PushStatus, o.ReadStatus, o.DeleteStatus, o.NativeID, now)
	return err
}

const cmsObjectColumns = `folder, uid, message_type, message_id, push_status, read_status, delete_status, native_id`

func scanCmsObject(row interface{ Scan(...any) error }) (*CmsObject, error) {
	var o CmsObject
	err := row.Scan(&o.Folder, &o.UID, &o.Type, &o.MessageID, &o.PushStatus, &o.ReadStatus, &o.DeleteStatus, &o.NativeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetCmsObject returns the record for a message, or nil if not tracked.
func (db *DB) GetCmsObject(t MessageType, messageID string) (*CmsObject, error) {
	row := db.QueryRow(`SELECT `+cmsObjectColumns+` FROM cms_objects WHERE message_type = ? AND message_id = ?`, t, messageID)
	return scanCmsObject(row)
}

// GetCmsObjectByUID returns the record bound to a remote UID in a folder,
// or nil if that UID is not locally known.
func (db *DB) GetCmsObjectByUID(folder string, uid uint32) (*CmsObject, error) {
	row := db.QueryRow(`SELECT `+cmsObjectColumns+` FROM cms_objects WHERE folder = ? AND uid = ?`, folder, uid)
	return scanCmsObject(row)
}

// GetCmsObjectsByNativeID returns every record sharing a native provider id.
// A multi-recipient MMS yields one record per contact.
func (db *DB) GetCmsObjectsByNativeID(nativeID int64) ([]CmsObject, error) {
	rows, err := db.Query(`SELECT `+cmsObjectColumns+` FROM cms_objects WHERE native_id = ?`, nativeID)
	if err != nil {
		return nil, err
	}
	return collectCmsObjects(rows)
}

// ListCmsObjects returns all reconciliation records for a folder.
func (db *DB) ListCmsObjects(folder string) ([]CmsObject, error) {
	rows, err := db.Query(`SELECT `+cmsObjectColumns+` FROM cms_objects WHERE folder = ? ORDER BY uid ASC`, folder)
	if err != nil {
		return nil, err
	}
	return collectCmsObjects(rows)
}

// ListNativeTracked returns every record that mirrors a native provider row.
func (db *DB) ListNativeTracked() ([]CmsObject, error) {
	rows, err := db.Query(`SELECT ` + cmsObjectColumns + ` FROM cms_objects WHERE native_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	return collectCmsObjects(rows)
}

// ListFolders returns the distinct folders with at least one record.
func (db *DB) ListFolders() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT folder FROM cms_objects ORDER BY folder ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var folders []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func collectCmsObjects(rows *sql.Rows) ([]CmsObject, error) {
	defer func() { _ = rows.Close() }()
	var objs []CmsObject
	for rows.Next() {
		var o CmsObject
		if err := rows.Scan(&o.Folder, &o.UID, &o.Type, &o.MessageID, &o.PushStatus, &o.ReadStatus, &o.DeleteStatus, &o.NativeID); err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, rows.Err()
}

// MarkPushed records the UID assigned by the remote store and advances
// push_status to Pushed. No-op if the record is already Pushed.
func (db *DB) MarkPushed(t MessageType, messageID string, uid uint32) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE cms_objects SET uid = ?, push_status = ?, updated_at = ?
		WHERE message_type = ? AND message_id = ? AND push_status < ?`,
		uid, Pushed, now, t, messageID, Pushed)
	return err
}

// MarkDeleted advances delete_status. Backward transitions are silently
// ignored: concurrent forward progress from another path is the expected
// cause, not an error.
func (db *DB) MarkDeleted(t MessageType, messageID string, status DeleteStatus) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE cms_objects SET delete_status = ?, updated_at = ?
		WHERE message_type = ? AND message_id = ? AND delete_status < ?`,
		status, now, t, messageID, status)
	return err
}

// MarkRead advances the remote-facing read_status. Backward transitions are
// silently ignored.
func (db *DB) MarkRead(t MessageType, messageID string, status RemoteReadStatus) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE cms_objects SET read_status = ?, updated_at = ?
		WHERE message_type = ? AND message_id = ? AND read_status < ?`,
		status, now, t, messageID, status)
	return err
}

// Purge removes every record whose deletion has been confirmed remotely.
// Records still NotDeleted or DeleteReportRequested are never touched, so
// purge is safe to run concurrently with an active sync pass.
func (db *DB) Purge() (int64, error) {
	res, err := db.Exec(`DELETE FROM cms_objects WHERE delete_status = ?`, Deleted)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
