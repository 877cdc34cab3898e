package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetModSeq returns the HIGHESTMODSEQ checkpoint recorded for a folder.
// Zero means the folder has never been synchronized.
func (db *DB) GetModSeq(folder string) (uint64, error) {
	var modseq uint64
	err := db.QueryRow(`SELECT highest_modseq FROM sync_state WHERE folder = ?`, folder).Scan(&modseq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return modseq, nil
}

// SetModSeq records the HIGHESTMODSEQ checkpoint for a folder.
func (db *DB) SetModSeq(folder string, modseq uint64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (folder, highest_modseq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(folder) DO UPDATE SET highest_modseq = excluded.highest_modseq, updated_at = excluded.updated_at`,
		folder, modseq, now)
	return err
}

// GetUIDValidity returns the recorded UIDVALIDITY for a folder, zero if unknown.
func (db *DB) GetUIDValidity(folder string) (uint32, error) {
	var v uint32
	err := db.QueryRow(`SELECT uid_validity FROM sync_state WHERE folder = ?`, folder).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// SetUIDValidity records the UIDVALIDITY for a folder. A change of validity
// invalidates every stored UID for that folder; ResetFolder handles that.
func (db *DB) SetUIDValidity(folder string, validity uint32) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (folder, uid_validity, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(folder) DO UPDATE SET uid_validity = excluded.uid_validity, updated_at = excluded.updated_at`,
		folder, validity, now)
	return err
}

// ResetFolder clears the modseq checkpoint and all stored UIDs for a folder,
// forcing the next pass to run a full (non-incremental) sync. Used when the
// remote UIDVALIDITY changes.
func (db *DB) ResetFolder(folder string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE sync_state SET highest_modseq = 0 WHERE folder = ?`, folder); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE cms_objects SET uid = 0, push_status = ?
		WHERE folder = ? AND delete_status = ?`,
		PushRequested, folder, NotDeleted); err != nil {
		return err
	}
	return tx.Commit()
}
