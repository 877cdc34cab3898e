package xms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nlebec/cmsync/internal/store"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Native table constants (telephony provider schema).
const (
	smsBoxInbox = 1
	smsBoxSent  = 2

	addrTypeFrom = 137
	addrTypeTo   = 151
)

// SQLProvider reads the native SMS/MMS provider database. The platform has
// no change callback we can register from here, so changes are detected by
// polling a cheap fingerprint query.
type SQLProvider struct {
	db     *sql.DB
	logger *zap.Logger
	poll   time.Duration

	changes chan struct{}
	cancel  context.CancelFunc
}

// OpenSQLProvider opens the native database read-mostly and starts the
// change poller.
func OpenSQLProvider(path string, poll time.Duration, logger *zap.Logger) (*SQLProvider, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open native db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping native db: %w", err)
	}
	if poll <= 0 {
		poll = time.Second
	}
	p := &SQLProvider{
		db:      db,
		logger:  logger,
		poll:    poll,
		changes: make(chan struct{}, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.watch(ctx)
	return p, nil
}

// Changes delivers one signal per detected native-store mutation.
func (p *SQLProvider) Changes() <-chan struct{} { return p.changes }

// Close stops the poller and closes the database.
func (p *SQLProvider) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.db.Close()
}

type fingerprint struct {
	smsCount, smsMax, smsRead int64
	mmsCount, mmsMax, mmsRead int64
}

func (p *SQLProvider) fingerprint(ctx context.Context) (fingerprint, error) {
	var fp fingerprint
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(_id), 0), COALESCE(SUM(read), 0) FROM sms`).
		Scan(&fp.smsCount, &fp.smsMax, &fp.smsRead)
	if err != nil {
		return fp, err
	}
	err = p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(_id), 0), COALESCE(SUM(read), 0) FROM pdu`).
		Scan(&fp.mmsCount, &fp.mmsMax, &fp.mmsRead)
	return fp, err
}

func (p *SQLProvider) watch(ctx context.Context) {
	last, err := p.fingerprint(ctx)
	if err != nil {
		p.logger.Warn("native fingerprint failed", zap.Error(err))
	}
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := p.fingerprint(ctx)
			if err != nil {
				p.logger.Warn("native fingerprint failed", zap.Error(err))
				continue
			}
			if cur != last {
				last = cur
				select {
				case p.changes <- struct{}{}:
				default:
					// A signal is already pending; snapshots are full
					// scans so one is enough.
				}
			}
		}
	}
}

// Snapshot performs a full scan of native ids and read flags.
func (p *SQLProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		IDs:  make(map[int64]struct{}),
		Read: make(map[int64]struct{}),
	}

	if err := p.scan(ctx, `SELECT _id, read FROM sms`, snap, false); err != nil {
		return nil, fmt.Errorf("scan sms: %w", err)
	}
	if err := p.scan(ctx, `SELECT _id, read FROM pdu`, snap, true); err != nil {
		return nil, fmt.Errorf("scan pdu: %w", err)
	}
	return snap, nil
}

func (p *SQLProvider) scan(ctx context.Context, query string, snap *Snapshot, mms bool) error {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var read int
		if err := rows.Scan(&id, &read); err != nil {
			return err
		}
		if mms {
			id = ComposeMmsID(id)
		}
		snap.IDs[id] = struct{}{}
		if read != 0 {
			snap.Read[id] = struct{}{}
		}
	}
	return rows.Err()
}

// ReadMessage reads one native row into a normalized message.
func (p *SQLProvider) ReadMessage(ctx context.Context, id int64) (*NativeMessage, error) {
	if IsMms(id) {
		return p.readMms(ctx, id)
	}
	return p.readSms(ctx, id)
}

func (p *SQLProvider) readSms(ctx context.Context, id int64) (*NativeMessage, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT address, body, date, read, type FROM sms WHERE _id = ?`, id)
	var address, body string
	var date int64
	var read, box int
	err := row.Scan(&address, &body, &date, &read, &box)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read sms %d: %w", id, err)
	}
	return &NativeMessage{
		ID:         id,
		Recipients: []string{address},
		Body:       body,
		Outgoing:   box == smsBoxSent,
		Read:       read != 0,
		Timestamp:  date,
	}, nil
}

func (p *SQLProvider) readMms(ctx context.Context, id int64) (*NativeMessage, error) {
	rowID := RowID(id)
	row := p.db.QueryRowContext(ctx,
		`SELECT m_id, date, read, msg_box FROM pdu WHERE _id = ?`, rowID)
	var mmsID string
	var date int64
	var read, box int
	err := row.Scan(&mmsID, &date, &read, &box)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read mms %d: %w", rowID, err)
	}

	outgoing := box == smsBoxSent
	recipients, err := p.mmsAddresses(ctx, rowID, outgoing)
	if err != nil {
		return nil, err
	}
	parts, err := p.mmsParts(ctx, rowID)
	if err != nil {
		return nil, err
	}

	return &NativeMessage{
		ID:         id,
		Recipients: recipients,
		MmsID:      mmsID,
		Outgoing:   outgoing,
		Read:       read != 0,
		// The pdu table stores seconds, unlike the sms table.
		Timestamp: date * 1000,
		Parts:     parts,
	}, nil
}

// mmsAddresses returns the remote parties of an MMS: the To addresses for
// an outgoing message, the From address for an incoming one.
func (p *SQLProvider) mmsAddresses(ctx context.Context, rowID int64, outgoing bool) ([]string, error) {
	addrType := addrTypeFrom
	if outgoing {
		addrType = addrTypeTo
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT address FROM addr WHERE msg_id = ? AND type = ?`, rowID, addrType)
	if err != nil {
		return nil, fmt.Errorf("mms addresses %d: %w", rowID, err)
	}
	defer func() { _ = rows.Close() }()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// mmsParts reads the MMS parts. Text parts are inline; binary parts are
// read from the part's file path. A part whose file cannot be read is
// dropped and logged rather than failing the message.
func (p *SQLProvider) mmsParts(ctx context.Context, rowID int64) ([]store.Part, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ct, COALESCE(text, ''), COALESCE(_data, ''), COALESCE(name, '') FROM part WHERE mid = ? ORDER BY _id ASC`, rowID)
	if err != nil {
		return nil, fmt.Errorf("mms parts %d: %w", rowID, err)
	}
	defer func() { _ = rows.Close() }()

	var parts []store.Part
	for rows.Next() {
		var ct, text, path, name string
		if err := rows.Scan(&ct, &text, &path, &name); err != nil {
			return nil, err
		}
		if ct == "application/smil" {
			continue
		}
		part := store.Part{MimeType: ct, FileName: name}
		if text != "" {
			part.Text = text
		} else if path != "" {
			blob, err := os.ReadFile(path)
			if err != nil {
				p.logger.Warn("dropping unreadable mms part",
					zap.Int64("mms", rowID), zap.String("path", path), zap.Error(err))
				continue
			}
			part.Blob = blob
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

// Delete removes a native row. Explicit user-action write path.
func (p *SQLProvider) Delete(ctx context.Context, id int64) error {
	if IsMms(id) {
		_, err := p.db.ExecContext(ctx, `DELETE FROM pdu WHERE _id = ?`, RowID(id))
		return err
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM sms WHERE _id = ?`, id)
	return err
}

// MarkRead flags a native row as read. Explicit user-action write path.
func (p *SQLProvider) MarkRead(ctx context.Context, id int64) error {
	if IsMms(id) {
		_, err := p.db.ExecContext(ctx, `UPDATE pdu SET read = 1 WHERE _id = ?`, RowID(id))
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE sms SET read = 1 WHERE _id = ?`, id)
	return err
}
