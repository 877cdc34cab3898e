// Package sync reconciles the local message log with the remote IMAP
// message store folder by folder: uploading staged messages, propagating
// read and delete reports, and importing changes made by other devices,
// resuming from the last HIGHESTMODSEQ checkpoint.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/nlebec/cmsync/internal/bus"
	"github.com/nlebec/cmsync/internal/codec"
	"github.com/nlebec/cmsync/internal/imap"
	"github.com/nlebec/cmsync/internal/store"
	"go.uber.org/zap"
)

// Report counts what one folder pass did.
type Report struct {
	Folder   string
	Pushed   int
	Flagged  int
	Deleted  int
	Imported int
	Removed  int
	Skipped  int
	ModSeq   uint64
}

// Engine runs single-folder reconciliation passes. It is not safe for
// concurrent use; the scheduler serializes calls through one worker.
type Engine struct {
	db     *store.DB
	remote imap.Transport
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(db *store.DB, remote imap.Transport, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{db: db, remote: remote, bus: b, logger: logger}
}

// SyncFolder runs one full reconciliation pass over a folder: local
// staged transitions out, then remote changes in, then checkpoint.
func (e *Engine) SyncFolder(ctx context.Context, folder string) (*Report, error) {
	rep := &Report{Folder: folder}

	info, err := e.remote.Select(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}

	known, err := e.db.GetUIDValidity(folder)
	if err != nil {
		return nil, err
	}
	if known != 0 && known != info.UIDValidity {
		// The server invalidated every UID we hold. Drop the checkpoint and
		// re-request a push for everything still alive locally.
		e.logger.Warn("uidvalidity changed, resetting folder",
			zap.String("folder", folder),
			zap.Uint32("old", known), zap.Uint32("new", info.UIDValidity))
		if err := e.db.ResetFolder(folder); err != nil {
			return nil, err
		}
	}
	if err := e.db.SetUIDValidity(folder, info.UIDValidity); err != nil {
		return nil, err
	}

	since, err := e.db.GetModSeq(folder)
	if err != nil {
		return nil, err
	}
	changed, err := e.remote.FetchChanged(ctx, folder, since)
	if err != nil {
		return nil, fmt.Errorf("fetch changed %s: %w", folder, err)
	}

	if err := e.pushLocal(ctx, folder, rep); err != nil {
		return nil, err
	}
	retryBelow, err := e.importRemote(ctx, folder, changed, rep)
	if err != nil {
		return nil, err
	}

	rep.ModSeq = info.HighestModSeq
	for _, c := range changed {
		if c.ModSeq > rep.ModSeq {
			rep.ModSeq = c.ModSeq
		}
	}
	// A transport failure on a single import must not be checkpointed
	// over; hold the checkpoint below the failed message's modseq so the
	// next pass fetches it again. Undecodable messages do advance it.
	if retryBelow > 0 && rep.ModSeq >= retryBelow {
		rep.ModSeq = retryBelow - 1
	}
	if rep.ModSeq > since {
		if err := e.db.SetModSeq(folder, rep.ModSeq); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// pushLocal walks the folder's reconciliation records and sends every
// staged transition to the server. A failed upload is logged and left
// staged so the next pass retries it; one bad message never blocks the
// rest of the folder.
func (e *Engine) pushLocal(ctx context.Context, folder string, rep *Report) error {
	objs, err := e.db.ListCmsObjects(folder)
	if err != nil {
		return err
	}
	for i := range objs {
		o := &objs[i]

		// Deletion beats everything else staged on the same record.
		if o.DeleteStatus == store.DeleteReportRequested {
			e.applyDelete(ctx, folder, o, rep)
			continue
		}
		if o.DeleteStatus != store.NotDeleted {
			continue
		}

		if o.PushStatus == store.PushRequested && o.UID == 0 {
			e.applyPush(ctx, folder, o, rep)
		}
		if o.ReadStatus == store.ReadReportRequested && o.UID != 0 {
			if err := e.remote.StoreFlags(ctx, folder, o.UID, []imap.Flag{imap.FlagSeen}); err != nil {
				e.logger.Error("store seen failed",
					zap.String("folder", folder), zap.Uint32("uid", o.UID), zap.Error(err))
				continue
			}
			if err := e.db.MarkRead(o.Type, o.MessageID, store.RemoteRead); err != nil {
				return err
			}
			rep.Flagged++
		}
	}
	return nil
}

func (e *Engine) applyPush(ctx context.Context, folder string, o *store.CmsObject, rep *Report) {
	m, err := e.db.GetMessage(o.MessageID)
	if err != nil || m == nil {
		e.logger.Error("push skipped, message missing",
			zap.String("message_id", o.MessageID), zap.Error(err))
		rep.Skipped++
		return
	}
	parts, err := e.db.GetParts(o.MessageID)
	if err != nil {
		e.logger.Error("push skipped, parts unreadable",
			zap.String("message_id", o.MessageID), zap.Error(err))
		rep.Skipped++
		return
	}
	if m.Type == store.TypeMms && len(parts) == 0 {
		e.logger.Warn("push skipped, mms without parts",
			zap.String("message_id", o.MessageID))
		rep.Skipped++
		return
	}

	// The boundary is derived from the message id so every device encodes
	// the same message to the same bytes.
	payload, err := codec.Options{Boundary: "rel-" + o.MessageID}.Encode(m, parts)
	if err != nil {
		e.logger.Error("encode failed",
			zap.String("message_id", o.MessageID), zap.Error(err))
		rep.Skipped++
		return
	}

	var flags []imap.Flag
	if o.ReadStatus == store.RemoteRead || m.Read == store.Read {
		flags = append(flags, imap.FlagSeen)
	}
	uid, err := e.remote.Append(ctx, folder, flags, payload)
	if err != nil {
		// Left in PushRequested; retried on the next pass.
		e.logger.Error("append failed",
			zap.String("folder", folder), zap.String("message_id", o.MessageID), zap.Error(err))
		return
	}
	if err := e.db.MarkPushed(o.Type, o.MessageID, uid); err != nil {
		e.logger.Error("mark pushed failed",
			zap.String("message_id", o.MessageID), zap.Error(err))
		return
	}
	o.UID = uid
	if len(flags) > 0 {
		// Keep the record consistent with what was uploaded.
		_ = e.db.MarkRead(o.Type, o.MessageID, store.RemoteRead)
		o.ReadStatus = store.RemoteRead
	}
	rep.Pushed++
}

// applyDelete propagates a staged delete report: flag the remote copy if
// one exists, then finalize and drop the local message.
func (e *Engine) applyDelete(ctx context.Context, folder string, o *store.CmsObject, rep *Report) {
	if o.UID != 0 {
		if err := e.remote.StoreFlags(ctx, folder, o.UID, []imap.Flag{imap.FlagDeleted}); err != nil {
			e.logger.Error("store deleted failed",
				zap.String("folder", folder), zap.Uint32("uid", o.UID), zap.Error(err))
			return
		}
	}
	if err := e.db.MarkDeleted(o.Type, o.MessageID, store.Deleted); err != nil {
		e.logger.Error("mark deleted failed",
			zap.String("message_id", o.MessageID), zap.Error(err))
		return
	}
	if err := e.db.DeleteMessage(o.MessageID); err != nil {
		e.logger.Error("delete message failed",
			zap.String("message_id", o.MessageID), zap.Error(err))
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, Timestamp: time.Now(), Payload: o.MessageID})
	rep.Deleted++
}

// importRemote applies remote changes to the local log: new messages from
// other devices are decoded and stored, remote deletions and Seen flags
// are mirrored. A payload that fails to decode is counted and skipped so
// one poison message cannot stall the folder. The returned modseq, when
// non-zero, is the lowest modseq of a message whose body could not be
// fetched; the caller keeps the checkpoint below it so the message is
// retried on the next pass.
func (e *Engine) importRemote(ctx context.Context, folder string, changed []imap.MessageInfo, rep *Report) (uint64, error) {
	var retryBelow uint64
	for _, c := range changed {
		known, err := e.db.GetCmsObjectByUID(folder, c.UID)
		if err != nil {
			return 0, err
		}
		if known == nil {
			if c.Has(imap.FlagDeleted) {
				continue
			}
			if !e.importOne(ctx, folder, c, rep) {
				if retryBelow == 0 || c.ModSeq < retryBelow {
					retryBelow = c.ModSeq
				}
			}
			continue
		}

		if c.Has(imap.FlagDeleted) && known.DeleteStatus == store.NotDeleted {
			// Another device deleted it remotely.
			if err := e.db.MarkDeleted(known.Type, known.MessageID, store.Deleted); err != nil {
				return 0, err
			}
			if err := e.db.DeleteMessage(known.MessageID); err != nil {
				return 0, err
			}
			e.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, Timestamp: time.Now(), Payload: known.MessageID})
			rep.Removed++
			continue
		}
		if c.Has(imap.FlagSeen) && known.ReadStatus == store.RemoteUnread {
			if err := e.db.MarkRead(known.Type, known.MessageID, store.RemoteRead); err != nil {
				return 0, err
			}
			if err := e.db.MarkMessageRead(known.MessageID); err != nil {
				return 0, err
			}
		}
	}
	return retryBelow, nil
}

// importOne returns false only when the body fetch itself failed, so the
// caller can hold the checkpoint and retry. Every other outcome, decode
// failures included, is final for this message.
func (e *Engine) importOne(ctx context.Context, folder string, c imap.MessageInfo, rep *Report) bool {
	payload, err := e.remote.FetchBody(ctx, folder, c.UID)
	if err != nil {
		e.logger.Error("fetch body failed",
			zap.String("folder", folder), zap.Uint32("uid", c.UID), zap.Error(err))
		rep.Skipped++
		return false
	}
	d, err := codec.Decode(payload)
	if err != nil {
		e.logger.Warn("undecodable remote message skipped",
			zap.String("folder", folder), zap.Uint32("uid", c.UID), zap.Error(err))
		rep.Skipped++
		return true
	}
	m := d.Message

	// A record we already hold for this message id means the UID is stale
	// knowledge, or the message was deleted locally. A local delete intent
	// outlives the remote copy: never resurrect it.
	existing, err := e.db.GetCmsObject(m.Type, m.MessageID)
	if err != nil {
		e.logger.Error("lookup failed", zap.String("message_id", m.MessageID), zap.Error(err))
		rep.Skipped++
		return true
	}
	if existing != nil && existing.DeleteStatus != store.NotDeleted {
		rep.Skipped++
		return true
	}

	readStatus := store.RemoteUnread
	if c.Has(imap.FlagSeen) {
		m.Read = store.Read
		readStatus = store.RemoteRead
	}
	if existing != nil {
		// Keep the native linkage when re-learning a UID for a message we
		// already track.
		m.NativeID = existing.NativeID
	}
	if err := e.db.UpsertMessage(&m); err != nil {
		e.logger.Error("import upsert failed", zap.String("message_id", m.MessageID), zap.Error(err))
		rep.Skipped++
		return true
	}
	if len(d.Parts) > 0 {
		if err := e.db.ReplaceParts(m.MessageID, d.Parts); err != nil {
			e.logger.Error("import parts failed", zap.String("message_id", m.MessageID), zap.Error(err))
			rep.Skipped++
			return true
		}
	}
	o := &store.CmsObject{
		Folder:     folder,
		UID:        c.UID,
		Type:       m.Type,
		MessageID:  m.MessageID,
		PushStatus: store.Pushed,
		ReadStatus: readStatus,
		NativeID:   m.NativeID,
	}
	if err := e.db.UpsertCmsObject(o); err != nil {
		e.logger.Error("import record failed", zap.String("message_id", m.MessageID), zap.Error(err))
		rep.Skipped++
		return true
	}
	e.bus.Publish(bus.Event{Kind: bus.KindMessageImport, Timestamp: time.Now(), Payload: m.MessageID})
	rep.Imported++
	return true
}
