package xms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nlebec/cmsync/internal/bus"
	"github.com/nlebec/cmsync/internal/config"
	"github.com/nlebec/cmsync/internal/imap"
	"github.com/nlebec/cmsync/internal/store"
	"go.uber.org/zap"
)

// Synchronizer reconciles the native provider against the local message
// log, independent of remote sync. It detects native-side deletes, new
// native messages and read-state changes, and stages the corresponding
// forward-only transitions for the next remote pass. It never writes to
// the native store.
type Synchronizer struct {
	provider Provider
	db       *store.DB
	cfg      config.MessageConfig
	root     string
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewSynchronizer creates a provider/store synchronizer.
func NewSynchronizer(provider Provider, db *store.DB, cfg config.MessageConfig, root string, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		provider: provider,
		db:       db,
		cfg:      cfg,
		root:     root,
		bus:      b,
		logger:   logger,
	}
}

// Start runs a bootstrap pass and then one pass per native change event.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(bus.KindXmsChanged, 16)

	go func() {
		defer unsub()
		if err := s.Run(ctx); err != nil {
			s.logger.Error("bootstrap provider sync failed", zap.Error(err))
		}
		for {
			select {
			case <-ch:
				if err := s.Run(ctx); err != nil {
					s.logger.Error("provider sync failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the synchronizer.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Run executes one full provider/store reconciliation pass.
func (s *Synchronizer) Run(ctx context.Context) error {
	snap, err := s.provider.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("native snapshot: %w", err)
	}
	tracked, err := s.db.ListNativeTracked()
	if err != nil {
		return fmt.Errorf("list tracked: %w", err)
	}

	trackedIDs := make(map[int64][]store.CmsObject)
	for _, o := range tracked {
		trackedIDs[o.NativeID.Int64] = append(trackedIDs[o.NativeID.Int64], o)
	}

	// Deletions first, so a native id reused by a fresh row cannot collide
	// with a stale tracked record.
	s.applyNativeDeletes(snap, trackedIDs)

	for id := range snap.IDs {
		if _, ok := trackedIDs[id]; ok {
			continue
		}
		if err := s.importNative(ctx, id); err != nil {
			s.logger.Error("native import failed", zap.Int64("native_id", id), zap.Error(err))
		}
	}

	s.applyNativeReads(snap, trackedIDs)
	return nil
}

// applyNativeDeletes stages a remote delete report for every tracked
// native id no longer present in the provider.
func (s *Synchronizer) applyNativeDeletes(snap *Snapshot, tracked map[int64][]store.CmsObject) {
	for id, objs := range tracked {
		if _, ok := snap.IDs[id]; ok {
			continue
		}
		for _, o := range objs {
			if o.DeleteStatus != store.NotDeleted {
				continue
			}
			if err := s.db.MarkDeleted(o.Type, o.MessageID, store.DeleteReportRequested); err != nil {
				s.logger.Error("mark delete requested failed",
					zap.String("message_id", o.MessageID), zap.Error(err))
				continue
			}
			s.logger.Info("native delete detected",
				zap.Int64("native_id", id), zap.String("message_id", o.MessageID))
		}
	}
}

// applyNativeReads advances the remote-facing read status for native rows
// newly flagged read.
func (s *Synchronizer) applyNativeReads(snap *Snapshot, tracked map[int64][]store.CmsObject) {
	for id := range snap.Read {
		for _, o := range tracked[id] {
			if o.ReadStatus != store.RemoteUnread || o.DeleteStatus != store.NotDeleted {
				continue
			}
			if err := s.db.MarkRead(o.Type, o.MessageID, store.ReadReportRequested); err != nil {
				s.logger.Error("mark read requested failed",
					zap.String("message_id", o.MessageID), zap.Error(err))
			}
		}
	}
}

// importNative reads a native row and creates the tracked message(s). A
// multi-recipient MMS fans out to one message and one reconciliation
// record per recipient, all sharing the native id and mms id.
func (s *Synchronizer) importNative(ctx context.Context, id int64) error {
	native, err := s.provider.ReadMessage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			// Row vanished between notification and read; nothing to do.
			return nil
		}
		return err
	}
	if len(native.Recipients) == 0 {
		return fmt.Errorf("native %d has no recipients", id)
	}

	msgType := store.TypeSms
	push := s.cfg.PushSms
	if IsMms(id) {
		msgType = store.TypeMms
		push = s.cfg.PushMms
	}

	for _, contact := range native.Recipients {
		m := &store.Message{
			MessageID: uuid.NewString(),
			NativeID:  sql.NullInt64{Int64: id, Valid: true},
			ChatID:    contact,
			Contact:   contact,
			Type:      msgType,
			MmsID:     native.MmsID,
			Body:      native.Body,
			Timestamp: native.Timestamp,
		}
		if native.Outgoing {
			m.Direction = store.Outgoing
			m.State = store.StateSent
			m.TimestampSent = native.Timestamp
		} else {
			m.Direction = store.Incoming
			m.State = store.StateReceived
		}
		if native.Read {
			m.Read = store.Read
		}

		if err := s.db.UpsertMessage(m); err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}
		if len(native.Parts) > 0 {
			if err := s.db.ReplaceParts(m.MessageID, native.Parts); err != nil {
				return fmt.Errorf("store parts: %w", err)
			}
		}

		o := &store.CmsObject{
			Folder:    imap.OneToOneFolder(s.root, contact),
			Type:      msgType,
			MessageID: m.MessageID,
			NativeID:  m.NativeID,
		}
		if push {
			o.PushStatus = store.PushRequested
		} else {
			// Intentionally not mirrored remotely; mark as settled so the
			// engine never tries to upload it.
			o.PushStatus = store.Pushed
		}
		// Outgoing and already-read rows need no remote read report.
		if native.Read || native.Outgoing {
			o.ReadStatus = store.RemoteRead
		}
		if err := s.db.UpsertCmsObject(o); err != nil {
			return fmt.Errorf("upsert cms object: %w", err)
		}

		s.logger.Info("native message imported",
			zap.Int64("native_id", id),
			zap.String("message_id", m.MessageID),
			zap.String("contact", contact),
			zap.String("type", msgType.String()))
	}
	return nil
}
