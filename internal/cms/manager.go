// Package cms is the in-process API surface of the message store
// synchronizer: explicit entry points the host application calls when the
// user acts on a message, plus sync triggers per conversation scope.
package cms

import (
	"context"
	"fmt"

	"github.com/nlebec/cmsync/internal/store"
	"github.com/nlebec/cmsync/internal/sync"
	"github.com/nlebec/cmsync/internal/xms"
	"go.uber.org/zap"
)

// Manager coordinates user-initiated actions across the local log, the
// native provider and the sync scheduler. Actions only stage forward-only
// transitions; the next sync pass carries them to the server.
type Manager struct {
	db        *store.DB
	provider  xms.Provider
	scheduler *sync.Scheduler
	logger    *zap.Logger
}

// NewManager creates a manager.
func NewManager(db *store.DB, provider xms.Provider, scheduler *sync.Scheduler, logger *zap.Logger) *Manager {
	return &Manager{db: db, provider: provider, scheduler: scheduler, logger: logger}
}

// SyncAll requests a full account sync.
func (m *Manager) SyncAll() {
	m.scheduler.Request(sync.Scope{Kind: sync.ScopeAll})
}

// SyncOneToOneConversation requests a sync of one contact's conversation.
func (m *Manager) SyncOneToOneConversation(contact string) {
	m.scheduler.Request(sync.Scope{Kind: sync.ScopeOneToOne, Contact: contact})
}

// SyncGroupConversation requests a sync of one group conversation.
func (m *Manager) SyncGroupConversation(chatID string) {
	m.scheduler.Request(sync.Scope{Kind: sync.ScopeGroup, ChatID: chatID})
}

// OnReadMessage records that the user read a message: the local read flag
// advances, a remote read report is staged, and a native-backed message is
// marked read in the native store too.
func (m *Manager) OnReadMessage(ctx context.Context, messageID string) error {
	msg, err := m.db.GetMessage(messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("read message %s: not found", messageID)
	}

	if err := m.db.MarkMessageRead(messageID); err != nil {
		return err
	}
	if err := m.db.MarkRead(msg.Type, messageID, store.ReadReportRequested); err != nil {
		return err
	}
	if msg.NativeID.Valid {
		if err := m.provider.MarkRead(ctx, msg.NativeID.Int64); err != nil {
			// The staged report still propagates; only the native mirror
			// lagged behind.
			m.logger.Warn("native mark read failed",
				zap.String("message_id", messageID),
				zap.Int64("native_id", msg.NativeID.Int64), zap.Error(err))
		}
	}
	m.requestConversationSync(msg)
	return nil
}

// OnDeleteMessage records that the user deleted a message: a remote delete
// report is staged and a native-backed message is removed from the native
// store. The local copy stays until the report reaches the server.
func (m *Manager) OnDeleteMessage(ctx context.Context, messageID string) error {
	msg, err := m.db.GetMessage(messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("delete message %s: not found", messageID)
	}

	if err := m.db.MarkDeleted(msg.Type, messageID, store.DeleteReportRequested); err != nil {
		return err
	}
	if msg.NativeID.Valid {
		if err := m.provider.Delete(ctx, msg.NativeID.Int64); err != nil {
			m.logger.Warn("native delete failed",
				zap.String("message_id", messageID),
				zap.Int64("native_id", msg.NativeID.Int64), zap.Error(err))
		}
	}
	m.requestConversationSync(msg)
	return nil
}

// requestConversationSync picks the scope matching the message's chat. A
// one-to-one chat carries the contact as its chat id.
func (m *Manager) requestConversationSync(msg *store.Message) {
	if msg.Contact == msg.ChatID {
		m.SyncOneToOneConversation(msg.Contact)
	} else {
		m.SyncGroupConversation(msg.ChatID)
	}
}

// OnDeleteConversation stages a delete report for every message of a chat.
func (m *Manager) OnDeleteConversation(ctx context.Context, chatID string) error {
	ids, err := m.db.ListMessageIDs(chatID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.OnDeleteMessage(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// OnReadConversation marks every message of a chat read.
func (m *Manager) OnReadConversation(ctx context.Context, chatID string) error {
	ids, err := m.db.ListMessageIDs(chatID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.OnReadMessage(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// PurgeDeleted drops reconciliation records whose deletion was confirmed
// by the server.
func (m *Manager) PurgeDeleted() (int64, error) {
	return m.db.Purge()
}

// ListConversation returns messages of a chat, newest first, paginated by
// timestamp.
func (m *Manager) ListConversation(chatID string, beforeTs int64, limit int) ([]store.Message, error) {
	return m.db.ListMessages(chatID, beforeTs, limit)
}
