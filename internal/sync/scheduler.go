package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nlebec/cmsync/internal/bus"
	"github.com/nlebec/cmsync/internal/imap"
	"github.com/nlebec/cmsync/internal/store"
	"go.uber.org/zap"
)

// ScopeKind selects how much of the account one sync request covers.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeOneToOne
	ScopeGroup
)

// Scope identifies what to sync: the whole account, one contact's
// conversation, or one group chat.
type Scope struct {
	Kind    ScopeKind
	Contact string
	ChatID  string
}

// Result is the payload of a sync.completed bus event.
type Result struct {
	Scope   Scope
	Success bool
}

// Scheduler owns the single worker that runs reconciliation passes. All
// requests are funneled through one goroutine because the IMAP session
// holds folder selection state; requests for a scope already queued or
// running are coalesced into it.
type Scheduler struct {
	engine   *Engine
	db       *store.DB
	remote   imap.Transport
	root     string
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger

	mu      sync.Mutex
	queue   []Scope
	running *Scope

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a sync scheduler.
func NewScheduler(engine *Engine, db *store.DB, remote imap.Transport, root string, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		db:       db,
		remote:   remote,
		root:     root,
		interval: interval,
		bus:      b,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// Request enqueues a sync for the scope. Duplicate of a queued or running
// scope is absorbed; the pending pass will cover it.
func (s *Scheduler) Request(scope Scope) {
	s.mu.Lock()
	if s.running != nil && *s.running == scope {
		s.mu.Unlock()
		return
	}
	for _, q := range s.queue {
		if q == scope {
			s.mu.Unlock()
			return
		}
	}
	s.queue = append(s.queue, scope)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start launches the worker and the periodic full-sync ticker.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Request(Scope{Kind: ScopeAll})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Request(Scope{Kind: ScopeAll})
			case <-s.kick:
				s.drain(ctx)
			}
		}
	}()
}

// Stop cancels the worker and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = nil
			s.mu.Unlock()
			return
		}
		scope := s.queue[0]
		s.queue = s.queue[1:]
		s.running = &scope
		s.mu.Unlock()

		ok := s.runScope(ctx, scope)

		s.mu.Lock()
		s.running = nil
		s.mu.Unlock()

		s.bus.Publish(bus.Event{
			Kind:      bus.KindSyncCompleted,
			Timestamp: time.Now(),
			Payload:   Result{Scope: scope, Success: ok},
		})

		if ctx.Err() != nil {
			return
		}
	}
}

// runScope executes one pass. A panic from any layer below is confined to
// the pass and reported as a failure.
func (s *Scheduler) runScope(ctx context.Context, scope Scope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync pass panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	switch scope.Kind {
	case ScopeOneToOne:
		return s.runFolder(ctx, imap.OneToOneFolder(s.root, scope.Contact))
	case ScopeGroup:
		return s.runFolder(ctx, imap.GroupFolder(s.root, scope.ChatID))
	default:
		return s.runAll(ctx)
	}
}

func (s *Scheduler) runFolder(ctx context.Context, folder string) bool {
	rep, err := s.engine.SyncFolder(ctx, folder)
	if err != nil {
		s.logger.Error("folder sync failed", zap.String("folder", folder), zap.Error(err))
		return false
	}
	s.logger.Info("folder synced",
		zap.String("folder", folder),
		zap.Int("pushed", rep.Pushed),
		zap.Int("flagged", rep.Flagged),
		zap.Int("deleted", rep.Deleted),
		zap.Int("imported", rep.Imported),
		zap.Int("removed", rep.Removed),
		zap.Int("skipped", rep.Skipped),
		zap.Uint64("modseq", rep.ModSeq))
	return true
}

// runAll syncs the union of folders present locally and remotely, then
// purges finalized deletions. One failing folder does not abort the rest.
func (s *Scheduler) runAll(ctx context.Context) bool {
	folders, err := s.allFolders(ctx)
	if err != nil {
		s.logger.Error("folder enumeration failed", zap.Error(err))
		return false
	}

	ok := true
	for _, f := range folders {
		if ctx.Err() != nil {
			return false
		}
		if !s.runFolder(ctx, f) {
			ok = false
		}
	}

	purged, err := s.db.Purge()
	if err != nil {
		s.logger.Error("purge failed", zap.Error(err))
		return false
	}
	if purged > 0 {
		s.logger.Info("purged finalized deletions", zap.Int64("count", purged))
	}
	return ok
}

// allFolders merges folders known locally with folders present on the
// server under the root, so a conversation started on another device is
// picked up even before any local record exists.
func (s *Scheduler) allFolders(ctx context.Context) ([]string, error) {
	local, err := s.db.ListFolders()
	if err != nil {
		return nil, err
	}
	remote, err := s.remote.List(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, f := range local {
		set[f] = struct{}{}
	}
	for _, f := range remote {
		if imap.ConversationID(s.root, f) != "" {
			set[f] = struct{}{}
		}
	}
	folders := make([]string, 0, len(set))
	for f := range set {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders, nil
}
