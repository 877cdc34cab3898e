package xms

import (
	"context"
	"time"

	"github.com/nlebec/cmsync/internal/bus"
	"go.uber.org/zap"
)

// Observer watches the native provider for changes and publishes the diff
// as bus events. It never touches the network, so it runs concurrently
// with remote sync passes.
type Observer struct {
	provider Provider
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewObserver creates a new native store observer.
func NewObserver(provider Provider, b *bus.Bus, logger *zap.Logger) *Observer {
	return &Observer{
		provider: provider,
		bus:      b,
		logger:   logger,
	}
}

// Start takes the initial snapshot and begins consuming change signals.
func (o *Observer) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	go func() {
		last, err := o.provider.Snapshot(ctx)
		if err != nil {
			o.logger.Error("initial native snapshot failed", zap.Error(err))
			last = &Snapshot{IDs: map[int64]struct{}{}, Read: map[int64]struct{}{}}
		}
		for {
			select {
			case <-o.provider.Changes():
				cur, err := o.provider.Snapshot(ctx)
				if err != nil {
					o.logger.Error("native snapshot failed", zap.Error(err))
					continue
				}
				o.publish(last, cur)
				last = cur
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the observer.
func (o *Observer) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

// publish emits granular diff events, deletions first, then a single
// provider_changed event that triggers the provider/store synchronizer.
func (o *Observer) publish(old, cur *Snapshot) {
	diff := DiffSnapshots(old, cur)
	now := time.Now()
	for _, id := range diff.Deleted {
		o.bus.Publish(bus.Event{Kind: bus.KindXmsDeleted, Timestamp: now, Payload: id})
	}
	for _, id := range diff.New {
		o.bus.Publish(bus.Event{Kind: bus.KindXmsNew, Timestamp: now, Payload: id})
	}
	for _, id := range ReadChanges(old, cur) {
		o.bus.Publish(bus.Event{Kind: bus.KindXmsRead, Timestamp: now, Payload: id})
	}
	o.bus.Publish(bus.Event{Kind: bus.KindXmsChanged, Timestamp: now})
}
