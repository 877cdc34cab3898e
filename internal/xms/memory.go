package xms

import (
	"context"
	"sync"
)

// MemoryProvider is an in-memory native store used by tests and by hosts
// without a real telephony database. It implements Provider.
type MemoryProvider struct {
	mu   sync.Mutex
	rows map[int64]*NativeMessage

	changes chan struct{}
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		rows:    make(map[int64]*NativeMessage),
		changes: make(chan struct{}, 1),
	}
}

// Put inserts or replaces a native row and signals a change.
func (p *MemoryProvider) Put(m *NativeMessage) {
	p.mu.Lock()
	p.rows[m.ID] = m
	p.mu.Unlock()
	p.signal()
}

// Remove deletes a native row directly (simulating the user deleting from
// the native messaging app) and signals a change.
func (p *MemoryProvider) Remove(id int64) {
	p.mu.Lock()
	delete(p.rows, id)
	p.mu.Unlock()
	p.signal()
}

// SetRead flips a row's read flag directly and signals a change.
func (p *MemoryProvider) SetRead(id int64) {
	p.mu.Lock()
	if m, ok := p.rows[id]; ok {
		m.Read = true
	}
	p.mu.Unlock()
	p.signal()
}

func (p *MemoryProvider) signal() {
	select {
	case p.changes <- struct{}{}:
	default:
	}
}

func (p *MemoryProvider) Snapshot(_ context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := &Snapshot{
		IDs:  make(map[int64]struct{}, len(p.rows)),
		Read: make(map[int64]struct{}),
	}
	for id, m := range p.rows {
		snap.IDs[id] = struct{}{}
		if m.Read {
			snap.Read[id] = struct{}{}
		}
	}
	return snap, nil
}

func (p *MemoryProvider) ReadMessage(_ context.Context, id int64) (*NativeMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.rows[id]
	if !ok {
		return nil, ErrRowNotFound
	}
	cp := *m
	return &cp, nil
}

func (p *MemoryProvider) Delete(_ context.Context, id int64) error {
	p.mu.Lock()
	delete(p.rows, id)
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) MarkRead(_ context.Context, id int64) error {
	p.mu.Lock()
	if m, ok := p.rows[id]; ok {
		m.Read = true
	}
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) Changes() <-chan struct{} { return p.changes }

func (p *MemoryProvider) Close() error { return nil }
