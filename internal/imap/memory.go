package imap

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var _ Transport = (*Memory)(nil)

// Memory is an in-memory Transport used by engine tests. It assigns UIDs
// sequentially and bumps a per-folder MODSEQ on every mutation, mirroring
// CONDSTORE semantics closely enough for incremental sync.
type Memory struct {
	mu      sync.Mutex
	folders map[string]*memFolder

	// FailAppend, when set, makes every Append return an error. Used to
	// exercise retry-on-next-pass behavior.
	FailAppend bool
}

type memFolder struct {
	uidValidity uint32
	uidNext     uint32
	modseq      uint64
	msgs        map[uint32]*memMessage
}

type memMessage struct {
	body   []byte
	flags  map[Flag]struct{}
	modseq uint64
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{folders: make(map[string]*memFolder)}
}

func (m *Memory) folder(name string) *memFolder {
	f, ok := m.folders[name]
	if !ok {
		f = &memFolder{
			uidValidity: 1,
			uidNext:     1,
			modseq:      1,
			msgs:        make(map[uint32]*memMessage),
		}
		m.folders[name] = f
	}
	return f
}

// AddRemote stores a payload as if another device appended it, returning
// the assigned UID. Test helper.
func (m *Memory) AddRemote(folder string, payload []byte) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(m.folder(folder), nil, payload)
}

func (m *Memory) add(f *memFolder, flags []Flag, payload []byte) uint32 {
	uid := f.uidNext
	f.uidNext++
	f.modseq++
	msg := &memMessage{
		body:   append([]byte(nil), payload...),
		flags:  make(map[Flag]struct{}),
		modseq: f.modseq,
	}
	for _, fl := range flags {
		msg.flags[fl] = struct{}{}
	}
	f.msgs[uid] = msg
	return uid
}

// SetRemoteFlag adds a flag as if another device stored it. Test helper.
func (m *Memory) SetRemoteFlag(folder string, uid uint32, flag Flag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.folder(folder)
	if msg, ok := f.msgs[uid]; ok {
		f.modseq++
		msg.flags[flag] = struct{}{}
		msg.modseq = f.modseq
	}
}

// SetUIDValidity overrides a folder's UIDVALIDITY, simulating a server
// that rebuilt the mailbox. Test helper.
func (m *Memory) SetUIDValidity(folder string, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folder(folder).uidValidity = v
}

// FlagsOf returns the flags of a message. Test helper.
func (m *Memory) FlagsOf(folder string, uid uint32) []Flag {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.folder(folder).msgs[uid]
	if !ok {
		return nil
	}
	var flags []Flag
	for f := range msg.flags {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return flags
}

func (m *Memory) Select(_ context.Context, folder string) (*SelectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.folder(folder)
	return &SelectInfo{
		UIDValidity:   f.uidValidity,
		HighestModSeq: f.modseq,
		NumMessages:   uint32(len(f.msgs)),
	}, nil
}

func (m *Memory) FetchChanged(_ context.Context, folder string, sinceModSeq uint64) ([]MessageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.folder(folder)

	var infos []MessageInfo
	for uid, msg := range f.msgs {
		if msg.modseq <= sinceModSeq {
			continue
		}
		info := MessageInfo{UID: uid, ModSeq: msg.modseq}
		for fl := range msg.flags {
			info.Flags = append(info.Flags, fl)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UID < infos[j].UID })
	return infos, nil
}

func (m *Memory) FetchBody(_ context.Context, folder string, uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.folder(folder).msgs[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d not found in %s", uid, folder)
	}
	return append([]byte(nil), msg.body...), nil
}

func (m *Memory) Append(_ context.Context, folder string, flags []Flag, payload []byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend {
		return 0, fmt.Errorf("append rejected")
	}
	return m.add(m.folder(folder), flags, payload), nil
}

func (m *Memory) StoreFlags(_ context.Context, folder string, uid uint32, flags []Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.folder(folder)
	msg, ok := f.msgs[uid]
	if !ok {
		return fmt.Errorf("uid %d not found in %s", uid, folder)
	}
	f.modseq++
	for _, fl := range flags {
		msg.flags[fl] = struct{}{}
	}
	msg.modseq = f.modseq
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.folders))
	for name := range m.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Close() error { return nil }
