// Package imap defines the transport boundary to the remote message store:
// the narrow set of IMAP primitives the reconciliation engine needs, a
// client backed by go-imap, and an in-memory implementation for tests.
package imap

import "context"

// Flag is an IMAP system flag.
type Flag string

const (
	FlagSeen    Flag = `\Seen`
	FlagDeleted Flag = `\Deleted`
)

// MessageInfo is the UID+FLAGS+MODSEQ summary of one remote message.
type MessageInfo struct {
	UID    uint32
	ModSeq uint64
	Flags  []Flag
}

// Has reports whether a flag is set.
func (m *MessageInfo) Has(f Flag) bool {
	for _, have := range m.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// SelectInfo is the folder state returned by SELECT (CONDSTORE).
type SelectInfo struct {
	UIDValidity   uint32
	HighestModSeq uint64
	NumMessages   uint32
}

// Transport is the remote store collaborator. SELECT state is
// session-global, so callers must serialize operations on one Transport;
// the sync scheduler's single worker queue provides that.
type Transport interface {
	// Select opens a folder with CONDSTORE, creating it if absent.
	Select(ctx context.Context, folder string) (*SelectInfo, error)
	// FetchChanged returns UID+FLAGS+MODSEQ for messages changed since the
	// given MODSEQ in the selected folder. Zero means all messages.
	FetchChanged(ctx context.Context, folder string, sinceModSeq uint64) ([]MessageInfo, error)
	// FetchBody returns the full payload of one message.
	FetchBody(ctx context.Context, folder string, uid uint32) ([]byte, error)
	// Append uploads a payload and returns the UID assigned by the server.
	Append(ctx context.Context, folder string, flags []Flag, payload []byte) (uint32, error)
	// StoreFlags adds flags to a message (+FLAGS, silent).
	StoreFlags(ctx context.Context, folder string, uid uint32, flags []Flag) error
	// List enumerates folder names under the account.
	List(ctx context.Context) ([]string, error)
	Close() error
}
