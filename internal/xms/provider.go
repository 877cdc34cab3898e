// Package xms mirrors the device's native SMS/MMS provider: snapshotting
// identifiers, diffing observation events, and reconciling the native tables
// against the local message log.
package xms

import (
	"context"
	"errors"

	"github.com/nlebec/cmsync/internal/store"
)

// ErrRowNotFound is returned when a native row vanished between the change
// notification and the read. Callers treat it as "nothing to do".
var ErrRowNotFound = errors.New("native row not found")

// SMS and MMS rows live in separate native tables with overlapping row ids.
// Composite ids keep the diffing uniform: MMS ids carry a high bit.
const mmsIDFlag = int64(1) << 62

// ComposeMmsID returns the composite id for an MMS row.
func ComposeMmsID(rowID int64) int64 { return rowID | mmsIDFlag }

// IsMms reports whether a composite id refers to an MMS row.
func IsMms(id int64) bool { return id&mmsIDFlag != 0 }

// RowID strips the type bit from a composite id.
func RowID(id int64) int64 { return id &^ mmsIDFlag }

// Snapshot is the observable state of the native store at one instant:
// all composite ids plus the subset flagged read.
type Snapshot struct {
	IDs  map[int64]struct{}
	Read map[int64]struct{}
}

// NativeMessage is one native row normalized for import. Recipients holds
// one entry per remote party; a multi-recipient MMS fans out to one tracked
// message per recipient.
type NativeMessage struct {
	ID         int64
	Recipients []string
	Body       string
	MmsID      string
	Outgoing   bool
	Read       bool
	Timestamp  int64
	Parts      []store.Part
}

// Provider is read/write access to the native SMS/MMS store. Reads never
// mutate it; Delete and MarkRead are the only write paths and are invoked
// solely on explicit user action.
type Provider interface {
	// Snapshot performs a full scan of native identifiers and read flags.
	Snapshot(ctx context.Context) (*Snapshot, error)
	// ReadMessage reads one row into a normalized message. Returns
	// ErrRowNotFound if the row vanished since the snapshot.
	ReadMessage(ctx context.Context, id int64) (*NativeMessage, error)
	Delete(ctx context.Context, id int64) error
	MarkRead(ctx context.Context, id int64) error
	// Changes delivers a signal whenever the native store may have changed.
	Changes() <-chan struct{}
	Close() error
}
