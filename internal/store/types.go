package store

import "database/sql"

// MessageType identifies what kind of entry a message or reconciliation
// record describes. Integer codes are the persisted representation and the
// codec's Message-Context values map onto them.
type MessageType int

const (
	TypeSms MessageType = iota
	TypeMms
	TypeChatMessage
	TypeImdn
	TypeFileTransfer
	TypeGroupState
)

func (t MessageType) String() string {
	switch t {
	case TypeSms:
		return "sms"
	case TypeMms:
		return "mms"
	case TypeChatMessage:
		return "chat"
	case TypeImdn:
		return "imdn"
	case TypeFileTransfer:
		return "filetransfer"
	case TypeGroupState:
		return "groupstate"
	default:
		return "unknown"
	}
}

// Direction of a message relative to this device.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "sent"
	}
	return "received"
}

// State is the delivery state of a message.
type State int

const (
	StateQueued State = iota
	StateSending
	StateSent
	StateDelivered
	StateDisplayed
	StateReceived
	StateFailed
)

// ReadStatus is the user-facing read flag of a message. It moves from
// Unread to Read exactly once and never reverts.
type ReadStatus int

const (
	Unread ReadStatus = iota
	Read
)

// PushStatus tracks whether a message has been uploaded to the remote
// store. Transitions are forward-only: NotPushed -> PushRequested -> Pushed.
type PushStatus int

const (
	NotPushed PushStatus = iota
	PushRequested
	Pushed
)

// RemoteReadStatus tracks whether the remote Seen flag has been applied,
// independent of the message's own read flag. Forward-only.
type RemoteReadStatus int

const (
	RemoteUnread RemoteReadStatus = iota
	ReadReportRequested
	RemoteRead
)

// DeleteStatus tracks remote deletion propagation. Forward-only; Deleted
// is terminal and purge-eligible.
type DeleteStatus int

const (
	NotDeleted DeleteStatus = iota
	DeleteReportRequested
	Deleted
)

// Message is the persisted content of an SMS, MMS, chat message or IMDN.
type Message struct {
	MessageID          string
	NativeID           sql.NullInt64
	ChatID             string
	Contact            string
	Direction          Direction
	Type               MessageType
	MimeType           string
	Body               string
	MmsID              string
	State              State
	Read               ReadStatus
	Timestamp          int64
	TimestampSent      int64
	TimestampDelivered int64
}

// Part is one MIME part of a multipart (MMS) message, ordered by Seq.
type Part struct {
	MessageID string
	Seq       int
	MimeType  string
	FileName  string
	Text      string
	Blob      []byte
}

// CmsObject is the reconciliation record bridging a local message and its
// remote IMAP representation, one per (message, folder) pair. UID zero
// means the message has not been assigned a remote UID yet.
type CmsObject struct {
	Folder       string
	UID          uint32
	Type         MessageType
	MessageID    string
	PushStatus   PushStatus
	ReadStatus   RemoteReadStatus
	DeleteStatus DeleteStatus
	NativeID     sql.NullInt64
}
