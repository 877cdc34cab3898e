// Package codec serializes messages to and from the wire representation
// stored in the remote IMAP mailbox: an outer header block carrying routing
// metadata, wrapping a CPIM body whose content part is the SMS/chat text, an
// MMS multipart, or an IMDN disposition document.
package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/nlebec/cmsync/internal/store"
)

// Outer header names. Message-ID, Conversation-ID, Contribution-ID,
// Message-Direction and Content-Type are required on decode.
const (
	hdrFrom           = "From"
	hdrTo             = "To"
	hdrDate           = "Date"
	hdrConversationID = "Conversation-ID"
	hdrContributionID = "Contribution-ID"
	hdrMessageID      = "Message-ID"
	hdrDirection      = "Message-Direction"
	hdrContext        = "Message-Context"
	hdrMmsID          = "MMS-Message-ID"
	hdrContentType    = "Content-Type"
)

const (
	contentTypeCpim = "Message/CPIM"
	contextPager    = "pager-message"
	contextMms      = "multimedia-message"
	mimeTextPlain   = "text/plain"
	mimeImdnXml     = "message/imdn+xml"
	mimeMultipart   = "multipart/related"

	anonymousURI = "<sip:anonymous@anonymous.invalid>"

	// Millisecond precision keeps Date faithful to the stored timestamp;
	// RFC1123Z is still accepted on decode for messages written by other
	// clients.
	dateLayout       = "2006-01-02T15:04:05.000Z07:00"
	dateLayoutLegacy = time.RFC1123Z
)

// Options controls encoding. The MMS boundary is caller-supplied rather
// than derived from content so encode/decode round-trips byte-for-byte.
type Options struct {
	Boundary string
}

// Decoded is the result of decoding a stored message.
type Decoded struct {
	Message store.Message
	Parts   []store.Part
}

// Encode serializes a message and its parts into the wire payload appended
// to the remote store.
func (o Options) Encode(m *store.Message, parts []store.Part) ([]byte, error) {
	oneToOne := m.Contact == m.ChatID

	var sb strings.Builder
	outer := newHeaderBlock()
	outer.set(hdrFrom, m.Contact)
	outer.set(hdrTo, m.ChatID)
	outer.set(hdrDate, time.UnixMilli(m.Timestamp).UTC().Format(dateLayout))
	outer.set(hdrConversationID, m.ChatID)
	outer.set(hdrContributionID, m.ChatID)
	outer.set(hdrMessageID, m.MessageID)
	outer.set(hdrDirection, m.Direction.String())
	switch m.Type {
	case store.TypeSms:
		outer.set(hdrContext, contextPager)
	case store.TypeMms:
		outer.set(hdrContext, contextMms)
		if o.Boundary == "" {
			return nil, fmt.Errorf("encode mms %s: boundary required", m.MessageID)
		}
		if m.MmsID != "" {
			outer.set(hdrMmsID, m.MmsID)
		}
	}
	outer.set(hdrContentType, contentTypeCpim)
	outer.write(&sb)

	cpim := newHeaderBlock()
	if oneToOne {
		// One-to-one chats are anonymized inside the CPIM envelope; the
		// outer headers already carry the routing identity.
		cpim.set(hdrFrom, anonymousURI)
		cpim.set(hdrTo, anonymousURI)
	} else {
		cpim.set(hdrFrom, "<tel:"+m.Contact+">")
		cpim.set(hdrTo, "<tel:"+m.ChatID+">")
	}
	cpim.set("NS", "imdn <urn:ietf:params:imdn>")
	cpim.set("imdn.Message-ID", m.MessageID)
	cpim.set("DateTime", time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339))
	cpim.write(&sb)

	content := newHeaderBlock()
	switch m.Type {
	case store.TypeMms:
		content.set(hdrContentType, `Multipart/Related; boundary="`+o.Boundary+`"`)
		content.write(&sb)
		encodeMultipart(&sb, parts, o.Boundary)
	case store.TypeImdn:
		content.set(hdrContentType, mimeImdnXml)
		content.write(&sb)
		sb.WriteString(m.Body)
		sb.WriteString(crlf)
	default:
		content.set(hdrContentType, mimeTextPlain+"; charset=utf-8")
		content.write(&sb)
		sb.WriteString(m.Body)
		sb.WriteString(crlf)
	}

	return []byte(sb.String()), nil
}

// Decode parses a wire payload fetched from the remote store. It tolerates
// header ordering and folding variation but fails on any missing required
// header or unparseable value.
func Decode(data []byte) (*Decoded, error) {
	outer, rest := parseHeaderBlock(string(data))

	messageID, err := outer.require(hdrMessageID)
	if err != nil {
		return nil, err
	}
	chatID, err := outer.require(hdrConversationID)
	if err != nil {
		return nil, err
	}
	if _, err := outer.require(hdrContributionID); err != nil {
		return nil, err
	}
	dirValue, err := outer.require(hdrDirection)
	if err != nil {
		return nil, err
	}
	outerType, err := outer.require(hdrContentType)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(strings.Split(outerType, ";")[0]), contentTypeCpim) {
		return nil, &HeaderFormatError{Key: hdrContentType, Value: outerType}
	}

	var direction store.Direction
	switch dirValue {
	case "received":
		direction = store.Incoming
	case "sent":
		direction = store.Outgoing
	default:
		return nil, &HeaderFormatError{Key: hdrDirection, Value: dirValue}
	}

	var ts int64
	if dateValue, ok := outer.get(hdrDate); ok {
		parsed, err := time.Parse(time.RFC3339Nano, dateValue)
		if err != nil {
			parsed, err = time.Parse(dateLayoutLegacy, dateValue)
		}
		if err != nil {
			return nil, &HeaderFormatError{Key: hdrDate, Value: dateValue}
		}
		ts = parsed.UnixMilli()
	}

	contact, _ := outer.get(hdrFrom)
	if contact == "" {
		contact = chatID
	}

	// CPIM headers, then the content part.
	_, rest = parseHeaderBlock(rest)
	content, body := parseHeaderBlock(rest)

	contentType, err := content.require(hdrContentType)
	if err != nil {
		return nil, err
	}
	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	m := store.Message{
		MessageID: messageID,
		ChatID:    chatID,
		Contact:   contact,
		Direction: direction,
		Timestamp: ts,
	}
	if direction == store.Incoming {
		m.State = store.StateReceived
	} else {
		m.State = store.StateSent
	}

	context, _ := outer.get(hdrContext)
	d := &Decoded{}
	switch {
	case context == contextMms || mime == mimeMultipart:
		m.Type = store.TypeMms
		m.MimeType = mimeMultipart
		m.MmsID, _ = outer.get(hdrMmsID)
		boundary := parseBoundary(contentType)
		if boundary == "" {
			return nil, &HeaderFormatError{Key: hdrContentType, Value: contentType}
		}
		parts, err := decodeMultipart(body, boundary)
		if err != nil {
			return nil, err
		}
		for i := range parts {
			parts[i].MessageID = messageID
			parts[i].Seq = i
		}
		d.Parts = parts
	case mime == mimeImdnXml:
		m.Type = store.TypeImdn
		m.MimeType = mimeImdnXml
		m.Body = strings.TrimSuffix(body, crlf)
	case context == contextPager:
		m.Type = store.TypeSms
		m.MimeType = mimeTextPlain
		m.Body = strings.TrimSuffix(body, crlf)
	default:
		m.Type = store.TypeChatMessage
		m.MimeType = mimeTextPlain
		m.Body = strings.TrimSuffix(body, crlf)
	}

	d.Message = m
	return d, nil
}
