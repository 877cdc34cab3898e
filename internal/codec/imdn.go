package codec

import (
	"encoding/xml"
	"fmt"
	"time"
)

// IMDN disposition statuses.
const (
	ImdnDelivered = "delivered"
	ImdnDisplayed = "displayed"
	ImdnError     = "error"
)

// Imdn is a minimal delivery/display disposition document.
type Imdn struct {
	MessageID string
	Timestamp int64
	Status    string
	Display   bool
}

type imdnDoc struct {
	XMLName      xml.Name      `xml:"urn:ietf:params:xml:ns:imdn imdn"`
	MessageID    string        `xml:"message-id"`
	DateTime     string        `xml:"datetime"`
	Delivery     *notification `xml:"delivery-notification,omitempty"`
	DisplayNotif *notification `xml:"display-notification,omitempty"`
}

type notification struct {
	Status statusElem `xml:"status"`
}

type statusElem struct {
	Inner innerStatus `xml:",any"`
}

type innerStatus struct {
	XMLName xml.Name
}

// XML serializes the IMDN document.
func (i *Imdn) XML() ([]byte, error) {
	doc := imdnDoc{
		MessageID: i.MessageID,
		DateTime:  time.UnixMilli(i.Timestamp).UTC().Format(time.RFC3339),
	}
	n := &notification{Status: statusElem{Inner: innerStatus{XMLName: xml.Name{Local: i.Status}}}}
	if i.Display {
		doc.DisplayNotif = n
	} else {
		doc.Delivery = n
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal imdn: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// ParseImdn decodes an IMDN disposition document.
func ParseImdn(data []byte) (*Imdn, error) {
	var doc imdnDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse imdn: %w", err)
	}
	if doc.MessageID == "" {
		return nil, &MissingHeaderError{Key: "message-id"}
	}
	ts, err := time.Parse(time.RFC3339, doc.DateTime)
	if err != nil {
		return nil, &HeaderFormatError{Key: "datetime", Value: doc.DateTime}
	}
	i := &Imdn{
		MessageID: doc.MessageID,
		Timestamp: ts.UnixMilli(),
	}
	switch {
	case doc.DisplayNotif != nil:
		i.Display = true
		i.Status = doc.DisplayNotif.Status.Inner.XMLName.Local
	case doc.Delivery != nil:
		i.Status = doc.Delivery.Status.Inner.XMLName.Local
	default:
		return nil, &MissingHeaderError{Key: "delivery-notification"}
	}
	return i, nil
}
