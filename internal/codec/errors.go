package codec

import "fmt"

// MissingHeaderError reports a required header absent from a message block.
type MissingHeaderError struct {
	Key string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing required header %q", e.Key)
}

// HeaderFormatError reports a header present but with an unparseable value.
type HeaderFormatError struct {
	Key   string
	Value string
}

func (e *HeaderFormatError) Error() string {
	return fmt.Sprintf("malformed header %s: %q", e.Key, e.Value)
}
