package codec

import (
	"strings"
)

const crlf = "\r\n"

// headerBlock is an ordered key/value header list. Formatting writes keys
// in the order given; lookup is case-insensitive. Parsing unfolds
// continuation lines.
type headerBlock struct {
	keys   []string
	values map[string]string
}

func newHeaderBlock() *headerBlock {
	return &headerBlock{values: make(map[string]string)}
}

func (h *headerBlock) set(key, value string) {
	lk := strings.ToLower(key)
	if _, ok := h.values[lk]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[lk] = value
}

func (h *headerBlock) get(key string) (string, bool) {
	v, ok := h.values[strings.ToLower(key)]
	return v, ok
}

// require returns the header value or a MissingHeaderError naming the key.
func (h *headerBlock) require(key string) (string, error) {
	v, ok := h.get(key)
	if !ok || v == "" {
		return "", &MissingHeaderError{Key: key}
	}
	return v, nil
}

// write appends the formatted header block, terminated by a blank line.
func (h *headerBlock) write(sb *strings.Builder) {
	for _, k := range h.keys {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(h.values[strings.ToLower(k)])
		sb.WriteString(crlf)
	}
	sb.WriteString(crlf)
}

// parseHeaderBlock reads a header block up to the first blank line and
// returns the block and the remaining payload. Folded headers (continuation
// lines starting with whitespace) are unfolded; header order is irrelevant.
func parseHeaderBlock(data string) (*headerBlock, string) {
	h := newHeaderBlock()
	rest := data
	var lastKey string
	for {
		line, remaining, found := strings.Cut(rest, "\n")
		if !found {
			rest = ""
			break
		}
		rest = remaining
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			// Folded continuation of the previous header.
			lk := strings.ToLower(lastKey)
			if h.values[lk] == "" {
				h.values[lk] = strings.TrimSpace(line)
			} else {
				h.values[lk] = h.values[lk] + " " + strings.TrimSpace(line)
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h.set(strings.TrimSpace(key), strings.TrimSpace(value))
		lastKey = strings.TrimSpace(key)
	}
	return h, rest
}
