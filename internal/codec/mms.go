package codec

import (
	"encoding/base64"
	"strings"

	"github.com/nlebec/cmsync/internal/store"
)

// encodeMultipart writes MMS parts as a Multipart/Related body with the
// caller-supplied boundary. Binary parts are base64 encoded; text parts are
// carried inline.
func encodeMultipart(sb *strings.Builder, parts []store.Part, boundary string) {
	for _, p := range parts {
		sb.WriteString("--" + boundary + crlf)
		ph := newHeaderBlock()
		if strings.HasPrefix(p.MimeType, "text/") {
			ph.set("Content-Type", p.MimeType+"; charset=utf-8")
			ph.write(sb)
			sb.WriteString(p.Text)
			sb.WriteString(crlf)
			continue
		}
		ph.set("Content-Type", p.MimeType)
		if p.FileName != "" {
			ph.set("Content-Disposition", `attachment; filename="`+p.FileName+`"`)
		}
		ph.set("Content-Transfer-Encoding", "base64")
		ph.write(sb)
		sb.WriteString(base64.StdEncoding.EncodeToString(p.Blob))
		sb.WriteString(crlf)
	}
	sb.WriteString("--" + boundary + "--" + crlf)
}

// decodeMultipart parses a Multipart/Related body back into ordered parts.
// A part with an undecodable body is dropped rather than failing the whole
// message.
func decodeMultipart(body, boundary string) ([]store.Part, error) {
	var parts []store.Part
	delim := "--" + boundary
	sections := strings.Split(body, delim)
	for _, sec := range sections {
		sec = strings.TrimPrefix(sec, crlf)
		if sec == "" || strings.HasPrefix(sec, "--") {
			continue
		}
		ph, content := parseHeaderBlock(sec)
		ct, ok := ph.get("Content-Type")
		if !ok {
			continue
		}
		mime := strings.TrimSpace(strings.Split(ct, ";")[0])
		content = strings.TrimSuffix(content, crlf)

		p := store.Part{MimeType: mime}
		if strings.HasPrefix(mime, "text/") {
			p.Text = content
		} else {
			blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
			if err != nil {
				continue
			}
			p.Blob = blob
			if cd, ok := ph.get("Content-Disposition"); ok {
				p.FileName = parseFileName(cd)
			}
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func parseFileName(disposition string) string {
	const marker = `filename="`
	i := strings.Index(disposition, marker)
	if i < 0 {
		return ""
	}
	rest := disposition[i+len(marker):]
	j := strings.Index(rest, `"`)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

// parseBoundary extracts the boundary parameter from a multipart
// Content-Type value.
func parseBoundary(contentType string) string {
	for _, param := range strings.Split(contentType, ";") {
		param = strings.TrimSpace(param)
		if after, ok := strings.CutPrefix(param, "boundary="); ok {
			return strings.Trim(after, `"`)
		}
	}
	return ""
}
