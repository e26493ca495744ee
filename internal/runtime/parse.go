package runtime

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

// parseMessage turns a full-format API message into our record. Missing
// headers get placeholder values rather than failing the fetch; a message
// without any usable date falls back to now.
func parseMessage(id gc.MessageID, m *gmail.Message, now time.Time) gc.Message {
	msg := gc.Message{
		ID:       id,
		Sender:   "Unknown",
		Subject:  "No Subject",
		LabelIDs: toLabelIDs(m.LabelIds),
	}
	msg.Read = !msg.HasLabel(gc.LabelUnread)

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch {
			case strings.EqualFold(h.Name, "From"):
				if h.Value != "" {
					msg.Sender = h.Value
				}
			case strings.EqualFold(h.Name, "Subject"):
				if h.Value != "" {
					msg.Subject = h.Value
				}
			case strings.EqualFold(h.Name, "Date"):
				if t, err := mail.ParseDate(h.Value); err == nil {
					msg.ReceivedAt = t.UTC()
				}
			}
		}
		msg.Body = extractBody(m.Payload)
	}

	if msg.ReceivedAt.IsZero() && m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate).UTC()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now.UTC()
	}
	return msg
}

// extractBody prefers the first text/plain part anywhere in the MIME
// tree, falling back to stripped text/html for HTML-only messages.
func extractBody(payload *gmail.MessagePart) string {
	if text := findPart(payload, "text/plain"); text != "" {
		return text
	}
	if html := findPart(payload, "text/html"); html != "" {
		return html2text.HTML2Text(html)
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// Gmail serves body data as unpadded URL-safe base64, but padded data
// shows up in the wild too.
func decodeBody(data string) string {
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

func toLabelIDs(ids []string) []gc.LabelID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}
