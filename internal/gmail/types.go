package gmail

import "time"

type MessageID string
type LabelID string

// Gmail system labels the action executor manipulates directly.
const (
	LabelUnread LabelID = "UNREAD"
	LabelInbox  LabelID = "INBOX"
)

// Message is one email as mailtriage sees it: the provider-assigned ID,
// the fields rules evaluate, and the mutable read/label state. Once a
// message is persisted only Read and LabelIDs change.
type Message struct {
	ID         MessageID
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
	Read       bool
	LabelIDs   []LabelID
}

// HasLabel reports whether the message currently carries the label.
func (m Message) HasLabel(id LabelID) bool {
	for _, l := range m.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// WithLabel returns a copy of the message with the label added. Adding a
// label the message already has is a no-op.
func (m Message) WithLabel(id LabelID) Message {
	if m.HasLabel(id) {
		return m
	}
	m.LabelIDs = append(append([]LabelID(nil), m.LabelIDs...), id)
	return m
}

// WithoutLabel returns a copy of the message with the label removed.
func (m Message) WithoutLabel(id LabelID) Message {
	if !m.HasLabel(id) {
		return m
	}
	labels := make([]LabelID, 0, len(m.LabelIDs)-1)
	for _, l := range m.LabelIDs {
		if l != id {
			labels = append(labels, l)
		}
	}
	m.LabelIDs = labels
	return m
}

// ModifyOps describes one label mutation against one message.
type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Query is a raw Gmail search expression (e.g. `in:inbox is:unread`).
// Empty means the whole mailbox.
type Query struct {
	Raw string
}

// ListPage is one page of a message listing.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}
