package gmail

import "context"

// Client is the narrow Gmail surface required by mailtriage. The real
// implementation wraps the Google API service; tests substitute fakes.
type Client interface {
	// List returns one page of message IDs matching the query, in the
	// order Gmail reports them.
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	// Get fetches one message and parses it into the local record.
	Get(ctx context.Context, id MessageID) (Message, error)
	// Modify applies label additions and removals to one message.
	Modify(ctx context.Context, id MessageID, ops ModifyOps) error
	// ListLabels maps label display names to IDs and back, names as
	// Gmail reports them.
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	// EnsureLabel returns the ID of the named label, creating the label
	// when the account lacks it.
	EnsureLabel(ctx context.Context, name string) (LabelID, error)
}
