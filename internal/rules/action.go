package rules

import (
	"fmt"
	"strings"
)

// ActionKind enumerates the operations a rule may request on a match.
type ActionKind int

const (
	ActionMarkRead ActionKind = iota
	ActionMarkUnread
	ActionArchive
	ActionAddLabel
	ActionRemoveLabel
)

// Action is one operation a matched rule requests. Label is set only for
// the add/remove label kinds and keeps the case the document used; Gmail
// label lookups downstream are case-insensitive.
type Action struct {
	Kind  ActionKind
	Label string
}

const (
	actionMarkRead   = "mark_read"
	actionMarkUnread = "mark_unread"
	actionArchive    = "archive"

	movePrefix    = "move:"
	unlabelPrefix = "unlabel:"
)

// ParseAction compiles one action token from a rules document.
func ParseAction(raw string) (Action, error) {
	token := strings.TrimSpace(raw)
	switch token {
	case actionMarkRead:
		return Action{Kind: ActionMarkRead}, nil
	case actionMarkUnread:
		return Action{Kind: ActionMarkUnread}, nil
	case actionArchive:
		return Action{Kind: ActionArchive}, nil
	}
	if strings.HasPrefix(token, movePrefix) {
		name := strings.TrimSpace(token[len(movePrefix):])
		if name == "" {
			return Action{}, fmt.Errorf("%w: move action needs a label name", ErrInvalid)
		}
		return Action{Kind: ActionAddLabel, Label: name}, nil
	}
	if strings.HasPrefix(token, unlabelPrefix) {
		name := strings.TrimSpace(token[len(unlabelPrefix):])
		if name == "" {
			return Action{}, fmt.Errorf("%w: unlabel action needs a label name", ErrInvalid)
		}
		return Action{Kind: ActionRemoveLabel, Label: name}, nil
	}
	return Action{}, fmt.Errorf("%w: unsupported action %q", ErrInvalid, raw)
}

// String renders the action in document form, e.g. "move:Newsletters".
func (a Action) String() string {
	switch a.Kind {
	case ActionMarkRead:
		return actionMarkRead
	case ActionMarkUnread:
		return actionMarkUnread
	case ActionArchive:
		return actionArchive
	case ActionAddLabel:
		return movePrefix + a.Label
	case ActionRemoveLabel:
		return unlabelPrefix + a.Label
	default:
		return "unknown"
	}
}
