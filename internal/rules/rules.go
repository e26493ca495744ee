// Package rules loads rule documents and evaluates their condition trees
// against messages. Everything that can be wrong with a document is
// rejected while loading; evaluation itself cannot fail.
package rules

import (
	"errors"
	"strings"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// ErrInvalid marks any rules-document problem: unknown fields or
// predicates, a predicate incompatible with its field, bad literals, or
// malformed structure. It always surfaces at load time, before any Gmail
// or database work happens.
var ErrInvalid = errors.New("invalid rules configuration")

// Field enumerates the message attributes a predicate may inspect.
type Field int

const (
	FieldSender Field = iota
	FieldSubject
	FieldBody
	FieldReceivedAt
	FieldRead
)

// Op enumerates the supported predicates. The four string ops apply to
// text fields, the day ops to received_at, equality to is_read.
type Op int

const (
	OpContains Op = iota
	OpNotContains
	OpEquals
	OpNotEquals
	OpLessThanDays
	OpGreaterThanDays
)

func (o Op) textual() bool {
	switch o {
	case OpContains, OpNotContains, OpEquals, OpNotEquals:
		return true
	default:
		return false
	}
}

// GroupOp selects how a Group combines its children.
type GroupOp int

const (
	GroupAll GroupOp = iota
	GroupAny
)

// Condition is one node of a rule's match tree: either a Leaf predicate
// or a Group combinator. Trees are finite and acyclic by construction and
// evaluation never mutates them.
type Condition interface {
	eval(msg gmail.Message, now time.Time) bool
}

// Leaf compares one message field against a literal. The literal is kept
// in its compiled form: Text (already lowercased) for text fields, Days
// for received_at, Read for is_read.
type Leaf struct {
	Field Field
	Op    Op
	Text  string
	Days  int
	Read  bool
}

// Group combines child conditions with ALL or ANY semantics.
type Group struct {
	Op       GroupOp
	Children []Condition
}

// Rule is a named condition tree plus the actions to apply on a match.
type Rule struct {
	Name    string
	Match   Condition
	Actions []Action
}

// Set is a loaded rules document.
type Set struct {
	Rules []Rule
}

// LabelNames returns the distinct label names referenced by add/remove
// label actions across the set, in first-use order.
func (s Set) LabelNames() []string {
	var names []string
	seen := map[string]struct{}{}
	for _, r := range s.Rules {
		for _, a := range r.Actions {
			if a.Label == "" {
				continue
			}
			key := strings.ToLower(a.Label)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, a.Label)
		}
	}
	return names
}

// Eval reports whether the message satisfies the condition at the given
// instant. It is pure: deterministic for a fixed (condition, message,
// now) triple and free of side effects.
func Eval(c Condition, msg gmail.Message, now time.Time) bool {
	return c.eval(msg, now)
}

// Matches reports whether the rule's condition tree accepts the message.
func (r Rule) Matches(msg gmail.Message, now time.Time) bool {
	return Eval(r.Match, msg, now)
}

func (l Leaf) eval(msg gmail.Message, now time.Time) bool {
	switch l.Field {
	case FieldSender:
		return textMatches(msg.Sender, l.Op, l.Text)
	case FieldSubject:
		return textMatches(msg.Subject, l.Op, l.Text)
	case FieldBody:
		return textMatches(msg.Body, l.Op, l.Text)
	case FieldReceivedAt:
		return dayMatches(msg.ReceivedAt, l.Op, l.Days, now)
	case FieldRead:
		if l.Op == OpNotEquals {
			return msg.Read != l.Read
		}
		return msg.Read == l.Read
	default:
		return false
	}
}

// Group evaluation short-circuits: ALL stops at the first false child,
// ANY at the first true one. An ALL with no children matches; an ANY
// with no children never does.
func (g Group) eval(msg gmail.Message, now time.Time) bool {
	if g.Op == GroupAny {
		for _, c := range g.Children {
			if c.eval(msg, now) {
				return true
			}
		}
		return false
	}
	for _, c := range g.Children {
		if !c.eval(msg, now) {
			return false
		}
	}
	return true
}

// Text comparisons are case-insensitive on both sides; Leaf.Text is
// lowercased at compile time.
func textMatches(have string, op Op, want string) bool {
	have = strings.ToLower(have)
	switch op {
	case OpContains:
		return strings.Contains(have, want)
	case OpNotContains:
		return !strings.Contains(have, want)
	case OpEquals:
		return have == want
	case OpNotEquals:
		return have != want
	default:
		return false
	}
}

const day = 24 * time.Hour

// dayMatches compares the receive time against a day window ending now:
// less_than_days means newer than the window, greater_than_days older.
// A zero time never matches either; a message without a usable date
// should not be swept by age rules.
func dayMatches(received time.Time, op Op, days int, now time.Time) bool {
	if received.IsZero() {
		return false
	}
	cutoff := now.Add(-time.Duration(days) * day)
	switch op {
	case OpLessThanDays:
		return received.After(cutoff)
	case OpGreaterThanDays:
		return received.Before(cutoff)
	default:
		return false
	}
}
