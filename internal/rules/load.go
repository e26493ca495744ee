package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Document wire format:
//
//	{
//	  "rules": [
//	    {
//	      "name": "newsletter sweep",
//	      "match": {"all": [
//	        {"field": "sender", "predicate": "contains", "value": "@newsletter.com"},
//	        {"field": "is_read", "predicate": "equals", "value": "false"}
//	      ]},
//	      "actions": ["mark_read", "move:Newsletters"]
//	    }
//	  ]
//	}
//
// A match node is either a single predicate (field/predicate/value) or
// exactly one of "all"/"any" holding child nodes, nested to any depth.
type document struct {
	Rules []ruleDoc `json:"rules"`
}

type ruleDoc struct {
	Name    string        `json:"name"`
	Match   *conditionDoc `json:"match"`
	Actions []string      `json:"actions"`
}

type conditionDoc struct {
	Field     string         `json:"field"`
	Predicate string         `json:"predicate"`
	Value     *string        `json:"value"`
	All       []conditionDoc `json:"all"`
	Any       []conditionDoc `json:"any"`
}

var fieldNames = map[string]Field{
	"sender":      FieldSender,
	"subject":     FieldSubject,
	"body":        FieldBody,
	"received_at": FieldReceivedAt,
	"is_read":     FieldRead,
}

var opNames = map[string]Op{
	"contains":          OpContains,
	"not_contains":      OpNotContains,
	"equals":            OpEquals,
	"not_equals":        OpNotEquals,
	"less_than_days":    OpLessThanDays,
	"greater_than_days": OpGreaterThanDays,
}

// LoadFile reads and compiles the rules document at path.
func LoadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("%w: open rules file: %v", ErrInvalid, err)
	}
	defer f.Close()
	set, err := Load(f)
	if err != nil {
		return Set{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return set, nil
}

// Load decodes and compiles a rules document. Unknown JSON keys are
// rejected, as is every rule the evaluator could not honor exactly.
func Load(r io.Reader) (Set, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return Set{}, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	return doc.compile()
}

func (d document) compile() (Set, error) {
	if len(d.Rules) == 0 {
		return Set{}, fmt.Errorf("%w: no rules defined", ErrInvalid)
	}
	set := Set{Rules: make([]Rule, 0, len(d.Rules))}
	seen := make(map[string]struct{}, len(d.Rules))
	for i, rd := range d.Rules {
		rule, err := rd.compile(i)
		if err != nil {
			return Set{}, err
		}
		if _, dup := seen[rule.Name]; dup {
			return Set{}, fmt.Errorf("%w: duplicate rule name %q", ErrInvalid, rule.Name)
		}
		seen[rule.Name] = struct{}{}
		set.Rules = append(set.Rules, rule)
	}
	return set, nil
}

func (rd ruleDoc) compile(idx int) (Rule, error) {
	name := strings.TrimSpace(rd.Name)
	if name == "" {
		return Rule{}, fmt.Errorf("%w: rule %d has no name", ErrInvalid, idx)
	}
	if rd.Match == nil {
		return Rule{}, fmt.Errorf("%w: rule %q has no match condition", ErrInvalid, name)
	}
	cond, err := rd.Match.compile(name)
	if err != nil {
		return Rule{}, err
	}
	actions := make([]Action, 0, len(rd.Actions))
	for _, raw := range rd.Actions {
		act, err := ParseAction(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", name, err)
		}
		actions = append(actions, act)
	}
	return Rule{Name: name, Match: cond, Actions: actions}, nil
}

func (cd conditionDoc) compile(rule string) (Condition, error) {
	hasLeaf := cd.Field != "" || cd.Predicate != "" || cd.Value != nil
	switch {
	case hasLeaf && (cd.All != nil || cd.Any != nil), cd.All != nil && cd.Any != nil:
		return nil, fmt.Errorf("%w: rule %q: a match node is one predicate or one of all/any, not a mix", ErrInvalid, rule)
	case cd.All != nil:
		children, err := compileChildren(rule, cd.All)
		if err != nil {
			return nil, err
		}
		return Group{Op: GroupAll, Children: children}, nil
	case cd.Any != nil:
		children, err := compileChildren(rule, cd.Any)
		if err != nil {
			return nil, err
		}
		return Group{Op: GroupAny, Children: children}, nil
	case hasLeaf:
		return cd.compileLeaf(rule)
	default:
		return nil, fmt.Errorf("%w: rule %q: empty match node", ErrInvalid, rule)
	}
}

func compileChildren(rule string, docs []conditionDoc) ([]Condition, error) {
	children := make([]Condition, 0, len(docs))
	for _, cd := range docs {
		child, err := cd.compile(rule)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (cd conditionDoc) compileLeaf(rule string) (Condition, error) {
	switch {
	case cd.Field == "":
		return nil, fmt.Errorf("%w: rule %q: match node missing field", ErrInvalid, rule)
	case cd.Predicate == "":
		return nil, fmt.Errorf("%w: rule %q: match node missing predicate", ErrInvalid, rule)
	case cd.Value == nil:
		return nil, fmt.Errorf("%w: rule %q: match node missing value", ErrInvalid, rule)
	}
	field, ok := fieldNames[cd.Field]
	if !ok {
		return nil, fmt.Errorf("%w: rule %q: unknown field %q", ErrInvalid, rule, cd.Field)
	}
	op, ok := opNames[cd.Predicate]
	if !ok {
		return nil, fmt.Errorf("%w: rule %q: unknown predicate %q", ErrInvalid, rule, cd.Predicate)
	}
	value := *cd.Value
	if value == "" {
		return nil, fmt.Errorf("%w: rule %q: predicate value cannot be empty", ErrInvalid, rule)
	}

	leaf := Leaf{Field: field, Op: op}
	switch field {
	case FieldSender, FieldSubject, FieldBody:
		if !op.textual() {
			return nil, fmt.Errorf("%w: rule %q: predicate %q does not apply to text field %q", ErrInvalid, rule, cd.Predicate, cd.Field)
		}
		leaf.Text = strings.ToLower(value)
	case FieldReceivedAt:
		if op != OpLessThanDays && op != OpGreaterThanDays {
			return nil, fmt.Errorf("%w: rule %q: predicate %q does not apply to date field %q", ErrInvalid, rule, cd.Predicate, cd.Field)
		}
		days, err := strconv.Atoi(value)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("%w: rule %q: %q is not a day count", ErrInvalid, rule, value)
		}
		leaf.Days = days
	case FieldRead:
		if op != OpEquals && op != OpNotEquals {
			return nil, fmt.Errorf("%w: rule %q: predicate %q does not apply to boolean field %q", ErrInvalid, rule, cd.Predicate, cd.Field)
		}
		switch strings.ToLower(value) {
		case "true":
			leaf.Read = true
		case "false":
			leaf.Read = false
		default:
			return nil, fmt.Errorf("%w: rule %q: %q is not true or false", ErrInvalid, rule, value)
		}
	}
	return leaf, nil
}
