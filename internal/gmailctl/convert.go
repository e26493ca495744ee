package gmailctl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joshsymonds/mailtriage/internal/rules"
)

// Converted is the outcome of translating an export into a mailtriage
// rules document. Skipped lists the filters that could not be expressed,
// with the reason each was left behind.
type Converted struct {
	Doc     []byte
	Rules   int
	Skipped []string
}

// The document mirror of the rules wire format. Single-criteria filters
// render as a bare predicate, multi-criteria as an all group.
type docFile struct {
	Rules []docRule `json:"rules"`
}

type docRule struct {
	Name    string   `json:"name"`
	Match   docMatch `json:"match"`
	Actions []string `json:"actions"`
}

type docMatch struct {
	Field     string    `json:"field,omitempty"`
	Predicate string    `json:"predicate,omitempty"`
	Value     string    `json:"value,omitempty"`
	All       []docLeaf `json:"all,omitempty"`
}

type docLeaf struct {
	Field     string `json:"field"`
	Predicate string `json:"predicate"`
	Value     string `json:"value"`
}

// ToRules converts the convertible filters of an export into a rules
// document. Filters using criteria or actions outside the rule
// vocabulary are skipped, never approximated.
func ToRules(export Export) (Converted, error) {
	labelName := labelNames(export.Labels)
	var conv Converted
	var doc docFile
	used := map[string]bool{}

	for i, f := range export.Filters {
		leaves, reason := convertCriteria(f.Criteria)
		if reason == "" {
			var acts []string
			acts, reason = convertActions(f.Action, labelName)
			if reason == "" {
				doc.Rules = append(doc.Rules, docRule{
					Name:    uniqueName(f, i, used),
					Match:   matchFor(leaves),
					Actions: acts,
				})
				continue
			}
		}
		conv.Skipped = append(conv.Skipped, fmt.Sprintf("filter %d: %s", i+1, reason))
	}

	if len(doc.Rules) == 0 {
		return Converted{}, fmt.Errorf("no convertible filters (skipped %d)", len(conv.Skipped))
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Converted{}, fmt.Errorf("encode rules document: %w", err)
	}
	out = append(out, '\n')

	// The produced document must load through the real rules parser.
	set, err := rules.Load(bytes.NewReader(out))
	if err != nil {
		return Converted{}, fmt.Errorf("converted document does not load: %w", err)
	}
	conv.Doc = out
	conv.Rules = len(set.Rules)
	return conv, nil
}

func convertCriteria(c FilterCriteria) ([]docLeaf, string) {
	switch {
	case c.Query != "":
		return nil, "query criteria not supported"
	case c.To != "":
		return nil, "to criteria not supported"
	case c.List != "":
		return nil, "list criteria not supported"
	}

	var leaves []docLeaf
	if c.From != "" {
		leaves = append(leaves, docLeaf{Field: "sender", Predicate: "contains", Value: c.From})
	}
	if c.Subject != "" {
		leaves = append(leaves, docLeaf{Field: "subject", Predicate: "contains", Value: c.Subject})
	}
	if len(leaves) == 0 {
		return nil, "no supported criteria"
	}
	return leaves, ""
}

func convertActions(a FilterAction, labelName func(string) string) ([]string, string) {
	if a.Forward != "" {
		return nil, "forward action not supported"
	}

	var acts []string
	for _, add := range a.AddLabelIDs {
		switch add {
		case "UNREAD":
			acts = append(acts, "mark_unread")
		case "TRASH", "SPAM":
			return nil, fmt.Sprintf("add %s not supported", add)
		default:
			acts = append(acts, "move:"+labelName(add))
		}
	}
	for _, rm := range a.RemoveLabelIDs {
		switch rm {
		case "UNREAD":
			acts = append(acts, "mark_read")
		case "INBOX":
			acts = append(acts, "archive")
		default:
			acts = append(acts, "unlabel:"+labelName(rm))
		}
	}
	if len(acts) == 0 {
		return nil, "no supported actions"
	}
	return acts, ""
}

// labelNames resolves export label IDs to display names, passing through
// values that already look like names.
func labelNames(labels []Label) func(string) string {
	byID := make(map[string]string, len(labels))
	for _, l := range labels {
		if l.ID != "" {
			byID[l.ID] = l.Name
		}
	}
	return func(id string) string {
		if name, ok := byID[id]; ok && name != "" {
			return name
		}
		return id
	}
}

func matchFor(leaves []docLeaf) docMatch {
	if len(leaves) == 1 {
		return docMatch{
			Field:     leaves[0].Field,
			Predicate: leaves[0].Predicate,
			Value:     leaves[0].Value,
		}
	}
	return docMatch{All: leaves}
}

func uniqueName(f Filter, idx int, used map[string]bool) string {
	name := f.Name
	if name == "" {
		name = fmt.Sprintf("gmailctl-%03d", idx+1)
	}
	base := name
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	used[name] = true
	return name
}
