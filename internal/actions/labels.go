package actions

import (
	"strings"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// LabelMap resolves human label names to Gmail label IDs. Lookups are
// case-insensitive; display names keep the case Gmail reported.
type LabelMap struct {
	byName map[string]gmail.LabelID
	byID   map[gmail.LabelID]string
}

// NewLabelMap builds a map from the pair returned by Client.ListLabels.
func NewLabelMap(byName map[string]gmail.LabelID, byID map[gmail.LabelID]string) LabelMap {
	m := LabelMap{
		byName: make(map[string]gmail.LabelID, len(byName)),
		byID:   make(map[gmail.LabelID]string, len(byID)),
	}
	for name, id := range byName {
		m.byName[strings.ToLower(name)] = id
	}
	for id, name := range byID {
		m.byID[id] = name
	}
	return m
}

// Resolve returns the ID for a label name, if Gmail has such a label.
func (m LabelMap) Resolve(name string) (gmail.LabelID, bool) {
	id, ok := m.byName[strings.ToLower(name)]
	return id, ok
}

// Name returns the display name for an ID, falling back to the raw ID for
// system labels that were never listed.
func (m LabelMap) Name(id gmail.LabelID) string {
	if name, ok := m.byID[id]; ok {
		return name
	}
	return string(id)
}

// Add registers a freshly created label.
func (m LabelMap) Add(name string, id gmail.LabelID) {
	m.byName[strings.ToLower(name)] = id
	m.byID[id] = name
}

// Len reports how many labels are known.
func (m LabelMap) Len() int {
	return len(m.byName)
}
