// Package gmailctl imports filters from gmailctl so existing setups can
// seed a mailtriage rules file instead of starting from scratch.
package gmailctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Export is the JSON payload of `gmailctl compile --format=json`, trimmed
// to the fields the importer reads.
type Export struct {
	Filters []Filter `json:"filters"`
	Labels  []Label  `json:"labels"`
}

// Filter is one compiled Gmail filter: what to match and what to do.
type Filter struct {
	Name     string         `json:"name,omitempty"`
	Criteria FilterCriteria `json:"criteria"`
	Action   FilterAction   `json:"action"`
}

// FilterCriteria holds the Gmail search predicates a filter may carry.
// The converter turns from and subject into rule leaves; the others only
// ever produce skip reasons.
type FilterCriteria struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Query   string `json:"query,omitempty"`
	List    string `json:"list,omitempty"`
}

// FilterAction lists the label changes and the forward target of a filter.
type FilterAction struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
	Forward        string   `json:"forward,omitempty"`
}

// Label pairs a Gmail label ID with its display name.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Runner invokes the gmailctl binary. The zero value runs `gmailctl`
// from PATH against its default config directory.
type Runner struct {
	Binary    string
	ConfigDir string
}

// ExportFilters compiles the user's gmailctl config and parses the
// resulting export.
func (r Runner) ExportFilters(ctx context.Context) (Export, error) {
	out, err := r.compile(ctx)
	if err != nil {
		return Export{}, err
	}
	var export Export
	if err := json.Unmarshal(out, &export); err != nil {
		return Export{}, fmt.Errorf("decode gmailctl export: %w", err)
	}
	if len(export.Filters) == 0 {
		return Export{}, errors.New("gmailctl export contains no filters")
	}
	return export, nil
}

// compile runs `gmailctl compile --format=json` and returns its stdout.
// Only stdout is decoded; gmailctl warnings go to stderr and must not
// reach the JSON parser.
func (r Runner) compile(ctx context.Context) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "gmailctl"
	}
	args := []string{"compile", "--format=json"}
	if dir := strings.TrimSpace(r.ConfigDir); dir != "" {
		args = append(args, "--config", dir)
	}
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 - binary determined by user input
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("run gmailctl: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("run gmailctl: %w", err)
	}
	return out, nil
}
