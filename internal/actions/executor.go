// Package actions turns matched rules into Gmail modify calls. Each
// action is applied independently so one bad action cannot block its
// siblings.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/rules"
)

// Status classifies one action attempt.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome reports how one action fared. Err is set for the failed and
// not-found statuses.
type Outcome struct {
	Action rules.Action
	Status Status
	Err    error
}

// Executor applies rule actions one Modify call at a time. DryRun keeps
// the Gateway untouched while still reporting what would change.
type Executor struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Labels  LabelMap
	DryRun  bool
	Log     *slog.Logger
}

// NewExecutor wires an executor. A nil logger falls back to slog.Default.
func NewExecutor(client gmail.Client, limiter rate.Limiter, labels LabelMap, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Client:  client,
		Limiter: limiter,
		Labels:  labels,
		Log:     logger,
	}
}

// Apply walks the actions in declared order and returns the message as
// the successful actions left it, plus one Outcome per action. A failure
// never stops the remaining actions.
func (e *Executor) Apply(ctx context.Context, msg gmail.Message, acts []rules.Action) (gmail.Message, []Outcome) {
	outcomes := make([]Outcome, 0, len(acts))
	for _, act := range acts {
		outcomes = append(outcomes, e.apply(ctx, &msg, act))
	}
	return msg, outcomes
}

func (e *Executor) apply(ctx context.Context, msg *gmail.Message, act rules.Action) Outcome {
	var ops gmail.ModifyOps
	updated := *msg

	switch act.Kind {
	case rules.ActionMarkRead:
		ops.RemoveLabels = []gmail.LabelID{gmail.LabelUnread}
		updated = updated.WithoutLabel(gmail.LabelUnread)
		updated.Read = true
	case rules.ActionMarkUnread:
		ops.AddLabels = []gmail.LabelID{gmail.LabelUnread}
		updated = updated.WithLabel(gmail.LabelUnread)
		updated.Read = false
	case rules.ActionArchive:
		ops.RemoveLabels = []gmail.LabelID{gmail.LabelInbox}
		updated = updated.WithoutLabel(gmail.LabelInbox)
	case rules.ActionAddLabel, rules.ActionRemoveLabel:
		id, ok := e.Labels.Resolve(act.Label)
		if !ok {
			e.Log.Warn("label not found", "message", msg.ID, "label", act.Label)
			return Outcome{Action: act, Status: StatusNotFound, Err: fmt.Errorf("label %q not found", act.Label)}
		}
		if act.Kind == rules.ActionAddLabel {
			ops.AddLabels = []gmail.LabelID{id}
			updated = updated.WithLabel(id)
		} else {
			ops.RemoveLabels = []gmail.LabelID{id}
			updated = updated.WithoutLabel(id)
		}
	default:
		return Outcome{Action: act, Status: StatusFailed, Err: fmt.Errorf("unsupported action kind %d", act.Kind)}
	}

	if e.DryRun {
		e.Log.Info("dry-run: skipping modify", "message", msg.ID, "action", act.String())
		*msg = updated
		return Outcome{Action: act, Status: StatusOK}
	}
	if err := e.Limiter.Wait(ctx); err != nil {
		return Outcome{Action: act, Status: StatusFailed, Err: err}
	}
	if err := e.Client.Modify(ctx, msg.ID, ops); err != nil {
		e.Log.Warn("modify failed", "message", msg.ID, "action", act.String(), "error", err)
		return Outcome{Action: act, Status: StatusFailed, Err: fmt.Errorf("apply %s: %w", act, err)}
	}

	e.Log.Debug("applied action", "message", msg.ID, "action", act.String())
	*msg = updated
	return Outcome{Action: act, Status: StatusOK}
}

// EnsureLabels creates any of the named labels Gmail does not have yet
// and registers them in the label map. Dry-run only reports the gaps.
func (e *Executor) EnsureLabels(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, ok := e.Labels.Resolve(name); ok {
			continue
		}
		if e.DryRun {
			e.Log.Info("dry-run: would create label", "label", name)
			continue
		}
		if err := e.Limiter.Wait(ctx); err != nil {
			return err
		}
		id, err := e.Client.EnsureLabel(ctx, name)
		if err != nil {
			return fmt.Errorf("create label %q: %w", name, err)
		}
		e.Labels.Add(name, id)
		e.Log.Info("created label", "label", name, "id", id)
	}
	return nil
}
