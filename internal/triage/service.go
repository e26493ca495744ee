// Package triage runs the batch pipeline: list messages from Gmail,
// persist them locally, evaluate every rule against the stored mail, and
// apply actions on matches.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/mailtriage/internal/actions"
	gc "github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/rules"
	"github.com/joshsymonds/mailtriage/internal/runtime"
	"github.com/joshsymonds/mailtriage/internal/store"
)

// Options configures one run. MaxMessages 0 disables fetching, which
// turns the run into a re-evaluation of what the store already holds.
type Options struct {
	Rules       rules.Set
	Query       gc.Query
	MaxMessages int
	PageSize    int
}

// RuleStats counts matches and action outcomes for one rule.
type RuleStats struct {
	Matched         int
	ActionsOK       int
	ActionsFailed   int
	ActionsNotFound int
}

// Summary is what a run did. Fetched counts listed IDs, Saved the
// messages that made it into the store, Skipped the per-item failures
// along the way.
type Summary struct {
	RunID           string
	Started         time.Time
	Finished        time.Time
	Fetched         int
	Saved           int
	Skipped         int
	Evaluated       int
	Matched         int
	ActionsOK       int
	ActionsFailed   int
	ActionsNotFound int
	PerRule         map[string]RuleStats
}

// Record converts the summary to its persisted form.
func (s Summary) Record(note string) store.Run {
	return store.Run{
		ID:              s.RunID,
		StartedAt:       s.Started,
		FinishedAt:      s.Finished,
		Fetched:         s.Fetched,
		Saved:           s.Saved,
		Skipped:         s.Skipped,
		Matched:         s.Matched,
		ActionsOK:       s.ActionsOK,
		ActionsFailed:   s.ActionsFailed,
		ActionsNotFound: s.ActionsNotFound,
		Note:            note,
	}
}

// Service wires the pipeline together.
type Service struct {
	Client  gc.Client
	Store   *store.Store
	Exec    *actions.Executor
	Limiter rate.Limiter
	Log     *slog.Logger
	Clock   func() time.Time
}

// NewService builds a Service. A nil logger falls back to slog.Default.
func NewService(client gc.Client, st *store.Store, exec *actions.Executor, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Client:  client,
		Store:   st,
		Exec:    exec,
		Limiter: limiter,
		Log:     logger,
		Clock:   time.Now,
	}
}

// Run executes one batch. List failures and store unavailability abort
// the run; anything per-message is logged, counted and skipped.
func (s *Service) Run(ctx context.Context, opts Options) (Summary, error) {
	summary := Summary{
		RunID:   uuid.NewString(),
		Started: s.Clock(),
		PerRule: make(map[string]RuleStats, len(opts.Rules.Rules)),
	}
	log := s.Log.With("run", summary.RunID)

	ids, err := s.listIDs(ctx, opts)
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(ids)
	log.Info("listed messages", "count", len(ids), "query", opts.Query.Raw)

	for _, id := range ids {
		if err := s.Limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("rate wait: %w", err)
		}
		if err := s.fetchAndSave(ctx, log, id); err != nil {
			if runtime.IsAuthError(err) {
				return summary, fmt.Errorf("fetch %s: %w", id, err)
			}
			summary.Skipped++
			continue
		}
		summary.Saved++
	}

	stored, err := s.Store.Messages(ctx)
	if err != nil {
		return summary, fmt.Errorf("load stored messages: %w", err)
	}

	now := s.Clock()
	for _, msg := range stored {
		summary.Evaluated++
		for _, rule := range opts.Rules.Rules {
			if !rule.Matches(msg, now) {
				continue
			}
			stats := summary.PerRule[rule.Name]
			stats.Matched++
			summary.Matched++
			log.Info("rule matched", "rule", rule.Name, "message", msg.ID, "subject", msg.Subject)

			updated, outcomes := s.Exec.Apply(ctx, msg, rule.Actions)
			okCount := 0
			for _, o := range outcomes {
				switch o.Status {
				case actions.StatusOK:
					okCount++
					stats.ActionsOK++
					summary.ActionsOK++
				case actions.StatusNotFound:
					stats.ActionsNotFound++
					summary.ActionsNotFound++
				case actions.StatusFailed:
					stats.ActionsFailed++
					summary.ActionsFailed++
				}
			}
			summary.PerRule[rule.Name] = stats

			if okCount > 0 && !s.Exec.DryRun {
				flags := store.Flags{Read: updated.Read, LabelIDs: updated.LabelIDs}
				if err := s.Store.UpdateFlags(ctx, updated.ID, flags); err != nil {
					log.Warn("flag update failed", "message", updated.ID, "error", err)
				}
			}
			// Later rules in this pass see the message as the actions
			// left it.
			msg = updated
		}
	}

	summary.Finished = s.Clock()
	log.Info("run complete",
		"fetched", summary.Fetched,
		"saved", summary.Saved,
		"skipped", summary.Skipped,
		"evaluated", summary.Evaluated,
		"matched", summary.Matched,
		"actions_ok", summary.ActionsOK,
		"actions_failed", summary.ActionsFailed,
		"actions_not_found", summary.ActionsNotFound,
	)
	return summary, nil
}

func (s *Service) listIDs(ctx context.Context, opts Options) ([]gc.MessageID, error) {
	var ids []gc.MessageID
	pageToken := ""
	for len(ids) < opts.MaxMessages {
		size := opts.PageSize
		if remaining := opts.MaxMessages - len(ids); remaining < size {
			size = remaining
		}
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate wait: %w", err)
		}
		page, err := s.Client.List(ctx, opts.Query, pageToken, size)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	if len(ids) > opts.MaxMessages {
		ids = ids[:opts.MaxMessages]
	}
	return ids, nil
}

func (s *Service) fetchAndSave(ctx context.Context, log *slog.Logger, id gc.MessageID) error {
	msg, err := s.Client.Get(ctx, id)
	if err != nil {
		if runtime.IsAuthError(err) {
			return err
		}
		switch {
		case runtime.IsNotFound(err):
			log.Warn("message vanished, skipping", "message", id)
		case runtime.IsTransient(err):
			log.Warn("transient fetch failure, skipping", "message", id, "error", err)
		default:
			log.Warn("fetch failed, skipping", "message", id, "error", err)
		}
		return err
	}
	if err := s.Store.SaveMessage(ctx, msg); err != nil {
		log.Warn("save failed, skipping", "message", id, "error", err)
		return err
	}
	return nil
}
