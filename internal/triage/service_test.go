package triage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/mailtriage/internal/actions"
	gc "github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/rules"
	"github.com/joshsymonds/mailtriage/internal/store"
)

type modifyCall struct {
	id  gc.MessageID
	ops gc.ModifyOps
}

// fakeClient is an in-memory Gmail. Modify mutates the held messages so
// a later fetch observes an earlier run's effects.
type fakeClient struct {
	pages     []gc.ListPage
	listSizes []int
	messages  map[gc.MessageID]gc.Message
	getErrs   map[gc.MessageID]error
	modified  []modifyCall
}

func (f *fakeClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	f.listSizes = append(f.listSizes, pageSize)
	if len(f.pages) == 0 {
		return gc.ListPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeClient) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	_ = ctx
	if err := f.getErrs[id]; err != nil {
		return gc.Message{}, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return gc.Message{}, &googleapi.Error{Code: 404}
	}
	return msg, nil
}

func (f *fakeClient) Modify(ctx context.Context, id gc.MessageID, ops gc.ModifyOps) error {
	_ = ctx
	f.modified = append(f.modified, modifyCall{id: id, ops: ops})
	msg := f.messages[id]
	for _, l := range ops.AddLabels {
		msg = msg.WithLabel(l)
		if l == gc.LabelUnread {
			msg.Read = false
		}
	}
	for _, l := range ops.RemoveLabels {
		msg = msg.WithoutLabel(l)
		if l == gc.LabelUnread {
			msg.Read = true
		}
	}
	f.messages[id] = msg
	return nil
}

func (f *fakeClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	_ = ctx
	return map[string]gc.LabelID{"Processed": "Label_9"}, map[gc.LabelID]string{"Label_9": "Processed"}, nil
}

func (f *fakeClient) EnsureLabel(ctx context.Context, name string) (gc.LabelID, error) {
	_ = ctx
	return gc.LabelID("L-" + name), nil
}

type noLimiter struct{}

func (noLimiter) Wait(ctx context.Context) error {
	_ = ctx
	return nil
}

const newsletterDoc = `{
  "rules": [
    {
      "name": "read newsletters",
      "match": {
        "all": [
          {"field": "sender", "predicate": "contains", "value": "@newsletter.com"},
          {"field": "is_read", "predicate": "equals", "value": "false"}
        ]
      },
      "actions": ["mark_read"]
    }
  ]
}`

func loadRules(t *testing.T, doc string) rules.Set {
	t.Helper()
	set, err := rules.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return set
}

func newTestService(t *testing.T, fake *fakeClient, labels actions.LabelMap) *Service {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	exec := actions.NewExecutor(fake, noLimiter{}, labels, slogDiscard())
	svc := NewService(fake, st, exec, noLimiter{}, slogDiscard())
	svc.Clock = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return svc
}

func newsletterMessage(id gc.MessageID) gc.Message {
	return gc.Message{
		ID:         id,
		Sender:     "Updates <noreply@Newsletter.com>",
		Subject:    "Weekly Digest",
		Body:       "This week in Go.",
		ReceivedAt: time.Date(2026, 8, 22, 9, 30, 0, 0, time.UTC),
		Read:       false,
		LabelIDs:   []gc.LabelID{gc.LabelInbox, gc.LabelUnread},
	}
}

func personalMessage(id gc.MessageID) gc.Message {
	return gc.Message{
		ID:         id,
		Sender:     "Ana <ana@example.com>",
		Subject:    "Lunch?",
		Body:       "Tomorrow at noon?",
		ReceivedAt: time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC),
		Read:       true,
		LabelIDs:   []gc.LabelID{gc.LabelInbox},
	}
}

func storedMessage(t *testing.T, svc *Service, id gc.MessageID) gc.Message {
	t.Helper()
	msgs, err := svc.Store.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	for _, m := range msgs {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("message %s not in store", id)
	return gc.Message{}
}

func TestRunNewsletterScenario(t *testing.T) {
	fake := &fakeClient{
		pages: []gc.ListPage{{IDs: []gc.MessageID{"m1", "m2"}}},
		messages: map[gc.MessageID]gc.Message{
			"m1": newsletterMessage("m1"),
			"m2": personalMessage("m2"),
		},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))
	opts := Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 20, PageSize: 100}

	sum, err := svc.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RunID == "" {
		t.Fatal("summary has no run ID")
	}
	if sum.Fetched != 2 || sum.Saved != 2 || sum.Skipped != 0 {
		t.Fatalf("fetch counts = %d/%d/%d, want 2/2/0", sum.Fetched, sum.Saved, sum.Skipped)
	}
	if sum.Evaluated != 2 || sum.Matched != 1 || sum.ActionsOK != 1 {
		t.Fatalf("evaluated %d matched %d ok %d, want 2/1/1", sum.Evaluated, sum.Matched, sum.ActionsOK)
	}
	if rs := sum.PerRule["read newsletters"]; rs.Matched != 1 || rs.ActionsOK != 1 {
		t.Fatalf("per-rule stats = %+v", rs)
	}
	if len(fake.modified) != 1 {
		t.Fatalf("modify calls = %d, want 1", len(fake.modified))
	}
	call := fake.modified[0]
	if call.id != "m1" || len(call.ops.RemoveLabels) != 1 || call.ops.RemoveLabels[0] != gc.LabelUnread {
		t.Fatalf("unexpected modify call %+v", call)
	}

	m1 := storedMessage(t, svc, "m1")
	if !m1.Read || m1.HasLabel(gc.LabelUnread) {
		t.Fatalf("stored newsletter not marked read: %+v", m1)
	}

	// A second run fetches the now-read newsletter and matches nothing.
	fake.pages = []gc.ListPage{{IDs: []gc.MessageID{"m1", "m2"}}}
	sum2, err := svc.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum2.Matched != 0 {
		t.Fatalf("second run matched %d, want 0", sum2.Matched)
	}
	if len(fake.modified) != 1 {
		t.Fatalf("second run touched Gmail, modify calls = %d", len(fake.modified))
	}
}

func TestRunLaterRuleSeesUpdatedState(t *testing.T) {
	doc := `{
  "rules": [
    {
      "name": "read newsletters",
      "match": {"all": [
        {"field": "sender", "predicate": "contains", "value": "@newsletter.com"},
        {"field": "is_read", "predicate": "equals", "value": "false"}
      ]},
      "actions": ["mark_read"]
    },
    {
      "name": "file read mail",
      "match": {"field": "is_read", "predicate": "equals", "value": "true"},
      "actions": ["move:Processed"]
    }
  ]
}`
	fake := &fakeClient{
		pages:    []gc.ListPage{{IDs: []gc.MessageID{"m1"}}},
		messages: map[gc.MessageID]gc.Message{"m1": newsletterMessage("m1")},
	}
	labels := actions.NewLabelMap(
		map[string]gc.LabelID{"Processed": "Label_9"},
		map[gc.LabelID]string{"Label_9": "Processed"},
	)
	svc := newTestService(t, fake, labels)

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, doc), MaxMessages: 5, PageSize: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Matched != 2 || sum.ActionsOK != 2 {
		t.Fatalf("matched %d ok %d, want both rules to fire", sum.Matched, sum.ActionsOK)
	}
	if len(fake.modified) != 2 {
		t.Fatalf("modify calls = %d, want 2", len(fake.modified))
	}

	m1 := storedMessage(t, svc, "m1")
	if !m1.Read || !m1.HasLabel("Label_9") {
		t.Fatalf("stored message missed an update: %+v", m1)
	}
}

func TestRunCountsUnresolvedLabels(t *testing.T) {
	doc := `{
  "rules": [
    {
      "name": "newsletter sweep",
      "match": {"field": "sender", "predicate": "contains", "value": "@newsletter.com"},
      "actions": ["move:DoesNotExist", "mark_read"]
    }
  ]
}`
	fake := &fakeClient{
		pages:    []gc.ListPage{{IDs: []gc.MessageID{"m1"}}},
		messages: map[gc.MessageID]gc.Message{"m1": newsletterMessage("m1")},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, doc), MaxMessages: 5, PageSize: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.ActionsNotFound != 1 || sum.ActionsOK != 1 || sum.ActionsFailed != 0 {
		t.Fatalf("action counts ok=%d failed=%d notfound=%d, want 1/0/1",
			sum.ActionsOK, sum.ActionsFailed, sum.ActionsNotFound)
	}
	if rs := sum.PerRule["newsletter sweep"]; rs.ActionsNotFound != 1 || rs.ActionsOK != 1 {
		t.Fatalf("per-rule stats = %+v", rs)
	}
	// Only the mark_read reached Gmail.
	if len(fake.modified) != 1 {
		t.Fatalf("modify calls = %d, want 1", len(fake.modified))
	}
	if m1 := storedMessage(t, svc, "m1"); !m1.Read {
		t.Fatalf("sibling mark_read not persisted: %+v", m1)
	}
}

func TestRunSkipsFailedFetches(t *testing.T) {
	fake := &fakeClient{
		pages:    []gc.ListPage{{IDs: []gc.MessageID{"gone", "busy", "m1"}}},
		messages: map[gc.MessageID]gc.Message{"m1": newsletterMessage("m1")},
		getErrs: map[gc.MessageID]error{
			"gone": &googleapi.Error{Code: 404},
			"busy": &googleapi.Error{Code: 503},
		},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 10, PageSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Fetched != 3 || sum.Saved != 1 || sum.Skipped != 2 {
		t.Fatalf("fetch counts = %d/%d/%d, want 3/1/2", sum.Fetched, sum.Saved, sum.Skipped)
	}
	if sum.Matched != 1 {
		t.Fatalf("matched %d, want the surviving message to match", sum.Matched)
	}
}

func TestRunAuthFailureAborts(t *testing.T) {
	fake := &fakeClient{
		pages:   []gc.ListPage{{IDs: []gc.MessageID{"m1", "m2"}}},
		getErrs: map[gc.MessageID]error{"m1": &googleapi.Error{Code: 401}},
		messages: map[gc.MessageID]gc.Message{
			"m2": personalMessage("m2"),
		},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))

	_, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 10, PageSize: 10})
	if err == nil {
		t.Fatal("expected auth failure to abort the run")
	}
	if got, err := svc.Store.Messages(context.Background()); err != nil || len(got) != 0 {
		t.Fatalf("store after abort = %d messages, err %v", len(got), err)
	}
}

func TestRunQuotaRefusalSkipsItem(t *testing.T) {
	quota := &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}
	fake := &fakeClient{
		pages:    []gc.ListPage{{IDs: []gc.MessageID{"refused", "m1"}}},
		messages: map[gc.MessageID]gc.Message{"m1": newsletterMessage("m1")},
		getErrs:  map[gc.MessageID]error{"refused": quota},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 10, PageSize: 10})
	if err != nil {
		t.Fatalf("quota refusal on one message aborted the run: %v", err)
	}
	if sum.Skipped != 1 || sum.Saved != 1 {
		t.Fatalf("skipped %d saved %d, want 1 and 1", sum.Skipped, sum.Saved)
	}
	if sum.Matched != 1 {
		t.Fatalf("matched %d, want the surviving message to match", sum.Matched)
	}
}

func TestRunPagingHonorsMax(t *testing.T) {
	fake := &fakeClient{
		pages: []gc.ListPage{
			{IDs: []gc.MessageID{"m1", "m2"}, NextPageToken: "next"},
			{IDs: []gc.MessageID{"m3", "m4"}},
		},
		messages: map[gc.MessageID]gc.Message{
			"m1": personalMessage("m1"),
			"m2": personalMessage("m2"),
			"m3": personalMessage("m3"),
			"m4": personalMessage("m4"),
		},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.listSizes) != 2 || fake.listSizes[0] != 2 || fake.listSizes[1] != 1 {
		t.Fatalf("list page sizes = %v, want [2 1]", fake.listSizes)
	}
	if sum.Fetched != 3 || sum.Saved != 3 {
		t.Fatalf("fetched %d saved %d, want 3 and 3", sum.Fetched, sum.Saved)
	}
}

func TestRunMaxZeroEvaluatesStoreOnly(t *testing.T) {
	fake := &fakeClient{messages: map[gc.MessageID]gc.Message{}}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))
	if err := svc.Store.SaveMessage(context.Background(), newsletterMessage("old-1")); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 0, PageSize: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fake.listSizes) != 0 {
		t.Fatalf("list was called %d times with fetching disabled", len(fake.listSizes))
	}
	if sum.Fetched != 0 || sum.Evaluated != 1 || sum.Matched != 1 {
		t.Fatalf("summary = %+v, want stored message evaluated and matched", sum)
	}
	if len(fake.modified) != 1 {
		t.Fatalf("modify calls = %d, want 1", len(fake.modified))
	}
}

func TestRunDryRunLeavesStoreAndGmailAlone(t *testing.T) {
	fake := &fakeClient{
		pages:    []gc.ListPage{{IDs: []gc.MessageID{"m1"}}},
		messages: map[gc.MessageID]gc.Message{"m1": newsletterMessage("m1")},
	}
	svc := newTestService(t, fake, actions.NewLabelMap(nil, nil))
	svc.Exec.DryRun = true

	sum, err := svc.Run(context.Background(), Options{Rules: loadRules(t, newsletterDoc), MaxMessages: 5, PageSize: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Matched != 1 || sum.ActionsOK != 1 {
		t.Fatalf("dry run should still report matches, got %+v", sum)
	}
	if len(fake.modified) != 0 {
		t.Fatalf("dry run sent %d modify calls", len(fake.modified))
	}
	if m1 := storedMessage(t, svc, "m1"); m1.Read {
		t.Fatalf("dry run persisted a flag change: %+v", m1)
	}
}

func TestSummaryRecord(t *testing.T) {
	started := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	sum := Summary{
		RunID:           "run-1",
		Started:         started,
		Finished:        started.Add(3 * time.Second),
		Fetched:         7,
		Saved:           6,
		Skipped:         1,
		Matched:         2,
		ActionsOK:       2,
		ActionsFailed:   1,
		ActionsNotFound: 1,
	}
	rec := sum.Record("dry-run")
	if rec.ID != "run-1" || rec.Note != "dry-run" {
		t.Fatalf("record identity = %q/%q", rec.ID, rec.Note)
	}
	if !rec.StartedAt.Equal(sum.Started) || !rec.FinishedAt.Equal(sum.Finished) {
		t.Fatalf("record times = %v/%v", rec.StartedAt, rec.FinishedAt)
	}
	if rec.Fetched != 7 || rec.Saved != 6 || rec.Skipped != 1 || rec.Matched != 2 {
		t.Fatalf("record counts = %+v", rec)
	}
	if rec.ActionsOK != 2 || rec.ActionsFailed != 1 || rec.ActionsNotFound != 1 {
		t.Fatalf("record action counts = %+v", rec)
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
