package lorebook

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aichatlibre/memcore/internal/model"
	"github.com/aichatlibre/memcore/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := store.NewMem()
	return NewEngine(s, WithLogger(log)), s
}

func mustCreate(t *testing.T, e *Engine, lb *model.Lorebook) *model.Lorebook {
	t.Helper()
	created, err := e.CreateLorebook(context.Background(), lb)
	if err != nil {
		t.Fatalf("create lorebook: %v", err)
	}
	return created
}

func TestTriggerEntries(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lb := mustCreate(t, e, &model.Lorebook{
		Name: "Eldoria",
		Entries: []model.LorebookEntry{
			{Keys: []string{"magic"}, Content: "low priority magic lore", Enabled: true, Priority: 10},
			{Keys: []string{"magic", "spell"}, Content: "high priority magic lore", Enabled: true, Priority: 90},
			{Keys: []string{"magic"}, Content: "disabled lore", Enabled: false, Priority: 50},
			{Keys: []string{"dragon"}, Content: "dragon lore", Enabled: true, Priority: 70},
		},
	})

	entries, err := e.TriggerEntries(ctx, "I cast a magic spell", []string{lb.ID}, MatchOptions{})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Priority != 90 || entries[1].Priority != 10 {
		t.Errorf("expected priority order [90, 10], got [%d, %d]", entries[0].Priority, entries[1].Priority)
	}
}

func TestTriggerEntriesDedupeAcrossLorebooks(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	shared := model.LorebookEntry{ID: "shared", Keys: []string{"magic"}, Content: "shared lore", Enabled: true, Priority: 10}
	lb1 := mustCreate(t, e, &model.Lorebook{Name: "first", Entries: []model.LorebookEntry{shared}})
	lb2 := mustCreate(t, e, &model.Lorebook{Name: "second", Entries: []model.LorebookEntry{shared}})

	entries, err := e.TriggerEntries(ctx, "magic everywhere", []string{lb1.ID, lb2.ID}, MatchOptions{})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected shared entry once, got %d", len(entries))
	}
}

func TestTriggerEntriesStableTies(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lb := mustCreate(t, e, &model.Lorebook{
		Name: "ties",
		Entries: []model.LorebookEntry{
			{Keys: []string{"key"}, Content: "first", Enabled: true, Priority: 50},
			{Keys: []string{"key"}, Content: "second", Enabled: true, Priority: 50},
			{Keys: []string{"key"}, Content: "third", Enabled: true, Priority: 50},
		},
	})

	entries, err := e.TriggerEntries(ctx, "key", []string{lb.ID}, MatchOptions{})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	got := []string{entries[0].Content, entries[1].Content, entries[2].Content}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order changed: got %v, want %v", got, want)
		}
	}
}

func TestTriggerEntriesSkipsUnknownLorebooks(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lb := mustCreate(t, e, &model.Lorebook{
		Name:    "known",
		Entries: []model.LorebookEntry{{Keys: []string{"magic"}, Content: "lore", Enabled: true}},
	})

	entries, err := e.TriggerEntries(ctx, "magic", []string{"missing", lb.ID}, MatchOptions{})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected unknown lorebook to be skipped, got %d entries", len(entries))
	}
}

func TestRecursiveTriggerCyclicTerminates(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// A's content names B's key and vice versa.
	lb := mustCreate(t, e, &model.Lorebook{
		Name: "cyclic",
		Entries: []model.LorebookEntry{
			{Keys: []string{"alpha"}, Content: "alpha lore mentions beta", Enabled: true, Priority: 1},
			{Keys: []string{"beta"}, Content: "beta lore mentions alpha", Enabled: true, Priority: 2},
		},
	})

	entries, err := e.RecursiveTrigger(ctx, "tell me about alpha", []string{lb.ID}, MatchOptions{}, 3)
	if err != nil {
		t.Fatalf("recursive trigger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both entries exactly once, got %d", len(entries))
	}
	if entries[0].Priority != 2 || entries[1].Priority != 1 {
		t.Errorf("expected priority resort, got [%d, %d]", entries[0].Priority, entries[1].Priority)
	}
}

func TestRecursiveTriggerDepthCap(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// A chain longer than the depth cap: each entry's content names the
	// next key. Only one entry can fire per round.
	lb := mustCreate(t, e, &model.Lorebook{
		Name: "chain",
		Entries: []model.LorebookEntry{
			{Keys: []string{"one"}, Content: "leads to two", Enabled: true},
			{Keys: []string{"two"}, Content: "leads to three", Enabled: true},
			{Keys: []string{"three"}, Content: "leads to four", Enabled: true},
			{Keys: []string{"four"}, Content: "leads to five", Enabled: true},
		},
	})

	entries, err := e.RecursiveTrigger(ctx, "start with one", []string{lb.ID}, MatchOptions{}, 3)
	if err != nil {
		t.Fatalf("recursive trigger: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected depth cap to stop the chain at 3 entries, got %d", len(entries))
	}
}

func TestRecursiveTriggerNoMatches(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lb := mustCreate(t, e, &model.Lorebook{
		Name:    "quiet",
		Entries: []model.LorebookEntry{{Keys: []string{"dragon"}, Content: "lore", Enabled: true}},
	})

	entries, err := e.RecursiveTrigger(ctx, "nothing relevant here", []string{lb.ID}, MatchOptions{}, 0)
	if err != nil {
		t.Fatalf("recursive trigger: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestBuildContext(t *testing.T) {
	// 24 ASCII chars estimate to 6 tokens at 4 chars/token.
	sixTokens := strings.Repeat("x", 24)
	entries := []model.LorebookEntry{
		{Content: sixTokens},
		{Content: sixTokens},
	}

	got := BuildContext(entries, 10)
	if got == "" {
		t.Fatal("expected non-empty context")
	}
	if !strings.HasPrefix(got, sectionHeader) {
		t.Errorf("expected %q header, got %q", sectionHeader, got)
	}
	if strings.Count(got, sixTokens) != 1 {
		t.Errorf("expected only the first entry to fit, got %q", got)
	}
}

func TestBuildContextSeparatesEntriesWithBlankLine(t *testing.T) {
	entries := []model.LorebookEntry{
		{Content: "first lore"},
		{Content: "second lore"},
	}
	want := sectionHeader + "\nfirst lore\n\nsecond lore"
	if got := BuildContext(entries, 100); got != want {
		t.Errorf("BuildContext = %q, want %q", got, want)
	}
}

func TestBuildContextNothingFits(t *testing.T) {
	entries := []model.LorebookEntry{{Content: strings.Repeat("x", 100)}}
	if got := BuildContext(entries, 10); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestBuildContextEmptyEntries(t *testing.T) {
	if got := BuildContext(nil, 100); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestEntryCRUD(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	lb := mustCreate(t, e, &model.Lorebook{Name: "crud"})

	entry, err := e.AddEntry(ctx, lb.ID, model.LorebookEntry{Keys: []string{"magic"}, Content: "lore", Enabled: true})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected assigned entry ID")
	}

	entry.Content = "updated lore"
	if err := e.UpdateEntry(ctx, lb.ID, *entry); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	got, _ := e.Lorebook(ctx, lb.ID)
	if got.Entries[0].Content != "updated lore" {
		t.Errorf("update not applied: %+v", got.Entries)
	}

	enabled, err := e.ToggleEntry(ctx, lb.ID, entry.ID)
	if err != nil {
		t.Fatalf("toggle entry: %v", err)
	}
	if enabled {
		t.Error("expected toggle to disable the entry")
	}

	if err := e.DeleteEntry(ctx, lb.ID, entry.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	got, _ = e.Lorebook(ctx, lb.ID)
	if len(got.Entries) != 0 {
		t.Errorf("expected no entries after delete, got %d", len(got.Entries))
	}

	if err := e.DeleteEntry(ctx, lb.ID, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing entry, got %v", err)
	}
	if err := e.UpdateEntry(ctx, "missing-book", model.LorebookEntry{ID: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing lorebook, got %v", err)
	}
}
