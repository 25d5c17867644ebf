package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aichatlibre/memcore/internal/model"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMem()

	src.UpsertWorkingMemory(ctx, &model.WorkingMemory{ChatID: "chat-1", Summary: "at the tavern"})
	src.AddEpisodic(ctx, EpisodicParams{ChatID: "chat-1", Event: "met Aria", Importance: 7})
	src.AddSemantic(ctx, SemanticParams{CharacterID: "char-1", Fact: "likes rain", Category: "preferences", Confidence: 0.9})
	src.CreateLorebook(ctx, &model.Lorebook{
		Name: "Eldoria",
		Entries: []model.LorebookEntry{
			{ID: "e1", Keys: []string{"magic"}, Content: "Magic is forbidden.", Enabled: true},
		},
	})

	backup, err := Export(ctx, src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if backup.Version != backupVersion {
		t.Errorf("version = %q, want %q", backup.Version, backupVersion)
	}

	raw, err := json.Marshal(backup)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseBackup(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	dst := NewMem()
	counts, err := Import(ctx, dst, parsed)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if counts.WorkingMemory != 1 || counts.EpisodicMemory != 1 || counts.SemanticMemory != 1 || counts.Lorebooks != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}

	srcMems, _ := src.AllEpisodic(ctx)
	dstMems, _ := dst.AllEpisodic(ctx)
	if len(dstMems) != 1 || dstMems[0].ID != srcMems[0].ID {
		t.Errorf("episodic ID not preserved: src=%v dst=%v", srcMems, dstMems)
	}
	wm, err := dst.WorkingMemory(ctx, "chat-1")
	if err != nil {
		t.Fatalf("working memory after import: %v", err)
	}
	if wm.Summary != "at the tavern" {
		t.Errorf("summary = %q", wm.Summary)
	}
}

func TestExportIncludesWorkingMemoryWithoutEpisodic(t *testing.T) {
	ctx := context.Background()
	src := NewMem()

	// A chat can have a summary before any event is recorded; it must
	// still survive a backup.
	src.UpsertWorkingMemory(ctx, &model.WorkingMemory{ChatID: "chat-quiet", Summary: "nothing happened yet"})

	backup, err := Export(ctx, src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(backup.Data.WorkingMemory) != 1 {
		t.Fatalf("working memory lost on export: got %d records, want 1", len(backup.Data.WorkingMemory))
	}
	if backup.Data.WorkingMemory[0].ChatID != "chat-quiet" {
		t.Errorf("unexpected record: %+v", backup.Data.WorkingMemory[0])
	}

	stats, err := CollectStats(ctx, src)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.WorkingMemory != 1 {
		t.Errorf("stats.WorkingMemory = %d, want 1", stats.WorkingMemory)
	}
}

func TestImportPreservesTimestamps(t *testing.T) {
	ctx := context.Background()
	src := NewMem()

	created := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	src.AddEpisodic(ctx, EpisodicParams{ChatID: "chat-1", Event: "old event", Importance: 5, CreatedAt: created})
	src.AddSemantic(ctx, SemanticParams{CharacterID: "char-1", Fact: "old fact", Confidence: 0.9, CreatedAt: created, UpdatedAt: updated})
	src.UpsertWorkingMemory(ctx, &model.WorkingMemory{ChatID: "chat-1", Summary: "old summary", UpdatedAt: updated})

	backup, err := Export(ctx, src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := NewMem()
	if _, err := Import(ctx, dst, backup); err != nil {
		t.Fatalf("import: %v", err)
	}

	episodic, _ := dst.AllEpisodic(ctx)
	if !episodic[0].CreatedAt.Equal(created) {
		t.Errorf("episodic createdAt not preserved across import: want %v, got %v", created, episodic[0].CreatedAt)
	}
	semantic, _ := dst.AllSemantic(ctx)
	if !semantic[0].CreatedAt.Equal(created) || !semantic[0].UpdatedAt.Equal(updated) {
		t.Errorf("semantic timestamps not preserved: got %v/%v", semantic[0].CreatedAt, semantic[0].UpdatedAt)
	}
	wm, _ := dst.WorkingMemory(ctx, "chat-1")
	if !wm.UpdatedAt.Equal(updated) {
		t.Errorf("working memory updatedAt not preserved: want %v, got %v", updated, wm.UpdatedAt)
	}
}

func TestParseBackupRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"missing version", `{"data":{}}`},
		{"importance out of range", `{"version":"1.0.0","data":{"episodicMemory":[{"id":"m1","chatId":"c1","event":"x","importance":11}]}}`},
		{"confidence out of range", `{"version":"1.0.0","data":{"semanticMemory":[{"id":"m1","characterId":"c1","fact":"x","confidence":1.5}]}}`},
		{"episodic missing chat id", `{"version":"1.0.0","data":{"episodicMemory":[{"id":"m1","event":"x","importance":5}]}}`},
		{"lorebook entry missing id", `{"version":"1.0.0","data":{"lorebooks":[{"id":"l1","name":"x","entries":[{"keys":["k"],"content":"c"}]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBackup([]byte(tt.raw))
			if !errors.Is(err, ErrInvalidImport) {
				t.Errorf("expected ErrInvalidImport, got %v", err)
			}
		})
	}
}

func TestImportValidatesBeforeMutating(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	// Valid records followed by an invalid one: nothing may be written.
	b := &Backup{
		Version: backupVersion,
		Data: BackupData{
			EpisodicMemory: []model.EpisodicMemory{
				{ID: "m1", ChatID: "c1", Event: "ok", Importance: 5},
				{ID: "m2", ChatID: "c1", Event: "bad", Importance: 99},
			},
		},
	}
	_, err := Import(ctx, s, b)
	if !errors.Is(err, ErrInvalidImport) {
		t.Fatalf("expected ErrInvalidImport, got %v", err)
	}
	if !strings.Contains(err.Error(), "importance") {
		t.Errorf("error should name the bad field: %v", err)
	}
	all, _ := s.AllEpisodic(ctx)
	if len(all) != 0 {
		t.Errorf("import mutated store before validation failed: %v", all)
	}
}
