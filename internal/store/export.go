package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aichatlibre/memcore/internal/model"
)

// ErrInvalidImport marks a malformed backup payload. Validation happens
// before any mutation; an invalid backup never partially corrupts the
// store.
var ErrInvalidImport = errors.New("invalid import payload")

// backupVersion is the current backup format version.
const backupVersion = "1.0.0"

// Backup is the versioned export of all four collections.
type Backup struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Data       BackupData `json:"data"`
}

// BackupData holds the exported records, keyed like the chat UI's own
// backup files so the two stay interchangeable.
type BackupData struct {
	WorkingMemory  []model.WorkingMemory  `json:"workingMemory"`
	EpisodicMemory []model.EpisodicMemory `json:"episodicMemory"`
	SemanticMemory []model.SemanticMemory `json:"semanticMemory"`
	Lorebooks      []model.Lorebook       `json:"lorebooks"`
}

// ImportCounts reports how many records an import wrote per collection.
type ImportCounts struct {
	WorkingMemory  int `json:"workingMemory"`
	EpisodicMemory int `json:"episodicMemory"`
	SemanticMemory int `json:"semanticMemory"`
	Lorebooks      int `json:"lorebooks"`
}

// Export collects every record from all four collections.
func Export(ctx context.Context, s Store) (*Backup, error) {
	episodic, err := s.AllEpisodic(ctx)
	if err != nil {
		return nil, fmt.Errorf("export episodic: %w", err)
	}
	semantic, err := s.AllSemantic(ctx)
	if err != nil {
		return nil, fmt.Errorf("export semantic: %w", err)
	}
	books, err := s.AllLorebooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export lorebooks: %w", err)
	}

	working, err := s.AllWorkingMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("export working memory: %w", err)
	}

	return &Backup{
		Version:    backupVersion,
		ExportedAt: time.Now().UTC(),
		Data: BackupData{
			WorkingMemory:  working,
			EpisodicMemory: episodic,
			SemanticMemory: semantic,
			Lorebooks:      books,
		},
	}, nil
}

// ParseBackup decodes and validates a backup payload.
func ParseBackup(data []byte) (*Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if err := validateBackup(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

func validateBackup(b *Backup) error {
	if b.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidImport)
	}
	for i, wm := range b.Data.WorkingMemory {
		if wm.ChatID == "" {
			return fmt.Errorf("%w: workingMemory[%d] missing chatId", ErrInvalidImport, i)
		}
	}
	for i, m := range b.Data.EpisodicMemory {
		if m.ID == "" || m.ChatID == "" {
			return fmt.Errorf("%w: episodicMemory[%d] missing id or chatId", ErrInvalidImport, i)
		}
		if m.Importance < 1 || m.Importance > 10 {
			return fmt.Errorf("%w: episodicMemory[%d] importance %d out of range", ErrInvalidImport, i, m.Importance)
		}
	}
	for i, m := range b.Data.SemanticMemory {
		if m.ID == "" || m.CharacterID == "" {
			return fmt.Errorf("%w: semanticMemory[%d] missing id or characterId", ErrInvalidImport, i)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return fmt.Errorf("%w: semanticMemory[%d] confidence %f out of range", ErrInvalidImport, i, m.Confidence)
		}
	}
	for i, lb := range b.Data.Lorebooks {
		if lb.ID == "" || lb.Name == "" {
			return fmt.Errorf("%w: lorebooks[%d] missing id or name", ErrInvalidImport, i)
		}
		for j, e := range lb.Entries {
			if e.ID == "" {
				return fmt.Errorf("%w: lorebooks[%d].entries[%d] missing id", ErrInvalidImport, i, j)
			}
		}
	}
	return nil
}

// Import writes a validated backup into the store. The payload is
// re-validated first so a hand-built Backup cannot bypass the checks.
func Import(ctx context.Context, s Store, b *Backup) (*ImportCounts, error) {
	if err := validateBackup(b); err != nil {
		return nil, err
	}

	counts := &ImportCounts{}
	for i := range b.Data.WorkingMemory {
		if _, err := s.UpsertWorkingMemory(ctx, &b.Data.WorkingMemory[i]); err != nil {
			return counts, fmt.Errorf("import working memory: %w", err)
		}
		counts.WorkingMemory++
	}
	for _, m := range b.Data.EpisodicMemory {
		_, err := s.AddEpisodic(ctx, EpisodicParams{
			ID:           m.ID,
			ChatID:       m.ChatID,
			Event:        m.Event,
			Participants: m.Participants,
			Emotion:      m.Emotion,
			Importance:   m.Importance,
			CreatedAt:    m.CreatedAt,
		})
		if err != nil {
			return counts, fmt.Errorf("import episodic memory: %w", err)
		}
		counts.EpisodicMemory++
	}
	for _, m := range b.Data.SemanticMemory {
		_, err := s.AddSemantic(ctx, SemanticParams{
			ID:          m.ID,
			CharacterID: m.CharacterID,
			Fact:        m.Fact,
			Category:    m.Category,
			Confidence:  m.Confidence,
			Source:      m.Source,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
		})
		if err != nil {
			return counts, fmt.Errorf("import semantic memory: %w", err)
		}
		counts.SemanticMemory++
	}
	for i := range b.Data.Lorebooks {
		if _, err := s.CreateLorebook(ctx, &b.Data.Lorebooks[i]); err != nil {
			return counts, fmt.Errorf("import lorebook: %w", err)
		}
		counts.Lorebooks++
	}
	return counts, nil
}
