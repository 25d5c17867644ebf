// Package store provides the persistence collaborator: record-store
// access to the working/episodic/semantic memory and lorebook
// collections. The core never assumes a specific engine; SQLite and an
// in-memory map are both provided.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aichatlibre/memcore/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist.
// Lorebook write paths surface it; trigger read paths skip it.
var ErrNotFound = errors.New("not found")

// EpisodicParams holds parameters for appending an episodic memory.
// An empty ID or zero CreatedAt is filled in by the store.
type EpisodicParams struct {
	ID           string
	ChatID       string
	Event        string
	Participants []string
	Emotion      string
	Importance   int
	CreatedAt    time.Time
}

// SemanticParams holds parameters for appending a semantic memory.
// An empty ID or zero timestamp is filled in by the store.
type SemanticParams struct {
	ID          string
	CharacterID string
	Fact        string
	Category    string
	Confidence  float64
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the record-store primitives the memory core depends on.
type Store interface {
	// WorkingMemory returns the single working-memory record for a chat,
	// or ErrNotFound.
	WorkingMemory(ctx context.Context, chatID string) (*model.WorkingMemory, error)

	// UpsertWorkingMemory replaces the working memory for wm.ChatID,
	// inserting if none exists. The stored record's ID is preserved on
	// update.
	UpsertWorkingMemory(ctx context.Context, wm *model.WorkingMemory) (*model.WorkingMemory, error)

	AllWorkingMemory(ctx context.Context) ([]model.WorkingMemory, error)

	AddEpisodic(ctx context.Context, p EpisodicParams) (*model.EpisodicMemory, error)
	EpisodicByChat(ctx context.Context, chatID string) ([]model.EpisodicMemory, error)
	AllEpisodic(ctx context.Context) ([]model.EpisodicMemory, error)

	AddSemantic(ctx context.Context, p SemanticParams) (*model.SemanticMemory, error)
	// SemanticByCharacter returns semantic memories for a character,
	// optionally restricted to a category (compound key).
	SemanticByCharacter(ctx context.Context, characterID, category string) ([]model.SemanticMemory, error)
	AllSemantic(ctx context.Context) ([]model.SemanticMemory, error)

	CreateLorebook(ctx context.Context, lb *model.Lorebook) (*model.Lorebook, error)
	Lorebook(ctx context.Context, id string) (*model.Lorebook, error)
	AllLorebooks(ctx context.Context) ([]model.Lorebook, error)
	LorebooksByCharacter(ctx context.Context, characterID string) ([]model.Lorebook, error)
	// GlobalLorebooks returns lorebooks with no character binding.
	GlobalLorebooks(ctx context.Context) ([]model.Lorebook, error)
	// UpdateLorebook replaces the stored lorebook with lb (matched by
	// lb.ID). Returns ErrNotFound if it does not exist.
	UpdateLorebook(ctx context.Context, lb *model.Lorebook) error
	DeleteLorebook(ctx context.Context, id string) error

	Close() error
}
