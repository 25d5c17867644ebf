package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aichatlibre/memcore/internal/model"
)

// Mem is an in-memory Store for tests and embedded hosts. Records are
// copied on the way in and out so callers cannot alias internal state.
type Mem struct {
	working  map[string]*model.WorkingMemory // keyed by chatID
	episodic []model.EpisodicMemory
	semantic []model.SemanticMemory
	books    []model.Lorebook
	entropy  *rand.Rand
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		working: make(map[string]*model.WorkingMemory),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Mem) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Mem) WorkingMemory(ctx context.Context, chatID string) (*model.WorkingMemory, error) {
	wm, ok := s.working[chatID]
	if !ok {
		return nil, fmt.Errorf("working memory for chat %s: %w", chatID, ErrNotFound)
	}
	out := *wm
	out.KeyPoints = append([]string(nil), wm.KeyPoints...)
	return &out, nil
}

func (s *Mem) UpsertWorkingMemory(ctx context.Context, wm *model.WorkingMemory) (*model.WorkingMemory, error) {
	stored := *wm
	stored.KeyPoints = append([]string(nil), wm.KeyPoints...)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}
	if existing, ok := s.working[wm.ChatID]; ok {
		stored.ID = existing.ID
	} else if stored.ID == "" {
		stored.ID = s.newID()
	}
	s.working[wm.ChatID] = &stored

	out := stored
	return &out, nil
}

func (s *Mem) AllWorkingMemory(ctx context.Context) ([]model.WorkingMemory, error) {
	out := make([]model.WorkingMemory, 0, len(s.working))
	for _, wm := range s.working {
		cp := *wm
		cp.KeyPoints = append([]string(nil), wm.KeyPoints...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Mem) AddEpisodic(ctx context.Context, p EpisodicParams) (*model.EpisodicMemory, error) {
	mem := model.EpisodicMemory{
		ID:           p.ID,
		ChatID:       p.ChatID,
		Event:        p.Event,
		Participants: append([]string(nil), p.Participants...),
		Emotion:      p.Emotion,
		Importance:   p.Importance,
		CreatedAt:    p.CreatedAt,
	}
	if mem.ID == "" {
		mem.ID = s.newID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	s.episodic = append(s.episodic, mem)

	out := mem
	return &out, nil
}

func (s *Mem) EpisodicByChat(ctx context.Context, chatID string) ([]model.EpisodicMemory, error) {
	var out []model.EpisodicMemory
	for _, m := range s.episodic {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Mem) AllEpisodic(ctx context.Context) ([]model.EpisodicMemory, error) {
	return append([]model.EpisodicMemory(nil), s.episodic...), nil
}

func (s *Mem) AddSemantic(ctx context.Context, p SemanticParams) (*model.SemanticMemory, error) {
	mem := model.SemanticMemory{
		ID:          p.ID,
		CharacterID: p.CharacterID,
		Fact:        p.Fact,
		Category:    p.Category,
		Confidence:  p.Confidence,
		Source:      p.Source,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if mem.ID == "" {
		mem.ID = s.newID()
	}
	now := time.Now().UTC()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = now
	}
	s.semantic = append(s.semantic, mem)

	out := mem
	return &out, nil
}

func (s *Mem) SemanticByCharacter(ctx context.Context, characterID, category string) ([]model.SemanticMemory, error) {
	var out []model.SemanticMemory
	for _, m := range s.semantic {
		if m.CharacterID != characterID {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Mem) AllSemantic(ctx context.Context) ([]model.SemanticMemory, error) {
	return append([]model.SemanticMemory(nil), s.semantic...), nil
}

func (s *Mem) CreateLorebook(ctx context.Context, lb *model.Lorebook) (*model.Lorebook, error) {
	stored := copyLorebook(lb)
	if stored.ID == "" {
		stored.ID = s.newID()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.books = append(s.books, stored)

	out := copyLorebook(&stored)
	return &out, nil
}

func (s *Mem) Lorebook(ctx context.Context, id string) (*model.Lorebook, error) {
	for i := range s.books {
		if s.books[i].ID == id {
			out := copyLorebook(&s.books[i])
			return &out, nil
		}
	}
	return nil, fmt.Errorf("lorebook %s: %w", id, ErrNotFound)
}

func (s *Mem) AllLorebooks(ctx context.Context) ([]model.Lorebook, error) {
	out := make([]model.Lorebook, 0, len(s.books))
	for i := range s.books {
		out = append(out, copyLorebook(&s.books[i]))
	}
	return out, nil
}

func (s *Mem) LorebooksByCharacter(ctx context.Context, characterID string) ([]model.Lorebook, error) {
	var out []model.Lorebook
	for i := range s.books {
		if s.books[i].CharacterID == characterID {
			out = append(out, copyLorebook(&s.books[i]))
		}
	}
	return out, nil
}

func (s *Mem) GlobalLorebooks(ctx context.Context) ([]model.Lorebook, error) {
	var out []model.Lorebook
	for i := range s.books {
		if s.books[i].CharacterID == "" {
			out = append(out, copyLorebook(&s.books[i]))
		}
	}
	return out, nil
}

func (s *Mem) UpdateLorebook(ctx context.Context, lb *model.Lorebook) error {
	for i := range s.books {
		if s.books[i].ID == lb.ID {
			stored := copyLorebook(lb)
			stored.CreatedAt = s.books[i].CreatedAt
			stored.UpdatedAt = time.Now().UTC()
			s.books[i] = stored
			return nil
		}
	}
	return fmt.Errorf("lorebook %s: %w", lb.ID, ErrNotFound)
}

func (s *Mem) DeleteLorebook(ctx context.Context, id string) error {
	for i := range s.books {
		if s.books[i].ID == id {
			s.books = append(s.books[:i], s.books[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("lorebook %s: %w", id, ErrNotFound)
}

func (s *Mem) Close() error { return nil }

func copyLorebook(lb *model.Lorebook) model.Lorebook {
	out := *lb
	out.Entries = make([]model.LorebookEntry, len(lb.Entries))
	for i, e := range lb.Entries {
		out.Entries[i] = e
		out.Entries[i].Keys = append([]string(nil), e.Keys...)
	}
	return out
}

var _ Store = (*Mem)(nil)
var _ Store = (*SQLite)(nil)
