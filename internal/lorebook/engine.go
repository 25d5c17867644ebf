// Package lorebook manages keyword-triggered world info. Lorebooks hold
// prioritized entries whose keys are matched against conversation text;
// matched entries are rendered into a token-budgeted prompt section.
package lorebook

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/aichatlibre/memcore/internal/model"
	"github.com/aichatlibre/memcore/internal/store"
	"github.com/aichatlibre/memcore/internal/token"
)

const (
	// DefaultMaxDepth bounds recursive triggering. Depth counts rounds,
	// so cyclic keyword graphs always terminate.
	DefaultMaxDepth = 3

	// DefaultContextTokens is the rendering budget when none is given.
	DefaultContextTokens = 1000

	sectionHeader = "[World Info]"
)

// Engine owns lorebook CRUD and the trigger pipeline.
type Engine struct {
	store   store.Store
	log     logrus.FieldLogger
	entropy *rand.Rand
}

// NewEngine creates an engine backed by the given store.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		log:     logrus.StandardLogger(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func (e *Engine) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// CreateLorebook stores a new lorebook. Entries without IDs get one.
func (e *Engine) CreateLorebook(ctx context.Context, lb *model.Lorebook) (*model.Lorebook, error) {
	for i := range lb.Entries {
		if lb.Entries[i].ID == "" {
			lb.Entries[i].ID = e.newID()
		}
	}
	return e.store.CreateLorebook(ctx, lb)
}

// Lorebook fetches a lorebook by ID.
func (e *Engine) Lorebook(ctx context.Context, id string) (*model.Lorebook, error) {
	return e.store.Lorebook(ctx, id)
}

// Lorebooks lists every stored lorebook.
func (e *Engine) Lorebooks(ctx context.Context) ([]model.Lorebook, error) {
	return e.store.AllLorebooks(ctx)
}

// LorebooksByCharacter lists lorebooks bound to a character.
func (e *Engine) LorebooksByCharacter(ctx context.Context, characterID string) ([]model.Lorebook, error) {
	return e.store.LorebooksByCharacter(ctx, characterID)
}

// GlobalLorebooks lists lorebooks not bound to any character.
func (e *Engine) GlobalLorebooks(ctx context.Context) ([]model.Lorebook, error) {
	return e.store.GlobalLorebooks(ctx)
}

// UpdateLorebook replaces a stored lorebook. Returns store.ErrNotFound
// if it does not exist.
func (e *Engine) UpdateLorebook(ctx context.Context, lb *model.Lorebook) error {
	for i := range lb.Entries {
		if lb.Entries[i].ID == "" {
			lb.Entries[i].ID = e.newID()
		}
	}
	return e.store.UpdateLorebook(ctx, lb)
}

// DeleteLorebook removes a lorebook and all of its entries.
func (e *Engine) DeleteLorebook(ctx context.Context, id string) error {
	return e.store.DeleteLorebook(ctx, id)
}

// AddEntry appends an entry to a lorebook, assigning its ID.
func (e *Engine) AddEntry(ctx context.Context, lorebookID string, entry model.LorebookEntry) (*model.LorebookEntry, error) {
	lb, err := e.store.Lorebook(ctx, lorebookID)
	if err != nil {
		return nil, err
	}
	entry.ID = e.newID()
	lb.Entries = append(lb.Entries, entry)
	if err := e.store.UpdateLorebook(ctx, lb); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntry replaces an entry in place, keyed by entry.ID.
func (e *Engine) UpdateEntry(ctx context.Context, lorebookID string, entry model.LorebookEntry) error {
	lb, err := e.store.Lorebook(ctx, lorebookID)
	if err != nil {
		return err
	}
	for i := range lb.Entries {
		if lb.Entries[i].ID == entry.ID {
			lb.Entries[i] = entry
			return e.store.UpdateLorebook(ctx, lb)
		}
	}
	return fmt.Errorf("entry %s: %w", entry.ID, store.ErrNotFound)
}

// DeleteEntry removes an entry from a lorebook.
func (e *Engine) DeleteEntry(ctx context.Context, lorebookID, entryID string) error {
	lb, err := e.store.Lorebook(ctx, lorebookID)
	if err != nil {
		return err
	}
	for i := range lb.Entries {
		if lb.Entries[i].ID == entryID {
			lb.Entries = append(lb.Entries[:i], lb.Entries[i+1:]...)
			return e.store.UpdateLorebook(ctx, lb)
		}
	}
	return fmt.Errorf("entry %s: %w", entryID, store.ErrNotFound)
}

// ToggleEntry flips an entry's enabled flag and returns the new state.
func (e *Engine) ToggleEntry(ctx context.Context, lorebookID, entryID string) (bool, error) {
	lb, err := e.store.Lorebook(ctx, lorebookID)
	if err != nil {
		return false, err
	}
	for i := range lb.Entries {
		if lb.Entries[i].ID == entryID {
			lb.Entries[i].Enabled = !lb.Entries[i].Enabled
			return lb.Entries[i].Enabled, e.store.UpdateLorebook(ctx, lb)
		}
	}
	return false, fmt.Errorf("entry %s: %w", entryID, store.ErrNotFound)
}

// TriggerEntries returns the enabled entries across the given lorebooks
// whose keys match text, deduped by entry ID (first match wins) and
// ordered by priority descending. Ties keep first-seen order. Unknown
// lorebook IDs are skipped.
func (e *Engine) TriggerEntries(ctx context.Context, text string, lorebookIDs []string, opts MatchOptions) ([]model.LorebookEntry, error) {
	triggered, err := e.trigger(ctx, text, lorebookIDs, opts, map[string]bool{})
	if err != nil {
		return nil, err
	}
	sortByPriority(triggered)
	return triggered, nil
}

// RecursiveTrigger re-runs triggering with the content of newly matched
// entries as the next round's search text. It stops when a round adds
// nothing new or maxDepth rounds have run; maxDepth <= 0 uses
// DefaultMaxDepth. The result is sorted by priority descending.
func (e *Engine) RecursiveTrigger(ctx context.Context, initialText string, lorebookIDs []string, opts MatchOptions, maxDepth int) ([]model.LorebookEntry, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	seen := map[string]bool{}
	var accumulated []model.LorebookEntry
	text := initialText

	for depth := 0; depth < maxDepth; depth++ {
		fresh, err := e.trigger(ctx, text, lorebookIDs, opts, seen)
		if err != nil {
			return nil, err
		}
		if len(fresh) == 0 {
			break
		}
		accumulated = append(accumulated, fresh...)

		contents := make([]string, len(fresh))
		for i, entry := range fresh {
			contents[i] = entry.Content
		}
		text = strings.Join(contents, " ")
	}

	sortByPriority(accumulated)
	return accumulated, nil
}

// trigger runs one matching round, skipping entries already in seen and
// recording the ones it fires.
func (e *Engine) trigger(ctx context.Context, text string, lorebookIDs []string, opts MatchOptions, seen map[string]bool) ([]model.LorebookEntry, error) {
	var triggered []model.LorebookEntry
	for _, id := range lorebookIDs {
		lb, err := e.store.Lorebook(ctx, id)
		if err != nil {
			e.log.WithField("lorebook_id", id).WithError(err).Debug("skipping lorebook")
			continue
		}
		for _, entry := range lb.Entries {
			if !entry.Enabled || seen[entry.ID] {
				continue
			}
			for _, key := range entry.Keys {
				if MatchKeyword(text, key, opts) {
					seen[entry.ID] = true
					triggered = append(triggered, entry)
					break
				}
			}
		}
	}
	return triggered, nil
}

func sortByPriority(entries []model.LorebookEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})
}

// BuildContext renders entries, in the given order, into a prompt
// section under maxTokens. An entry that would push past the budget
// ends the scan; nothing fitting yields an empty string. maxTokens <= 0
// uses DefaultContextTokens.
func BuildContext(entries []model.LorebookEntry, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultContextTokens
	}

	var parts []string
	used := 0
	for _, entry := range entries {
		cost := token.Estimate(entry.Content)
		if used+cost > maxTokens {
			break
		}
		parts = append(parts, entry.Content)
		used += cost
	}

	if len(parts) == 0 {
		return ""
	}
	return sectionHeader + "\n" + strings.Join(parts, "\n\n")
}
