// Package prompt assembles the system prompt for a chat turn. It pulls
// persona, character, and memory blocks plus triggered lorebook entries
// into one token-budgeted string, and reports the contributing parts
// for observability.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aichatlibre/memcore/internal/index"
	"github.com/aichatlibre/memcore/internal/lorebook"
	"github.com/aichatlibre/memcore/internal/memory"
	"github.com/aichatlibre/memcore/internal/model"
	"github.com/aichatlibre/memcore/internal/token"
)

// Config holds the per-stage token budgets. Stages self-limit against
// their own budget; MaxTokens is tracked informationally and is not
// re-enforced on the final concatenation.
type Config struct {
	MaxTokens            int `json:"maxTokens"`
	WorkingMemoryTokens  int `json:"workingMemoryTokens"`
	EpisodicMemoryTokens int `json:"episodicMemoryTokens"`
	SemanticMemoryTokens int `json:"semanticMemoryTokens"`
	LorebookTokens       int `json:"lorebookTokens"`
}

// DefaultConfig returns the standard budget split.
func DefaultConfig() Config {
	return Config{
		MaxTokens:            4000,
		WorkingMemoryTokens:  500,
		EpisodicMemoryTokens: 800,
		SemanticMemoryTokens: 500,
		LorebookTokens:       500,
	}
}

// PartType identifies which stage produced a context part.
type PartType string

const (
	PartPersona   PartType = "persona"
	PartCharacter PartType = "character"
	PartWorking   PartType = "working"
	PartEpisodic  PartType = "episodic"
	PartSemantic  PartType = "semantic"
	PartLorebook  PartType = "lorebook"
)

// Part is one block of the assembled prompt.
type Part struct {
	Type    PartType `json:"type"`
	Content string   `json:"content"`
	Tokens  int      `json:"tokens"`
}

// Request describes one assembly call.
type Request struct {
	Character      *model.Character
	ChatID         string
	Persona        *model.Persona
	RecentMessages []model.Message
	Query          string
	LorebookIDs    []string
	Config         *Config // nil means DefaultConfig
}

// Result is the assembled prompt plus its itemized parts.
type Result struct {
	SystemPrompt string `json:"systemPrompt"`
	Parts        []Part `json:"parts"`
}

// Builder runs the assembly pipeline.
type Builder struct {
	mem  *memory.Manager
	lore *lorebook.Engine
	log  logrus.FieldLogger
}

// NewBuilder creates a Builder. The lorebook engine may be nil, in
// which case the lorebook stage is skipped.
func NewBuilder(mem *memory.Manager, lore *lorebook.Engine, opts ...BuilderOption) *Builder {
	b := &Builder{
		mem:  mem,
		lore: lore,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(log logrus.FieldLogger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

// Episodic retrieval parameters for the query stage.
const (
	episodicTopK      = 5
	episodicThreshold = 0.6
)

// Build assembles the system prompt. Stages run in a fixed order, each
// optional: persona, character, working memory, retrieved episodic
// memory, semantic knowledge, lorebook. Later blocks refine earlier
// framing, so the order is significant.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	if req.Character == nil {
		return nil, fmt.Errorf("character is required")
	}
	cfg := DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	var parts []Part
	add := func(t PartType, content string) {
		if content == "" {
			return
		}
		parts = append(parts, Part{Type: t, Content: content, Tokens: token.Estimate(content)})
	}

	// 1. Persona
	if req.Persona != nil {
		add(PartPersona, RenderPersona(req.Persona))
	}

	// 2. Character
	add(PartCharacter, renderCharacter(req.Character))

	// 3. Working memory
	wm, err := b.mem.WorkingMemory(ctx, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("working memory stage: %w", err)
	}
	if wm != nil {
		add(PartWorking, token.Truncate(renderWorking(wm), cfg.WorkingMemoryTokens))
	}

	// 4. Retrieved episodic memory, query-driven
	if req.Query != "" {
		block, err := b.episodicBlock(ctx, req.ChatID, req.Query)
		if err != nil {
			return nil, fmt.Errorf("episodic stage: %w", err)
		}
		if block != "" {
			add(PartEpisodic, token.Truncate(block, cfg.EpisodicMemoryTokens))
		}
	}

	// 5. Semantic knowledge
	semantic, err := b.mem.SemanticMemories(ctx, req.Character.ID, "")
	if err != nil {
		return nil, fmt.Errorf("semantic stage: %w", err)
	}
	if len(semantic) > 0 {
		add(PartSemantic, token.Truncate(renderSemantic(semantic), cfg.SemanticMemoryTokens))
	}

	// 6. Lorebook
	if b.lore != nil && len(req.LorebookIDs) > 0 {
		scanText := req.Query
		for _, msg := range req.RecentMessages {
			scanText += " " + msg.Content
		}
		entries, err := b.lore.RecursiveTrigger(ctx, scanText, req.LorebookIDs, lorebook.MatchOptions{}, 0)
		if err != nil {
			return nil, fmt.Errorf("lorebook stage: %w", err)
		}
		add(PartLorebook, lorebook.BuildContext(entries, cfg.LorebookTokens))
	}

	contents := make([]string, len(parts))
	for i, p := range parts {
		contents[i] = p.Content
	}
	return &Result{
		SystemPrompt: strings.Join(contents, "\n\n"),
		Parts:        parts,
	}, nil
}

// episodicBlock searches the index for relevant episodic memories and
// resolves the hits against the chat's records. Search returns metadata
// only, so hits without a stored record are dropped.
func (b *Builder) episodicBlock(ctx context.Context, chatID, query string) (string, error) {
	hits, err := b.mem.SearchRelevantMemories(ctx, query, memory.SearchOptions{
		ChatID:    chatID,
		Kinds:     []index.Kind{index.KindEpisodic},
		TopK:      episodicTopK,
		Threshold: episodicThreshold,
	})
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	relevant := make(map[string]bool, len(hits))
	for _, h := range hits {
		relevant[h.ID] = true
	}

	mems, err := b.mem.EpisodicMemories(ctx, chatID, 0)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, m := range mems {
		if relevant[m.ID] {
			lines = append(lines, "- "+m.Event)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "[Relevant Memories]\n" + strings.Join(lines, "\n"), nil
}

// RenderPersona formats a persona block. Only set fields render; an
// empty persona renders nothing.
func RenderPersona(p *model.Persona) string {
	var lines []string
	if p.Name != "" {
		lines = append(lines, "Name: "+p.Name)
	}
	if p.Description != "" {
		lines = append(lines, "Description: "+p.Description)
	}
	if p.Personality != "" {
		lines = append(lines, "Personality: "+p.Personality)
	}
	if p.Background != "" {
		lines = append(lines, "Background: "+p.Background)
	}
	if len(lines) == 0 {
		return ""
	}
	return "[User Persona]\n" + strings.Join(lines, "\n")
}

func renderCharacter(c *model.Character) string {
	lines := []string{"[Character]"}
	if c.Description != "" {
		lines = append(lines, "Description: "+c.Description)
	}
	if c.Personality != "" {
		lines = append(lines, "Personality: "+c.Personality)
	}
	if c.Scenario != "" {
		lines = append(lines, "Scenario: "+c.Scenario)
	}
	return strings.Join(lines, "\n")
}

func renderWorking(wm *model.WorkingMemory) string {
	s := "[Conversation Summary]\n" + wm.Summary
	if len(wm.KeyPoints) > 0 {
		var lines []string
		for _, p := range wm.KeyPoints {
			lines = append(lines, "- "+p)
		}
		s += "\n\nKey points:\n" + strings.Join(lines, "\n")
	}
	return s
}

func renderSemantic(mems []model.SemanticMemory) string {
	lines := make([]string, len(mems))
	for i, m := range mems {
		lines[i] = "- " + m.Fact
	}
	return "[Character Knowledge]\n" + strings.Join(lines, "\n")
}

// TotalTokens sums the per-part estimates. Informational only.
func TotalTokens(parts []Part) int {
	total := 0
	for _, p := range parts {
		total += p.Tokens
	}
	return total
}
