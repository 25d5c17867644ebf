// Package model defines the core memory and lorebook record types.
package model

import "time"

// WorkingMemory is the rolling conversation digest. One row per chat,
// replaced wholesale on every summarization.
type WorkingMemory struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"keyPoints"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EpisodicMemory is a discrete recorded event from a conversation.
// Append-only; many per chat.
type EpisodicMemory struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	Event        string    `json:"event"`
	Participants []string  `json:"participants"`
	Emotion      string    `json:"emotion,omitempty"`
	Importance   int       `json:"importance"` // 1-10
	CreatedAt    time.Time `json:"createdAt"`
}

// SemanticMemory is a durable fact attached to a character,
// independent of any one conversation.
type SemanticMemory struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"characterId"`
	Fact        string    `json:"fact"`
	Category    string    `json:"category"`
	Confidence  float64   `json:"confidence"` // 0-1
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Position controls where a lorebook entry is injected relative to the
// character definition and example dialogue.
type Position string

const (
	PositionBeforeChar    Position = "before_char"
	PositionAfterChar     Position = "after_char"
	PositionBeforeExample Position = "before_example"
	PositionAfterExample  Position = "after_example"
)

// LorebookEntry is a keyword-triggered text snippet. Entries exist only
// inside their owning Lorebook and are mutated through it.
type LorebookEntry struct {
	ID       string   `json:"id"`
	Keys     []string `json:"keys"`
	Content  string   `json:"content"`
	Enabled  bool     `json:"enabled"`
	Priority int      `json:"priority"`
	Position Position `json:"position,omitempty"`
}

// Lorebook is a named collection of trigger entries, optionally bound to
// a character. An empty CharacterID marks a global lorebook.
type Lorebook struct {
	ID          string          `json:"id"`
	CharacterID string          `json:"characterId,omitempty"`
	Name        string          `json:"name"`
	Entries     []LorebookEntry `json:"entries"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Character is the card data the context builder renders from. The core
// consumes these values; it does not store them.
type Character struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Personality     string   `json:"personality,omitempty"`
	Scenario        string   `json:"scenario,omitempty"`
	FirstMessage    string   `json:"firstMessage,omitempty"`
	ExampleDialogue string   `json:"exampleDialogue,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Persona describes the user side of the conversation.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Personality string `json:"personality,omitempty"`
	Background  string `json:"background,omitempty"`
}

// Message is a single chat turn, used as trigger text for lorebooks.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
