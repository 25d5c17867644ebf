// Package index implements an exact brute-force vector index for local
// memory retrieval. Entries are scored by cosine similarity; there is no
// approximate indexing.
//
// The index has no internal locking. A single logical owner must
// serialize Add/Remove/Search calls on an instance.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a query vector's dimension does
// not match the stored vectors. This is a logic error, never coerced.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Kind discriminates the metadata variants stored alongside vectors.
type Kind string

const (
	KindEpisodic Kind = "episodic"
	KindSemantic Kind = "semantic"
)

// Metadata is the closed set of per-entry metadata variants. Keeping it
// a tagged union instead of an open map keeps filter predicates
// type-safe.
type Metadata interface {
	MemoryKind() Kind
}

// EpisodicMetadata tags vectors derived from episodic memory records.
type EpisodicMetadata struct {
	ChatID     string `json:"chatId"`
	Importance int    `json:"importance"`
	Emotion    string `json:"emotion,omitempty"`
}

func (EpisodicMetadata) MemoryKind() Kind { return KindEpisodic }

// SemanticMetadata tags vectors derived from semantic memory records.
type SemanticMetadata struct {
	CharacterID string  `json:"characterId"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

func (SemanticMetadata) MemoryKind() Kind { return KindSemantic }

// Entry is a stored (id, vector, metadata) tuple.
type Entry struct {
	ID     string
	Vector []float32
	Meta   Metadata
}

// Result pairs an entry with its similarity score.
type Result struct {
	Entry Entry
	Score float64
}

// Index is an in-memory collection of vector entries. Entries keep
// their insertion position across upserts, which makes tie-breaking on
// equal scores deterministic.
type Index struct {
	entries []Entry
	pos     map[string]int
}

// New creates an empty index.
func New() *Index {
	return &Index{pos: make(map[string]int)}
}

// Add upserts an entry by id. An existing entry is replaced in place,
// keeping its original position.
func (x *Index) Add(id string, vector []float32, meta Metadata) {
	if i, ok := x.pos[id]; ok {
		x.entries[i] = Entry{ID: id, Vector: vector, Meta: meta}
		return
	}
	x.pos[id] = len(x.entries)
	x.entries = append(x.entries, Entry{ID: id, Vector: vector, Meta: meta})
}

// AddBatch upserts entries sequentially. There is no atomicity beyond
// the per-entry upsert.
func (x *Index) AddBatch(entries []Entry) {
	for _, e := range entries {
		x.Add(e.ID, e.Vector, e.Meta)
	}
}

// Remove deletes an entry by id, reporting whether it existed.
func (x *Index) Remove(id string) bool {
	i, ok := x.pos[id]
	if !ok {
		return false
	}
	x.entries = append(x.entries[:i], x.entries[i+1:]...)
	delete(x.pos, id)
	for j := i; j < len(x.entries); j++ {
		x.pos[x.entries[j].ID] = j
	}
	return true
}

// Clear drops all entries.
func (x *Index) Clear() {
	x.entries = nil
	x.pos = make(map[string]int)
}

// All returns a copy of the stored entries in insertion order.
func (x *Index) All() []Entry {
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Size returns the number of stored entries.
func (x *Index) Size() int {
	return len(x.entries)
}

// Search returns the top k entries by cosine similarity, optionally
// restricted by a metadata filter. Candidates are filtered first, then
// scored, then sorted descending; ties keep insertion order.
func (x *Index) Search(query []float32, k int, filter func(Entry) bool) ([]Result, error) {
	scored := make([]Result, 0, len(x.entries))
	for _, e := range x.entries {
		if filter != nil && !filter(e) {
			continue
		}
		score, err := cosineSimilarity(query, e.Vector)
		if err != nil {
			return nil, err
		}
		scored = append(scored, Result{Entry: e, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// SearchWithThreshold is Search limited to maxResults and further
// restricted to scores >= threshold (inclusive).
func (x *Index) SearchWithThreshold(query []float32, threshold float64, maxResults int, filter func(Entry) bool) ([]Result, error) {
	results, err := x.Search(query, maxResults, filter)
	if err != nil {
		return nil, err
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// cosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. A zero-magnitude vector scores 0.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: query has %d dimensions, entry has %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}
