package index

import (
	"encoding/json"
	"fmt"
)

// entryEnvelope is the kind-tagged wire form of an Entry. The metadata
// variant is selected by Kind so snapshots survive the tagged union.
type entryEnvelope struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Kind     Kind              `json:"kind"`
	Episodic *EpisodicMetadata `json:"episodic,omitempty"`
	Semantic *SemanticMetadata `json:"semantic,omitempty"`
}

// Snapshot serializes the index contents. The index is a rebuildable
// cache, so snapshots are an optimization for hosts that want to skip
// re-embedding on restart, not a durability mechanism.
func (x *Index) Snapshot() ([]byte, error) {
	envelopes := make([]entryEnvelope, 0, len(x.entries))
	for _, e := range x.entries {
		env := entryEnvelope{ID: e.ID, Vector: e.Vector}
		switch meta := e.Meta.(type) {
		case EpisodicMetadata:
			env.Kind = KindEpisodic
			env.Episodic = &meta
		case SemanticMetadata:
			env.Kind = KindSemantic
			env.Semantic = &meta
		default:
			return nil, fmt.Errorf("snapshot: unknown metadata type %T for entry %s", e.Meta, e.ID)
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// Restore replaces the index contents from a snapshot. The payload is
// validated in full before any mutation; a bad snapshot leaves the
// index untouched.
func (x *Index) Restore(data []byte) error {
	var envelopes []entryEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	entries := make([]Entry, 0, len(envelopes))
	for _, env := range envelopes {
		if env.ID == "" {
			return fmt.Errorf("restore: entry with empty id")
		}
		e := Entry{ID: env.ID, Vector: env.Vector}
		switch env.Kind {
		case KindEpisodic:
			if env.Episodic == nil {
				return fmt.Errorf("restore: entry %s missing episodic metadata", env.ID)
			}
			e.Meta = *env.Episodic
		case KindSemantic:
			if env.Semantic == nil {
				return fmt.Errorf("restore: entry %s missing semantic metadata", env.ID)
			}
			e.Meta = *env.Semantic
		default:
			return fmt.Errorf("restore: entry %s has unknown kind %q", env.ID, env.Kind)
		}
		entries = append(entries, e)
	}

	x.Clear()
	x.AddBatch(entries)
	return nil
}
