package store

import "context"

// Stats holds per-collection record counts.
type Stats struct {
	WorkingMemory   int `json:"workingMemory"`
	EpisodicMemory  int `json:"episodicMemory"`
	SemanticMemory  int `json:"semanticMemory"`
	Lorebooks       int `json:"lorebooks"`
	LorebookEntries int `json:"lorebookEntries"`
}

// CollectStats counts records across the four collections.
func CollectStats(ctx context.Context, s Store) (*Stats, error) {
	episodic, err := s.AllEpisodic(ctx)
	if err != nil {
		return nil, err
	}
	semantic, err := s.AllSemantic(ctx)
	if err != nil {
		return nil, err
	}
	books, err := s.AllLorebooks(ctx)
	if err != nil {
		return nil, err
	}
	working, err := s.AllWorkingMemory(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		WorkingMemory:  len(working),
		EpisodicMemory: len(episodic),
		SemanticMemory: len(semantic),
		Lorebooks:      len(books),
	}
	for _, lb := range books {
		st.LorebookEntries += len(lb.Entries)
	}
	return st, nil
}
