package prompt

import (
	"math/rand"
	"strings"
)

// Store exposes the prompt catalog to handlers.
type Store interface {
	Topics() []Topic
	FindTopic(id string) (Topic, bool)
	Starters(n int) []Starter
}

// MemoryStore implements Store with fixed in-memory slices.
type MemoryStore struct {
	topics   []Topic
	starters []Starter
	shuffle  func(n int, swap func(i, j int))
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied catalog.
func NewMemoryStore(topics []Topic, starters []Starter) *MemoryStore {
	return &MemoryStore{
		topics:   append([]Topic(nil), topics...),
		starters: append([]Starter(nil), starters...),
		shuffle:  rand.Shuffle,
	}
}

// Topics returns the quick topics in display order.
func (s *MemoryStore) Topics() []Topic {
	return append([]Topic(nil), s.topics...)
}

// FindTopic looks up a topic by id or label, ignoring case.
func (s *MemoryStore) FindTopic(id string) (Topic, bool) {
	for _, item := range s.topics {
		if strings.EqualFold(item.ID, id) || strings.EqualFold(item.Label, id) {
			return item, true
		}
	}
	return Topic{}, false
}

// Starters returns a random subset of at most n starters.
func (s *MemoryStore) Starters(n int) []Starter {
	picked := append([]Starter(nil), s.starters...)
	s.shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	if n >= 0 && n < len(picked) {
		picked = picked[:n]
	}
	return picked
}
