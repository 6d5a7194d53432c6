package prompt

import (
	"fmt"
	"strings"
)

// Topic is a one-tap subject shown under the input box.
type Topic struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Question expands the topic into the message that gets sent.
func (t Topic) Question() string {
	return fmt.Sprintf("What guidance can scripture offer me about %s?", strings.ToLower(t.Label))
}

// Starter is a full conversation-starter prompt offered while the chat is idle.
type Starter struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SeedTopics provides the default quick topics.
func SeedTopics() []Topic {
	labels := []string{"Dharma", "Karma", "Relationships", "Grief", "Finance", "Decision-making", "Parenting", "Work"}
	topics := make([]Topic, 0, len(labels))
	for _, label := range labels {
		topics = append(topics, Topic{ID: strings.ToLower(label), Label: label})
	}
	return topics
}

// SeedStarters provides the default conversation starters.
func SeedStarters() []Starter {
	return []Starter{
		{ID: "detachment", Text: "How can I practice detachment in my daily life?"},
		{ID: "dharma-choices", Text: "What is the role of 'dharma' in making difficult choices?"},
		{ID: "peace", Text: "How can I find peace amidst chaos?"},
		{ID: "failure", Text: "What do the scriptures say about dealing with failure?"},
	}
}
