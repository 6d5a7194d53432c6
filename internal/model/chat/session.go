package chat

import "github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"

// Session is a point-in-time view of the active conversation.
type Session struct {
	Key                string            `json:"key"`
	Identity           identity.Identity `json:"identity"`
	Messages           []Message         `json:"messages"`
	InFlight           bool              `json:"inFlight"`
	SuggestionsVisible bool              `json:"suggestionsVisible"`
	Language           Language          `json:"language"`
}

// UserMessageCount counts the turns the user has sent.
func (s Session) UserMessageCount() int {
	count := 0
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			count++
		}
	}
	return count
}
