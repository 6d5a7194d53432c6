package chat

import (
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
)

// Event types published by the Manager.
const (
	EventMessages    = "messages"
	EventRequest     = "request"
	EventSuggestions = "suggestions"
	EventIdentity    = "identity"
	EventLanguage    = "language"
)

// MessagesEvent carries the full log after a mutation.
type MessagesEvent struct {
	Key      string         `json:"key"`
	Messages []chat.Message `json:"messages"`
}

// RequestEvent reports whether an answer request is outstanding.
type RequestEvent struct {
	InFlight bool `json:"inFlight"`
}

// SuggestionsEvent toggles the conversation starters.
type SuggestionsEvent struct {
	Visible bool `json:"visible"`
}

// IdentityEvent announces the storage key the session switched to.
type IdentityEvent struct {
	Identity identity.Identity `json:"identity"`
	Key      string            `json:"key"`
}

// LanguageEvent announces a new answer language.
type LanguageEvent struct {
	Language chat.Language `json:"language"`
}
