package ai

import (
	"context"
	"errors"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
)

// ErrUnavailable is returned when no chat model is configured.
var ErrUnavailable = errors.New("guidance model is not configured")

// Unavailable answers every request with ErrUnavailable so callers fall back gracefully.
type Unavailable struct{}

func (Unavailable) Answer(context.Context, []chat.Message, chat.Language) (*chat.Answer, error) {
	return nil, ErrUnavailable
}
