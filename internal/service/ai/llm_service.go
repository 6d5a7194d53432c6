package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
)

var (
	ErrNoQuestion    = errors.New("conversation must end with a user message")
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Service generates structured scripture guidance through the configured chat model.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	prompts *GuidancePromptManager
}

// NewService compiles the guidance chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile guidance chain: %w", err)
	}

	return &Service{
		chain:   runnable,
		prompts: NewGuidancePromptManager(),
	}, nil
}

// Answer asks the model about the last user message in history, using the earlier
// turns as context. Any response that fails validation is reported as an error.
func (s *Service) Answer(ctx context.Context, history []chat.Message, lang chat.Language) (*chat.Answer, error) {
	if len(history) == 0 || history[len(history)-1].Role != chat.RoleUser {
		return nil, ErrNoQuestion
	}

	input := map[string]any{
		"system":  s.prompts.BuildSystemPrompt(lang),
		"history": buildHistoryMessages(history[:len(history)-1]),
		"query":   history[len(history)-1].Text,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run guidance chain: %w", err)
	}
	if response == nil {
		return nil, ErrEmptyResponse
	}

	answer, err := ParseAnswer(response.Content)
	if err != nil {
		slog.Warn("model response rejected", "language", lang, "length", len(response.Content), "error", err)
		return nil, err
	}

	slog.Debug("generated guidance", "language", lang, "reference", answer.ScriptureReference)
	return answer, nil
}

// buildHistoryMessages replays prior turns. Model turns with an answer are sent
// back as the JSON the model produced; fallback turns are sent as their text.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleModel:
			content := msg.Text
			if msg.Answer != nil {
				if raw, err := json.Marshal(msg.Answer); err == nil {
					content = string(raw)
				}
			}
			history = append(history, schema.AssistantMessage(content, nil))
		}
	}
	return history
}

// ParseAnswer decodes a model response into a validated Answer. Markdown code
// fences and text around the JSON object are tolerated.
func ParseAnswer(content string) (*chat.Answer, error) {
	body := strings.TrimSpace(content)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", chat.ErrInvalidAnswer)
	}

	var answer chat.Answer
	if err := json.Unmarshal([]byte(body[start:end+1]), &answer); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidAnswer, err)
	}
	if err := answer.Validate(); err != nil {
		return nil, err
	}
	return &answer, nil
}
