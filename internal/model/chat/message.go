package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ActionableStepCount is the exact number of steps every accepted Answer carries.
const ActionableStepCount = 3

// ErrInvalidAnswer reports an Answer that breaks the service contract.
var ErrInvalidAnswer = errors.New("answer does not match the guidance schema")

// Answer is the structured guidance payload returned by the model.
type Answer struct {
	ShortTeaching      string   `json:"shortTeaching"`
	ScriptureReference string   `json:"scriptureReference"`
	ScripturePassage   string   `json:"scripturePassage"`
	RelatableExample   string   `json:"relatableExample"`
	ActionableSteps    []string `json:"actionableSteps"`
}

// Validate rejects answers with missing fields or a step count other than three.
// Payloads are never truncated or padded.
func (a *Answer) Validate() error {
	if a == nil {
		return ErrInvalidAnswer
	}
	if strings.TrimSpace(a.ShortTeaching) == "" ||
		strings.TrimSpace(a.ScriptureReference) == "" ||
		strings.TrimSpace(a.ScripturePassage) == "" ||
		strings.TrimSpace(a.RelatableExample) == "" {
		return ErrInvalidAnswer
	}
	if len(a.ActionableSteps) != ActionableStepCount {
		return ErrInvalidAnswer
	}
	for _, step := range a.ActionableSteps {
		if strings.TrimSpace(step) == "" {
			return ErrInvalidAnswer
		}
	}
	return nil
}

// Message is one turn of the conversation log.
type Message struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	Text      string  `json:"text"`
	Answer    *Answer `json:"answer,omitempty"`
	Timestamp string  `json:"timestamp"`
	IsSaved   bool    `json:"isSaved,omitempty"`
}

// NewUserMessage stamps a user turn with a fresh id and the current time.
func NewUserMessage(text string, now time.Time) Message {
	return Message{
		ID:        newID(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: formatTimestamp(now),
	}
}

// NewAnswerMessage builds a model turn carrying a structured answer and no text.
func NewAnswerMessage(answer Answer, now time.Time) Message {
	steps := append([]string(nil), answer.ActionableSteps...)
	answer.ActionableSteps = steps
	return Message{
		ID:        newID(),
		Role:      RoleModel,
		Answer:    &answer,
		Timestamp: formatTimestamp(now),
	}
}

// NewFallbackMessage builds a model turn that only carries display text.
func NewFallbackMessage(text string, now time.Time) Message {
	return Message{
		ID:        newID(),
		Role:      RoleModel,
		Text:      text,
		Timestamp: formatTimestamp(now),
	}
}

// newID uses time-ordered UUIDs so ids sort in creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
