package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/observability"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

// FallbackText is shown in place of an answer when the model call fails.
const FallbackText = "I'm sorry, I encountered an error while seeking wisdom. Please try again."

// LanguageKey stores the preferred answer language.
const LanguageKey = "language"

// DefaultIdleDelay is how long the log must be quiet before suggestions reappear.
const DefaultIdleDelay = 30 * time.Second

var (
	ErrEmptyText       = errors.New("message text is empty")
	ErrMessageNotFound = errors.New("message not found")
)

// AnswerClient produces guidance for the last user turn of history.
type AnswerClient interface {
	Answer(ctx context.Context, history []chat.Message, lang chat.Language) (*chat.Answer, error)
}

// Publisher receives session events. Publish must not block.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	IdleDelay       time.Duration
	Clock           Clock
	Publisher       Publisher
	DefaultLanguage chat.Language
}

// Manager owns the message log of the active identity. It persists the log
// after every mutation, sequences requests to the answer client and drives
// suggestion visibility.
type Manager struct {
	mu        sync.Mutex
	store     storage.Store
	answers   AnswerClient
	publisher Publisher
	clock     Clock
	idleDelay time.Duration

	identity  identity.Identity
	activeKey string
	// loadedKey equals activeKey only once the log for activeKey has been read.
	loadedKey string
	// loadDone is closed when the pending load finishes or is superseded.
	loadDone  chan struct{}
	messages  []chat.Message
	inFlight  int
	language  chat.Language

	suggestionsVisible bool
	idleTimer          Timer
	idleGen            uint64
}

// NewManager creates a Manager with no identity bound yet. Call OnIdentityChanged
// before use. The stored language preference is restored if present.
func NewManager(ctx context.Context, store storage.Store, answers AnswerClient, opts Options) *Manager {
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = DefaultIdleDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = chat.LanguageEnglish
	}

	m := &Manager{
		store:              store,
		answers:            answers,
		publisher:          opts.Publisher,
		clock:              opts.Clock,
		idleDelay:          opts.IdleDelay,
		language:           opts.DefaultLanguage,
		suggestionsVisible: true,
	}
	m.language = m.loadLanguage(ctx, opts.DefaultLanguage)
	return m
}

// OnIdentityChanged binds the manager to id's storage key and loads its log.
// Switching to the key that is already active is a no-op.
func (m *Manager) OnIdentityChanged(ctx context.Context, id identity.Identity) {
	key := id.StorageKey()

	m.mu.Lock()
	if key == m.activeKey {
		m.identity = id
		m.mu.Unlock()
		return
	}
	if m.loadedKey != m.activeKey && m.loadDone != nil {
		close(m.loadDone)
	}
	m.identity = id
	m.activeKey = key
	m.loadDone = make(chan struct{})
	m.messages = nil
	m.cancelIdleLocked()
	m.publish(EventIdentity, IdentityEvent{Identity: id, Key: key})
	m.mu.Unlock()

	loaded := m.readLog(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKey != key {
		// a newer switch superseded this load
		return
	}
	m.messages = loaded
	m.loadedKey = key
	close(m.loadDone)
	observability.WithFields("key", key).Info("conversation loaded", "messages", len(loaded))
	m.publishMessagesLocked()
	m.resetIdleLocked()
}

// SendMessage appends the user turn, asks the answer client and appends exactly
// one model turn: the answer on success, FallbackText otherwise. The returned
// message is that model turn.
//
// Overlapping calls are not serialized; replies are appended in completion order.
// A send issued while the active log is still loading waits for the load. Once
// the user turn is appended, cancelling ctx no longer affects the request.
func (m *Manager) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyText
	}

	detached := context.WithoutCancel(ctx)

	m.mu.Lock()
	if err := m.waitLoadedLocked(ctx); err != nil {
		m.mu.Unlock()
		return chat.Message{}, err
	}
	userMsg := chat.NewUserMessage(text, m.clock.Now())
	m.messages = append(m.messages, userMsg)
	m.persistLocked(detached)
	m.publishMessagesLocked()
	m.inFlight++
	m.publish(EventRequest, RequestEvent{InFlight: true})
	m.activityLocked()
	originKey := m.activeKey
	history := cloneMessages(m.messages)
	lang := m.language
	m.mu.Unlock()

	reply := m.requestAnswer(detached, history, lang)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKey == originKey {
		// switched away and back; the reload must land before appending
		_ = m.waitLoadedLocked(detached)
	}
	if m.activeKey == originKey {
		m.messages = append(m.messages, reply)
		m.persistLocked(detached)
		m.publishMessagesLocked()
	} else {
		// the identity changed while waiting; keep the reply with the
		// conversation that asked for it
		m.appendStoredLocked(detached, originKey, reply)
	}

	m.inFlight--
	m.publish(EventRequest, RequestEvent{InFlight: m.inFlight > 0})
	return reply, nil
}

// ToggleSaved flips the bookmark flag of a message.
func (m *Manager) ToggleSaved(ctx context.Context, id string) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.waitLoadedLocked(ctx); err != nil {
		return chat.Message{}, err
	}

	for i := range m.messages {
		if m.messages[i].ID != id {
			continue
		}
		m.messages[i].IsSaved = !m.messages[i].IsSaved
		m.persistLocked(ctx)
		m.publishMessagesLocked()
		return m.messages[i], nil
	}
	return chat.Message{}, ErrMessageNotFound
}

// DeleteMessage removes a single message from the log.
func (m *Manager) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.waitLoadedLocked(ctx); err != nil {
		return err
	}

	for i := range m.messages {
		if m.messages[i].ID != id {
			continue
		}
		m.messages = append(m.messages[:i:i], m.messages[i+1:]...)
		m.persistLocked(ctx)
		m.publishMessagesLocked()
		if len(m.messages) == 0 {
			m.resetIdleLocked()
		}
		return nil
	}
	return ErrMessageNotFound
}

// ClearHistory empties the log and stores an empty document under the active key.
func (m *Manager) ClearHistory(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = nil
	m.persistLocked(ctx)
	m.publishMessagesLocked()
	m.resetIdleLocked()
}

// Message returns a copy of the message with the given id.
func (m *Manager) Message(id string) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages {
		if msg.ID == id {
			return cloneMessage(msg), nil
		}
	}
	return chat.Message{}, ErrMessageNotFound
}

// Messages returns a copy of the log in display order.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessages(m.messages)
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() chat.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return chat.Session{
		Key:                m.activeKey,
		Identity:           m.identity,
		Messages:           cloneMessages(m.messages),
		InFlight:           m.inFlight > 0,
		SuggestionsVisible: m.suggestionsVisible,
		Language:           m.language,
	}
}

// InFlight reports whether an answer request is outstanding.
func (m *Manager) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// Language returns the language answers are requested in.
func (m *Manager) Language() chat.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

// SetLanguage changes and stores the answer language.
func (m *Manager) SetLanguage(ctx context.Context, lang chat.Language) error {
	raw, err := json.Marshal(string(lang))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, LanguageKey, string(raw)); err != nil {
		return fmt.Errorf("failed to store language: %w", err)
	}
	m.language = lang
	m.publish(EventLanguage, LanguageEvent{Language: lang})
	return nil
}

// requestAnswer turns every failure, including a panicking client, into the fallback turn.
func (m *Manager) requestAnswer(ctx context.Context, history []chat.Message, lang chat.Language) (reply chat.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("answer client panicked", "panic", r)
			reply = chat.NewFallbackMessage(FallbackText, m.clock.Now())
		}
	}()

	answer, err := m.answers.Answer(ctx, history, lang)
	if err == nil {
		err = answer.Validate()
	}
	if err != nil {
		slog.Warn("answer request failed", "language", lang, "error", err)
		return chat.NewFallbackMessage(FallbackText, m.clock.Now())
	}
	return chat.NewAnswerMessage(*answer, m.clock.Now())
}

// waitLoadedLocked blocks until the log for activeKey is loaded. m.mu is
// released while waiting and held again on return.
func (m *Manager) waitLoadedLocked(ctx context.Context) error {
	for m.loadedKey != m.activeKey {
		done := m.loadDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			m.mu.Lock()
			return ctx.Err()
		}
		m.mu.Lock()
	}
	return nil
}

// persistLocked writes the log under activeKey unless its load is still pending.
// Write failures are logged and dropped; the in-memory log stays authoritative.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.activeKey == "" || m.loadedKey != m.activeKey {
		observability.WithFields("key", m.activeKey).Debug("skipping persist while load is pending")
		return
	}
	m.writeLogLocked(ctx, m.activeKey, m.messages)
}

func (m *Manager) appendStoredLocked(ctx context.Context, key string, msg chat.Message) {
	stored := m.readLog(ctx, key)
	m.writeLogLocked(ctx, key, append(stored, msg))
}

func (m *Manager) writeLogLocked(ctx context.Context, key string, messages []chat.Message) {
	log := observability.WithFields("key", key)
	doc, err := EncodeLog(messages)
	if err != nil {
		log.Error("failed to encode conversation", "error", err)
		return
	}
	if err := m.store.Set(ctx, key, doc); err != nil {
		log.Error("failed to persist conversation", "error", err)
	}
}

// readLog loads the log stored under key. Missing, unreadable or malformed
// documents all yield an empty log.
func (m *Manager) readLog(ctx context.Context, key string) []chat.Message {
	log := observability.WithFields("key", key)
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		log.Warn("failed to read conversation", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	messages, err := DecodeLog(raw)
	if err != nil {
		log.Warn("discarding malformed conversation", "error", err)
		return nil
	}
	return messages
}

func (m *Manager) loadLanguage(ctx context.Context, fallback chat.Language) chat.Language {
	raw, ok, err := m.store.Get(ctx, LanguageKey)
	if err != nil || !ok {
		return fallback
	}
	var name string
	if err := json.Unmarshal([]byte(raw), &name); err != nil {
		return fallback
	}
	if lang, ok := chat.ParseLanguage(name); ok {
		return lang
	}
	return fallback
}

func (m *Manager) publishMessagesLocked() {
	m.publish(EventMessages, MessagesEvent{Key: m.activeKey, Messages: cloneMessages(m.messages)})
}

func (m *Manager) publish(eventType string, payload any) {
	if m.publisher != nil {
		m.publisher.Publish(eventType, payload)
	}
}

// EncodeLog serializes a log as a JSON array; an empty log encodes as [].
func EncodeLog(messages []chat.Message) (string, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeLog parses a stored log. Entries without an id or a known role are rejected.
func DecodeLog(raw string) ([]chat.Message, error) {
	var messages []chat.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, err
	}
	for i, msg := range messages {
		if msg.ID == "" {
			return nil, fmt.Errorf("message %d has no id", i)
		}
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleModel {
			return nil, fmt.Errorf("message %d has unknown role %q", i, msg.Role)
		}
	}
	return messages, nil
}

func cloneMessages(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		out[i] = cloneMessage(msg)
	}
	return out
}

func cloneMessage(msg chat.Message) chat.Message {
	if msg.Answer != nil {
		answer := *msg.Answer
		answer.ActionableSteps = append([]string(nil), answer.ActionableSteps...)
		msg.Answer = &answer
	}
	return msg
}
