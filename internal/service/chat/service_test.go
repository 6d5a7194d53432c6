package chat_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	chat "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

type answerFunc func(ctx context.Context, history []model.Message, lang model.Language) (*model.Answer, error)

func (f answerFunc) Answer(ctx context.Context, history []model.Message, lang model.Language) (*model.Answer, error) {
	return f(ctx, history, lang)
}

func validAnswer() *model.Answer {
	return &model.Answer{
		ShortTeaching:      "Act without attachment to the fruits of action.",
		ScriptureReference: "Bhagavad Gita 2.47",
		ScripturePassage:   "karmaṇy evādhikāras te mā phaleṣu kadācana",
		RelatableExample:   "A student who studies for the love of learning stays calm before results.",
		ActionableSteps:    []string{"Pick one duty today.", "Do it fully.", "Let go of the outcome."},
	}
}

func staticAnswers(answer *model.Answer, err error) chat.AnswerClient {
	return answerFunc(func(context.Context, []model.Message, model.Language) (*model.Answer, error) {
		return answer, err
	})
}

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) chat.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.deadline.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, _ any) {
	p.mu.Lock()
	p.events = append(p.events, eventType)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func arjuna() identity.Identity {
	return identity.ForUser(identity.User{ID: "u-1", Username: "Arjuna"})
}

func newManager(t *testing.T, store storage.Store, answers chat.AnswerClient) (*chat.Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m := chat.NewManager(context.Background(), store, answers, chat.Options{Clock: clock})
	return m, clock
}

func storedLog(t *testing.T, store storage.Store, key string) []model.Message {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "nothing stored under %s", key)
	messages, err := chat.DecodeLog(raw)
	require.NoError(t, err)
	return messages
}

func TestSendMessageAppendsAnswer(t *testing.T) {
	store := storage.NewMemoryStore()
	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())

	reply, err := m.SendMessage(ctx, "  How do I deal with stress at work?  ")
	require.NoError(t, err)

	messages := m.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "How do I deal with stress at work?", messages[0].Text)
	assert.Equal(t, model.RoleModel, messages[1].Role)
	require.NotNil(t, messages[1].Answer)
	assert.Len(t, messages[1].Answer.ActionableSteps, model.ActionableStepCount)
	assert.Equal(t, reply.ID, messages[1].ID)
	assert.False(t, m.InFlight())

	assert.Equal(t, messages, storedLog(t, store, identity.GuestKey))
}

func TestSendMessageFailuresAppendFallback(t *testing.T) {
	twoSteps := validAnswer()
	twoSteps.ActionableSteps = twoSteps.ActionableSteps[:2]
	fourSteps := validAnswer()
	fourSteps.ActionableSteps = append(fourSteps.ActionableSteps, "One more.")

	cases := map[string]chat.AnswerClient{
		"error":      staticAnswers(nil, errors.New("network down")),
		"nil answer": staticAnswers(nil, nil),
		"two steps":  staticAnswers(twoSteps, nil),
		"four steps": staticAnswers(fourSteps, nil),
		"panic": answerFunc(func(context.Context, []model.Message, model.Language) (*model.Answer, error) {
			panic("boom")
		}),
	}

	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			m, _ := newManager(t, storage.NewMemoryStore(), client)
			ctx := context.Background()
			m.OnIdentityChanged(ctx, identity.Guest())

			reply, err := m.SendMessage(ctx, "What is dharma?")
			require.NoError(t, err)

			messages := m.Messages()
			require.Len(t, messages, 2)
			assert.Equal(t, model.RoleModel, reply.Role)
			assert.Nil(t, reply.Answer)
			assert.Equal(t, chat.FallbackText, reply.Text)
			assert.False(t, m.InFlight())
		})
	}
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	called := false
	client := answerFunc(func(context.Context, []model.Message, model.Language) (*model.Answer, error) {
		called = true
		return validAnswer(), nil
	})
	m, _ := newManager(t, storage.NewMemoryStore(), client)
	m.OnIdentityChanged(context.Background(), identity.Guest())

	_, err := m.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, chat.ErrEmptyText)
	assert.Empty(t, m.Messages())
	assert.False(t, called)
}

func TestSendMessagePassesHistoryAndLanguage(t *testing.T) {
	var gotHistory []model.Message
	var gotLang model.Language
	client := answerFunc(func(_ context.Context, history []model.Message, lang model.Language) (*model.Answer, error) {
		gotHistory = history
		gotLang = lang
		return validAnswer(), nil
	})
	m, _ := newManager(t, storage.NewMemoryStore(), client)
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())
	require.NoError(t, m.SetLanguage(ctx, model.LanguageHindi))

	_, err := m.SendMessage(ctx, "first")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "second")
	require.NoError(t, err)

	require.Len(t, gotHistory, 3)
	assert.Equal(t, "second", gotHistory[2].Text)
	assert.Equal(t, model.LanguageHindi, gotLang)
}

func TestConversationRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	first.OnIdentityChanged(ctx, arjuna())
	_, err := first.SendMessage(ctx, "What is dharma?")
	require.NoError(t, err)
	saved := first.Messages()[1]
	_, err = first.ToggleSaved(ctx, saved.ID)
	require.NoError(t, err)

	second, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	second.OnIdentityChanged(ctx, arjuna())

	assert.Equal(t, first.Messages(), second.Messages())
	assert.True(t, second.Messages()[1].IsSaved)
}

func TestIdentityIsolation(t *testing.T) {
	store := storage.NewMemoryStore()
	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	ctx := context.Background()

	m.OnIdentityChanged(ctx, identity.Guest())
	_, err := m.SendMessage(ctx, "guest question")
	require.NoError(t, err)
	guestLog := m.Messages()

	m.OnIdentityChanged(ctx, arjuna())
	assert.Empty(t, m.Messages())
	_, err = m.SendMessage(ctx, "arjuna question")
	require.NoError(t, err)

	m.OnIdentityChanged(ctx, identity.Guest())
	assert.Equal(t, guestLog, m.Messages())
	assert.Len(t, storedLog(t, store, "messages_Arjuna"), 2)
	assert.Equal(t, "arjuna question", storedLog(t, store, "messages_Arjuna")[0].Text)
}

func TestSameKeyIsNoop(t *testing.T) {
	pub := &recordingPublisher{}
	m := chat.NewManager(context.Background(), storage.NewMemoryStore(), staticAnswers(validAnswer(), nil),
		chat.Options{Clock: newFakeClock(), Publisher: pub})
	ctx := context.Background()

	m.OnIdentityChanged(ctx, identity.Guest())
	m.OnIdentityChanged(ctx, identity.Guest())
	assert.Equal(t, 1, pub.count(chat.EventIdentity))
}

func TestMalformedStoredLogLoadsEmpty(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, identity.GuestKey, "{not json"))

	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	m.OnIdentityChanged(ctx, identity.Guest())

	assert.Empty(t, m.Messages())
	assert.True(t, m.SuggestionsVisible())
}

func TestClearHistoryPersistsEmptyArray(t *testing.T) {
	store := storage.NewMemoryStore()
	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())

	for _, q := range []string{"one", "two", "three"} {
		_, err := m.SendMessage(ctx, q)
		require.NoError(t, err)
	}
	first := m.Messages()[0]
	require.NoError(t, m.DeleteMessage(ctx, first.ID))
	require.Len(t, m.Messages(), 5)

	m.ClearHistory(ctx)

	raw, ok, err := store.Get(ctx, identity.GuestKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", raw)
	assert.Empty(t, m.Messages())
	assert.True(t, m.SuggestionsVisible())
}

func TestUnknownMessageID(t *testing.T) {
	m, _ := newManager(t, storage.NewMemoryStore(), staticAnswers(validAnswer(), nil))
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())

	_, err := m.ToggleSaved(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
	assert.ErrorIs(t, m.DeleteMessage(ctx, "missing"), chat.ErrMessageNotFound)
	_, err = m.Message("missing")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
}

func TestSuggestionsFollowIdleTimer(t *testing.T) {
	m, clock := newManager(t, storage.NewMemoryStore(), staticAnswers(validAnswer(), nil))
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())
	assert.True(t, m.SuggestionsVisible())

	_, err := m.SendMessage(ctx, "What is dharma?")
	require.NoError(t, err)
	assert.False(t, m.SuggestionsVisible())

	clock.Advance(15 * time.Second)
	m.RecordActivity()

	clock.Advance(20 * time.Second)
	assert.False(t, m.SuggestionsVisible(), "timer must restart on activity")

	clock.Advance(10 * time.Second)
	assert.True(t, m.SuggestionsVisible())
}

func TestLoadingNonEmptyLogArmsTimer(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	seed, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	seed.OnIdentityChanged(ctx, arjuna())
	_, err := seed.SendMessage(ctx, "What is dharma?")
	require.NoError(t, err)

	m, clock := newManager(t, store, staticAnswers(validAnswer(), nil))
	m.OnIdentityChanged(ctx, arjuna())
	assert.False(t, m.SuggestionsVisible())

	clock.Advance(chat.DefaultIdleDelay)
	assert.True(t, m.SuggestionsVisible())
}

func TestLanguagePersists(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	assert.Equal(t, model.LanguageEnglish, m.Language())

	require.NoError(t, m.SetLanguage(ctx, model.LanguageHinglish))

	again, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	assert.Equal(t, model.LanguageHinglish, again.Language())
}

// gatedStore blocks reads of one key until released.
type gatedStore struct {
	*storage.MemoryStore
	key     string
	reached chan struct{}
	release chan struct{}

	mu     sync.Mutex
	writes []string
}

func newGatedStore(key string) *gatedStore {
	return &gatedStore{
		MemoryStore: storage.NewMemoryStore(),
		key:         key,
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == s.key {
		close(s.reached)
		<-s.release
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *gatedStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.writes = append(s.writes, key)
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *gatedStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestNoPersistWhileLoadPending(t *testing.T) {
	store := newGatedStore("messages_Arjuna")
	ctx := context.Background()

	prior := []model.Message{model.NewUserMessage("earlier question", time.Now())}
	doc, err := chat.EncodeLog(prior)
	require.NoError(t, err)
	require.NoError(t, store.MemoryStore.Set(ctx, "messages_Arjuna", doc))

	m, _ := newManager(t, store, staticAnswers(validAnswer(), nil))
	m.OnIdentityChanged(ctx, identity.Guest())
	_, err = m.SendMessage(ctx, "guest question")
	require.NoError(t, err)
	before := store.writeCount()

	done := make(chan struct{})
	go func() {
		m.OnIdentityChanged(ctx, arjuna())
		close(done)
	}()
	<-store.reached

	// nothing may be written under the new key until its load lands
	m.ClearHistory(ctx)
	assert.Equal(t, before, store.writeCount())

	close(store.release)
	<-done

	assert.Equal(t, prior, m.Messages())
	assert.Equal(t, prior, storedLog(t, store.MemoryStore, "messages_Arjuna"))
	assert.Len(t, storedLog(t, store.MemoryStore, identity.GuestKey), 2)
}

func TestReplyStaysWithOriginatingIdentity(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := answerFunc(func(context.Context, []model.Message, model.Language) (*model.Answer, error) {
		close(entered)
		<-release
		return validAnswer(), nil
	})

	store := storage.NewMemoryStore()
	m, _ := newManager(t, store, client)
	ctx := context.Background()
	m.OnIdentityChanged(ctx, identity.Guest())

	done := make(chan struct{})
	go func() {
		_, err := m.SendMessage(ctx, "guest question")
		assert.NoError(t, err)
		close(done)
	}()
	<-entered
	assert.True(t, m.InFlight())

	m.OnIdentityChanged(ctx, arjuna())
	close(release)
	<-done

	assert.Empty(t, m.Messages())
	assert.False(t, m.InFlight())
	guestLog := storedLog(t, store, identity.GuestKey)
	require.Len(t, guestLog, 2)
	assert.NotNil(t, guestLog[1].Answer)
	_, ok, err := store.Get(ctx, "messages_Arjuna")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendWaitsForPendingLoad(t *testing.T) {
	store := newGatedStore("messages_Arjuna")
	ctx := context.Background()

	prior := []model.Message{model.NewUserMessage("arjuna earlier", time.Now())}
	doc, err := chat.EncodeLog(prior)
	require.NoError(t, err)
	require.NoError(t, store.MemoryStore.Set(ctx, "messages_Arjuna", doc))

	var mu sync.Mutex
	var histories [][]string
	client := answerFunc(func(_ context.Context, history []model.Message, _ model.Language) (*model.Answer, error) {
		texts := make([]string, 0, len(history))
		for _, msg := range history {
			texts = append(texts, msg.Text)
		}
		mu.Lock()
		histories = append(histories, texts)
		mu.Unlock()
		return validAnswer(), nil
	})

	m, _ := newManager(t, store, client)
	m.OnIdentityChanged(ctx, identity.Guest())
	_, err = m.SendMessage(ctx, "guest secret")
	require.NoError(t, err)

	loaded := make(chan struct{})
	go func() {
		m.OnIdentityChanged(ctx, arjuna())
		close(loaded)
	}()
	<-store.reached

	session := m.Snapshot()
	assert.Equal(t, "messages_Arjuna", session.Key)
	assert.Empty(t, session.Messages)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.SendMessage(cancelled, "never sent")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.ToggleSaved(cancelled, prior[0].ID)
	assert.ErrorIs(t, err, context.Canceled)

	sent := make(chan struct{})
	go func() {
		_, err := m.SendMessage(ctx, "arjuna new question")
		assert.NoError(t, err)
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send completed before the conversation finished loading")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	<-loaded
	<-sent

	mu.Lock()
	require.Len(t, histories, 2)
	assert.Equal(t, []string{"arjuna earlier", "arjuna new question"}, histories[1])
	mu.Unlock()

	messages := m.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "arjuna earlier", messages[0].Text)
	assert.Equal(t, "arjuna new question", messages[1].Text)
	assert.NotNil(t, messages[2].Answer)
	assert.Equal(t, messages, storedLog(t, store.MemoryStore, "messages_Arjuna"))
	assert.Len(t, storedLog(t, store.MemoryStore, identity.GuestKey), 2)
}

func TestCallerCancellationDoesNotAbortAnswer(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := answerFunc(func(ctx context.Context, _ []model.Message, _ model.Language) (*model.Answer, error) {
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return validAnswer(), nil
	})

	store := storage.NewMemoryStore()
	m, _ := newManager(t, store, client)
	m.OnIdentityChanged(context.Background(), identity.Guest())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		reply model.Message
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := m.SendMessage(ctx, "Will this still be answered?")
		done <- result{reply, err}
	}()

	<-entered
	cancel()
	close(release)
	res := <-done

	require.NoError(t, res.err)
	require.NotNil(t, res.reply.Answer)
	guestLog := storedLog(t, store, identity.GuestKey)
	require.Len(t, guestLog, 2)
	assert.NotNil(t, guestLog[1].Answer)
}

func TestDecodeLogRejectsBadEntries(t *testing.T) {
	_, err := chat.DecodeLog(`[{"id":"","role":"user","text":"x","timestamp":""}]`)
	assert.Error(t, err)
	_, err = chat.DecodeLog(`[{"id":"a","role":"bot","text":"x","timestamp":""}]`)
	assert.Error(t, err)

	messages, err := chat.DecodeLog(`[]`)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
