package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	chatservice "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

type stubAnswers struct {
	err error
}

func (s stubAnswers) Answer(context.Context, []chat.Message, chat.Language) (*chat.Answer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &chat.Answer{
		ShortTeaching:      "Your right is to action alone.",
		ScriptureReference: "Bhagavad Gita 2.47",
		ScripturePassage:   "karmaṇy evādhikāras te",
		RelatableExample:   "A farmer tends the field and accepts the weather.",
		ActionableSteps:    []string{"Plan", "Act", "Release"},
	}, nil
}

func setupRouter(t *testing.T, id identity.Identity, opts Options, answers chatservice.AnswerClient) (*chi.Mux, *chatservice.Manager) {
	t.Helper()
	manager := chatservice.NewManager(context.Background(), storage.NewMemoryStore(), answers, chatservice.Options{})
	manager.OnIdentityChanged(context.Background(), id)

	handler := New(manager, prompt.NewMemoryStore(prompt.SeedTopics(), prompt.SeedStarters()), opts)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, manager
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSendMessage(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "How do I find peace?"})
	require.Equal(t, http.StatusOK, resp.Code)

	var reply chat.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, chat.RoleModel, reply.Role)
	require.NotNil(t, reply.Answer)
	assert.Equal(t, "Bhagavad Gita 2.47", reply.Answer.ScriptureReference)
	assert.Len(t, manager.Messages(), 2)
}

func TestSendMessageFallback(t *testing.T) {
	r, _ := setupRouter(t, identity.Guest(), Options{}, stubAnswers{err: errors.New("unavailable")})

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "What is karma?"})
	require.Equal(t, http.StatusOK, resp.Code)

	var reply chat.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, chatservice.FallbackText, reply.Text)
}

func TestSendEmptyMessage(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, manager.Messages())

	resp = do(t, r, http.MethodPost, "/messages", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGuestLimit(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{GuestLimit: 1}, stubAnswers{})

	resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "first"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodPost, "/messages", map[string]string{"text": "second"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), "sign up or log in")
	assert.Len(t, manager.Messages(), 2)

	resp = do(t, r, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var state struct {
		GuestQuota GuestQuota `json:"guestQuota"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.True(t, state.GuestQuota.Reached)
	assert.Equal(t, 1, state.GuestQuota.Used)
}

func TestSignedInUserHasNoLimit(t *testing.T) {
	user := identity.ForUser(identity.User{ID: "1", Username: "Arjuna"})
	r, _ := setupRouter(t, user, Options{GuestLimit: 1}, stubAnswers{})

	for _, text := range []string{"one", "two"} {
		resp := do(t, r, http.MethodPost, "/messages", map[string]string{"text": text})
		require.Equal(t, http.StatusOK, resp.Code)
	}
}

func TestSendTopic(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})

	resp := do(t, r, http.MethodPost, "/messages/topic", map[string]string{"topic": "karma"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "What guidance can scripture offer me about karma?", manager.Messages()[0].Text)

	resp = do(t, r, http.MethodPost, "/messages/topic", map[string]string{"topic": "astrology"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSavedFilterAndToggle(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)
	answerID := manager.Messages()[1].ID

	resp := do(t, r, http.MethodPost, "/messages/"+answerID+"/save", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodGet, "/messages?saved=true", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var saved []chat.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	require.Len(t, saved, 1)
	assert.Equal(t, answerID, saved[0].ID)

	resp = do(t, r, http.MethodPost, "/messages/missing/save", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeleteRequiresAccount(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)
	id := manager.Messages()[0].ID

	resp := do(t, r, http.MethodDelete, "/messages/"+id, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	manager.OnIdentityChanged(context.Background(), identity.ForUser(identity.User{ID: "1", Username: "Arjuna"}))
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)
	id = manager.Messages()[0].ID

	resp = do(t, r, http.MethodDelete, "/messages/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Len(t, manager.Messages(), 1)
}

func TestClearHistory(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)

	resp := do(t, r, http.MethodDelete, "/messages", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, manager.Messages())
}

func TestShare(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)
	messages := manager.Messages()

	resp := do(t, r, http.MethodGet, "/messages/"+messages[1].ID+"/share?steps=false", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var share shareResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&share))
	assert.Contains(t, share.Text, "Wisdom from Sanatani Gyan (Bhagavad Gita 2.47):")
	assert.Contains(t, share.Text, "Example: A farmer")
	assert.NotContains(t, share.Text, "Steps:")

	u, err := url.Parse(share.TweetURL)
	require.NoError(t, err)
	assert.Equal(t, share.Tweet, u.Query().Get("text"))

	resp = do(t, r, http.MethodGet, "/messages/"+messages[0].ID+"/share", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestSuggestionsAndActivity(t *testing.T) {
	r, _ := setupRouter(t, identity.Guest(), Options{StarterCount: 2}, stubAnswers{})

	resp := do(t, r, http.MethodGet, "/suggestions", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body suggestionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Visible)
	assert.Len(t, body.Starters, 2)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/messages", map[string]string{"text": "q"}).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/activity", nil).Code)

	resp = do(t, r, http.MethodGet, "/suggestions", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Visible)
	assert.Empty(t, body.Starters)
}

func TestLanguage(t *testing.T) {
	r, manager := setupRouter(t, identity.Guest(), Options{}, stubAnswers{})

	resp := do(t, r, http.MethodPut, "/language", map[string]string{"language": "hindi"})
	require.Equal(t, http.StatusOK, resp.Code)
	var body languageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, chat.LanguageHindi, body.Language)
	assert.Equal(t, "हि", body.ShortLabel)
	assert.Equal(t, chat.LanguageHindi, manager.Language())

	resp = do(t, r, http.MethodPut, "/language", map[string]string{"language": "Klingon"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
