package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/events"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	promptModel "github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	authService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/auth"
	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	narrationService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/narration"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

type offlineAnswers struct{}

func (offlineAnswers) Answer(context.Context, []chat.Message, chat.Language) (*chat.Answer, error) {
	return nil, errors.New("offline")
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	hub := events.NewHub(64)

	provider := authService.NewProvider(ctx, store)
	manager := chatService.NewManager(ctx, store, offlineAnswers{}, chatService.Options{Publisher: hub})
	manager.OnIdentityChanged(ctx, provider.Current())
	provider.Subscribe(func(ctx context.Context, id identity.Identity) {
		manager.OnIdentityChanged(ctx, id)
	})

	return NewRouter(Dependencies{
		Manager:      manager,
		Auth:         provider,
		Narrator:     narrationService.NewNarrator(events.NewPlayer(hub), hub),
		Hub:          hub,
		Prompts:      promptModel.NewMemoryStore(promptModel.SeedTopics(), promptModel.SeedStarters()),
		GuestLimit:   10,
		StarterCount: 3,
	})
}

func call(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func state(t *testing.T, r http.Handler) chat.Session {
	t.Helper()
	resp := call(t, r, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var session chat.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}

func TestRouterIdentitySwitchesConversation(t *testing.T) {
	r := newTestRouter(t)

	require.Equal(t, http.StatusOK, call(t, r, http.MethodPost, "/api/messages", map[string]string{"text": "guest asks"}).Code)
	assert.Equal(t, identity.GuestKey, state(t, r).Key)
	assert.Len(t, state(t, r).Messages, 2)

	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/api/auth/signup", map[string]string{"username": "Arjuna"}).Code)
	session := state(t, r)
	assert.Equal(t, "messages_Arjuna", session.Key)
	assert.Empty(t, session.Messages)

	require.Equal(t, http.StatusNoContent, call(t, r, http.MethodPost, "/api/auth/logout", nil).Code)
	session = state(t, r)
	assert.Equal(t, identity.GuestKey, session.Key)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, chatService.FallbackText, session.Messages[1].Text)
}

func TestRouterServesEveryArea(t *testing.T) {
	r := newTestRouter(t)

	for _, target := range []string{"/healthz", "/api/topics", "/api/suggestions", "/api/language", "/api/narration", "/api/auth/me", "/api/messages"} {
		resp := call(t, r, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, resp.Code, target)
	}
}
