package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

const (
	usersKey       = "users"
	currentUserKey = "currentUser"
)

var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrUsernameTaken = errors.New("username already taken")
	ErrUnknownUser   = errors.New("user not found")
)

// Result is the outcome of a login or signup. A failed attempt is an expected
// outcome, not an error: Reason explains it to the user.
type Result struct {
	OK     bool           `json:"ok"`
	Reason string         `json:"reason,omitempty"`
	User   *identity.User `json:"user,omitempty"`
}

// Listener is notified after the current identity changes.
type Listener func(ctx context.Context, id identity.Identity)

// Provider keeps the registered users and the signed-in identity in the
// key-value store so both survive restarts.
type Provider struct {
	mu        sync.Mutex
	store     storage.Store
	users     []identity.User
	current   *identity.User
	listeners []Listener
}

// NewProvider restores users and the current user from store. Unreadable
// documents are treated as empty.
func NewProvider(ctx context.Context, store storage.Store) *Provider {
	p := &Provider{store: store}

	if raw, ok, err := store.Get(ctx, usersKey); err != nil {
		slog.Warn("failed to read users", "error", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &p.users); err != nil {
			slog.Warn("discarding malformed users document", "error", err)
			p.users = nil
		}
	}

	if raw, ok, err := store.Get(ctx, currentUserKey); err != nil {
		slog.Warn("failed to read current user", "error", err)
	} else if ok {
		var user *identity.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			slog.Warn("discarding malformed current user", "error", err)
		} else {
			p.current = user
		}
	}

	return p
}

// Subscribe registers fn for identity changes.
func (p *Provider) Subscribe(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Current returns the signed-in identity, or the guest.
func (p *Provider) Current() identity.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

// Signup registers a new username and signs it in. Usernames collide ignoring case.
func (p *Provider) Signup(ctx context.Context, username string) (Result, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return failure(ErrEmptyUsername), nil
	}

	p.mu.Lock()
	if _, ok := p.findLocked(username); ok {
		p.mu.Unlock()
		return failure(ErrUsernameTaken), nil
	}

	user := identity.User{ID: uuid.NewString(), Username: username}
	users := append(append([]identity.User(nil), p.users...), user)
	if err := p.writeJSON(ctx, usersKey, users); err != nil {
		p.mu.Unlock()
		return Result{}, fmt.Errorf("failed to store users: %w", err)
	}
	p.users = users
	id, err := p.setCurrentLocked(ctx, &user)
	p.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	slog.Info("user signed up", "username", username)
	p.notify(ctx, id)
	return Result{OK: true, User: &user}, nil
}

// Login signs in an existing username, matched ignoring case.
func (p *Provider) Login(ctx context.Context, username string) (Result, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return failure(ErrEmptyUsername), nil
	}

	p.mu.Lock()
	user, ok := p.findLocked(username)
	if !ok {
		p.mu.Unlock()
		return failure(ErrUnknownUser), nil
	}
	id, err := p.setCurrentLocked(ctx, &user)
	p.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	slog.Info("user logged in", "username", user.Username)
	p.notify(ctx, id)
	return Result{OK: true, User: &user}, nil
}

// Logout returns to the guest identity.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	id, err := p.setCurrentLocked(ctx, nil)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.notify(ctx, id)
	return nil
}

func (p *Provider) currentLocked() identity.Identity {
	if p.current == nil {
		return identity.Guest()
	}
	return identity.ForUser(*p.current)
}

func (p *Provider) findLocked(username string) (identity.User, bool) {
	for _, u := range p.users {
		if identity.SameUsername(u.Username, username) {
			return u, true
		}
	}
	return identity.User{}, false
}

func (p *Provider) setCurrentLocked(ctx context.Context, user *identity.User) (identity.Identity, error) {
	if err := p.writeJSON(ctx, currentUserKey, user); err != nil {
		return identity.Identity{}, fmt.Errorf("failed to store current user: %w", err)
	}
	p.current = user
	return p.currentLocked(), nil
}

func (p *Provider) writeJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, key, string(raw))
}

// notify runs listeners outside the lock so they may call back into the provider.
func (p *Provider) notify(ctx context.Context, id identity.Identity) {
	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, id)
	}
}

func failure(err error) Result {
	return Result{OK: false, Reason: reasonFor(err)}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrEmptyUsername):
		return "Username cannot be empty."
	case errors.Is(err, ErrUsernameTaken):
		return "This username is already taken. Please choose another."
	case errors.Is(err, ErrUnknownUser):
		return "User not found. Please check the username or sign up."
	default:
		return err.Error()
	}
}
