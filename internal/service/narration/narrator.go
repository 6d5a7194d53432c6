package narration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
)

// State is the playback state of the narrator.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// EventNarration is published whenever the narrator status changes.
const EventNarration = "narration"

var (
	ErrNoAnswer    = errors.New("message has no answer to narrate")
	ErrInvalidRate = errors.New("unsupported narration rate")
)

// Rates lists the supported playback rates.
func Rates() []float64 {
	return []float64{0.75, 1, 1.25}
}

// Utterance is one narration handed to the player.
type Utterance struct {
	ID        string  `json:"id"`
	MessageID string  `json:"messageId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Rate      float64 `json:"rate"`
}

// Player performs the actual speech. Implementations must not block.
type Player interface {
	Speak(u Utterance)
	Pause(id string)
	Resume(id string)
	Cancel(id string)
	SetRate(id string, rate float64)
}

// Publisher receives narrator status changes.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Status is a snapshot of the narrator.
type Status struct {
	State       State   `json:"state"`
	Rate        float64 `json:"rate"`
	MessageID   string  `json:"messageId,omitempty"`
	UtteranceID string  `json:"utteranceId,omitempty"`
}

// Narrator owns the single active utterance. Starting a new one cancels the old.
type Narrator struct {
	mu        sync.Mutex
	player    Player
	publisher Publisher
	utterance *Utterance
	state     State
	rate      float64
}

// NewNarrator returns a stopped narrator at normal speed. publisher may be nil.
func NewNarrator(player Player, publisher Publisher) *Narrator {
	return &Narrator{
		player:    player,
		publisher: publisher,
		state:     StateStopped,
		rate:      1,
	}
}

// Play narrates msg in lang. Playing the message that is currently paused resumes it.
func (n *Narrator) Play(msg chat.Message, lang chat.Language) (Status, error) {
	if msg.Answer == nil {
		return Status{}, ErrNoAnswer
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StatePaused && n.utterance != nil && n.utterance.MessageID == msg.ID {
		n.player.Resume(n.utterance.ID)
		n.state = StatePlaying
		return n.changedLocked(), nil
	}

	if n.utterance != nil {
		n.player.Cancel(n.utterance.ID)
	}

	u := Utterance{
		ID:        uuid.NewString(),
		MessageID: msg.ID,
		Text:      Text(*msg.Answer),
		Voice:     VoiceLanguage(lang),
		Rate:      n.rate,
	}
	n.utterance = &u
	n.player.Speak(u)
	n.state = StatePlaying
	slog.Debug("narration started", "message_id", msg.ID, "voice", u.Voice)
	return n.changedLocked(), nil
}

// Pause holds the active utterance.
func (n *Narrator) Pause() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StatePlaying || n.utterance == nil {
		return n.statusLocked()
	}
	n.player.Pause(n.utterance.ID)
	n.state = StatePaused
	return n.changedLocked()
}

// Resume continues a paused utterance.
func (n *Narrator) Resume() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StatePaused || n.utterance == nil {
		return n.statusLocked()
	}
	n.player.Resume(n.utterance.ID)
	n.state = StatePlaying
	return n.changedLocked()
}

// Stop cancels the active utterance and drops it.
func (n *Narrator) Stop() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.utterance == nil {
		return n.statusLocked()
	}
	n.player.Cancel(n.utterance.ID)
	n.utterance = nil
	n.state = StateStopped
	return n.changedLocked()
}

// Finished is reported by the player when an utterance ends or fails.
// Reports for utterances that are no longer active are ignored.
func (n *Narrator) Finished(id string) Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.utterance == nil || n.utterance.ID != id {
		return n.statusLocked()
	}
	n.utterance = nil
	n.state = StateStopped
	return n.changedLocked()
}

// SetRate changes the playback rate, including that of the live utterance.
func (n *Narrator) SetRate(rate float64) (Status, error) {
	if !validRate(rate) {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.rate = rate
	if n.utterance != nil {
		n.utterance.Rate = rate
		n.player.SetRate(n.utterance.ID, rate)
	}
	return n.changedLocked(), nil
}

// Status returns the current narrator snapshot.
func (n *Narrator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusLocked()
}

func (n *Narrator) statusLocked() Status {
	s := Status{State: n.state, Rate: n.rate}
	if n.utterance != nil {
		s.MessageID = n.utterance.MessageID
		s.UtteranceID = n.utterance.ID
	}
	return s
}

func (n *Narrator) changedLocked() Status {
	s := n.statusLocked()
	if n.publisher != nil {
		n.publisher.Publish(EventNarration, s)
	}
	return s
}

func validRate(rate float64) bool {
	for _, r := range Rates() {
		if r == rate {
			return true
		}
	}
	return false
}

// VoiceLanguage is the preferred voice language tag. "en" means any English voice.
func VoiceLanguage(lang chat.Language) string {
	switch lang {
	case chat.LanguageHindi:
		return "hi-IN"
	case chat.LanguageHinglish:
		return "en-IN"
	default:
		return "en"
	}
}

// Text is the spoken form of an answer.
func Text(a chat.Answer) string {
	step := func(i int) string {
		if i < len(a.ActionableSteps) {
			return a.ActionableSteps[i]
		}
		return ""
	}

	lines := []string{
		a.ShortTeaching + ".",
		fmt.Sprintf("From %s, it is said: %s.", a.ScriptureReference, a.ScripturePassage),
		fmt.Sprintf("Here is an example: %s.", a.RelatableExample),
		"Here are three steps you can take:",
		fmt.Sprintf("First, %s.", step(0)),
		fmt.Sprintf("Second, %s.", step(1)),
		fmt.Sprintf("And third, %s.", step(2)),
	}
	return strings.Join(lines, "\n")
}
