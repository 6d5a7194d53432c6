package events

import "github.com/zhouzirui/sanatani-gyan/backend/internal/service/narration"

// EventSpeech carries narration commands for the browser to perform.
const EventSpeech = "speech"

// SpeechCommand is the payload of EventSpeech.
type SpeechCommand struct {
	Action    string               `json:"action"`
	ID        string               `json:"id"`
	Utterance *narration.Utterance `json:"utterance,omitempty"`
	Rate      float64              `json:"rate,omitempty"`
}

// Player forwards narration commands to websocket clients.
type Player struct {
	hub *Hub
}

// NewPlayer returns a narration player backed by hub.
func NewPlayer(hub *Hub) *Player {
	return &Player{hub: hub}
}

func (p *Player) Speak(u narration.Utterance) {
	p.hub.Publish(EventSpeech, SpeechCommand{Action: "speak", ID: u.ID, Utterance: &u})
}

func (p *Player) Pause(id string) {
	p.hub.Publish(EventSpeech, SpeechCommand{Action: "pause", ID: id})
}

func (p *Player) Resume(id string) {
	p.hub.Publish(EventSpeech, SpeechCommand{Action: "resume", ID: id})
}

func (p *Player) Cancel(id string) {
	p.hub.Publish(EventSpeech, SpeechCommand{Action: "cancel", ID: id})
}

func (p *Player) SetRate(id string, rate float64) {
	p.hub.Publish(EventSpeech, SpeechCommand{Action: "rate", ID: id, Rate: rate})
}
