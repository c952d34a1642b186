package app

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dmaslov/classhub/internal/domain"
)

// Per-event handlers. Every handler takes the whole decoded inbound frame
// so payload parsing stays next to the guard that allows it. Authorization
// failures answer with an error unicast; malformed payloads are dropped
// with a warning. Neither closes the connection.

func (r *Router) HandleDraw(id domain.ConnectionID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.session.IsPresenter(id) {
		r.unicast(id, errorMsg("drawing is presenter-only"))
		return
	}
	var p struct {
		Type   string        `json:"type"`
		Stroke domain.Stroke `json:"stroke"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("cid", string(id)).Msg("bad draw payload")
		return
	}
	r.session.RecordStroke(p.Stroke)
	r.broadcastExcept(id, struct {
		Type   string        `json:"type"`
		Stroke domain.Stroke `json:"stroke"`
	}{"draw", p.Stroke})
}

func (r *Router) HandleClearBoard(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.session.IsPresenter(id) {
		r.unicast(id, errorMsg("clearing the board is presenter-only"))
		return
	}
	r.session.ClearBoard()
	r.broadcast(struct {
		Type string `json:"type"`
	}{"board_cleared"})
}

func (r *Router) HandleChat(id domain.ConnectionID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.registry.Get(id)
	if err != nil {
		return
	}
	var in struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("cid", string(id)).Msg("bad chat payload")
		return
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		log.Warn().Str("module", "app.router").Str("cid", string(id)).Msg("empty chat message")
		return
	}
	msg := r.session.RecordChat(p.DisplayName, text)
	r.broadcast(struct {
		Type string `json:"type"`
		domain.ChatMessage
	}{"chat", msg})
}

func (r *Router) HandleRaiseHand(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registry.SetHandRaised(id, true); err != nil {
		return
	}
	r.session.RaiseHand(id)
	r.broadcast(r.handsMsg())
}

func (r *Router) HandleLowerHand(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registry.SetHandRaised(id, false); err != nil {
		return
	}
	r.session.LowerHand(id)
	r.broadcast(r.handsMsg())
}

func (r *Router) HandleGrantSpeaking(id domain.ConnectionID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var in struct {
		Type   string              `json:"type"`
		Target domain.ConnectionID `json:"target"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("cid", string(id)).Msg("bad grant payload")
		return
	}
	if err := r.session.GrantSpeaking(id, in.Target); err != nil {
		r.unicast(id, errorMsg("granting speaking is presenter-only"))
		return
	}
	// Target may have disconnected between raise and grant; that race is a
	// plain no-op.
	if err := r.registry.GrantSpeaking(in.Target); err != nil {
		return
	}
	_ = r.registry.SetHandRaised(in.Target, false)

	r.broadcast(r.handsMsg())
	r.broadcast(r.rosterMsg())
	r.unicast(in.Target, struct {
		Type string `json:"type"`
	}{"speaking_granted"})
}

func (r *Router) HandleStartLecture(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.session.StartLecture(id); err != nil {
		r.unicast(id, errorMsg("starting the lecture is presenter-only"))
		return
	}
	r.broadcast(r.lectureMsg())
}

func (r *Router) HandleEndLecture(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.session.EndLecture(id); err != nil {
		r.unicast(id, errorMsg("ending the lecture is presenter-only"))
		return
	}
	r.broadcast(r.lectureMsg())
}

// HandleAudio relays an opaque audio chunk to everyone else. Eligible
// senders are the presenter and anyone with speaking permission.
func (r *Router) HandleAudio(id domain.ConnectionID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.registry.Get(id)
	if err != nil {
		return
	}
	if !r.session.IsPresenter(id) && !p.SpeakingGranted {
		r.unicast(id, errorMsg("speaking permission required"))
		return
	}
	var in struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &in); err != nil || len(in.Data) == 0 {
		log.Warn().Str("module", "app.router").Str("cid", string(id)).Msg("bad audio payload")
		return
	}
	r.broadcastExcept(id, struct {
		Type string          `json:"type"`
		From string          `json:"from"`
		Data json.RawMessage `json:"data"`
	}{"audio", p.DisplayName, in.Data})
}
