package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dmaslov/classhub/internal/core"
	"github.com/dmaslov/classhub/internal/domain"
)

// RosterRecorder receives a best-effort append of every registration.
// Implementations must never block session processing on failure.
type RosterRecorder interface {
	RecordJoin(name, contact string, at time.Time) error
}

// Router is the protocol state machine: it validates each inbound event
// against Registry and SessionState, applies the mutation, and fans the
// resulting messages out to the addressed connections.
//
// One mutex serializes every event end to end. Cross-field invariants
// (presenter disconnect clears the lecture flag in the same step) rely on
// that single boundary; Registry and SessionState have no locks of their
// own.
type Router struct {
	mu       sync.Mutex
	registry *Registry
	session  *SessionState
	links    map[domain.ConnectionID]core.SignalConnection
	recorder RosterRecorder
}

func NewRouter(reg *Registry, sess *SessionState, rec RosterRecorder) *Router {
	return &Router{
		registry: reg,
		session:  sess,
		links:    make(map[domain.ConnectionID]core.SignalConnection),
		recorder: rec,
	}
}

// Connect registers the connection and wires its transport endpoint.
// The sender gets a welcome unicast (roster, session status, stroke
// replay); everyone gets the updated roster.
func (r *Router) Connect(id domain.ConnectionID, name, contact string, requested domain.Role, sig core.SignalConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.registry.Register(id, name, contact, domain.RoleAttendee)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("cid", string(id)).Msg("register refused")
		return err
	}
	r.links[id] = sig

	if requested == domain.RolePresenter {
		if r.session.ClaimPresenter(id) {
			p.Role = domain.RolePresenter
		} else {
			r.unicast(id, errorMsg("presenter role already taken"))
		}
	}

	if r.recorder != nil {
		if err := r.recorder.RecordJoin(name, contact, time.Now()); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Msg("roster record failed")
		}
	}

	r.unicast(id, welcomeMsg{
		Type:          "welcome",
		You:           *p,
		Participants:  r.rosterDTO(),
		Count:         r.registry.Count(),
		LectureActive: r.session.LectureActive(),
		Presenter:     r.presenterName(),
		RaisedHands:   r.handsDTO(),
		Strokes:       r.session.Strokes(),
	})
	r.broadcast(r.rosterMsg())
	return nil
}

// Disconnect tears one connection down. Safe to call more than once; only
// the first call does the work, so a failed write and a read error racing
// on the same connection cannot double-fire the side effects.
func (r *Router) Disconnect(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect(id)
}

func (r *Router) disconnect(id domain.ConnectionID) {
	p, err := r.registry.Unregister(id)
	if err != nil {
		return
	}
	if sig, ok := r.links[id]; ok {
		delete(r.links, id)
		sig.Close()
	}

	wasPresenter := r.session.IsPresenter(id)
	if wasPresenter {
		r.session.OnPresenterDisconnected()
	}
	r.session.LowerHand(id)

	log.Info().Str("module", "app.router").Str("cid", string(id)).Str("name", p.DisplayName).Msg("disconnected")

	r.broadcast(r.rosterMsg())
	r.broadcast(r.handsMsg())
	if wasPresenter {
		r.broadcast(r.lectureMsg())
	}
}

// OnlineCount reports the number of live connections.
func (r *Router) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Count()
}

// LectureActive reports the current lecture flag.
func (r *Router) LectureActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.LectureActive()
}

// --- fan-out plumbing (callers hold r.mu) ---

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode outbound")
		return nil, false
	}
	return b, true
}

func (r *Router) unicast(id domain.ConnectionID, v any) {
	frame, ok := encode(v)
	if !ok {
		return
	}
	if !r.deliver(id, frame) {
		r.disconnect(id)
	}
}

func (r *Router) broadcast(v any) {
	r.fanOut(v, "")
}

func (r *Router) broadcastExcept(sender domain.ConnectionID, v any) {
	r.fanOut(v, sender)
}

// fanOut sends one frame to every connection except skip. A recipient that
// cannot accept the frame is detached afterwards; a slow or dead recipient
// never blocks delivery to the rest.
func (r *Router) fanOut(v any, skip domain.ConnectionID) {
	frame, ok := encode(v)
	if !ok {
		return
	}
	var dead []domain.ConnectionID
	for _, p := range r.registry.ListAll() {
		if p.ID == skip {
			continue
		}
		if !r.deliver(p.ID, frame) {
			dead = append(dead, p.ID)
		}
	}
	for _, id := range dead {
		r.disconnect(id)
	}
}

func (r *Router) deliver(id domain.ConnectionID, frame core.Frame) bool {
	sig, ok := r.links[id]
	if !ok {
		return true
	}
	if err := sig.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("cid", string(id)).Msg("send failed")
		return false
	}
	return true
}

// --- outbound message shapes ---

type welcomeMsg struct {
	Type          string               `json:"type"`
	You           domain.Participant   `json:"you"`
	Participants  []domain.Participant `json:"participants"`
	Count         int                  `json:"count"`
	LectureActive bool                 `json:"lecture_active"`
	Presenter     string               `json:"presenter,omitempty"`
	RaisedHands   []handDTO            `json:"raised_hands"`
	Strokes       []domain.Stroke      `json:"strokes"`
}

type handDTO struct {
	ID   domain.ConnectionID `json:"id"`
	Name string              `json:"name"`
}

func errorMsg(reason string) any {
	return struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{"error", reason}
}

func (r *Router) rosterDTO() []domain.Participant {
	return lo.Map(r.registry.ListAll(), func(p *domain.Participant, _ int) domain.Participant {
		return *p
	})
}

func (r *Router) handsDTO() []handDTO {
	return lo.FilterMap(r.session.RaisedHands(), func(id domain.ConnectionID, _ int) (handDTO, bool) {
		p, err := r.registry.Get(id)
		if err != nil {
			return handDTO{}, false
		}
		return handDTO{ID: id, Name: p.DisplayName}, true
	})
}

func (r *Router) presenterName() string {
	p, err := r.registry.Get(r.session.Presenter())
	if err != nil {
		return ""
	}
	return p.DisplayName
}

func (r *Router) rosterMsg() any {
	return struct {
		Type         string               `json:"type"`
		Count        int                  `json:"count"`
		Participants []domain.Participant `json:"participants"`
	}{"roster", r.registry.Count(), r.rosterDTO()}
}

func (r *Router) handsMsg() any {
	return struct {
		Type   string    `json:"type"`
		Raised []handDTO `json:"raised"`
	}{"hands", r.handsDTO()}
}

func (r *Router) lectureMsg() any {
	return struct {
		Type      string `json:"type"`
		Active    bool   `json:"active"`
		Presenter string `json:"presenter,omitempty"`
	}{"lecture_status", r.session.LectureActive(), r.presenterName()}
}
