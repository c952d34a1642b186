package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dmaslov/classhub/internal/domain"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrNotFound            = errors.New("connection not registered")
)

// Registry is the authoritative "who is online" set: one entry per live
// connection. It carries no locking of its own; every access is serialized
// by the Router's event loop.
type Registry struct {
	byID  map[domain.ConnectionID]*domain.Participant
	order []domain.ConnectionID
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[domain.ConnectionID]*domain.Participant)}
}

func (r *Registry) Register(id domain.ConnectionID, name, contact string, role domain.Role) (*domain.Participant, error) {
	if _, ok := r.byID[id]; ok {
		return nil, ErrDuplicateConnection
	}
	p, err := domain.NewParticipant(id, name, contact, role)
	if err != nil {
		return nil, err
	}
	r.byID[id] = p
	r.order = append(r.order, id)
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("name", name).Str("role", string(role)).Msg("registered")
	return p, nil
}

// Unregister removes and returns the participant record. Side effects
// (notifying others, clearing the presenter slot) belong to the Router.
func (r *Registry) Unregister(id domain.ConnectionID) (*domain.Participant, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("unregistered")
	return p, nil
}

func (r *Registry) Get(id domain.ConnectionID) (*domain.Participant, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListAll returns participants in registration order.
func (r *Registry) ListAll() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Count() int { return len(r.byID) }

func (r *Registry) SetHandRaised(id domain.ConnectionID, raised bool) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.HandRaised = raised
	return nil
}

func (r *Registry) GrantSpeaking(id domain.ConnectionID) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.SpeakingGranted = true
	return nil
}
