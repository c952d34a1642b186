package app

import (
	"errors"
	"time"

	"github.com/dmaslov/classhub/internal/domain"
)

// ErrRejected reports an authorization failure: a non-presenter attempted a
// presenter-only action. Recoverable, reported back to the sender.
var ErrRejected = errors.New("rejected: presenter privilege required")

// SessionState holds the cross-cutting session facts: lecture flag,
// presenter slot, raised hands, chat log, and the whiteboard stroke log
// replayed to late joiners. Like Registry it is serialized by the Router.
type SessionState struct {
	lectureActive bool
	presenter     domain.ConnectionID
	raisedHands   []domain.ConnectionID
	chat          []domain.ChatMessage
	chatLimit     int
	strokes       []domain.Stroke
}

func NewSessionState(chatLimit int) *SessionState {
	if chatLimit <= 0 {
		chatLimit = 500
	}
	return &SessionState{chatLimit: chatLimit}
}

func (s *SessionState) LectureActive() bool { return s.lectureActive }

func (s *SessionState) Presenter() domain.ConnectionID { return s.presenter }

func (s *SessionState) HasPresenter() bool { return s.presenter != "" }

func (s *SessionState) IsPresenter(id domain.ConnectionID) bool {
	return s.presenter != "" && s.presenter == id
}

// ClaimPresenter installs id as the session presenter if the slot is free.
// First declared presenter wins; later claims are refused, never silently
// demoted.
func (s *SessionState) ClaimPresenter(id domain.ConnectionID) bool {
	if s.presenter != "" {
		return false
	}
	s.presenter = id
	return true
}

func (s *SessionState) StartLecture(by domain.ConnectionID) error {
	if !s.IsPresenter(by) {
		return ErrRejected
	}
	s.lectureActive = true
	return nil
}

func (s *SessionState) EndLecture(by domain.ConnectionID) error {
	if !s.IsPresenter(by) {
		return ErrRejected
	}
	s.lectureActive = false
	return nil
}

// RaiseHand is idempotent: a second raise leaves the order untouched.
func (s *SessionState) RaiseHand(id domain.ConnectionID) {
	for _, h := range s.raisedHands {
		if h == id {
			return
		}
	}
	s.raisedHands = append(s.raisedHands, id)
}

func (s *SessionState) LowerHand(id domain.ConnectionID) {
	for i, h := range s.raisedHands {
		if h == id {
			s.raisedHands = append(s.raisedHands[:i], s.raisedHands[i+1:]...)
			return
		}
	}
}

// RaisedHands returns connection ids in raise order.
func (s *SessionState) RaisedHands() []domain.ConnectionID {
	out := make([]domain.ConnectionID, len(s.raisedHands))
	copy(out, s.raisedHands)
	return out
}

// GrantSpeaking checks the presenter guard and lowers the target's hand as
// a side effect. The registry-side flag flip belongs to the caller.
func (s *SessionState) GrantSpeaking(by, target domain.ConnectionID) error {
	if !s.IsPresenter(by) {
		return ErrRejected
	}
	s.LowerHand(target)
	return nil
}

// RecordChat appends a stamped message. The log is bounded: the oldest
// entries fall off once chatLimit is reached.
func (s *SessionState) RecordChat(sender, text string) domain.ChatMessage {
	msg := domain.ChatMessage{Sender: sender, Text: text, At: time.Now()}
	s.chat = append(s.chat, msg)
	if len(s.chat) > s.chatLimit {
		s.chat = s.chat[len(s.chat)-s.chatLimit:]
	}
	return msg
}

func (s *SessionState) ChatLen() int { return len(s.chat) }

func (s *SessionState) RecordStroke(st domain.Stroke) {
	s.strokes = append(s.strokes, st)
}

func (s *SessionState) ClearBoard() {
	s.strokes = nil
}

// Strokes returns the stroke log for late-joiner replay.
func (s *SessionState) Strokes() []domain.Stroke {
	out := make([]domain.Stroke, len(s.strokes))
	copy(out, s.strokes)
	return out
}

// OnPresenterDisconnected clears the presenter slot and forces the lecture
// off. Both fields move together so observers never see a presenterless
// active lecture.
func (s *SessionState) OnPresenterDisconnected() {
	s.presenter = ""
	s.lectureActive = false
}
