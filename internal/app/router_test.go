package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmaslov/classhub/internal/core"
	"github.com/dmaslov/classhub/internal/domain"
)

// fakeConn captures delivered frames; with fail set it refuses every send,
// which the router must treat as that recipient's disconnect.
type fakeConn struct {
	frames []core.Frame
	fail   bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	if f.fail {
		return errors.New("connection stalled")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func (f *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) reset() { f.frames = nil }

func newTestRouter() *Router {
	return NewRouter(NewRegistry(), NewSessionState(0), nil)
}

func connect(t *testing.T, r *Router, id domain.ConnectionID, name string, role domain.Role) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	require.NoError(t, r.Connect(id, name, "", role, c))
	return c
}

func TestRouter_Connect_WelcomeAndRoster(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p1", "teacher", domain.RolePresenter)

	welcomes := p.ofType(t, "welcome")
	req.Len(welcomes, 1)
	you := welcomes[0]["you"].(map[string]any)
	req.Equal("presenter", you["role"])
	req.Equal(false, welcomes[0]["lecture_active"])

	a := connect(t, r, "a1", "student", domain.RoleAttendee)
	req.Len(a.ofType(t, "welcome"), 1)
	// the existing connection sees the updated roster too
	rosters := p.ofType(t, "roster")
	req.NotEmpty(rosters)
	last := rosters[len(rosters)-1]
	req.Equal(float64(2), last["count"])
}

func TestRouter_Connect_SecondPresenterRefused(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p1", "teacher", domain.RolePresenter)
	late := connect(t, r, "p2", "impostor", domain.RolePresenter)

	req.NotEmpty(late.ofType(t, "error"))
	you := late.ofType(t, "welcome")[0]["you"].(map[string]any)
	req.Equal("attendee", you["role"])
}

func TestRouter_Connect_DuplicateID(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "c1", "alice", domain.RoleAttendee)
	err := r.Connect("c1", "alice", "", domain.RoleAttendee, &fakeConn{})
	req.ErrorIs(err, ErrDuplicateConnection)
	req.Equal(1, r.OnlineCount())
}

func TestRouter_Chat_BroadcastCompleteness(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	b := connect(t, r, "b", "ben", domain.RoleAttendee)
	gone := connect(t, r, "c", "cat", domain.RoleAttendee)

	r.Disconnect("c")
	a.reset()
	b.reset()
	gone.reset()

	r.HandleChat("a", []byte(`{"type":"chat","text":"hello class"}`))

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.ofType(t, "chat")
		req.Len(msgs, 1)
		req.Equal("ann", msgs[0]["sender"])
		req.Equal("hello class", msgs[0]["text"])
	}
	req.Empty(gone.ofType(t, "chat"))
}

func TestRouter_Chat_Malformed_Dropped(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	a.reset()

	r.HandleChat("a", []byte(`{"type":"chat","text":`))
	r.HandleChat("a", []byte(`{"type":"chat","text":"   "}`))
	r.HandleChat("ghost", []byte(`{"type":"chat","text":"hi"}`))

	req.Empty(a.frames)
}

func TestRouter_Draw_AttendeeRejected(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	p.reset()
	a.reset()

	r.HandleDraw("a", []byte(`{"type":"draw","stroke":{"tool":"pen","x0":0,"y0":0,"x1":1,"y1":1}}`))

	req.Empty(p.ofType(t, "draw"))
	req.NotEmpty(a.ofType(t, "error"))
	req.Empty(r.session.Strokes())
}

func TestRouter_Draw_PresenterBroadcastExceptSender(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	p.reset()
	a.reset()

	r.HandleDraw("p", []byte(`{"type":"draw","stroke":{"tool":"pen","color":"#f00","width":2,"x0":0,"y0":0,"x1":5,"y1":5}}`))

	req.Empty(p.ofType(t, "draw"))
	draws := a.ofType(t, "draw")
	req.Len(draws, 1)
	stroke := draws[0]["stroke"].(map[string]any)
	req.Equal("pen", stroke["tool"])
	req.Len(r.session.Strokes(), 1)

	// late joiner gets the stroke log replayed in the welcome
	late := connect(t, r, "b", "ben", domain.RoleAttendee)
	welcome := late.ofType(t, "welcome")[0]
	req.Len(welcome["strokes"].([]any), 1)
}

func TestRouter_ClearBoard(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	r.HandleDraw("p", []byte(`{"type":"draw","stroke":{"tool":"pen"}}`))
	a.reset()
	p.reset()

	r.HandleClearBoard("a")
	req.NotEmpty(a.ofType(t, "error"))
	req.Len(r.session.Strokes(), 1)

	r.HandleClearBoard("p")
	req.Empty(r.session.Strokes())
	req.Len(a.ofType(t, "board_cleared"), 1)
	req.Len(p.ofType(t, "board_cleared"), 1)
}

func TestRouter_RaiseHand_GrantSpeaking_Scenario(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	a.reset()

	r.HandleRaiseHand("a")
	req.Equal([]domain.ConnectionID{"a"}, r.session.RaisedHands())
	hands := a.ofType(t, "hands")
	req.Len(hands, 1)
	req.Len(hands[0]["raised"].([]any), 1)

	a.reset()
	r.HandleGrantSpeaking("p", []byte(`{"type":"grant_permission","target":"a"}`))

	req.Empty(r.session.RaisedHands())
	ann, err := r.registry.Get("a")
	req.NoError(err)
	req.True(ann.SpeakingGranted)
	req.False(ann.HandRaised)
	req.Len(a.ofType(t, "speaking_granted"), 1)
}

func TestRouter_GrantSpeaking_NonPresenterRejected(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	b := connect(t, r, "b", "ben", domain.RoleAttendee)
	r.HandleRaiseHand("b")
	a.reset()
	b.reset()

	r.HandleGrantSpeaking("a", []byte(`{"type":"grant_permission","target":"b"}`))

	req.NotEmpty(a.ofType(t, "error"))
	req.Equal([]domain.ConnectionID{"b"}, r.session.RaisedHands())
	ben, err := r.registry.Get("b")
	req.NoError(err)
	req.False(ben.SpeakingGranted)
}

func TestRouter_GrantSpeaking_GoneTarget_NoOp(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p", "teacher", domain.RolePresenter)
	r.HandleGrantSpeaking("p", []byte(`{"type":"grant_permission","target":"ghost"}`))
	req.Equal(1, r.OnlineCount())
}

func TestRouter_Lecture_Lifecycle(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	p.reset()
	a.reset()

	r.HandleStartLecture("a")
	req.False(r.LectureActive())
	req.NotEmpty(a.ofType(t, "error"))

	r.HandleStartLecture("p")
	req.True(r.LectureActive())
	status := a.ofType(t, "lecture_status")
	req.Len(status, 1)
	req.Equal(true, status[0]["active"])
	req.Equal("teacher", status[0]["presenter"])
}

func TestRouter_PresenterDisconnect_EndsLecture(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	r.HandleStartLecture("p")
	a.reset()

	r.Disconnect("p")

	req.False(r.LectureActive())
	req.False(r.session.HasPresenter())
	status := a.ofType(t, "lecture_status")
	req.Len(status, 1)
	req.Equal(false, status[0]["active"])
	rosters := a.ofType(t, "roster")
	req.NotEmpty(rosters)
	req.Equal(float64(1), rosters[len(rosters)-1]["count"])
}

func TestRouter_Disconnect_Twice_SideEffectsOnce(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	a.reset()

	r.Disconnect("p")
	first := len(a.frames)
	r.Disconnect("p")
	req.Equal(first, len(a.frames))
	req.Equal(1, r.OnlineCount())
}

func TestRouter_Disconnect_ClearsRaisedHand(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	connect(t, r, "a", "ann", domain.RoleAttendee)
	connect(t, r, "b", "ben", domain.RoleAttendee)
	r.HandleRaiseHand("b")
	req.Equal([]domain.ConnectionID{"b"}, r.session.RaisedHands())

	r.Disconnect("b")
	req.Empty(r.session.RaisedHands())
}

func TestRouter_Audio_Eligibility(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	p := connect(t, r, "p", "teacher", domain.RolePresenter)
	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	b := connect(t, r, "b", "ben", domain.RoleAttendee)
	p.reset()
	a.reset()
	b.reset()

	r.HandleAudio("a", []byte(`{"type":"audio","data":"AAAA"}`))
	req.NotEmpty(a.ofType(t, "error"))
	req.Empty(b.ofType(t, "audio"))

	r.HandleGrantSpeaking("p", []byte(`{"type":"grant_permission","target":"a"}`))
	a.reset()
	b.reset()
	p.reset()

	r.HandleAudio("a", []byte(`{"type":"audio","data":"AAAA"}`))
	req.Empty(a.ofType(t, "audio"))
	for _, conn := range []*fakeConn{p, b} {
		chunks := conn.ofType(t, "audio")
		req.Len(chunks, 1)
		req.Equal("ann", chunks[0]["from"])
	}
}

func TestRouter_DeadRecipient_DetachedWithoutAbortingFanOut(t *testing.T) {
	req := require.New(t)
	r := newTestRouter()

	a := connect(t, r, "a", "ann", domain.RoleAttendee)
	dead := connect(t, r, "b", "ben", domain.RoleAttendee)
	c := connect(t, r, "c", "cat", domain.RoleAttendee)
	a.reset()
	c.reset()
	dead.fail = true

	r.HandleChat("a", []byte(`{"type":"chat","text":"anyone there"}`))

	req.Len(a.ofType(t, "chat"), 1)
	req.Len(c.ofType(t, "chat"), 1)
	req.Equal(2, r.OnlineCount())
	req.True(dead.closed)
	// survivors learned about the eviction
	rosters := c.ofType(t, "roster")
	req.NotEmpty(rosters)
	req.Equal(float64(2), rosters[len(rosters)-1]["count"])
}
