package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/server"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu      sync.Mutex
	calls   []string
	signals []protocol.SignalData
	errs    []error
	closed  chan struct{}
	once    sync.Once
}

func newRecorder() *recorder { return &recorder{closed: make(chan struct{})} }

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) PeerJoined() { r.add("peer-joined") }
func (r *recorder) PeerLeft()   { r.add("peer-left") }

func (r *recorder) RemoteSignal(data protocol.SignalData) {
	r.mu.Lock()
	r.signals = append(r.signals, data)
	r.mu.Unlock()
	r.add("signal:" + data.Kind().String())
}

func (r *recorder) RelayError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("error")
}

func (r *recorder) ChannelClosed(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("closed")
	r.once.Do(func() { close(r.closed) })
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDispatch(t *testing.T) {
	rec := newRecorder()
	msgs := []*protocol.Message{
		{Type: protocol.MessageTypeJoined, RoomID: "abc123", Peers: 1},
		{Type: protocol.MessageTypePeerJoined},
		{Type: protocol.MessageTypeSignal, Data: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)},
		{Type: protocol.MessageTypeSignal, Data: json.RawMessage(`{"candidate":{"candidate":"candidate:1","sdpMid":"0"}}`)},
		{Type: protocol.MessageTypeError, Error: &protocol.ErrorPayload{Code: protocol.ErrorCodeRoomFull}},
		{Type: protocol.MessageTypePeerLeft},
	}
	for _, m := range msgs {
		require.NoError(t, Dispatch(m, rec))
	}

	require.Equal(t, []string{"peer-joined", "signal:description", "signal:candidate", "error", "peer-left"}, rec.snapshot())
	require.Equal(t, webrtc.SDPTypeAnswer, rec.signals[0].Description.Type)
	require.Equal(t, "candidate:1", rec.signals[1].Candidate.Candidate)
	require.ErrorIs(t, rec.errs[0], ErrRoomFull)
}

func TestDispatchDropsInvalidSignals(t *testing.T) {
	rec := newRecorder()

	for _, raw := range []string{`{"type":"rollback"}`, `{}`, `[1,2]`, ``} {
		err := Dispatch(&protocol.Message{Type: protocol.MessageTypeSignal, Data: json.RawMessage(raw)}, rec)
		require.ErrorIs(t, err, protocol.ErrInvalidSignal, raw)
	}
	require.Empty(t, rec.snapshot())

	err := Dispatch(&protocol.Message{Type: "mystery"}, rec)
	require.ErrorIs(t, err, ErrSignalingError)
}

func TestRelayError(t *testing.T) {
	require.ErrorIs(t, RelayError(&protocol.ErrorPayload{Code: protocol.ErrorCodeRoomFull}), ErrRoomFull)

	err := RelayError(&protocol.ErrorPayload{Code: protocol.ErrorCodeNotInRoom, Message: "not a member"})
	require.ErrorIs(t, err, ErrSignalingError)
	require.Contains(t, err.Error(), "not_in_room")

	require.ErrorIs(t, RelayError(nil), ErrSignalingError)
}

func startRelay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(server.NewRouter(server.Options{Logger: quiet}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(url, quiet)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func TestClientJoinAndSignal(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := connect(t, url)
	res, err := a.Join(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, JoinResult{RoomID: "abc123", Peers: 1}, res)
	require.Equal(t, "abc123", a.RoomID())

	b := connect(t, url)
	res, err = b.Join(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, 2, res.Peers)

	recA, recB := newRecorder(), newRecorder()
	go Pump(ctx, a, recA, quiet)
	go Pump(ctx, b, recB, quiet)

	require.Eventually(t, func() bool { return len(recA.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"peer-joined"}, recA.snapshot())

	offer := protocol.DescriptionSignal(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"})
	require.NoError(t, NewRoomSignaler(a).SendSignal(offer))

	require.Eventually(t, func() bool { return len(recB.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"signal:description"}, recB.snapshot())
	require.Equal(t, "v=0\r\n", recB.signals[0].Description.SDP)

	b.Close()
	require.Eventually(t, func() bool {
		calls := recA.snapshot()
		return len(calls) == 2 && calls[1] == "peer-left"
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-recB.closed:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "closing the client should end its pump")
	}
	require.ErrorIs(t, b.Send(&protocol.Message{Type: protocol.MessageTypeSignal}), ErrChannelClosed)
}

func TestClientCreate(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := connect(t, url)
	id, err := a.Create(ctx)
	require.NoError(t, err)
	require.Len(t, strings.Split(id, "-"), 4)
	require.Equal(t, id, a.RoomID())

	b := connect(t, url)
	_, err = b.Join(ctx, id)
	require.NoError(t, err)

	msg, err := a.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypePeerJoined, msg.Type)
}

func TestClientJoinFullRoom(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		_, err := connect(t, url).Join(ctx, "full")
		require.NoError(t, err)
	}

	_, err := connect(t, url).Join(ctx, "full")
	require.ErrorIs(t, err, ErrRoomFull)
}

func TestClientConnectFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewClient("ws://127.0.0.1:1/ws", quiet).Connect(ctx)
	require.Error(t, err)
}

type fakeSender struct {
	room string
	sent []*protocol.Message
	err  error
}

func (f *fakeSender) Send(msg *protocol.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) RoomID() string { return f.room }

func TestRoomSignaler(t *testing.T) {
	f := &fakeSender{}
	s := NewRoomSignaler(f)
	cand := protocol.CandidateSignal(webrtc.ICECandidateInit{Candidate: "candidate:1"})

	require.ErrorIs(t, s.SendSignal(cand), ErrSignalingError)

	f.room = "abc123"
	require.NoError(t, s.SendSignal(cand))
	require.Len(t, f.sent, 1)
	require.Equal(t, protocol.MessageTypeSignal, f.sent[0].Type)
	require.Equal(t, "abc123", f.sent[0].RoomID)
	var back protocol.SignalData
	require.NoError(t, json.Unmarshal(f.sent[0].Data, &back))
	require.Equal(t, "candidate:1", back.Candidate.Candidate)

	f.err = ErrChannelClosed
	require.True(t, errors.Is(s.SendSignal(cand), ErrChannelClosed))
}
