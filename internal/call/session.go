package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiator"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const (
	eventBuffer        = 256
	hangupFlushTimeout = 500 * time.Millisecond
)

// EventKind classifies session events.
type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventRemoteTrack
	EventRemoteMedia
	EventPeerLeft
	EventHangup
	EventError
)

// Event is something the caller of a Session may want to show.
type Event struct {
	Kind   EventKind
	Status negotiator.Status
	Track  media.RemoteTrack
	Media  MediaState
	Err    error
}

// Options configures a Session.
type Options struct {
	Config   *config.Config
	Capturer media.Capturer
	Logger   *slog.Logger

	// API overrides the pion API built from the configuration.
	API *webrtc.API
}

// Summary describes a finished or running call.
type Summary struct {
	RoomID    string
	Role      negotiator.Role
	State     negotiator.State
	Connected time.Duration
	Attempts  int
	Tracks    []media.TrackStats
}

// Session is one participant's call: relay channel, peer connection,
// negotiator and media, wired together.
type Session struct {
	cfg      *config.Config
	log      *slog.Logger
	api      *webrtc.API
	client   *signaling.Client
	pipeline *media.Pipeline
	events   chan Event

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	neg         *negotiator.Negotiator
	control     *webrtc.DataChannel
	attempt     int
	runCtx      context.Context
	roomID      string
	connectedAt time.Time
	connected   time.Duration

	finished   chan struct{}
	finishOnce sync.Once
	result     error
	closeOnce  sync.Once
}

// NewSession prepares a session. Nothing touches the network until Open.
func NewSession(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, NewError("new session", errors.New("missing config"))
	}
	if opts.Config.WebSocketURL == "" {
		return nil, NewError("new session", ErrNoRelay)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		cfg:      opts.Config,
		log:      opts.Logger.With("component", "call"),
		api:      opts.API,
		events:   make(chan Event, eventBuffer),
		finished: make(chan struct{}),
	}
	if s.api == nil {
		api, err := NewAPI(logging.NewPionLoggerFactory(opts.Logger), nil)
		if err != nil {
			return nil, err
		}
		s.api = api
	}
	s.pipeline = media.NewPipeline(opts.Capturer, s.onRemoteTrack, opts.Logger)
	return s, nil
}

// Events delivers session events. It is never closed; stop reading once Run
// returns.
func (s *Session) Events() <-chan Event { return s.events }

// Start opens the session and runs it until the call ends.
func (s *Session) Start(ctx context.Context, roomID string) error {
	if _, err := s.Open(ctx, roomID); err != nil {
		return err
	}
	return s.Run(ctx)
}

// Open acquires media, connects to the relay, prepares the peer connection
// and joins roomID, or a freshly created room when roomID is empty. It
// returns the room ID.
func (s *Session) Open(ctx context.Context, roomID string) (string, error) {
	if _, err := s.pipeline.Acquire(ctx); err != nil {
		s.emit(Event{Kind: EventError, Err: err})
	}

	s.client = signaling.NewClient(s.cfg.WebSocketURL, s.log)
	if err := s.client.Connect(ctx); err != nil {
		return "", NewError("connect to relay", err)
	}

	if err := s.reset(); err != nil {
		s.client.Close()
		return "", err
	}

	var err error
	if roomID == "" {
		roomID, err = s.client.Create(ctx)
	} else {
		_, err = s.client.Join(ctx, roomID)
	}
	if err != nil {
		s.Close()
		return "", WrapError("join room", err, roomID)
	}

	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
	s.log.Info("in room", "room", roomID)
	return roomID, nil
}

// Run feeds relay events into the negotiator until the relay channel closes,
// ctx is done or the call is hung up.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.runCtx = ctx
	neg := s.neg
	s.mu.Unlock()
	go neg.Run(ctx)

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- signaling.Pump(ctx, s.client, s, s.log) }()

	select {
	case <-s.finished:
		return s.result
	case <-ctx.Done():
		return nil
	case err := <-pumpErr:
		select {
		case <-s.finished:
			return s.result
		default:
		}
		if ctx.Err() != nil {
			return nil
		}
		return NewError("relay channel", err)
	}
}

// reset replaces the peer connection and negotiator with fresh ones in Idle.
func (s *Session) reset() error {
	pc, err := NewPeerConnection(s.api, s.cfg)
	if err != nil {
		return err
	}
	if err := s.pipeline.Attach(pc); err != nil {
		pc.Close()
		return NewError("attach media", err)
	}
	dc, err := CreateControlChannel(pc)
	if err != nil {
		pc.Close()
		return err
	}

	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	neg := negotiator.New(pc, signaling.NewRoomSignaler(s.client), negotiator.Options{
		Logger:        s.log.With("attempt", attempt),
		OnStateChange: func(st negotiator.Status) { s.onStatus(attempt, st) },
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) { neg.LocalCandidate(c) })
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) { neg.TransportState(st) })
	pc.OnTrack(s.pipeline.HandleRemoteTrack)
	dc.OnOpen(func() { s.sendMediaState(dc) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { s.onControl(attempt, msg.Data) })

	s.mu.Lock()
	old := s.neg
	s.pc, s.neg, s.control = pc, neg, dc
	ctx := s.runCtx
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if ctx != nil {
		go neg.Run(ctx)
	}
	return nil
}

func (s *Session) current() (*negotiator.Negotiator, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg, s.attempt
}

func (s *Session) onStatus(attempt int, st negotiator.Status) {
	if _, cur := s.current(); cur != attempt {
		return
	}

	if st.Transport == webrtc.PeerConnectionStateConnected && st.State == negotiator.StateConnected {
		s.mu.Lock()
		if s.connectedAt.IsZero() {
			s.connectedAt = time.Now()
		}
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx != nil {
			s.pipeline.Start(ctx)
		}
	}

	s.emit(Event{Kind: EventStateChanged, Status: st})

	if st.State == negotiator.StateFailed {
		s.emit(Event{Kind: EventError, Err: NewError("negotiate", st.Err)})
		if !s.cfg.StayInRoom {
			s.finish(NewError("negotiate", st.Err))
		}
	}
}

func (s *Session) onRemoteTrack(t media.RemoteTrack) {
	s.emit(Event{Kind: EventRemoteTrack, Track: t})
}

func (s *Session) sendMediaState(dc *webrtc.DataChannel) {
	var state MediaState
	for _, t := range s.pipeline.Tracks() {
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			state.Audio = true
		case webrtc.RTPCodecTypeVideo:
			state.Video = true
		}
	}
	if err := sendControl(dc, ControlMediaState, state); err != nil {
		s.log.Warn("sending media state failed", "error", err)
	}
}

func (s *Session) onControl(attempt int, data []byte) {
	if _, cur := s.current(); cur != attempt {
		return
	}
	msg, err := DecodeControl(data)
	if err != nil {
		s.log.Warn("bad control message", "error", err)
		return
	}

	switch msg.Type {
	case ControlHangup:
		s.log.Info("peer hung up")
		s.emit(Event{Kind: EventHangup, Err: ErrRemoteHangup})
		if !s.cfg.StayInRoom {
			s.finish(nil)
		}
	case ControlMediaState:
		var state MediaState
		if err := msg.DecodePayload(&state); err != nil {
			s.log.Warn("bad media state", "error", err)
			return
		}
		s.emit(Event{Kind: EventRemoteMedia, Media: state})
	default:
		s.log.Debug("unknown control message", "type", msg.Type)
	}
}

// PeerJoined, PeerLeft, RemoteSignal, RelayError and ChannelClosed receive
// relay events from the signaling pump.

func (s *Session) PeerJoined() {
	neg, _ := s.current()
	neg.PeerJoined()
}

func (s *Session) RemoteSignal(data protocol.SignalData) {
	neg, _ := s.current()
	neg.RemoteSignal(data)
}

func (s *Session) PeerLeft() {
	s.log.Info("peer left")
	s.emit(Event{Kind: EventPeerLeft, Err: ErrPeerLeft})
	s.pipeline.Stop()
	s.stopClock()

	if !s.cfg.StayInRoom {
		s.finish(nil)
		return
	}
	// a rejoin always starts a fresh negotiation
	if err := s.reset(); err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		s.finish(err)
	}
}

func (s *Session) RelayError(err error) {
	s.log.Warn("relay error", "error", err)
	s.emit(Event{Kind: EventError, Err: NewError("relay", err)})
}

// ChannelClosed tears the call down. Without the relay no further
// negotiation or rejoin is possible.
func (s *Session) ChannelClosed(err error) {
	s.log.Info("relay channel closed", "error", err)
	if neg, _ := s.current(); neg != nil {
		neg.Close()
	}
	s.pipeline.Stop()
	s.stopClock()
	s.finish(NewError("relay channel", err))
}

// Hangup tells the peer the call is over and ends Run.
func (s *Session) Hangup() {
	s.mu.Lock()
	dc := s.control
	s.mu.Unlock()
	if err := sendControl(dc, ControlHangup, struct{}{}); err != nil {
		s.log.Debug("sending hangup failed", "error", err)
	} else {
		waitFlushed(dc, hangupFlushTimeout)
	}
	s.finish(nil)
}

// waitFlushed waits until dc has no buffered outgoing data or timeout passes.
func waitFlushed(dc *webrtc.DataChannel, timeout time.Duration) {
	if dc == nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for dc.BufferedAmount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// Close hangs up and releases everything the session holds. It is safe to
// call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Hangup()

		s.mu.Lock()
		neg := s.neg
		s.mu.Unlock()
		if neg != nil {
			neg.Close()
		}
		s.pipeline.Stop()
		s.stopClock()
		if s.client != nil {
			s.client.Close()
		}
	})
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.result = err
		close(s.finished)
	})
}

// Done is closed once the call has ended.
func (s *Session) Done() <-chan struct{} { return s.finished }

func (s *Session) stopClock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connectedAt.IsZero() {
		s.connected += time.Since(s.connectedAt)
		s.connectedAt = time.Time{}
	}
}

// Status returns the current negotiator snapshot.
func (s *Session) Status() negotiator.Status {
	neg, _ := s.current()
	if neg == nil {
		return negotiator.Status{}
	}
	return neg.Status()
}

// Stats reports per-track counters.
func (s *Session) Stats() []media.TrackStats {
	return s.pipeline.Stats()
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) Summary() Summary {
	st := s.Status()

	s.mu.Lock()
	connected := s.connected
	if !s.connectedAt.IsZero() {
		connected += time.Since(s.connectedAt)
	}
	sum := Summary{
		RoomID:    s.roomID,
		Role:      st.Role,
		State:     st.State,
		Connected: connected,
		Attempts:  s.attempt,
	}
	s.mu.Unlock()

	sum.Tracks = s.Stats()
	return sum
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("dropping session event", "kind", ev.Kind)
	}
}
