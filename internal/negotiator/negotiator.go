package negotiator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

var (
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrInvalidCandidate  = errors.New("invalid candidate")
	ErrTransportFailed   = errors.New("transport failed")
)

const defaultQueueSize = 256

// PeerConnection is the part of *webrtc.PeerConnection the negotiator drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// Signaler transmits negotiation payloads to the other participant.
type Signaler interface {
	SendSignal(data protocol.SignalData) error
}

// Options configures a Negotiator.
type Options struct {
	Logger *slog.Logger

	// OnStateChange is called after every state or role change, from the
	// goroutine handling the event. It must not call back into the
	// Negotiator.
	OnStateChange func(Status)

	QueueSize int
}

// Negotiator is the per-session offer/answer state machine. Events are
// processed one at a time, either by Run draining the queue filled by
// Enqueue or by calling Handle directly.
type Negotiator struct {
	pc       PeerConnection
	signaler Signaler
	log      *slog.Logger
	onChange func(Status)

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	role      Role
	err       error
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	applied   int
	dropped   int
	transport webrtc.PeerConnectionState

	statusMu sync.RWMutex
	status   Status
}

// New returns a Negotiator in StateIdle driving pc.
func New(pc PeerConnection, signaler Signaler, opts Options) *Negotiator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Negotiator{
		pc:       pc,
		signaler: signaler,
		log:      opts.Logger.With("component", "negotiator"),
		onChange: opts.OnStateChange,
		events:   make(chan Event, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Run handles queued events until ctx is done or the negotiator is closed.
func (n *Negotiator) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-n.events:
			n.Handle(ev)
		case <-n.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Enqueue adds ev to the event queue. It returns false once the negotiator
// is closed.
func (n *Negotiator) Enqueue(ev Event) bool {
	select {
	case <-n.done:
		return false
	default:
	}
	select {
	case n.events <- ev:
		return true
	case <-n.done:
		return false
	}
}

func (n *Negotiator) PeerJoined() bool { return n.Enqueue(PeerJoinedEvent{}) }

func (n *Negotiator) RemoteSignal(data protocol.SignalData) bool {
	return n.Enqueue(RemoteSignalEvent{Data: data})
}

// LocalCandidate queues a gathered candidate. A nil candidate marks the end
// of gathering and is ignored.
func (n *Negotiator) LocalCandidate(c *webrtc.ICECandidate) bool {
	if c == nil {
		return true
	}
	return n.Enqueue(LocalCandidateEvent{Candidate: c.ToJSON()})
}

func (n *Negotiator) TransportState(s webrtc.PeerConnectionState) bool {
	return n.Enqueue(TransportStateEvent{State: s})
}

// Done is closed when the negotiator is closed.
func (n *Negotiator) Done() <-chan struct{} { return n.done }

// Close moves the negotiator to StateClosed, closing the connection and
// discarding queued candidates. It is safe to call more than once.
func (n *Negotiator) Close() {
	n.Handle(CloseEvent{})
}

// Status returns the latest snapshot.
func (n *Negotiator) Status() Status {
	n.statusMu.RLock()
	defer n.statusMu.RUnlock()
	return n.status
}

// Handle processes one event synchronously.
func (n *Negotiator) Handle(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev := ev.(type) {
	case PeerJoinedEvent:
		n.handlePeerJoined()
	case RemoteSignalEvent:
		n.handleRemoteSignal(ev.Data)
	case LocalCandidateEvent:
		n.handleLocalCandidate(ev.Candidate)
	case TransportStateEvent:
		n.handleTransportState(ev.State)
	case CloseEvent:
		n.handleClose()
	default:
		n.log.Warn("unknown event", "event", fmt.Sprintf("%T", ev))
	}
}

func (n *Negotiator) handlePeerJoined() {
	if n.state != StateIdle {
		n.log.Info("ignoring peer-joined", "state", n.state, "role", n.role)
		return
	}

	n.role = RoleInitiator
	n.setState(StateNegotiating)

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		n.fail(fmt.Errorf("%w: create offer: %w", ErrNegotiationFailed, err))
		return
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		n.fail(fmt.Errorf("%w: set local offer: %w", ErrNegotiationFailed, err))
		return
	}
	if err := n.signaler.SendSignal(protocol.DescriptionSignal(offer)); err != nil {
		n.fail(fmt.Errorf("%w: send offer: %w", ErrNegotiationFailed, err))
		return
	}
	n.log.Debug("offer sent")
}

func (n *Negotiator) handleRemoteSignal(data protocol.SignalData) {
	switch data.Kind() {
	case protocol.SignalKindDescription:
		switch data.Description.Type {
		case webrtc.SDPTypeOffer:
			n.handleOffer(*data.Description)
		case webrtc.SDPTypeAnswer:
			n.handleAnswer(*data.Description)
		default:
			n.log.Warn("ignoring description", "type", data.Description.Type.String())
		}
	case protocol.SignalKindCandidate:
		n.handleRemoteCandidate(*data.Candidate)
	default:
		n.log.Warn("ignoring empty signal")
	}
}

func (n *Negotiator) handleOffer(offer webrtc.SessionDescription) {
	if n.state != StateIdle || n.role != RoleUndetermined {
		n.log.Info("ignoring offer", "state", n.state, "role", n.role)
		return
	}

	n.role = RoleResponder
	n.setState(StateNegotiating)

	if err := n.pc.SetRemoteDescription(offer); err != nil {
		n.fail(fmt.Errorf("%w: set remote offer: %w", ErrNegotiationFailed, err))
		return
	}
	n.remoteSet = true

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		n.fail(fmt.Errorf("%w: create answer: %w", ErrNegotiationFailed, err))
		return
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		n.fail(fmt.Errorf("%w: set local answer: %w", ErrNegotiationFailed, err))
		return
	}
	if err := n.signaler.SendSignal(protocol.DescriptionSignal(answer)); err != nil {
		n.fail(fmt.Errorf("%w: send answer: %w", ErrNegotiationFailed, err))
		return
	}
	n.log.Debug("answer sent")

	n.flush()
	n.setState(StateConnected)
}

func (n *Negotiator) handleAnswer(answer webrtc.SessionDescription) {
	if n.state != StateNegotiating || n.role != RoleInitiator {
		n.log.Info("ignoring answer", "state", n.state, "role", n.role)
		return
	}

	if err := n.pc.SetRemoteDescription(answer); err != nil {
		n.fail(fmt.Errorf("%w: set remote answer: %w", ErrNegotiationFailed, err))
		return
	}
	n.remoteSet = true

	n.flush()
	n.setState(StateConnected)
}

func (n *Negotiator) handleRemoteCandidate(c webrtc.ICECandidateInit) {
	switch n.state {
	case StateFailed, StateClosed:
		n.dropped++
		n.log.Debug("dropping candidate", "state", n.state)
		n.publish()
		return
	}

	if !n.remoteSet {
		n.pending = append(n.pending, c)
		n.publish()
		return
	}
	n.apply(c)
	n.publish()
}

// flush applies queued candidates in arrival order, then clears the queue.
func (n *Negotiator) flush() {
	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		n.apply(c)
	}
}

func (n *Negotiator) apply(c webrtc.ICECandidateInit) {
	if err := n.pc.AddICECandidate(c); err != nil {
		n.dropped++
		n.log.Warn("dropping candidate", "candidate", c.Candidate, "error", fmt.Errorf("%w: %w", ErrInvalidCandidate, err))
		return
	}
	n.applied++
}

func (n *Negotiator) handleLocalCandidate(c webrtc.ICECandidateInit) {
	switch n.state {
	case StateNegotiating, StateConnected:
	default:
		n.log.Debug("not sending local candidate", "state", n.state)
		return
	}
	if err := n.signaler.SendSignal(protocol.CandidateSignal(c)); err != nil {
		n.log.Warn("sending local candidate failed", "error", err)
	}
}

func (n *Negotiator) handleTransportState(s webrtc.PeerConnectionState) {
	n.transport = s
	if s == webrtc.PeerConnectionStateFailed && (n.state == StateNegotiating || n.state == StateConnected) {
		n.fail(ErrTransportFailed)
		return
	}
	n.publish()
}

func (n *Negotiator) handleClose() {
	if n.state == StateClosed {
		return
	}
	n.pending = nil
	if err := n.pc.Close(); err != nil {
		n.log.Debug("closing peer connection", "error", err)
	}
	n.setState(StateClosed)
	n.closeOnce.Do(func() { close(n.done) })
}

func (n *Negotiator) fail(err error) {
	n.err = err
	n.log.Error("negotiation stopped", "role", n.role, "error", err)
	n.setState(StateFailed)
}

func (n *Negotiator) setState(s State) {
	if n.state != s {
		n.log.Debug("state change", "from", n.state, "to", s, "role", n.role)
	}
	n.state = s
	n.publish()
}

// publish refreshes the snapshot and notifies the observer.
func (n *Negotiator) publish() {
	st := Status{
		State:             n.state,
		Role:              n.role,
		Err:               n.err,
		Transport:         n.transport,
		PendingCandidates: len(n.pending),
		AppliedCandidates: n.applied,
		DroppedCandidates: n.dropped,
	}
	n.statusMu.Lock()
	n.status = st
	n.statusMu.Unlock()

	if n.onChange != nil {
		n.onChange(st)
	}
}
