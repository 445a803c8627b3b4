package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// TrackAdder is the part of *webrtc.PeerConnection the pipeline binds to.
type TrackAdder interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
}

// Pipeline owns local capture and observes remote media for one session.
type Pipeline struct {
	capturer Capturer
	log      *slog.Logger
	onRemote func(RemoteTrack)

	acquireOnce sync.Once
	tracks      []LocalTrack
	acquireErr  error

	mu      sync.Mutex
	remote  map[string]*remoteCounter
	order   []string
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewPipeline creates a pipeline. A nil capturer makes the session
// receive-only. onRemote, if set, is called once per remote track.
func NewPipeline(capturer Capturer, onRemote func(RemoteTrack), logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		capturer: capturer,
		log:      logger.With("component", "media"),
		onRemote: onRemote,
		remote:   make(map[string]*remoteCounter),
	}
}

// Acquire runs the capturer once. Later calls return the first result. On
// failure the error wraps ErrMediaAcquisitionFailed and whatever tracks could
// be opened are still returned.
func (p *Pipeline) Acquire(ctx context.Context) ([]LocalTrack, error) {
	p.acquireOnce.Do(func() {
		if p.capturer == nil {
			return
		}
		tracks, err := p.capturer.Capture(ctx)
		p.tracks = tracks
		if err != nil {
			p.acquireErr = fmt.Errorf("%w: %w", ErrMediaAcquisitionFailed, err)
			p.log.Warn("capture failed", "tracks", len(tracks), "error", err)
		}
	})
	return p.tracks, p.acquireErr
}

// Tracks returns the acquired local tracks.
func (p *Pipeline) Tracks() []LocalTrack {
	return p.tracks
}

// Attach binds the local tracks to pc. For audio or video without a local
// track a receive-only transceiver is added so the remote side's media is
// still negotiated. Call it before any description is created.
func (p *Pipeline) Attach(pc TrackAdder) error {
	have := make(map[webrtc.RTPCodecType]bool)
	for _, t := range p.tracks {
		sender, err := pc.AddTrack(t.Track())
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		have[t.Kind()] = true
		go drainRTCP(sender)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors like NACK keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	if sender == nil {
		return
	}
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// HandleRemoteTrack is installed with PeerConnection.OnTrack. It reports the
// track and then reads it until it ends.
func (p *Pipeline) HandleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	info := RemoteTrack{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind(),
		Codec:    track.Codec().MimeType,
	}
	p.consume(info, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
}

func (p *Pipeline) consume(info RemoteTrack, read func() (*rtp.Packet, error)) {
	p.log.Info("remote track", "id", info.ID, "kind", info.Kind, "codec", info.Codec)

	c := &remoteCounter{info: info}
	p.mu.Lock()
	if _, ok := p.remote[info.ID]; !ok {
		p.order = append(p.order, info.ID)
	}
	p.remote[info.ID] = c
	p.mu.Unlock()

	if p.onRemote != nil {
		p.onRemote(info)
	}

	for {
		pkt, err := read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Debug("remote track ended", "id", info.ID, "error", err)
			}
			return
		}
		c.observe(pkt)
	}
}

// Start begins writing local samples. It is a no-op when already started.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for _, t := range p.tracks {
		p.running.Add(1)
		go func(t LocalTrack) {
			defer p.running.Done()
			if err := t.Run(ctx); err != nil {
				p.log.Warn("local track stopped", "kind", t.Kind(), "error", err)
			}
		}(t)
	}
}

// Stop ends local sample writing and waits for the writers to return.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.running.Wait()
	}
}

// Stats reports local tracks first, then remote tracks in arrival order.
func (p *Pipeline) Stats() []TrackStats {
	var out []TrackStats
	for _, t := range p.tracks {
		out = append(out, t.Stats())
	}
	local := len(out)

	p.mu.Lock()
	for _, id := range p.order {
		out = append(out, p.remote[id].stats())
	}
	p.mu.Unlock()

	sort.SliceStable(out[:local], func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

type remoteCounter struct {
	info RemoteTrack

	mu      sync.Mutex
	packets uint64
	bytes   uint64
	lost    uint64
	lastSeq uint16
	seen    bool
}

func (c *remoteCounter) observe(pkt *rtp.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen {
		if gap := pkt.SequenceNumber - c.lastSeq; gap > 1 && gap < 1<<15 {
			c.lost += uint64(gap - 1)
		}
	}
	if !c.seen || seqAfter(pkt.SequenceNumber, c.lastSeq) {
		c.lastSeq = pkt.SequenceNumber
	}
	c.seen = true
	c.packets++
	c.bytes += uint64(len(pkt.Payload))
}

// seqAfter reports whether a follows b, accounting for wraparound.
func seqAfter(a, b uint16) bool {
	return a != b && a-b < 1<<15
}

func (c *remoteCounter) stats() TrackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TrackStats{
		ID:      c.info.ID,
		Kind:    c.info.Kind.String(),
		Codec:   c.info.Codec,
		Packets: c.packets,
		Bytes:   c.bytes,
		Lost:    c.lost,
	}
}
