package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrMediaAcquisitionFailed is returned when local capture cannot start. The
// call continues receive-only.
var ErrMediaAcquisitionFailed = errors.New("media acquisition failed")

// LocalTrack is a captured source bound to an outgoing track.
type LocalTrack interface {
	Track() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType

	// Run writes samples onto the track until ctx is done or the source is
	// exhausted.
	Run(ctx context.Context) error

	Stats() TrackStats
}

// Capturer acquires the host's capture tracks.
type Capturer interface {
	Capture(ctx context.Context) ([]LocalTrack, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context) ([]LocalTrack, error)

func (f CapturerFunc) Capture(ctx context.Context) ([]LocalTrack, error) { return f(ctx) }

// RemoteTrack describes a track the other participant is sending.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Codec    string
}

// TrackStats counts what went through one track.
type TrackStats struct {
	ID      string
	Kind    string
	Codec   string
	Local   bool
	Packets uint64
	Bytes   uint64
	Lost    uint64
}
