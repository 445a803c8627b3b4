package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	opusSampleRate  = 48000
	defaultStreamID = "warpcall"
)

// FileCapturer stands in for capture devices with media files: an Ogg/Opus
// file for audio and an IVF (VP8, VP9 or AV1) file for video. Either path may
// be empty.
type FileCapturer struct {
	AudioPath string
	VideoPath string
	Loop      bool
	StreamID  string
}

// Capture opens the configured files. When one file is unusable the tracks
// that could be opened are returned together with the error.
func (f FileCapturer) Capture(ctx context.Context) ([]LocalTrack, error) {
	streamID := f.StreamID
	if streamID == "" {
		streamID = defaultStreamID
	}

	var tracks []LocalTrack
	var errs []error

	if f.AudioPath != "" {
		t, err := newOggTrack(f.AudioPath, streamID, f.Loop)
		if err != nil {
			errs = append(errs, fmt.Errorf("audio %s: %w", f.AudioPath, err))
		} else {
			tracks = append(tracks, t)
		}
	}
	if f.VideoPath != "" {
		t, err := newIVFTrack(f.VideoPath, streamID, f.Loop)
		if err != nil {
			errs = append(errs, fmt.Errorf("video %s: %w", f.VideoPath, err))
		} else {
			tracks = append(tracks, t)
		}
	}
	return tracks, errors.Join(errs...)
}

type counters struct {
	samples atomic.Uint64
	bytes   atomic.Uint64
}

func (c *counters) add(n int) {
	c.samples.Add(1)
	c.bytes.Add(uint64(n))
}

// mimeForFourCC maps IVF codec tags to RTP mime types.
func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
	}
}

type ivfTrack struct {
	path  string
	loop  bool
	track *webrtc.TrackLocalStaticSample
	frame time.Duration
	counters
}

func newIVFTrack(path, streamID string, loop bool) (*ivfTrack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	_, header, err := ivfreader.NewWith(file)
	if err != nil {
		return nil, err
	}
	mime, err := mimeForFourCC(header.FourCC)
	if err != nil {
		return nil, err
	}
	if header.TimebaseDenominator == 0 || header.TimebaseNumerator == 0 {
		return nil, errors.New("ivf header has zero timebase")
	}
	frame := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		return nil, err
	}
	return &ivfTrack{path: path, loop: loop, track: track, frame: frame}, nil
}

func (t *ivfTrack) Track() webrtc.TrackLocal    { return t.track }
func (t *ivfTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

func (t *ivfTrack) Stats() TrackStats {
	return TrackStats{
		ID:      t.track.ID(),
		Kind:    t.Kind().String(),
		Codec:   t.track.Codec().MimeType,
		Local:   true,
		Packets: t.samples.Load(),
		Bytes:   t.bytes.Load(),
	}
}

func (t *ivfTrack) Run(ctx context.Context) error {
	for {
		before := t.samples.Load()
		err := t.playOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil || !t.loop {
			return err
		}
		// a pass that wrote nothing would only spin
		if t.samples.Load() == before {
			return nil
		}
	}
}

func (t *ivfTrack) playOnce(ctx context.Context) error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, _, err := ivfreader.NewWith(file)
	if err != nil {
		return err
	}

	// Pace with a ticker so frames go out at the file's own rate.
	ticker := time.NewTicker(t.frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.track.WriteSample(pionmedia.Sample{Data: frame, Duration: t.frame}); err != nil {
			return err
		}
		t.add(len(frame))
	}
}

type oggTrack struct {
	path  string
	loop  bool
	track *webrtc.TrackLocalStaticSample
	counters
}

func newOggTrack(path, streamID string, loop bool) (*oggTrack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, _, err := oggreader.NewWith(file); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	return &oggTrack{path: path, loop: loop, track: track}, nil
}

func (t *oggTrack) Track() webrtc.TrackLocal    { return t.track }
func (t *oggTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

func (t *oggTrack) Stats() TrackStats {
	return TrackStats{
		ID:      t.track.ID(),
		Kind:    t.Kind().String(),
		Codec:   t.track.Codec().MimeType,
		Local:   true,
		Packets: t.samples.Load(),
		Bytes:   t.bytes.Load(),
	}
}

func (t *oggTrack) Run(ctx context.Context) error {
	for {
		before := t.samples.Load()
		err := t.playOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil || !t.loop {
			return err
		}
		// a pass that wrote nothing would only spin
		if t.samples.Load() == before {
			return nil
		}
	}
}

func (t *oggTrack) playOnce(ctx context.Context) error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		return err
	}

	var lastGranule uint64
	for {
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			lastGranule = header.GranulePosition
			continue
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / opusSampleRate

		if err := t.track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
		t.add(len(page))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
		}
	}
}
