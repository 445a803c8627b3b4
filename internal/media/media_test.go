package media

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeIVF writes a minimal IVF file with the given frames at 1/rate s each.
func writeIVF(t *testing.T, fourcc string, rate uint32, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.ivf")

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:6], 0)
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:14], 640)
	binary.LittleEndian.PutUint16(header[14:16], 480)
	binary.LittleEndian.PutUint32(header[16:20], rate)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(frames)))

	buf := header
	for i, f := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:4], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:12], uint64(i))
		buf = append(buf, fh...)
		buf = append(buf, f...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

// writeOgg writes an Ogg/Opus file with n 20ms pages.
func writeOgg(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.ogg")

	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestFileCapturer(t *testing.T) {
	video := writeIVF(t, "VP80", 30, [][]byte{{1, 2, 3}, {4, 5}, {6}})
	audio := writeOgg(t, 3)

	tracks, err := FileCapturer{AudioPath: audio, VideoPath: video}.Capture(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	require.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind())
	require.Equal(t, webrtc.MimeTypeOpus, tracks[0].Stats().Codec)
	require.Equal(t, webrtc.RTPCodecTypeVideo, tracks[1].Kind())
	require.Equal(t, webrtc.MimeTypeVP8, tracks[1].Stats().Codec)
	require.Equal(t, defaultStreamID, tracks[1].Track().StreamID())
}

func TestFileCapturerReturnsPartialTracks(t *testing.T) {
	audio := writeOgg(t, 1)
	missing := filepath.Join(t.TempDir(), "nope.ivf")

	tracks, err := FileCapturer{AudioPath: audio, VideoPath: missing}.Capture(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.Len(t, tracks, 1)
	require.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind())
}

func TestFileCapturerRejectsUnknownCodec(t *testing.T) {
	video := writeIVF(t, "H264", 30, [][]byte{{1}})
	_, err := FileCapturer{VideoPath: video}.Capture(context.Background())
	require.ErrorContains(t, err, "unsupported ivf codec")
}

func TestTracksPlayToEnd(t *testing.T) {
	video := writeIVF(t, "VP90", 100, [][]byte{{1, 2, 3}, {4, 5}, {6}})
	audio := writeOgg(t, 4)

	tracks, err := FileCapturer{AudioPath: audio, VideoPath: video}.Capture(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, tr := range tracks {
		require.NoError(t, tr.Run(ctx))
	}

	require.Equal(t, uint64(4), tracks[0].Stats().Packets)
	require.Equal(t, uint64(3), tracks[1].Stats().Packets)
	require.Equal(t, uint64(6), tracks[1].Stats().Bytes)
}

func TestLoopingTrackStopsWithContext(t *testing.T) {
	video := writeIVF(t, "AV01", 100, [][]byte{{1}})
	tracks, err := FileCapturer{VideoPath: video, Loop: true}.Capture(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, tracks[0].Run(ctx))
	require.Greater(t, tracks[0].Stats().Packets, uint64(1))
}

func TestPipelineAcquireOnce(t *testing.T) {
	calls := 0
	p := NewPipeline(CapturerFunc(func(context.Context) ([]LocalTrack, error) {
		calls++
		return nil, errors.New("no camera")
	}), nil, quiet)

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(context.Background())
		require.ErrorIs(t, err, ErrMediaAcquisitionFailed)
	}
	require.Equal(t, 1, calls)
}

func TestPipelineAttachAddsReceiveOnlyTransceivers(t *testing.T) {
	audio := writeOgg(t, 1)
	p := NewPipeline(FileCapturer{AudioPath: audio}, nil, quiet)
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	require.NoError(t, p.Attach(pc))

	directions := make(map[webrtc.RTPCodecType]webrtc.RTPTransceiverDirection)
	for _, tr := range pc.GetTransceivers() {
		directions[tr.Kind()] = tr.Direction()
	}
	require.Equal(t, webrtc.RTPTransceiverDirectionSendrecv, directions[webrtc.RTPCodecTypeAudio])
	require.Equal(t, webrtc.RTPTransceiverDirectionRecvonly, directions[webrtc.RTPCodecTypeVideo])
}

func TestPipelineReceiveOnly(t *testing.T) {
	p := NewPipeline(nil, nil, quiet)
	tracks, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Empty(t, tracks)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	require.NoError(t, p.Attach(pc))
	require.Len(t, pc.GetTransceivers(), 2)
	for _, tr := range pc.GetTransceivers() {
		require.Equal(t, webrtc.RTPTransceiverDirectionRecvonly, tr.Direction())
	}
}

func TestPipelineCountsRemotePackets(t *testing.T) {
	var seen []RemoteTrack
	p := NewPipeline(nil, func(rt RemoteTrack) { seen = append(seen, rt) }, quiet)

	packets := []*rtp.Packet{
		{Header: rtp.Header{SequenceNumber: 65534}, Payload: make([]byte, 10)},
		{Header: rtp.Header{SequenceNumber: 65535}, Payload: make([]byte, 10)},
		{Header: rtp.Header{SequenceNumber: 1}, Payload: make([]byte, 10)},
		{Header: rtp.Header{SequenceNumber: 0}, Payload: make([]byte, 10)},
		{Header: rtp.Header{SequenceNumber: 2}, Payload: make([]byte, 5)},
	}
	read := func() (*rtp.Packet, error) {
		if len(packets) == 0 {
			return nil, io.EOF
		}
		pkt := packets[0]
		packets = packets[1:]
		return pkt, nil
	}

	info := RemoteTrack{ID: "remote-video", Kind: webrtc.RTPCodecTypeVideo, Codec: webrtc.MimeTypeVP8}
	p.consume(info, read)

	require.Equal(t, []RemoteTrack{info}, seen)
	stats := p.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, TrackStats{
		ID: "remote-video", Kind: "video", Codec: webrtc.MimeTypeVP8,
		Packets: 5, Bytes: 45, Lost: 1,
	}, stats[0])
}

func TestPipelineStartStop(t *testing.T) {
	video := writeIVF(t, "VP80", 100, [][]byte{{1}})
	p := NewPipeline(FileCapturer{VideoPath: video, Loop: true}, nil, quiet)
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool { return p.Stats()[0].Packets > 0 }, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	n := p.Stats()[0].Packets
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, p.Stats()[0].Packets)
	p.Stop()
}

func TestPipelineStopReturnsWithLoopingTracks(t *testing.T) {
	video := writeIVF(t, "VP80", 100, [][]byte{{1}, {2}})
	audio := writeOgg(t, 2)
	p := NewPipeline(FileCapturer{AudioPath: audio, VideoPath: video, Loop: true}, nil, quiet)
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		stats := p.Stats()
		return stats[0].Packets > 2 && stats[1].Packets > 2
	}, 3*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		require.FailNow(t, "Stop did not return for looping tracks")
	}
}

func TestLoopingTrackWithoutSamplesReturns(t *testing.T) {
	video := writeIVF(t, "VP80", 100, nil)
	tracks, err := FileCapturer{VideoPath: video, Loop: true}.Capture(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, tracks[0].Run(ctx))
	require.NoError(t, ctx.Err())
	require.Zero(t, tracks[0].Stats().Packets)
}
