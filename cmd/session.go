package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiator"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

// addCallFlags registers the flags shared by create and join. Names match
// config keys with dashes for underscores.
func addCallFlags(fs *pflag.FlagSet) {
	fs.StringP("domain", "d", "", "Custom domain")
	fs.String("server-url", "", "Relay websocket URL (default wss://<domain>/ws)")
	fs.StringP("stun", "s", "", "Custom STUN server")
	fs.StringP("turn", "t", "", "Custom TURN server")
	fs.StringP("turn-user", "u", "", "TURN username")
	fs.StringP("turn-pass", "p", "", "TURN password")
	fs.BoolP("relay", "r", false, "Force relay mode")
	fs.StringP("audio", "a", "", "Ogg/Opus file to send as the microphone")
	fs.StringP("video", "v", "", "IVF (VP8, VP9, AV1) file to send as the camera")
	fs.Bool("loop", false, "Loop the media files")
	fs.Bool("stay", false, "Stay in the room after the peer leaves")
	fs.Bool("plain", false, "Print call events as lines instead of the live view")
}

// LoadConfig resolves the configuration for cmd from its flags, the
// environment and the --config file.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, call.NewError("load config", err)
	}
	cfg, err := loader.Load(flagConfigFile)
	if err != nil {
		return nil, call.NewError("load config", err)
	}
	return cfg, nil
}

func capturerFor(cfg *config.Config) media.Capturer {
	if cfg.AudioPath == "" && cfg.VideoPath == "" {
		return nil
	}
	return media.FileCapturer{AudioPath: cfg.AudioPath, VideoPath: cfg.VideoPath, Loop: cfg.Loop}
}

// runCall opens a session in roomID, or a new room when roomID is empty,
// and drives it until the call ends.
func runCall(cmd *cobra.Command, roomID string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	plain, _ := cmd.Flags().GetBool("plain")

	capturer := capturerFor(cfg)
	if capturer == nil {
		ui.PrintWarning("No --audio or --video given, the call is receive-only")
	}

	sess, err := call.NewSession(call.Options{
		Config:   cfg,
		Capturer: capturer,
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	creating := roomID == ""
	roomID, err = sess.Open(ctx, roomID)
	if err != nil {
		sp.Error("Could not enter the room")
		return err
	}
	if creating {
		sp.Stop()
		fmt.Println(ui.NewRoomInfo(roomID, cfg.GetRoomLink(roomID)).View())
	} else {
		sp.Success(fmt.Sprintf("Joined room %s", ui.BoldStyle.Render(roomID)))
	}

	if plain {
		err = runPlain(ctx, sess)
	} else {
		err = runLive(ctx, sess, roomID)
	}
	sess.Close()

	fmt.Println()
	ui.RenderSummary(ui.IconStats+" Call Summary", sess.Summary())
	return err
}

func runLive(ctx context.Context, sess *call.Session, roomID string) error {
	view := ui.NewCallUI(ui.NewCallModel(roomID, sess.Hangup, sess.Stats))
	view.Start()
	go view.Forward(sess.Events(), sess.Done())

	runErr := sess.Run(ctx)
	if err := view.Finish(runErr); err != nil {
		slog.Debug("call view stopped", "error", err)
	}
	return runErr
}

func runPlain(ctx context.Context, sess *call.Session) error {
	sp := ui.NewWaitingSpinner("Waiting for the other participant...")
	sp.Start()
	defer sp.Stop()

	go func() {
		for {
			select {
			case ev := <-sess.Events():
				sp.Stop()
				printEvent(sess.RoomID(), ev)
			case <-sess.Done():
				return
			}
		}
	}()
	return sess.Run(ctx)
}

func printEvent(roomID string, ev call.Event) {
	switch ev.Kind {
	case call.EventStateChanged:
		if ev.Status.State == negotiator.StateConnected && ev.Status.Transport == webrtc.PeerConnectionStateConnected {
			ui.PrintSuccess(fmt.Sprintf("Connected as %s", ev.Status.Role))
			return
		}
		ui.PrintInfof("%s (%s)", ui.Phase(ev.Status), ev.Status.Role)
	case call.EventRemoteTrack:
		ui.PrintInfof("Receiving %s (%s)", ev.Track.Kind, ev.Track.Codec)
	case call.EventRemoteMedia:
		ui.PrintInfof("Peer sends audio=%t video=%t", ev.Media.Audio, ev.Media.Video)
	case call.EventPeerLeft:
		ui.PrintWarningf("Peer left room %s", roomID)
	case call.EventHangup:
		ui.PrintWarning("Peer hung up")
	case call.EventError:
		if ev.Err != nil {
			ui.PrintErrorf("%v", ev.Err)
		}
	}
}
