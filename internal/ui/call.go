package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiator"
)

const statsInterval = 500 * time.Millisecond

// EventMsg carries a session event into the call view.
type EventMsg struct{ Event call.Event }

// FinishedMsg ends the call view.
type FinishedMsg struct{ Err error }

type statsTickMsg time.Time

// CallModel is the live call view.
type CallModel struct {
	roomID   string
	status   negotiator.Status
	remote   []media.RemoteTrack
	media    *call.MediaState
	notice   string
	stats    []media.TrackStats
	started  time.Time
	quitting bool
	err      error

	spinner spinner.Model
	link    progress.Model

	onHangup func()
	statsFn  func() []media.TrackStats
}

// NewCallModel builds the view. onHangup is called when the user presses q,
// statsFn is polled for track counters. Both may be nil.
func NewCallModel(roomID string, onHangup func(), statsFn func() []media.TrackStats) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		roomID:   roomID,
		started:  time.Now(),
		spinner:  s,
		onHangup: onHangup,
		statsFn:  statsFn,
		link: progress.New(
			progress.WithGradient(LinkGradientStart, LinkGradientEnd),
			progress.WithWidth(25),
			progress.WithoutPercentage(),
		),
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg { return statsTickMsg(t) })
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, statsTick())
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.onHangup != nil {
				m.onHangup()
			}
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.link.Width = max(10, min(25, msg.Width-40))

	case EventMsg:
		m.apply(msg.Event)

	case FinishedMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit

	case statsTickMsg:
		if m.statsFn != nil {
			m.stats = m.statsFn()
		}
		if !m.quitting {
			return m, statsTick()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.link.Update(msg)
		m.link = model.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *CallModel) apply(ev call.Event) {
	switch ev.Kind {
	case call.EventStateChanged:
		m.status = ev.Status
		if ev.Status.State == negotiator.StateIdle {
			m.remote = nil
			m.media = nil
		}
	case call.EventRemoteTrack:
		m.remote = append(m.remote, ev.Track)
	case call.EventRemoteMedia:
		state := ev.Media
		m.media = &state
	case call.EventPeerLeft:
		m.notice = IconPeer + " Peer left the room"
	case call.EventHangup:
		m.notice = IconHangup + " Peer hung up"
	case call.EventError:
		if ev.Err != nil {
			m.notice = IconWarning + " " + ev.Err.Error()
		}
	}
}

// Phase describes where the call is, for the status line.
func Phase(st negotiator.Status) string {
	switch st.State {
	case negotiator.StateIdle:
		return "Waiting for peer"
	case negotiator.StateNegotiating:
		return fmt.Sprintf("Negotiating as %s", st.Role)
	case negotiator.StateConnected:
		if st.Transport == webrtc.PeerConnectionStateConnected {
			return "Connected"
		}
		return "Connecting media"
	case negotiator.StateFailed:
		if st.Err != nil {
			return "Failed: " + st.Err.Error()
		}
		return "Failed"
	case negotiator.StateClosed:
		return "Call ended"
	default:
		return st.State.String()
	}
}

// LinkQuality is the share of remote packets that arrived.
func LinkQuality(stats []media.TrackStats) float64 {
	var got, lost uint64
	for _, ts := range stats {
		if ts.Local {
			continue
		}
		got += ts.Packets
		lost += ts.Lost
	}
	if got+lost == 0 {
		return 0
	}
	return float64(got) / float64(got+lost)
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n%s %s  %s\n\n", IconCall, TitleStyle.Render("WarpCall"), MutedStyle.Render(IconRoom+" room "+m.roomID)))

	var box strings.Builder
	phase := Phase(m.status)
	live := m.status.State == negotiator.StateConnected && m.status.Transport == webrtc.PeerConnectionStateConnected
	switch {
	case live:
		box.WriteString(fmt.Sprintf("%s %s  %s\n", IconSuccess, SuccessStyle.Render(phase), MutedStyle.Render(formatDuration(time.Since(m.started)))))
	case m.status.State == negotiator.StateFailed:
		box.WriteString(fmt.Sprintf("%s %s\n", IconError, ErrorStyle.Render(phase)))
	default:
		box.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), phase))
	}

	if m.status.Role != negotiator.RoleUndetermined {
		box.WriteString(MutedStyle.Render(fmt.Sprintf("role %s · transport %s · candidates %d applied, %d pending",
			m.status.Role, m.status.Transport, m.status.AppliedCandidates, m.status.PendingCandidates)))
		box.WriteString("\n")
	}
	b.WriteString(CallBoxStyle.Render(strings.TrimSuffix(box.String(), "\n")) + "\n")

	if m.media != nil {
		b.WriteString(fmt.Sprintf("\n%s Peer sends %s %s\n", IconPeer, onOff(IconAudio, m.media.Audio), onOff(IconVideo, m.media.Video)))
	}
	for _, rt := range m.remote {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("  receiving %s (%s)", rt.Kind, rt.Codec)))
		b.WriteString("\n")
	}

	b.WriteString("\n" + TrackTableView(m.stats) + "\n")
	if live {
		b.WriteString(fmt.Sprintf("Link %s %3.0f%%\n", m.link.ViewAs(LinkQuality(m.stats)), LinkQuality(m.stats)*100))
	}

	if m.notice != "" {
		b.WriteString("\n" + WarningStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + MutedStyle.Render("Press q to hang up"))
	return b.String()
}

func onOff(icon string, on bool) string {
	if on {
		return icon
	}
	return MutedStyle.Render(icon + " off")
}
