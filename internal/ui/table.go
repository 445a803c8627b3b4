package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/media"
)

func direction(ts media.TrackStats) string {
	if ts.Local {
		return "out"
	}
	return "in"
}

// TrackTableView renders live per-track counters for the call view.
func TrackTableView(stats []media.TrackStats) string {
	if len(stats) == 0 {
		return MutedStyle.Render("No media yet")
	}

	rows := make([][]string, 0, len(stats))
	for _, ts := range stats {
		rows = append(rows, []string{
			direction(ts),
			ts.Kind,
			strings.TrimPrefix(ts.Codec, ts.Kind+"/"),
			fmt.Sprintf("%d", ts.Packets),
			formatBytes(ts.Bytes),
			fmt.Sprintf("%d", ts.Lost),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Dir", "Kind", "Codec", "Packets", "Bytes", "Lost").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// SummaryView renders the end-of-call report.
func SummaryView(title string, sum call.Summary) string {
	t := prettytable.NewWriter()
	t.SetTitle(title)
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Room", sum.RoomID},
		{"Role", sum.Role},
		{"Final state", sum.State},
		{"Connected for", formatDuration(sum.Connected)},
		{"Negotiations", sum.Attempts},
	})

	if len(sum.Tracks) == 0 {
		return t.Render()
	}

	tracks := prettytable.NewWriter()
	tracks.SetStyle(prettytable.StyleRounded)
	tracks.AppendHeader(prettytable.Row{"Dir", "Kind", "Codec", "Packets", "Bytes", "Lost"})
	for _, ts := range sum.Tracks {
		tracks.AppendRow(prettytable.Row{direction(ts), ts.Kind, ts.Codec, ts.Packets, formatBytes(ts.Bytes), ts.Lost})
	}
	tracks.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t.Render() + "\n" + tracks.Render()
}

func RenderSummary(title string, sum call.Summary) {
	fmt.Println(SummaryView(title, sum))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		MutedStyle.Render("Join with: warpcall join "+r.RoomID),
	)
	return RoomBoxStyle.Render(content)
}
