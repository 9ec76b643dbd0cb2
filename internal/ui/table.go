package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/atharve16/MediMate/internal/rendezvous"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// RenderRooms writes the rendezvous room listing.
func RenderRooms(w io.Writer, rooms []rendezvous.RoomInfo) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No open rooms"))
		return
	}

	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(prettytable.Row{"Room", "Occupants", "Members"})
	for _, r := range rooms {
		t.AppendRow(prettytable.Row{r.ID, occupancy(r.Participants, r.Capacity), strings.Join(r.Members, ", ")})
	}
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignCenter},
		{Number: 3, WidthMax: 48},
	})
	t.AppendFooter(prettytable.Row{"", fmt.Sprintf("%d rooms", len(rooms)), ""})
	t.Render()
}

func occupancy(n, capacity int) string {
	if capacity == 0 {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%d/%d", n, capacity)
}

// RoomInfoView is the box shown after a join is acknowledged.
func RoomInfoView(room, server string) string {
	content := fmt.Sprintf("%s Joined room\n\n%s Room:    %s\n%s Server:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(room),
		IconConnect, MutedStyle.Render(server),
		MutedStyle.Render("Share the room name with the other participant."),
	)
	return RoomBoxStyle.Render(content)
}

// CallSummary describes a finished session.
type CallSummary struct {
	Room     string
	Remote   string
	Duration time.Duration
	Reason   string
}

func CallSummaryView(s CallSummary) string {
	reason := s.Reason
	if reason == "" {
		reason = "ended"
	}
	rows := [][]string{
		{"Room", s.Room},
		{"Peer", s.Remote},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Result", reason},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Call", "").
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
		})

	return tbl.Render()
}
