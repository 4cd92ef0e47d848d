package ui

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RoomInfo renders the box shown to the host while waiting for the guest.
type RoomInfo struct {
	Code   string
	Domain string
}

func NewRoomInfo(code, domain string) *RoomInfo {
	return &RoomInfo{Code: code, Domain: domain}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Relay:      %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.Code),
		IconConnect, MutedStyle.Render(r.Domain),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(code, domain string) {
	fmt.Println(NewRoomInfo(code, domain).View())
}

// SessionSummary holds the end-of-game stats shown when a session ends.
type SessionSummary struct {
	Role     string
	Outcome  string
	Turns    uint64
	Arrivals uint64
	Resyncs  int
	Duration string
}

// RenderSessionSummary prints the final stats table.
func RenderSessionSummary(title string, summary SessionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Role", summary.Role},
		{"Outcome", summary.Outcome},
		{"Turns Played", summary.Turns},
		{"Pieces Drawn", summary.Arrivals},
		{"Resyncs", summary.Resyncs},
		{"Duration", summary.Duration},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
