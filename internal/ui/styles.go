package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary   = lipgloss.Color("#34d399") // Mint accent
	Secondary = lipgloss.Color("#60a5fa") // Blue
	Success   = lipgloss.Color("#10B981") // Emerald
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray
)

// Text styles
var (
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	TitleStyle   = BoldStyle.Foreground(Primary).MarginBottom(1)
	SuccessStyle = BoldStyle.Foreground(Success)
	ErrorStyle   = BoldStyle.Foreground(Error)
	KeyStyle     = BoldStyle.Foreground(Secondary)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
)

// Box styles
var (
	CallBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Primary).Padding(1, 2)
	RoomBoxStyle = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(Success).Padding(0, 2)
)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle = tableCellStyle.Foreground(lipgloss.Color("255"))

	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

// Status badges, one per session state.
var (
	badgeBase = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#111827"))

	IdleBadge        = badgeBase.Background(Muted)
	DiscoveringBadge = badgeBase.Background(Secondary)
	CallingBadge     = badgeBase.Background(Warning)
	RingingBadge     = badgeBase.Background(Warning)
	ConnectedBadge   = badgeBase.Background(Success)
)

const (
	IconSuccess   = "✅"
	IconError     = "❌"
	IconWarning   = "⚠️"
	IconPeer      = "👤"
	IconConnect   = "🔌"
	IconTime      = "⏱️"
	IconCall      = "📞"
	IconRinging   = "🔔"
	IconMic       = "🎙️"
	IconMicOff    = "🔇"
	IconCamera    = "📷"
	IconCameraOff = "🚫"
	IconCopy      = "📋"
)

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

