package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atharve16/MediMate/internal/session"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const commandTimeout = 30 * time.Second

// Controller is the part of *session.Engine the call view drives.
type Controller interface {
	Call(ctx context.Context) error
	Accept(ctx context.Context) error
	Decline(ctx context.Context) error
	End(ctx context.Context) error
	AddVideo(ctx context.Context) error
	ToggleAudio(ctx context.Context) (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	Subscribe() (<-chan session.Snapshot, func())
	Done() <-chan struct{}
}

type (
	snapshotMsg session.Snapshot
	stoppedMsg  struct{}
	resultMsg   struct {
		action string
		err    error
	}
)

// CallModel renders one participant's session and maps keys to commands.
type CallModel struct {
	ctrl    Controller
	updates <-chan session.Snapshot
	cancel  func()
	server  string

	snap        session.Snapshot
	spinner     spinner.Model
	notice      string
	failed      bool
	connectedAt time.Time
	lastRoom    string
	lastRemote  string
	summary     *CallSummary
	quitting    bool
}

// NewCallModel subscribes to ctrl's snapshots. server is shown in the room
// box once the join is acknowledged.
func NewCallModel(ctrl Controller, server string) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	updates, cancel := ctrl.Subscribe()
	return &CallModel{
		ctrl:    ctrl,
		updates: updates,
		cancel:  cancel,
		server:  server,
		spinner: s,
	}
}

// Summary returns the last finished call, if any.
func (m *CallModel) Summary() *CallSummary {
	return m.summary
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), m.watchStop())
}

func (m *CallModel) listen() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.updates
		if !ok {
			return stoppedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m *CallModel) watchStop() tea.Cmd {
	return func() tea.Msg {
		<-m.ctrl.Done()
		return stoppedMsg{}
	}
}

// run executes a session command off the bubbletea loop.
func (m *CallModel) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return resultMsg{action: action, err: fn(ctx)}
	}
}

func (m *CallModel) toggle(action string, fn func(ctx context.Context) (bool, error)) tea.Cmd {
	return m.run(action, func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	})
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.key(msg.String())

	case snapshotMsg:
		m.observe(session.Snapshot(msg))
		return m, m.listen()

	case resultMsg:
		switch {
		case msg.err == nil:
			m.notice, m.failed = "", false
		case errors.Is(msg.err, session.ErrStopped):
			return m, m.quit()
		default:
			m.notice, m.failed = fmt.Sprintf("%s: %v", msg.action, msg.err), true
		}
		return m, nil

	case stoppedMsg:
		return m, m.quit()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *CallModel) key(k string) tea.Cmd {
	switch k {
	case "q", "ctrl+c":
		if m.snap.State == session.Idle {
			return m.quit()
		}
		// Leave the room before the program exits.
		end := m.run("end", m.ctrl.End)
		return tea.Sequence(end, m.quit())
	case "c":
		return m.run("call", m.ctrl.Call)
	case "a":
		return m.run("accept", m.ctrl.Accept)
	case "d":
		return m.run("decline", m.ctrl.Decline)
	case "e":
		return m.run("end", m.ctrl.End)
	case "v":
		return m.run("add video", m.ctrl.AddVideo)
	case "m":
		return m.toggle("mute", m.ctrl.ToggleAudio)
	case "o":
		return m.toggle("camera", m.ctrl.ToggleVideo)
	}
	return nil
}

func (m *CallModel) quit() tea.Cmd {
	if m.quitting {
		return nil
	}
	m.quitting = true
	m.cancel()
	return tea.Quit
}

// observe records a snapshot and keeps what the summary needs.
func (m *CallModel) observe(s session.Snapshot) {
	prev := m.snap
	m.snap = s

	if s.Room != "" {
		m.lastRoom = s.Room
	}
	if s.Remote.ID != "" {
		m.lastRemote = s.Remote.Display()
	}
	if s.State == session.Connected && prev.State != session.Connected {
		m.connectedAt = time.Now()
	}
	if prev.State == session.Connected && s.State != session.Connected {
		m.summary = &CallSummary{
			Room:     m.lastRoom,
			Remote:   m.lastRemote,
			Duration: time.Since(m.connectedAt),
			Reason:   s.Err,
		}
	}
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	s := m.snap

	b.WriteString(TitleStyle.Render(IconCall+" MediMate") + "\n")
	fmt.Fprintf(&b, "%s  %s\n\n", badge(s.State), m.status())

	if s.Room != "" {
		b.WriteString(RoomInfoView(s.Room, m.server) + "\n\n")
	}

	var call strings.Builder
	fmt.Fprintf(&call, "%s You:   %s  %s\n", IconPeer, s.LocalID, mediaIcons(s.LocalAudio, s.LocalVideo))
	if s.Remote.ID != "" {
		fmt.Fprintf(&call, "%s Peer:  %s", IconPeer, s.Remote.Display())
		if s.State == session.Connected {
			fmt.Fprintf(&call, "  %s", mediaIcons(s.RemoteAudio, s.RemoteVideo))
		}
		call.WriteString("\n")
	}
	if s.Transport != "" {
		fmt.Fprintf(&call, "%s Link:  %s\n", IconConnect, s.Transport)
	}
	if s.State == session.Connected && !m.connectedAt.IsZero() {
		fmt.Fprintf(&call, "%s Time:  %s\n", IconTime, time.Since(m.connectedAt).Round(time.Second))
	}
	b.WriteString(CallBoxStyle.Render(strings.TrimRight(call.String(), "\n")) + "\n")

	switch {
	case m.notice != "" && m.failed:
		b.WriteString("\n" + ErrorStyle.Render(IconError+" "+m.notice) + "\n")
	case s.Err != "":
		b.WriteString("\n" + WarningStyle.Render(IconWarning+" "+s.Err) + "\n")
	}

	if m.summary != nil && s.State != session.Connected {
		b.WriteString("\n" + CallSummaryView(*m.summary) + "\n")
	}

	b.WriteString("\n" + m.help())
	return b.String()
}

func (m *CallModel) status() string {
	s := m.snap
	switch s.State {
	case session.Discovering:
		if s.Remote.ID == "" {
			return m.spinner.View() + " Waiting for someone to join..."
		}
		return s.Remote.Display() + " is here"
	case session.Calling:
		return m.spinner.View() + " Calling " + s.Remote.Display() + "..."
	case session.Ringing:
		return IconRinging + " " + s.Remote.Display() + " is calling"
	case session.Connected:
		return "In call with " + s.Remote.Display()
	}
	return "Not in a room"
}

func (m *CallModel) help() string {
	var keys []string
	add := func(k, what string) {
		keys = append(keys, KeyStyle.Render(k)+" "+MutedStyle.Render(what))
	}

	switch m.snap.State {
	case session.Discovering:
		if m.snap.Remote.ID != "" {
			add("c", "call")
		}
		add("e", "leave")
	case session.Ringing:
		add("a", "accept")
		add("d", "decline")
		add("e", "leave")
	case session.Calling:
		add("v", "add video")
		add("e", "hang up")
	case session.Connected:
		add("m", "mute")
		add("o", "camera")
		add("v", "add video")
		add("e", "hang up")
	}
	add("q", "quit")
	return strings.Join(keys, "  ")
}

func badge(s session.State) string {
	label := strings.ToUpper(s.String())
	switch s {
	case session.Discovering:
		return DiscoveringBadge.Render(label)
	case session.Calling:
		return CallingBadge.Render(label)
	case session.Ringing:
		return RingingBadge.Render(label)
	case session.Connected:
		return ConnectedBadge.Render(label)
	}
	return IdleBadge.Render(label)
}

func mediaIcons(audio, video bool) string {
	mic, cam := IconMicOff, IconCameraOff
	if audio {
		mic = IconMic
	}
	if video {
		cam = IconCamera
	}
	return mic + " " + cam
}

// RunCall shows the call view until the user quits or the session stops.
// It returns the last finished call, if there was one.
func RunCall(ctrl Controller, server string) (*CallSummary, error) {
	m := NewCallModel(ctrl, server)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return nil, err
	}
	return m.Summary(), nil
}
