package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohanEM99/video-meet/internal/call"
)

const maxChatLines = 12

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

// CallActions are the user commands the call screen can issue.
type CallActions struct {
	SendChat    func(text string) error
	ToggleAudio func()
	ToggleVideo func()
	Leave       func()
}

// EventMsg carries a call.Event into the Bubble Tea loop.
type EventMsg struct {
	Event call.Event
}

// eventBatch is every event queued since the screen last looked.
type eventBatch []call.Event

// CallModel is the Bubble Tea model for an ongoing call.
type CallModel struct {
	roomID   string
	userID   string
	roomLink string

	state   call.State
	peerID  string
	streams []string

	localAudio  bool
	localVideo  bool
	remoteAudio bool
	remoteVideo bool
	remoteKnown bool

	chat   []call.ChatEntry
	notice string
	err    error

	input   textinput.Model
	spinner spinner.Model
	width   int

	actions CallActions

	// Updates from the call's event loop, queued without bound
	mu     sync.Mutex
	queue  []call.Event
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
}

// NewCallModel creates the call screen for roomID.
func NewCallModel(roomID, userID string, actions CallActions) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Type a message and press enter"
	ti.CharLimit = 1000
	ti.Width = 60
	ti.Prompt = IconChat + " "
	ti.Focus()

	return &CallModel{
		roomID:     roomID,
		userID:     userID,
		localAudio: true,
		localVideo: true,
		input:      ti,
		spinner:    s,
		width:      80,
		actions:    actions,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// WithRoomLink sets the link ctrl+l copies.
func (m *CallModel) WithRoomLink(link string) *CallModel {
	m.roomLink = link
	return m
}

// Notify queues a call event for the screen. It never blocks the caller and
// never drops an event.
func (m *CallModel) Notify(e call.Event) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Close stops waiting for events.
func (m *CallModel) Close() {
	m.closed.Do(func() { close(m.done) })
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.waitForEvents(),
	)
}

// waitForEvents returns a command that listens for call events
func (m *CallModel) waitForEvents() tea.Cmd {
	return func() tea.Msg {
		for {
			m.mu.Lock()
			batch := m.queue
			m.queue = nil
			m.mu.Unlock()

			if len(batch) > 0 {
				return eventBatch(batch)
			}

			select {
			case <-m.wake:
			case <-m.done:
				return nil
			}
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.actions.Leave != nil {
				m.actions.Leave()
			}
			return m, tea.Quit

		case "enter":
			text := m.input.Value()
			if m.actions.SendChat != nil {
				if err := m.actions.SendChat(text); err != nil && strings.TrimSpace(text) != "" {
					m.notice = err.Error()
				}
			}
			m.input.Reset()
			return m, nil

		case "ctrl+a":
			if m.actions.ToggleAudio != nil {
				m.actions.ToggleAudio()
			}
			return m, nil

		case "ctrl+e":
			if m.actions.ToggleVideo != nil {
				m.actions.ToggleVideo()
			}
			return m, nil

		case "ctrl+l":
			m.copyLink()
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-10)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case EventMsg:
		m.handleEvent(msg.Event)
		if m.state.Terminal() {
			return m, tea.Quit
		}
		cmds = append(cmds, m.waitForEvents())

	case eventBatch:
		for _, e := range msg {
			m.handleEvent(e)
		}
		if m.state.Terminal() {
			return m, tea.Quit
		}
		cmds = append(cmds, m.waitForEvents())

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) copyLink() {
	if m.roomLink == "" {
		return
	}
	if err := copyToClipboard(m.roomLink); err != nil {
		m.notice = "Could not copy the room link: " + err.Error()
		return
	}
	m.notice = IconCopy + " Room link copied"
}

func (m *CallModel) handleEvent(e call.Event) {
	switch e.Kind {
	case call.EventState:
		m.state = e.State
		if e.State == call.StateWaitingForPeer {
			m.streams = nil
			m.remoteKnown = false
		}

	case call.EventChat:
		m.chat = append(m.chat, e.Chat)
		if len(m.chat) > maxChatLines {
			m.chat = m.chat[len(m.chat)-maxChatLines:]
		}

	case call.EventPeerJoined:
		m.peerID = e.PeerID
		m.notice = "A participant joined"

	case call.EventPeerLeft:
		m.peerID = ""
		m.notice = "The other participant left"

	case call.EventStream:
		m.streams = append(m.streams, e.Stream)

	case call.EventRemoteMedia:
		m.remoteKnown = true
		m.remoteAudio = e.Audio
		m.remoteVideo = e.Video

	case call.EventLocalMedia:
		m.localAudio = e.Audio
		m.localVideo = e.Video

	case call.EventError:
		m.err = e.Err
		m.notice = e.Err.Error()
	}
}

// State returns the last call state the screen saw.
func (m *CallModel) State() call.State {
	return m.state
}

// Err returns the last error the screen saw.
func (m *CallModel) Err() error {
	return m.err
}

func (m *CallModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s meet · %s", IconRoom, m.roomID)))
	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	b.WriteString("\n\n")
	b.WriteString(m.viewMedia())
	b.WriteString("\n\n")
	b.WriteString(m.viewChat())
	b.WriteString("\n")
	b.WriteString(m.input.View())

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(m.notice))
	}

	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter: send · ctrl+a: mic · ctrl+e: camera · ctrl+l: copy link · esc: leave"))

	return ContainerStyle.Render(b.String())
}

func (m *CallModel) viewStatus() string {
	switch m.state {
	case call.StateIdle, call.StateAcquiringMedia:
		return fmt.Sprintf("%s Starting camera and microphone...", m.spinner.View())
	case call.StateJoining:
		return fmt.Sprintf("%s Joining room...", m.spinner.View())
	case call.StateWaitingForPeer:
		return fmt.Sprintf("%s %s Waiting for someone to join %s", m.spinner.View(), IconWaiting, BoldStyle.Render(m.roomID))
	case call.StateConnecting:
		return fmt.Sprintf("%s %s Connecting to peer...", m.spinner.View(), IconConnect)
	case call.StateConnected:
		return StatusStyle.Render("LIVE") + " " + SuccessStyle.Render(fmt.Sprintf("%s Connected", IconPeer))
	case call.StateClosed:
		return MutedStyle.Render("Call ended")
	case call.StateError:
		if m.err != nil {
			return ErrorBoxStyle.Render(FormatError(m.err))
		}
		return ErrorBoxStyle.Render(ErrorStyle.Render("Call failed"))
	}
	return ""
}

func (m *CallModel) viewMedia() string {
	local := fmt.Sprintf("You: %s %s", onOff(IconMic, m.localAudio), onOff(IconCamera, m.localVideo))
	remote := "Peer: " + MutedStyle.Render("-")
	if m.state == call.StateConnected || len(m.streams) > 0 {
		remote = "Peer: " + strings.Join(m.streams, ", ")
		if m.remoteKnown {
			remote += fmt.Sprintf(" %s %s", onOff(IconMic, m.remoteAudio), onOff(IconCamera, m.remoteVideo))
		}
	}
	return local + "   " + remote
}

func onOff(icon string, on bool) string {
	if on {
		return icon
	}
	if icon == IconMic {
		return IconMuted
	}
	return MutedStyle.Render(icon + " off")
}

func (m *CallModel) viewChat() string {
	if len(m.chat) == 0 {
		return ChatBoxStyle.Render(MutedStyle.Render("No messages yet"))
	}

	lines := make([]string, 0, len(m.chat))
	for _, c := range m.chat {
		nameStyle := ChatPeerStyle
		if c.UserID == m.userID {
			nameStyle = ChatSelfStyle
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			ChatTimeStyle.Render(chatClock(c.Timestamp)),
			nameStyle.Render(displayName(c.UserID)+":"),
			c.Message,
		))
	}
	return ChatBoxStyle.Render(strings.Join(lines, "\n"))
}

func displayName(userID string) string {
	if userID == "" {
		return "guest"
	}
	return userID
}

// chatClock shows a server timestamp as local HH:MM.
func chatClock(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
