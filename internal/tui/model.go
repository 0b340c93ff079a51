// Package tui renders a chat session in the terminal.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/session"
	"github.com/VladFo01/chatlink/chatlink/upload"
)

const helpText = `Commands:
  /upload <path>  upload a file for processing
  /help           toggle this help
  /quit           leave the chat
Start a message with // to send a literal slash.`

// Model is the bubbletea model for a chat session.
type Model struct {
	ctx     context.Context
	session *session.Session
	user    string

	viewport viewport.Model
	input    textinput.Model
	progress progress.Model
	width    int
	height   int
	ready    bool

	state     chatlink.ConnectionState
	notice    string
	noticeErr bool
	showHelp  bool

	uploading bool
	job       upload.Job
}

// New builds a model around s. The session is started by Init.
func New(ctx context.Context, s *session.Session, user string) *Model {
	in := textinput.New()
	in.Placeholder = "Send a message..."
	in.Prompt = user + ": "
	in.CharLimit = 4000
	in.Focus()

	return &Model{
		ctx:      ctx,
		session:  s,
		user:     user,
		viewport: viewport.New(80, 20),
		input:    in,
		progress: progress.New(progress.WithDefaultGradient()),
		state:    chatlink.StateDisconnected,
		notice:   "Connecting...",
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, s *session.Session, user string) error {
	p := tea.NewProgram(New(ctx, s, user), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start(), m.waitForUpdate())
}

func (m *Model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.session.Start(m.ctx)}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.session.Updates():
			return sessionUpdateMsg{update: u}
		case <-m.session.Done():
			return sessionClosedMsg{}
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, m.quit()
		case tea.KeyEsc:
			if m.showHelp {
				m.showHelp = false
				return m, nil
			}
			return m, m.quit()
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case startedMsg:
		if msg.err != nil {
			m.setNotice("connect failed: "+msg.err.Error(), true)
		}
		return m, nil

	case sessionUpdateMsg:
		m.apply(msg.update)
		return m, m.waitForUpdate()

	case sessionClosedMsg:
		return m, tea.Quit

	case sentMsg:
		if msg.err != nil {
			m.setNotice("send failed: "+msg.err.Error(), true)
		}
		return m, nil

	case uploadDoneMsg:
		m.uploading = false
		m.job = msg.job
		if msg.err != nil {
			m.setNotice(msg.err.Error(), true)
		} else {
			m.setNotice(filepath.Base(msg.job.Path)+" processed", false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submit(line string) tea.Cmd {
	c := parseInput(line)
	switch c.kind {
	case cmdNone:
		return nil
	case cmdQuit:
		return m.quit()
	case cmdHelp:
		m.showHelp = !m.showHelp
		return nil
	case cmdUnknown:
		m.setNotice(c.arg, true)
		return nil
	case cmdUpload:
		if m.uploading {
			m.setNotice("an upload is already running", true)
			return nil
		}
		m.uploading = true
		m.job = upload.Job{Path: c.arg, Status: upload.StatusPending}
		m.setNotice("uploading "+filepath.Base(c.arg), false)
		path := c.arg
		return func() tea.Msg {
			job, err := m.session.Upload(m.ctx, path)
			return uploadDoneMsg{job: job, err: err}
		}
	case cmdSend:
		if !m.session.CanSend() {
			m.setNotice("not connected, message not sent", true)
			return nil
		}
		text := c.arg
		return func() tea.Msg {
			return sentMsg{err: m.session.Send(m.ctx, text)}
		}
	}
	return nil
}

func (m *Model) quit() tea.Cmd {
	_ = m.session.Close()
	return tea.Quit
}

func (m *Model) apply(u session.Update) {
	switch u.Kind {
	case session.UpdateMessage, session.UpdateStatus:
		m.refresh()
	case session.UpdateConnection:
		m.state = u.State
		switch {
		case u.State == chatlink.StateConnected:
			m.setNotice("connected", false)
		case u.Err != nil && chatlink.IsFatal(u.Err):
			m.setNotice(u.Err.Error(), true)
		case u.State == chatlink.StateConnecting:
			m.setNotice("connecting...", false)
		case u.Err != nil:
			m.setNotice("connection lost, retrying", true)
		}
	case session.UpdateError:
		m.setNotice(u.Err.Error(), true)
	case session.UpdateUpload:
		m.job = u.Job
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.input.Width = w - 4 - lipgloss.Width(m.input.Prompt)
	m.progress.Width = w - 20
	m.viewport.Width = w
	m.viewport.Height = h - 6
	m.ready = true
	m.refresh()
}

func (m *Model) refresh() {
	msgs := m.session.Messages()
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, renderMessage(msg, m.user))
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(strings.Join(lines, "\n")))
	m.viewport.GotoBottom()
}

func renderMessage(msg session.Message, self string) string {
	ts := timestampStyle.Render(msg.Timestamp.Local().Format("15:04"))
	var sender string
	switch {
	case msg.Sender == session.SystemSender:
		return ts + " " + systemStyle.Render(msg.Content)
	case msg.Sender == self && msg.Status != session.StatusReceived:
		sender = selfStyle.Render(msg.Sender)
	default:
		sender = peerStyle.Render(msg.Sender)
	}

	line := fmt.Sprintf("%s %s: %s", ts, sender, msg.Content)
	switch msg.Status {
	case session.StatusSending:
		line += statusStyle.Render(" …")
	case session.StatusFailed:
		line += errorStyle.Render(" (not sent)")
	}
	return line
}

func (m *Model) View() string {
	if !m.ready {
		return "Starting...\n"
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(helpStyle.Render(helpText))
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	if m.uploading {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			filepath.Base(m.job.Path), m.progress.ViewAs(float64(m.job.Progress)/100), m.job.Status))
	} else {
		b.WriteString("\n")
	}
	b.WriteString(inputStyle.Width(m.width - 2).Render(m.input.View()))
	return b.String()
}

func (m *Model) header() string {
	var indicator string
	switch m.state {
	case chatlink.StateConnected:
		indicator = onlineStyle.Render("● online")
	case chatlink.StateConnecting:
		indicator = pendingStyle.Render("● connecting")
	default:
		indicator = offlineStyle.Render("● offline")
	}
	notice := statusStyle.Render(m.notice)
	if m.noticeErr {
		notice = errorStyle.Render(m.notice)
	}
	return indicator + "  " + notice
}
