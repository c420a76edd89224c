// Package tui is the terminal chat front end. It renders the transcript,
// feeds answers and slash commands to the session machine, and owns the
// timeline on which host turns are delivered.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/c360studio/intake/catalog"
	"github.com/c360studio/intake/commands"
	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/session"
)

type mode int

const (
	modeLoading mode = iota
	modeChat
	modeConfirmReset
	modeExport
	modeNotice
	modeUnavailable
	modeEmpty
)

// statusTTL is how long a transient status line stays visible.
const statusTTL = 4 * time.Second

// Default input placeholders, restored after a question with its own.
const (
	inputPlaceholder = "Type your answer..."
	areaPlaceholder  = "Type your answer... (ctrl+s to send)"
)

// LoadFunc builds a ready machine. The returned turn, if any, is the first
// host reply to schedule.
type LoadFunc func(ctx context.Context) (*session.Machine, *session.Turn, error)

// Options configures the chat UI.
type Options struct {
	Load         LoadFunc
	Commands     *commands.Registry
	ExportDir    string
	ExportFormat export.Format
	OnExport     func(export.Format, error)
	Logger       *slog.Logger
	Title        string
}

// machineLoadedMsg is sent when the catalog and persisted state are ready.
type machineLoadedMsg struct {
	machine *session.Machine
	turn    *session.Turn
	err     error
}

// hostTurnMsg fires when a host turn's typing delay has elapsed.
type hostTurnMsg struct {
	turn *session.Turn
}

// statusExpiredMsg clears the status line if it is still the one set at seq.
type statusExpiredMsg struct {
	seq int
}

// Model is the bubbletea model of the chat.
type Model struct {
	ctx     context.Context
	opts    Options
	logger  *slog.Logger
	machine *session.Machine
	env     *commands.Env

	mode    mode
	loadErr error

	input    textinput.Model
	area     textarea.Model
	viewport viewport.Model

	feedback  string // validation message under the input
	notice    string // multi-line command output shown in a panel
	status    string
	statusSeq int
	exportIdx int
	formats   []export.Format

	width    int
	height   int
	quitting bool
}

// New creates the chat model. Loading starts when the program runs.
func New(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Commands == nil {
		opts.Commands = commands.Default()
	}
	if opts.Title == "" {
		opts.Title = "Innovabuzz Intake"
	}

	ti := textinput.New()
	ti.Placeholder = inputPlaceholder
	ti.CharLimit = 2000
	ti.Prompt = "> "

	ta := textarea.New()
	ta.Placeholder = areaPlaceholder
	ta.ShowLineNumbers = false
	ta.CharLimit = 5000
	ta.SetHeight(4)

	return Model{
		ctx:      ctx,
		opts:     opts,
		logger:   logger,
		mode:     modeLoading,
		input:    ti,
		area:     ta,
		viewport: viewport.New(80, 20),
		formats:  export.Formats(),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	ctx, load := m.ctx, m.opts.Load
	return func() tea.Msg {
		machine, turn, err := load(ctx)
		return machineLoadedMsg{machine: machine, turn: turn, err: err}
	}
}

// schedule delivers turn after its delay on the program's timeline.
func schedule(turn *session.Turn) tea.Cmd {
	if turn == nil {
		return nil
	}
	return tea.Tick(turn.Delay, func(time.Time) tea.Msg {
		return hostTurnMsg{turn: turn}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case machineLoadedMsg:
		return m.loaded(msg)

	case hostTurnMsg:
		if m.machine == nil {
			return m, nil
		}
		if !m.machine.Deliver(m.ctx, msg.turn) {
			m.logger.Debug("Dropped stale host turn", "gen", msg.turn.Gen)
			return m, nil
		}
		m.focusInput()
		m.layout()
		return m, nil

	case statusExpiredMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.mode {
		case modeLoading:
			return m, nil
		case modeUnavailable, modeEmpty:
			return m.updateUnavailable(msg)
		case modeConfirmReset:
			return m.updateConfirmReset(msg)
		case modeExport:
			return m.updateExport(msg)
		case modeNotice:
			return m.updateNotice(msg)
		default:
			return m.updateChat(msg)
		}
	}

	return m.forwardToInput(msg)
}

func (m Model) loaded(msg machineLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.loadErr = msg.err
		m.mode = modeUnavailable
		if catalog.IsEmpty(msg.err) || errors.Is(msg.err, session.ErrNoQuestions) {
			m.mode = modeEmpty
		}
		m.logger.Error("Failed to load intake", "error", msg.err)
		return m, nil
	}

	m.machine = msg.machine
	m.env = &commands.Env{
		Machine:       msg.machine,
		ExportDir:     m.opts.ExportDir,
		DefaultFormat: m.opts.ExportFormat,
		OnExport:      m.opts.OnExport,
	}
	m.mode = modeChat
	m.loadErr = nil
	m.focusInput()
	m.layout()
	return m, schedule(msg.turn)
}

func (m Model) updateUnavailable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.mode = modeLoading
		return m, m.load()
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	multiline := m.machine.IsMultiline() && !m.machine.IsComplete()

	switch msg.String() {
	case "ctrl+r":
		m.mode = modeConfirmReset
		return m, nil

	case "ctrl+e":
		if !m.machine.IsComplete() {
			return m.setStatus("Export is available once every question has been answered.")
		}
		m.mode = modeExport
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "enter":
		if !multiline {
			return m.submit(m.input.Value())
		}

	case "ctrl+s", "alt+enter":
		if multiline {
			return m.submit(m.area.Value())
		}
		return m.submit(m.input.Value())
	}

	return m.forwardToInput(msg)
}

func (m Model) forwardToInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode != modeChat || m.machine == nil {
		return m, nil
	}
	var cmd tea.Cmd
	if m.machine.IsMultiline() {
		m.area, cmd = m.area.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// submit routes text to the command registry or to the machine.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if commands.IsCommand(text) {
		resp, err := m.opts.Commands.Dispatch(m.ctx, m.env, text)
		m.clearInput()
		if err != nil {
			return m.setStatus("Command failed: " + err.Error())
		}
		m.focusInput()
		m.layout()
		turn := schedule(resp.Turn)
		if strings.Contains(resp.Content, "\n") {
			m.notice = resp.Content
			m.mode = modeNotice
			return m, turn
		}
		model, cmd := m.setStatus(resp.Content)
		return model, tea.Batch(cmd, turn)
	}

	if m.machine.IsComplete() {
		return m.setStatus("All done! Press ctrl+e to export your responses.")
	}

	out, err := m.machine.Submit(m.ctx, text)
	switch {
	case errors.Is(err, session.ErrHostTyping):
		return m, nil
	case err != nil:
		return m.setStatus(err.Error())
	}

	if !out.Validation.Accepted {
		m.feedback = out.Validation.Message
		return m, nil
	}

	m.feedback = ""
	m.clearInput()
	m.refresh()
	return m, schedule(out.Turn)
}

// updateNotice closes the command output panel on enter, esc or q.
func (m Model) updateNotice(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", "q":
		m.notice = ""
		m.mode = modeChat
	}
	return m, nil
}

func (m Model) updateConfirmReset(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.machine.Reset(m.ctx)
		m.feedback = ""
		m.clearInput()
		m.mode = modeChat
		turn, err := m.machine.Start(m.ctx)
		if err != nil {
			return m.setStatus("Could not restart: " + err.Error())
		}
		m.focusInput()
		m.layout()
		model, cmd := m.setStatus("Conversation cleared.")
		return model, tea.Batch(cmd, schedule(turn))

	case "n", "N", "esc":
		m.mode = modeChat
	}
	return m, nil
}

func (m Model) updateExport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = modeChat
		return m, nil

	case "up", "k":
		if m.exportIdx > 0 {
			m.exportIdx--
		}

	case "down", "j":
		if m.exportIdx < len(m.formats)-1 {
			m.exportIdx++
		}

	case "enter", "d":
		format := m.formats[m.exportIdx]
		path, err := export.WriteFile(m.opts.ExportDir, m.machine.Answers(), format, time.Now())
		m.recordExport(format, err)
		if err != nil {
			return m.setStatus("Export failed: " + err.Error())
		}
		m.mode = modeChat
		return m.setStatus("File saved: " + path)

	case "c":
		format := m.formats[m.exportIdx]
		err := export.CopyToClipboard(m.machine.Answers(), format, time.Now())
		m.recordExport(format, err)
		if err != nil {
			return m.setStatus("Failed to copy to clipboard: " + err.Error())
		}
		m.mode = modeChat
		return m.setStatus("Copied to clipboard!")
	}
	return m, nil
}

func (m Model) recordExport(format export.Format, err error) {
	if err != nil {
		m.logger.Warn("Export failed", "format", format, "error", err)
	}
	if m.opts.OnExport != nil {
		m.opts.OnExport(format, err)
	}
}

func (m Model) setStatus(text string) (tea.Model, tea.Cmd) {
	m.status = text
	m.statusSeq++
	seq := m.statusSeq
	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return statusExpiredMsg{seq: seq}
	})
}

func (m *Model) clearInput() {
	m.input.Reset()
	m.area.Reset()
}

// focusInput focuses the input matching the current question.
func (m *Model) focusInput() {
	if m.machine == nil {
		return
	}
	if m.machine.IsMultiline() {
		m.input.Blur()
		m.area.Focus()
		m.area.Placeholder = areaPlaceholder
		if q, ok := m.machine.CurrentQuestion(); ok && q.Placeholder != "" {
			m.area.Placeholder = q.Placeholder
		}
		return
	}
	m.area.Blur()
	m.input.Focus()
	m.input.Placeholder = inputPlaceholder
	if q, ok := m.machine.CurrentQuestion(); ok && q.Placeholder != "" {
		m.input.Placeholder = q.Placeholder
	}
}

func (m *Model) layout() {
	inputHeight := 1
	if m.machine != nil && m.machine.IsMultiline() {
		inputHeight = m.area.Height()
	}
	// title, progress, typing/feedback line, input, help
	h := m.height - inputHeight - 5
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 4
	m.area.SetWidth(m.width - 2)
	m.refresh()
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	if m.machine == nil {
		return
	}
	m.viewport.SetContent(renderTranscript(m.machine.Transcript(), m.width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title) + "\n")

	switch m.mode {
	case modeLoading:
		b.WriteString(typingStyle.Render("  Loading questions...") + "\n")
		return b.String()

	case modeEmpty:
		b.WriteString(dialogStyle.Render("No questions are configured for this intake.\n\n" +
			helpStyle.Render("r: retry  q: quit")))
		return b.String()

	case modeUnavailable:
		b.WriteString(dialogStyle.Render(errorStyle.Render("Could not load the questions.") + "\n" +
			fmt.Sprintf("%v", m.loadErr) + "\n\n" +
			helpStyle.Render("r: retry  q: quit")))
		return b.String()
	}

	b.WriteString(m.renderProgress() + "\n")
	b.WriteString(m.viewport.View() + "\n")

	switch m.mode {
	case modeConfirmReset:
		b.WriteString(dialogStyle.Render("Start over? This clears every answer.\n\n" +
			helpStyle.Render("y: reset  n: cancel")))
		return b.String()
	case modeNotice:
		b.WriteString(dialogStyle.Render(m.notice + "\n\n" +
			helpStyle.Render("enter/esc: close")))
		return b.String()
	case modeExport:
		b.WriteString(m.renderExportPicker())
		return b.String()
	}

	switch {
	case m.machine.Pending() != nil:
		b.WriteString(typingStyle.Render("  Host is typing...") + "\n")
	case m.feedback != "":
		b.WriteString(errorStyle.Render("  "+m.feedback) + "\n")
	default:
		b.WriteString("\n")
	}

	if m.machine.IsComplete() {
		b.WriteString(helpStyle.Render("  All questions answered. Press ctrl+e to export your responses.") + "\n")
	} else if m.machine.IsMultiline() {
		b.WriteString(m.area.View() + "\n")
	} else {
		b.WriteString(m.input.View() + "\n")
	}

	if m.status != "" {
		b.WriteString(statusBarStyle.Render(firstLine(m.status)))
	} else {
		b.WriteString(m.renderHelp())
	}
	return b.String()
}

func (m Model) renderHelp() string {
	send := "enter: send"
	if m.machine.IsMultiline() {
		send = "ctrl+s: send  enter: new line"
	}
	return helpStyle.Render("  " + send + "  ctrl+r: start over  ctrl+e: export  /help  ctrl+c: quit")
}

func (m Model) renderProgress() string {
	cur, total := m.machine.Progress()
	label := fmt.Sprintf("Question %d of %d", min(cur+1, total), total)
	if m.machine.IsComplete() {
		label = "Complete"
	}

	barWidth := 20
	filled := 0
	if total > 0 {
		filled = cur * barWidth / total
	}
	bar := progressFillStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)
	return progressStyle.Render(label) + " " + bar
}

func (m Model) renderExportPicker() string {
	var b strings.Builder
	b.WriteString("Export your responses\n\n")
	for i, f := range m.formats {
		info, _ := export.GetFormatInfo(f)
		line := fmt.Sprintf("%-10s %s", f, info.Description)
		if i == m.exportIdx {
			b.WriteString(selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString(normalStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n" + helpStyle.Render("enter: save file  c: copy  esc: cancel"))
	return dialogStyle.Render(b.String())
}

// renderTranscript lays out messages as chat bubbles, host on the left and
// guest on the right.
func renderTranscript(msgs []session.Message, width int) string {
	if width < 20 {
		width = 20
	}
	bubbleWidth := width * 3 / 4

	var b strings.Builder
	for _, msg := range msgs {
		ts := msg.Timestamp.Format("15:04")
		if msg.Role == session.RoleGuest {
			label := guestLabelStyle.Render("You") + " " + helpStyle.Render(ts)
			bubble := guestBubbleStyle.Width(bubbleWidth).Render(msg.Content)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, label) + "\n")
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble) + "\n\n")
			continue
		}
		b.WriteString(hostLabelStyle.Render("Host") + " " + helpStyle.Render(ts) + "\n")
		b.WriteString(hostBubbleStyle.Width(bubbleWidth).Render(msg.Content) + "\n\n")
	}
	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
