package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"

	"github.com/go-go-golems/cricket/pkg/session"
)

// snapshotMsg carries a fresh controller snapshot into the update loop.
type snapshotMsg session.Snapshot

// ModelOptions tweaks the chat view.
type ModelOptions struct {
	Title    string
	Model    string
	Markdown bool
}

// Model is the terminal chat view. All conversation state lives in the
// controller; the model only renders snapshots and forwards input.
type Model struct {
	controller *session.Controller
	keys       KeyMap

	viewport viewport.Model
	textarea textarea.Model
	spinner  bspinner.Model
	counter  *tiktoken.Tiktoken

	snap     session.Snapshot
	title    string
	model    string
	markdown bool
	status   string
	tokens   int
	width    int
	height   int
	ready    bool
}

func NewModel(controller *session.Controller, opts ModelOptions) Model {
	ta := textarea.New()
	ta.Placeholder = "Say something..."
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = subheaderStyle

	vp := viewport.New(80, 20)

	title := opts.Title
	if title == "" {
		title = "cricket"
	}

	// A missing encoding only disables the token readout.
	counter, _ := tiktoken.GetEncoding("cl100k_base")

	return Model{
		controller: controller,
		keys:       DefaultKeyMap(),
		viewport:   vp,
		textarea:   ta,
		spinner:    sp,
		counter:    counter,
		snap:       controller.Snapshot(),
		title:      title,
		model:      opts.Model,
		markdown:   opts.Markdown,
	}
}

func waitForUpdate(c *session.Controller) tea.Cmd {
	return func() tea.Msg {
		<-c.Updates()
		return snapshotMsg(c.Snapshot())
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForUpdate(m.controller))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.ready = true
		m.refreshViewport()
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.refreshViewport()
		return m, waitForUpdate(m.controller)

	case bspinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			m.submit()
			return m, nil
		case key.Matches(msg, m.keys.Yank):
			m.yankReply()
			return m, nil
		case key.Matches(msg, m.keys.YankCode):
			m.yankCode()
			return m, nil
		case key.Matches(msg, m.keys.ToggleMarkdown):
			m.markdown = !m.markdown
			m.refreshViewport()
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() {
	err := m.controller.Submit(context.Background(), m.textarea.Value())
	switch {
	case err == nil:
		m.textarea.Reset()
		m.status = ""
	case errors.Is(err, session.ErrEmptyInput):
		// nothing to send
	case errors.Is(err, session.ErrBusy):
		m.status = "still waiting for the current reply"
	default:
		m.status = err.Error()
	}
	m.snap = m.controller.Snapshot()
	m.refreshViewport()
}

func (m *Model) yankReply() {
	reply, ok := lastAssistantEntry(m.snap)
	if !ok {
		m.status = "no reply to copy yet"
		return
	}
	if err := clipboard.WriteAll(reply); err != nil {
		m.status = "clipboard: " + err.Error()
		return
	}
	m.status = "copied last reply"
}

func (m *Model) yankCode() {
	reply, ok := lastAssistantEntry(m.snap)
	if !ok {
		m.status = "no reply to copy yet"
		return
	}
	blocks := ExtractCodeBlocks(reply)
	if len(blocks) == 0 {
		m.status = "no code blocks in last reply"
		return
	}
	if err := clipboard.WriteAll(strings.Join(blocks, "\n")); err != nil {
		m.status = "clipboard: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("copied %d code block(s)", len(blocks))
}

func lastAssistantEntry(snap session.Snapshot) (string, bool) {
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		if snap.Entries[i].Role == session.RoleAssistant {
			return snap.Entries[i].Content, true
		}
	}
	return "", false
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	m.tokens = m.transcriptTokens()
}

func (m Model) transcriptTokens() int {
	if m.counter == nil {
		return 0
	}
	total := 0
	for _, entry := range m.snap.Entries {
		total += len(m.counter.Encode(entry.Content, nil, nil))
	}
	return total
}

func (m Model) renderTranscript() string {
	var sb strings.Builder
	for _, entry := range m.snap.Entries {
		switch entry.Role {
		case session.RoleUser:
			sb.WriteString(userStyle.Render("You: ") + entry.Content)
		case session.RoleAssistant:
			body := entry.Content
			if m.markdown {
				body = RenderMarkdown(body)
			}
			sb.WriteString(assistantStyle.Render("Assistant: ") + body)
		case session.RoleSystem:
			switch {
			case len(entry.ToolCallPayload) > 0:
				sb.WriteString(toolNameStyle.Render(entry.Content))
			case strings.HasPrefix(entry.Content, "Error: "):
				sb.WriteString(errorStyle.Render(entry.Content))
			default:
				sb.WriteString(systemStyle.Render(entry.Content))
			}
		}
		sb.WriteString("\n")
	}
	if m.snap.Busy && m.snap.LivePreview != "" {
		sb.WriteString(subheaderStyle.Render("Assistant: ") + m.snap.LivePreview + "\n")
	}
	return sb.String()
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.textarea.View() + "\n" + m.statusView()
}

func (m Model) headerView() string {
	header := headerStyle.Render(m.title)
	if m.snap.Thinking {
		header += "  " + m.spinner.View() + " thinking"
	} else if m.snap.Streaming {
		header += "  " + m.spinner.View() + " streaming"
	}
	return header
}

func (m Model) statusView() string {
	parts := []string{m.stateWord()}
	if m.model != "" {
		parts = append(parts, m.model)
	}
	if m.counter != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", m.tokens))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, m.keys.helpLine())
	return statusStyle.Render(strings.Join(parts, " · "))
}

func (m Model) stateWord() string {
	switch {
	case m.snap.Thinking:
		return "thinking"
	case m.snap.Streaming:
		return "streaming"
	default:
		return "idle"
	}
}

func (k KeyMap) helpLine() string {
	bindings := []key.Binding{k.Submit, k.Yank, k.YankCode, k.ToggleMarkdown, k.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help := b.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return strings.Join(parts, "  ")
}
