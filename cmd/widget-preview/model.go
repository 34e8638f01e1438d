// ABOUTME: Bubble Tea model that renders a widget conversation in the terminal
// ABOUTME: Key presses drive the conversation controller; state updates redraw the view

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/chatdesk/internal/conversation"
	"github.com/2389/chatdesk/internal/widget"
)

const (
	defaultWidth  = 60
	defaultHeight = 24
	// bubbleRatio is the share of the width a message bubble may use.
	bubbleRatio = 0.75
)

type stateMsg conversation.State

type submitErrMsg struct{ err error }

type closedMsg struct{}

type styles struct {
	header    lipgloss.Style
	subtitle  lipgloss.Style
	bot       lipgloss.Style
	user      lipgloss.Style
	typing    lipgloss.Style
	input     lipgloss.Style
	hint      lipgloss.Style
	errorLine lipgloss.Style
	popup     lipgloss.Style
}

func newStyles(cfg widget.Config) styles {
	primary := lipgloss.Color(cfg.PrimaryColor)
	text := lipgloss.Color("#111827")
	surface := lipgloss.Color("#f3f4f6")
	if cfg.Theme == widget.ThemeDark {
		text = lipgloss.Color("#f9fafb")
		surface = lipgloss.Color("#374151")
	}
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(primary).Padding(0, 1),
		subtitle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(primary).Padding(0, 1),
		bot:       lipgloss.NewStyle().Foreground(text).Background(surface).Padding(0, 1),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(primary).Padding(0, 1),
		typing:    lipgloss.NewStyle().Faint(true).Italic(true),
		input:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 1),
		hint:      lipgloss.NewStyle().Faint(true),
		errorLine: lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")),
		popup:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 1),
	}
}

// model is the terminal rendition of one widget session.
type model struct {
	ctx    context.Context
	ctrl   *conversation.Controller
	states <-chan conversation.State
	cfg    widget.Config
	styles styles

	state  conversation.State
	input  string
	width  int
	height int
	err    error
}

func newModel(ctx context.Context, ctrl *conversation.Controller) model {
	cfg := ctrl.Config()
	return model{
		ctx:    ctx,
		ctrl:   ctrl,
		states: ctrl.Subscribe(ctx),
		cfg:    cfg,
		styles: newStyles(cfg),
		state:  ctrl.State(),
		width:  defaultWidth,
		height: defaultHeight,
	}
}

func waitForState(ch <-chan conversation.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return stateMsg(s)
	}
}

func (m model) Init() tea.Cmd {
	return waitForState(m.states)
}

func (m model) submit() tea.Cmd {
	text := m.input
	return func() tea.Msg {
		if err := m.ctrl.Submit(m.ctx, text); err != nil {
			return submitErrMsg{err}
		}
		return nil
	}
}

func (m model) setInput(text string) model {
	m.input = text
	m.err = nil
	m.ctrl.SetInput(text)
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case stateMsg:
		m.state = conversation.State(msg)
		return m, waitForState(m.states)

	case closedMsg:
		return m, tea.Quit

	case submitErrMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlO:
			m.ctrl.Toggle()
		case tea.KeyCtrlR:
			m.ctrl.Reset(m.ctx)
			m = m.setInput("")
		case tea.KeyEnter:
			if !m.state.IsOpen {
				m.ctrl.Open()
				return m, nil
			}
			cmd := m.submit()
			m.input = ""
			return m, cmd
		case tea.KeyBackspace:
			if r := []rune(m.input); len(r) > 0 {
				m = m.setInput(string(r[:len(r)-1]))
			}
		case tea.KeySpace:
			m = m.setInput(m.input + " ")
		case tea.KeyRunes:
			m = m.setInput(m.input + string(msg.Runes))
		}
	}
	return m, nil
}

func (m model) View() string {
	if !m.state.IsOpen {
		return m.closedView()
	}

	width := m.width
	var b strings.Builder

	b.WriteString(m.styles.header.Width(width).Render(m.cfg.ChatTitle))
	b.WriteString("\n")
	if m.cfg.Subtitle != "" {
		b.WriteString(m.styles.subtitle.Width(width).Render(m.cfg.Subtitle))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	bubble := int(float64(width) * bubbleRatio)
	for _, msg := range m.state.Messages {
		if msg.IsBot {
			b.WriteString(m.styles.bot.MaxWidth(bubble).Width(min(bubble, lipgloss.Width(msg.Text)+2)).Render(msg.Text))
		} else {
			rendered := m.styles.user.MaxWidth(bubble).Width(min(bubble, lipgloss.Width(msg.Text)+2)).Render(msg.Text)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, rendered))
		}
		b.WriteString("\n\n")
	}
	if m.state.IsTyping {
		b.WriteString(m.styles.typing.Render(m.cfg.ChatTitle + " is typing..."))
		b.WriteString("\n\n")
	}

	input := m.input
	if input == "" {
		input = m.styles.hint.Render(m.state.Placeholder)
	}
	b.WriteString(m.styles.input.Width(width - 2).Render(input))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(m.styles.errorLine.Render(describeSubmitError(m.err)))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.hint.Render(m.footer()))
	return b.String()
}

func (m model) closedView() string {
	var b strings.Builder
	if m.state.PopupVisible && m.cfg.PopupMessage != "" {
		b.WriteString(m.styles.popup.Render(m.cfg.PopupMessage))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.header.Render("💬 " + m.cfg.ChatTitle))
	b.WriteString("\n")
	b.WriteString(m.styles.hint.Render("enter or ctrl+o: open  esc: quit"))
	return b.String()
}

func (m model) footer() string {
	parts := []string{"enter: send", "ctrl+o: close", "ctrl+r: reset", "esc: quit"}
	if m.state.UsageLimit > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d used", m.state.UsedCount, m.state.UsageLimit))
	}
	return strings.Join(parts, "  ")
}

func describeSubmitError(err error) string {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Type a message first."
	case errors.Is(err, conversation.ErrBusy):
		return "Waiting for the current reply."
	case errors.Is(err, conversation.ErrLimitReached):
		return conversation.LimitReachedPlaceholder
	default:
		return err.Error()
	}
}
