package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	livesession "github.com/koscakluka/blurry-core/core"
	"github.com/koscakluka/blurry-core/core/tools"
)

const meterWidth = 30

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	meterOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	meterOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	musicStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MarginTop(1)
)

type stateChangedMsg struct {
	state livesession.State
}

type transcriptChangedMsg struct{}

type musicChangedMsg struct {
	state *tools.MusicState
}

type weatherReportMsg struct {
	report tools.WeatherReport
}

type meterTickMsg time.Time

type appModel struct {
	ctx      context.Context
	session  *livesession.Session
	registry *tools.Registry

	state    livesession.State
	music    *tools.MusicState
	weather  *tools.WeatherReport
	spinner  spinner.Model
	viewport viewport.Model
	width    int
	ready    bool
}

func newAppModel(ctx context.Context, session *livesession.Session, registry *tools.Registry) appModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot

	return appModel{
		ctx:      ctx,
		session:  session,
		registry: registry,
		state:    session.State(),
		spinner:  s,
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, meterTick())
}

func meterTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return meterTickMsg(t)
	})
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.session.Disconnect(m.ctx)
			return m, tea.Quit
		case " ":
			if m.state == livesession.StateConnected || m.state == livesession.StateConnecting {
				m.session.Disconnect(m.ctx)
			} else {
				go func() {
					_ = m.session.Connect(m.ctx)
				}()
			}
			return m, nil
		case "n":
			m.session.ClearTranscript()
			m.music = nil
			m.weather = nil
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		viewportHeight := msg.Height - 8
		if viewportHeight < 3 {
			viewportHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight
		}
		m.refreshTranscript()
		return m, nil

	case stateChangedMsg:
		m.state = msg.state
		return m, nil

	case transcriptChangedMsg:
		m.refreshTranscript()
		return m, nil

	case musicChangedMsg:
		m.music = msg.state
		return m, nil

	case weatherReportMsg:
		report := msg.report
		m.weather = &report
		return m, nil

	case meterTickMsg:
		return m, meterTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *appModel) refreshTranscript() {
	if !m.ready {
		return
	}

	var lines []string
	for _, entry := range m.session.VisibleTranscript() {
		prefix := assistantStyle.Render("blurry")
		if entry.Role == livesession.RoleUser {
			prefix = userStyle.Render("you")
		}
		wrapped := wordwrap.String(entry.Text, max(m.viewport.Width-8, 20))
		lines = append(lines, fmt.Sprintf("%s  %s", prefix, wrapped))
	}

	m.viewport.SetContent(strings.Join(lines, "\n\n"))
	m.viewport.GotoBottom()
}

func (m appModel) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("blurry"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	if m.registry.DeveloperMode() {
		b.WriteString(statusStyle.Render("  [dev]"))
	}
	b.WriteString("\n")
	b.WriteString(m.meterLine())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())

	if m.music != nil {
		b.WriteString("\n")
		b.WriteString(musicStyle.Render(m.musicLine()))
	}
	if m.weather != nil {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(fmt.Sprintf("%s: %s, %g°C, wind %g km/h",
			m.weather.Location, m.weather.Condition, m.weather.Temperature, m.weather.WindSpeed)))
	}

	b.WriteString(helpStyle.Render("\nspace connect/disconnect · n new chat · q quit"))

	return b.String()
}

func (m appModel) statusLine() string {
	switch m.state {
	case livesession.StateConnecting:
		return statusStyle.Render(m.spinner.View() + " connecting")
	case livesession.StateConnected:
		return statusStyle.Render("● connected")
	case livesession.StateError:
		return statusStyle.Render("✗ error")
	default:
		return statusStyle.Render("○ disconnected")
	}
}

// meterLine renders the louder of the two levels so one bar serves both
// directions, like a speakerphone indicator.
func (m appModel) meterLine() string {
	capture, playback := m.session.Levels()
	level := max(capture, playback)

	filled := int(level * meterWidth)
	if filled > meterWidth {
		filled = meterWidth
	}

	return meterOnStyle.Render(strings.Repeat("█", filled)) +
		meterOffStyle.Render(strings.Repeat("░", meterWidth-filled))
}

func (m appModel) musicLine() string {
	switch {
	case m.music.Loading:
		return "♪ searching: " + m.music.Query
	case m.music.Failed:
		return "♪ not found: " + m.music.Query
	case m.music.VideoID != "":
		title := m.music.Title
		if title == "" {
			title = m.music.Query
		}
		return "♪ playing: " + title + " (https://www.youtube.com/watch?v=" + m.music.VideoID + ")"
	default:
		return ""
	}
}
