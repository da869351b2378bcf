// Package tui is the optional terminal console of the viewer.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lineout-go/internal/config"
)

const (
	angleStep = 1.0
	peakStep  = 10
	widthStep = 5
	sparkBins = 64
)

// Status is one refresh of the console.
type Status struct {
	Endpoint     string
	Received     uint64
	Rendered     uint64
	Skipped      uint64
	DecodeErrors uint64
	Seq          uint64
	Min          uint16
	Max          uint16
	Title        string
	Lineout      []float64
	RenderMs     float64
}

type statusMsg Status
type tickMsg time.Time

type model struct {
	status    Status
	settings  *config.SettingsStore
	startTime time.Time
	quitting  bool
	quit      func()
}

func newModel(settings *config.SettingsStore, endpoint string, quit func()) model {
	return model{
		status:    Status{Endpoint: endpoint},
		settings:  settings,
		startTime: time.Now(),
		quit:      quit,
	}
}

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			if m.quit != nil {
				m.quit()
			}
			return m, tea.Quit
		}
		m.handleKey(msg.String())
	case tickMsg:
		return m, tickEvery()
	case statusMsg:
		m.status = Status(msg)
	}
	return m, nil
}

// handleKey maps a key to a settings change. Unknown keys are ignored.
func (m model) handleKey(key string) {
	if m.settings == nil {
		return
	}
	current := m.settings.Get()
	var update config.SettingsUpdate
	switch key {
	case "left":
		angle := current.Angle - angleStep
		update.Angle = &angle
	case "right":
		angle := current.Angle + angleStep
		update.Angle = &angle
	case "0":
		angle := 0.0
		update.Angle = &angle
	case "f":
		fit := !current.Fit
		update.Fit = &fit
	case "down":
		peak := current.PeakPos - peakStep
		update.PeakPos = &peak
	case "up":
		peak := current.PeakPos + peakStep
		update.PeakPos = &peak
	case "-":
		width := current.FitWidth - widthStep
		update.FitWidth = &width
	case "+", "=":
		width := current.FitWidth + widthStep
		update.FitWidth = &width
	default:
		return
	}
	m.settings.Apply(update)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down viewer...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))
	fitStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("Lineout Viewer"))
	b.WriteString("\n\n")

	row := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("Endpoint", m.status.Endpoint)
	row("Uptime", time.Since(m.startTime).Round(time.Second).String())
	row("Frames", fmt.Sprintf("received %d  rendered %d  skipped %d  decode errors %d",
		m.status.Received, m.status.Rendered, m.status.Skipped, m.status.DecodeErrors))
	row("Last frame", fmt.Sprintf("#%d  min %d  max %d  render %.1f ms",
		m.status.Seq, m.status.Min, m.status.Max, m.status.RenderMs))

	if m.settings != nil {
		s := m.settings.Get()
		row("Settings", fmt.Sprintf("angle %.0f°  fit %v  peak %d  width %d", s.Angle, s.Fit, s.PeakPos, s.FitWidth))
	}

	b.WriteString("\n")
	if m.status.Title != "" {
		b.WriteString(fitStyle.Render(m.status.Title))
		b.WriteString("\n")
	}
	b.WriteString(Sparkline(m.status.Lineout, sparkBins))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render(
		"←/→ angle  0 reset  f fit  ↑/↓ peak  +/- width  q quit"))
	return b.String()
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline averages values into bins and draws one block per bin.
func Sparkline(values []float64, bins int) string {
	if len(values) == 0 || bins <= 0 {
		return ""
	}
	if bins > len(values) {
		bins = len(values)
	}
	means := make([]float64, bins)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range means {
		start := i * len(values) / bins
		end := (i + 1) * len(values) / bins
		sum := 0.0
		for _, v := range values[start:end] {
			sum += v
		}
		means[i] = sum / float64(end-start)
		lo = math.Min(lo, means[i])
		hi = math.Max(hi, means[i])
	}

	var b strings.Builder
	for _, v := range means {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// Console runs the bubbletea program and forwards status updates to it.
type Console struct {
	program *tea.Program
	updates chan Status
}

func New(settings *config.SettingsStore, endpoint string, quit func()) *Console {
	c := &Console{updates: make(chan Status, 10)}
	c.program = tea.NewProgram(newModel(settings, endpoint, quit), tea.WithAltScreen())
	return c
}

// Run blocks until the user quits or Stop is called.
func (c *Console) Run() error {
	go func() {
		for status := range c.updates {
			c.program.Send(statusMsg(status))
		}
	}()
	_, err := c.program.Run()
	return err
}

// Update never blocks; a full queue drops the refresh.
func (c *Console) Update(status Status) {
	select {
	case c.updates <- status:
	default:
	}
}

func (c *Console) Stop() {
	c.program.Quit()
}
