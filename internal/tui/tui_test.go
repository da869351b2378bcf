package tui

import (
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"lineout-go/internal/config"
)

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func TestKeysAdjustSettings(t *testing.T) {
	store := config.NewSettingsStore(config.Settings{PeakPos: 1000, FitWidth: 100}, 2048)
	m := newModel(store, "tcp://localhost:12322", nil)

	for _, key := range []string{"right", "right", "left", "f", "up", "+", "-", "-"} {
		next, _ := m.Update(keyMsg(key))
		m = next.(model)
	}

	got := store.Get()
	if got.Angle != 1 {
		t.Fatalf("expected angle 1, got %v", got.Angle)
	}
	if !got.Fit {
		t.Fatalf("expected fit enabled")
	}
	if got.PeakPos != 1010 {
		t.Fatalf("expected peak 1010, got %d", got.PeakPos)
	}
	if got.FitWidth != 95 {
		t.Fatalf("expected width 95, got %d", got.FitWidth)
	}

	next, _ := m.Update(keyMsg("0"))
	m = next.(model)
	if store.Get().Angle != 0 {
		t.Fatalf("expected angle reset")
	}
}

func TestKeysClampAtLimits(t *testing.T) {
	store := config.NewSettingsStore(config.Settings{Angle: 180, FitWidth: 0}, 16)
	m := newModel(store, "", nil)
	for _, key := range []string{"right", "down", "-"} {
		next, _ := m.Update(keyMsg(key))
		m = next.(model)
	}
	got := store.Get()
	if got.Angle != 180 || got.PeakPos != 0 || got.FitWidth != 0 {
		t.Fatalf("expected clamped settings, got %#v", got)
	}
}

func TestQuitCallsHook(t *testing.T) {
	called := false
	m := newModel(nil, "", func() { called = true })
	next, cmd := m.Update(keyMsg("q"))
	if !called {
		t.Fatalf("expected quit hook to run")
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if !strings.Contains(next.View(), "Shutting down") {
		t.Fatalf("unexpected view after quit: %q", next.View())
	}
}

func TestStatusShownInView(t *testing.T) {
	m := newModel(config.NewSettingsStore(config.DefaultSettings(), 2048), "tcp://h:1", nil)
	next, _ := m.Update(statusMsg{Endpoint: "tcp://h:1", Received: 12, Skipped: 3, Title: "Line width = 11.77 Pixel (FWHM)"})
	view := next.View()
	for _, want := range []string{"received 12", "skipped 3", "Line width = 11.77"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSparkline(t *testing.T) {
	if Sparkline(nil, 10) != "" {
		t.Fatalf("expected empty sparkline")
	}
	values := []float64{0, 0, 1, 1, 2, 2, 3, 3}
	line := Sparkline(values, 4)
	if utf8.RuneCountInString(line) != 4 {
		t.Fatalf("expected 4 bins, got %q", line)
	}
	runes := []rune(line)
	if runes[0] != '▁' || runes[3] != '█' {
		t.Fatalf("unexpected sparkline %q", line)
	}
	flat := Sparkline([]float64{5, 5, 5}, 10)
	if utf8.RuneCountInString(flat) != 3 {
		t.Fatalf("expected bins capped at len(values), got %q", flat)
	}
}
