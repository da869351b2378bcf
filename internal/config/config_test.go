package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsClamp(t *testing.T) {
	got := Settings{Angle: 400, PeakPos: -3, FitWidth: 5000}.Clamp(2048)
	if got.Angle != MaxAngle {
		t.Fatalf("unexpected angle: %v", got.Angle)
	}
	if got.PeakPos != 0 {
		t.Fatalf("unexpected peak_pos: %d", got.PeakPos)
	}
	if got.FitWidth != 2048 {
		t.Fatalf("unexpected fit_width: %d", got.FitWidth)
	}
}

func TestSettingsStoreApplyPartial(t *testing.T) {
	store := NewSettingsStore(DefaultSettings(), 2048)
	var notified Settings
	store.OnChange(func(s Settings) { notified = s })

	peak := 1024
	fit := true
	got := store.Apply(SettingsUpdate{PeakPos: &peak, Fit: &fit})
	if got.PeakPos != 1024 || !got.Fit {
		t.Fatalf("unexpected settings: %#v", got)
	}
	if got.FitWidth != DefaultFitWidth {
		t.Fatalf("fit_width changed: %d", got.FitWidth)
	}
	if notified != got {
		t.Fatalf("listener got %#v want %#v", notified, got)
	}

	angle := -190.0
	if got := store.Apply(SettingsUpdate{Angle: &angle}); got.Angle != MinAngle {
		t.Fatalf("angle not clamped: %v", got.Angle)
	}
}

func TestLoadFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lineout.yaml")
	body := "producer:\n  period: 250ms\n  encoding: raw\nviewer:\n  port: 9000\n  settings:\n    angle: 12.5\n    fit: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	file, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if file.Producer.Period != 250*time.Millisecond {
		t.Fatalf("unexpected period: %v", file.Producer.Period)
	}
	if file.Producer.Encoding != "raw" {
		t.Fatalf("unexpected encoding: %q", file.Producer.Encoding)
	}
	if file.Producer.Rows != DefaultRows || file.Producer.Cols != DefaultCols {
		t.Fatalf("shape defaults lost: %dx%d", file.Producer.Rows, file.Producer.Cols)
	}
	if file.Viewer.Port != 9000 {
		t.Fatalf("unexpected port: %d", file.Viewer.Port)
	}
	if file.Viewer.Settings.Angle != 12.5 || !file.Viewer.Settings.Fit {
		t.Fatalf("unexpected settings: %#v", file.Viewer.Settings)
	}
	if file.Viewer.Settings.FitWidth != DefaultFitWidth {
		t.Fatalf("fit_width default lost: %d", file.Viewer.Settings.FitWidth)
	}
}

func TestPathFromArgs(t *testing.T) {
	if got := PathFromArgs([]string{"-port", "1", "-config", "a.yaml"}); got != "a.yaml" {
		t.Fatalf("unexpected path: %q", got)
	}
	if got := PathFromArgs([]string{"--config=b.yaml"}); got != "b.yaml" {
		t.Fatalf("unexpected path: %q", got)
	}
	if got := PathFromArgs([]string{"config", "c.yaml"}); got != "" {
		t.Fatalf("unexpected path: %q", got)
	}
}

func TestSettingsStoreListenersGetClampedValue(t *testing.T) {
	store := NewSettingsStore(DefaultSettings(), 2048)
	var first, second []Settings
	store.OnChange(func(s Settings) { first = append(first, s) })
	store.OnChange(func(s Settings) {
		// Listeners run outside the lock, so reading back is safe.
		second = append(second, store.Get())
	})

	peak := 5000
	width := -7
	store.Apply(SettingsUpdate{PeakPos: &peak, FitWidth: &width})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one call per listener, got %d and %d", len(first), len(second))
	}
	if first[0].PeakPos != 2048 || first[0].FitWidth != 0 {
		t.Fatalf("listener got unclamped settings: %#v", first[0])
	}
	if second[0] != first[0] {
		t.Fatalf("listeners disagree: %#v vs %#v", first[0], second[0])
	}
}

func TestSettingsStoreSetColsFollowsFrameWidth(t *testing.T) {
	store := NewSettingsStore(DefaultSettings(), 2048)
	var calls int
	store.OnChange(func(Settings) { calls++ })

	if got := store.SetCols(4096); got.PeakPos != 0 || calls != 0 {
		t.Fatalf("widening should not notify: %#v (%d calls)", got, calls)
	}
	peak := 3000
	if got := store.Apply(SettingsUpdate{PeakPos: &peak}); got.PeakPos != 3000 {
		t.Fatalf("peak limited to old width: %d", got.PeakPos)
	}
	if store.Cols() != 4096 {
		t.Fatalf("unexpected cols: %d", store.Cols())
	}

	got := store.SetCols(1024)
	if got.PeakPos != 1024 || got.FitWidth != DefaultFitWidth {
		t.Fatalf("unexpected settings after narrowing: %#v", got)
	}
	if calls != 2 {
		t.Fatalf("expected a notification for the narrowing, got %d calls", calls)
	}
	if got := store.SetCols(0); got.PeakPos != 1024 || store.Cols() != 1024 {
		t.Fatalf("invalid width should be ignored: %#v", got)
	}
}
