package config

import (
	"math"
	"slices"
	"sync"
)

const (
	MinAngle        = -180.0
	MaxAngle        = 180.0
	DefaultFitWidth = 100
)

// Settings are the user-adjustable render parameters.
type Settings struct {
	Angle    float64 `json:"angle" yaml:"angle"`
	Fit      bool    `json:"fit" yaml:"fit"`
	PeakPos  int     `json:"peak_pos" yaml:"peak_pos"`
	FitWidth int     `json:"fit_width" yaml:"fit_width"`
}

func DefaultSettings() Settings {
	return Settings{FitWidth: DefaultFitWidth}
}

// Clamp bounds every field to the ranges the input controls allow.
func (s Settings) Clamp(cols int) Settings {
	if math.IsNaN(s.Angle) {
		s.Angle = 0
	}
	s.Angle = math.Max(MinAngle, math.Min(MaxAngle, s.Angle))
	s.PeakPos = clampInt(s.PeakPos, 0, cols)
	s.FitWidth = clampInt(s.FitWidth, 0, cols)
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SettingsUpdate is a partial change; nil fields are left alone.
type SettingsUpdate struct {
	Angle    *float64 `json:"angle,omitempty"`
	Fit      *bool    `json:"fit,omitempty"`
	PeakPos  *int     `json:"peak_pos,omitempty"`
	FitWidth *int     `json:"fit_width,omitempty"`
}

// SettingsStore holds the current settings. Peak position and fit width are
// bounded by the frame width, which starts at the configured width and
// follows the frames actually received (see SetCols).
type SettingsStore struct {
	mu       sync.RWMutex
	cols     int
	settings Settings
	onChange []func(Settings)
}

func NewSettingsStore(initial Settings, cols int) *SettingsStore {
	return &SettingsStore{
		cols:     cols,
		settings: initial.Clamp(cols),
	}
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *SettingsStore) Apply(update SettingsUpdate) Settings {
	s.mu.Lock()
	next := s.settings
	if update.Angle != nil {
		next.Angle = *update.Angle
	}
	if update.Fit != nil {
		next.Fit = *update.Fit
	}
	if update.PeakPos != nil {
		next.PeakPos = *update.PeakPos
	}
	if update.FitWidth != nil {
		next.FitWidth = *update.FitWidth
	}
	next = next.Clamp(s.cols)
	s.settings = next
	listeners := slices.Clone(s.onChange)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

func (s *SettingsStore) Set(settings Settings) Settings {
	return s.Apply(SettingsUpdate{
		Angle:    &settings.Angle,
		Fit:      &settings.Fit,
		PeakPos:  &settings.PeakPos,
		FitWidth: &settings.FitWidth,
	})
}

// Cols is the width the store currently clamps against.
func (s *SettingsStore) Cols() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols
}

// SetCols changes the clamping width. Listeners run only when the
// clamped settings change.
func (s *SettingsStore) SetCols(cols int) Settings {
	s.mu.Lock()
	if cols < 1 || cols == s.cols {
		current := s.settings
		s.mu.Unlock()
		return current
	}
	s.cols = cols
	next := s.settings.Clamp(cols)
	changed := next != s.settings
	s.settings = next
	listeners := slices.Clone(s.onChange)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return next
}

// OnChange registers fn to run after every update, outside the lock.
func (s *SettingsStore) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}
