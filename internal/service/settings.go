package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────
// Settings: window size and last opened solution
// ─────────────────────────────────────────────────────────────

// KeyValueStore is the preference storage. storage.SettingsStore implements
// it.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	settingWindowWidth  = "window_width"
	settingWindowHeight = "window_height"
	settingLastSolution = "last_solution"
	defaultWindowWidth  = 1280
	defaultWindowHeight = 800
)

// SettingsService reads and writes preferences. A nil store (MongoDB
// backend) yields defaults and ignores writes.
type SettingsService struct {
	store KeyValueStore
	log   *zap.Logger
}

func NewSettingsService(store KeyValueStore, log *zap.Logger) *SettingsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsService{store: store, log: log.Named("settings")}
}

func (s *SettingsService) get(ctx context.Context, key string) string {
	if s.store == nil {
		return ""
	}
	v, _, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Warn("read setting", zap.String("key", key), zap.Error(err))
	}
	return v
}

func (s *SettingsService) set(ctx context.Context, key, value string) error {
	if s.store == nil {
		return nil
	}
	return s.store.Set(ctx, key, value)
}

// LoadWindowSize returns the saved size, or defaults when nothing usable is
// stored.
func (s *SettingsService) LoadWindowSize(ctx context.Context) WindowSize {
	w, _ := strconv.Atoi(s.get(ctx, settingWindowWidth))
	h, _ := strconv.Atoi(s.get(ctx, settingWindowHeight))
	if w < 800 {
		w = defaultWindowWidth
	}
	if h < 600 {
		h = defaultWindowHeight
	}
	return WindowSize{Width: w, Height: h}
}

func (s *SettingsService) SaveWindowSize(ctx context.Context, width, height int) error {
	if err := s.set(ctx, settingWindowWidth, strconv.Itoa(width)); err != nil {
		return err
	}
	return s.set(ctx, settingWindowHeight, strconv.Itoa(height))
}

func (s *SettingsService) LastSolution(ctx context.Context) string {
	return s.get(ctx, settingLastSolution)
}

func (s *SettingsService) SetLastSolution(ctx context.Context, name string) error {
	return s.set(ctx, settingLastSolution, name)
}
