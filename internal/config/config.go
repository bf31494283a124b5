// Package config implements the daemon's config and key store: Settings
// loading via viper with defaults and a live-reload watch, and an
// encrypted at-rest store for provider API keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// HotkeyConfig holds the global hotkey bindings.
type HotkeyConfig struct {
	ToggleOverlay string `mapstructure:"toggle_overlay" json:"toggle_overlay"`
	PasteLast     string `mapstructure:"paste_last" json:"paste_last"`
	Generate      string `mapstructure:"generate" json:"generate"`
	Clipboard     string `mapstructure:"clipboard" json:"clipboard"`
	Screenshot    string `mapstructure:"screenshot" json:"screenshot"`
	Voice         string `mapstructure:"voice" json:"voice"`
	Settings      string `mapstructure:"settings" json:"settings"`
}

// Settings is the daemon's user-facing profile, persisted via
// this package and read by many tasks. Store.Save and the settings-file
// reload in WatchAndReload are its only writers; a ConfigSnapshot is
// built separately, by Store.Snapshot.
type Settings struct {
	MasterEnabled      bool   `mapstructure:"master_enabled"`
	AutoInject         bool   `mapstructure:"auto_inject"`
	HumanizeTyping     bool   `mapstructure:"humanize_typing"`
	LiveMode           bool   `mapstructure:"live_mode"`
	CodingMode         bool   `mapstructure:"coding_mode"`
	UltraHuman         bool   `mapstructure:"ultra_human"`
	Tone               string `mapstructure:"tone"`
	SelectedAgent      string `mapstructure:"selected_agent"`
	TabAsSpaces        bool   `mapstructure:"tab_as_spaces"`
	SpacesPerTab       int    `mapstructure:"spaces_per_tab"`
	LastGeneratedText  string `mapstructure:"-"`
	LastGeneratedExpl  string `mapstructure:"-"`
	Hotkeys            HotkeyConfig `mapstructure:"hotkeys"`
	LiveIdleMs         int    `mapstructure:"live_idle_ms"`
	ExtendWindowMs     int    `mapstructure:"extend_window_ms"`
	LogLevel           string `mapstructure:"log_level"`
	LogToFile          bool   `mapstructure:"log_to_file"`
	DebugLogEnabled    bool   `mapstructure:"debug_log_enabled"`
	DebugLogMaxEntries int    `mapstructure:"debug_log_max_entries"`
}

// ConfigSnapshot is emitted to the AI worker client at each worker (re)start.
// It is a copy, so later reloads do not change a snapshot already handed
// out; the Orchestrator does not use it and receives Settings updates
// directly (see Store.OnChange).
type ConfigSnapshot struct {
	Settings          Settings
	ProviderAPIKeys   map[string]string
	CaptureExemptible bool
}

// Store owns the on-disk Settings file, the key store, and the viper
// instance backing both.
type Store struct {
	mu       sync.RWMutex
	v        *viper.Viper
	settings Settings
	keys     *KeyStore
	env      map[string]string
	path     string
	onChange []func(Settings)
}

func defaultSettings() Settings {
	return Settings{
		MasterEnabled:  true,
		AutoInject:     false,
		HumanizeTyping: true,
		LiveMode:       false,
		CodingMode:     false,
		UltraHuman:     false,
		Tone:           "neutral",
		SelectedAgent:  "default",
		TabAsSpaces:    false,
		SpacesPerTab:   4,
		Hotkeys: HotkeyConfig{
			ToggleOverlay: "Ctrl+Shift+J",
			PasteLast:     "Ctrl+Shift+V",
			Generate:      "Ctrl+Shift+G",
			Clipboard:     "Ctrl+Shift+C",
			Screenshot:    "Ctrl+Shift+S",
			Voice:         "Ctrl+Shift+Space",
			Settings:      "Ctrl+Shift+O",
		},
		LiveIdleMs:         700,
		ExtendWindowMs:     2000,
		LogLevel:           "info",
		LogToFile:          true,
		DebugLogEnabled:    false,
		DebugLogMaxEntries: 500,
	}
}

// Load reads Settings from configDir (searching cwd, ./configs, and
// configDir, which defaults to ~/.copilotd; tolerant of a missing file)
// and opens the key store and env file alongside it.
func Load(configDir string) (*Store, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configDir = filepath.Join(home, ".copilotd")
		}
	}

	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	defaults := defaultSettings()
	v.SetDefault("master_enabled", defaults.MasterEnabled)
	v.SetDefault("auto_inject", defaults.AutoInject)
	v.SetDefault("humanize_typing", defaults.HumanizeTyping)
	v.SetDefault("live_mode", defaults.LiveMode)
	v.SetDefault("coding_mode", defaults.CodingMode)
	v.SetDefault("ultra_human", defaults.UltraHuman)
	v.SetDefault("tone", defaults.Tone)
	v.SetDefault("selected_agent", defaults.SelectedAgent)
	v.SetDefault("tab_as_spaces", defaults.TabAsSpaces)
	v.SetDefault("spaces_per_tab", defaults.SpacesPerTab)
	v.SetDefault("hotkeys.toggle_overlay", defaults.Hotkeys.ToggleOverlay)
	v.SetDefault("hotkeys.paste_last", defaults.Hotkeys.PasteLast)
	v.SetDefault("hotkeys.generate", defaults.Hotkeys.Generate)
	v.SetDefault("hotkeys.clipboard", defaults.Hotkeys.Clipboard)
	v.SetDefault("hotkeys.screenshot", defaults.Hotkeys.Screenshot)
	v.SetDefault("hotkeys.voice", defaults.Hotkeys.Voice)
	v.SetDefault("hotkeys.settings", defaults.Hotkeys.Settings)
	v.SetDefault("live_idle_ms", defaults.LiveIdleMs)
	v.SetDefault("extend_window_ms", defaults.ExtendWindowMs)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_to_file", defaults.LogToFile)
	v.SetDefault("debug_log_enabled", defaults.DebugLogEnabled)
	v.SetDefault("debug_log_max_entries", defaults.DebugLogMaxEntries)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read settings.json: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("config: unmarshal settings: %w", err)
	}

	_ = os.MkdirAll(configDir, 0o755)

	keys, err := openKeyStore(filepath.Join(configDir, "keys.enc.json"))
	if err != nil {
		return nil, err
	}

	env, err := LoadEnvFile(filepath.Join(configDir, ".env"))
	if err != nil {
		return nil, err
	}

	s := &Store{v: v, settings: settings, keys: keys, env: env, path: filepath.Join(configDir, "settings.json")}
	return s, nil
}

// WatchAndReload starts viper's fsnotify-backed config watch; on change,
// the new Settings is unmarshaled and observers registered with
// OnChange are notified. A ConfigSnapshot already handed to the worker
// is not changed; future Snapshot() calls see the reload.
func (s *Store) WatchAndReload() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.mu.Lock()
		var updated Settings
		if err := s.v.Unmarshal(&updated); err != nil {
			s.mu.Unlock()
			return
		}
		updated.LastGeneratedText = s.settings.LastGeneratedText
		updated.LastGeneratedExpl = s.settings.LastGeneratedExpl
		s.settings = updated
		observers := append([]func(Settings){}, s.onChange...)
		s.mu.Unlock()

		for _, fn := range observers {
			fn(updated)
		}
	})
	s.v.WatchConfig()
}

// OnChange registers fn to be called whenever the on-disk settings file
// changes and is successfully reloaded.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Save persists updated settings to disk and updates the in-memory copy.
// Besides Save, only the file reload in WatchAndReload replaces the
// in-memory Settings.
func (s *Store) Save(updated Settings) error {
	s.mu.Lock()
	s.settings = updated
	s.mu.Unlock()

	data, err := marshalSettingsJSON(updated)
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	return nil
}

// Snapshot builds a ConfigSnapshot for an AI worker (re)start, combining
// the current settings with decrypted provider keys.
func (s *Store) Snapshot(captureExemptible bool) ConfigSnapshot {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()

	// Env-file values seed the key map; the encrypted store wins on
	// conflict since it is the settings UI's write path.
	keys := make(map[string]string, len(s.env))
	for k, v := range s.env {
		keys[k] = v
	}
	for k, v := range s.keys.All() {
		keys[k] = v
	}

	return ConfigSnapshot{
		Settings:          settings,
		ProviderAPIKeys:   keys,
		CaptureExemptible: captureExemptible,
	}
}

// Keys exposes the underlying key store for read/write of provider keys.
func (s *Store) Keys() *KeyStore { return s.keys }

// Dir returns the directory holding the settings file, key store, and
// other persisted state (debug logs).
func (s *Store) Dir() string { return filepath.Dir(s.path) }

// isUnset reports whether a raw env-file value should be treated as
// absent: empty, or containing a placeholder substring.
func isUnset(v string) bool {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "your_") || strings.Contains(lower, "changeme") || strings.Contains(lower, "xxxx")
}
