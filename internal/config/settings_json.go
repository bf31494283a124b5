package config

import "encoding/json"

// marshalSettingsJSON renders Settings for the on-disk settings.json file.
// A plain json.Marshal is used rather than mapstructure's tags since this
// is the write path (viper only reads); the json tags mirror the
// mapstructure tags field-for-field.
func marshalSettingsJSON(s Settings) ([]byte, error) {
	type wire struct {
		MasterEnabled      bool         `json:"master_enabled"`
		AutoInject         bool         `json:"auto_inject"`
		HumanizeTyping     bool         `json:"humanize_typing"`
		LiveMode           bool         `json:"live_mode"`
		CodingMode         bool         `json:"coding_mode"`
		UltraHuman         bool         `json:"ultra_human"`
		Tone               string       `json:"tone"`
		SelectedAgent      string       `json:"selected_agent"`
		TabAsSpaces        bool         `json:"tab_as_spaces"`
		SpacesPerTab       int          `json:"spaces_per_tab"`
		Hotkeys            HotkeyConfig `json:"hotkeys"`
		LiveIdleMs         int          `json:"live_idle_ms"`
		ExtendWindowMs     int          `json:"extend_window_ms"`
		LogLevel           string       `json:"log_level"`
		LogToFile          bool         `json:"log_to_file"`
		DebugLogEnabled    bool         `json:"debug_log_enabled"`
		DebugLogMaxEntries int          `json:"debug_log_max_entries"`
	}
	w := wire{
		MasterEnabled:      s.MasterEnabled,
		AutoInject:         s.AutoInject,
		HumanizeTyping:     s.HumanizeTyping,
		LiveMode:           s.LiveMode,
		CodingMode:         s.CodingMode,
		UltraHuman:         s.UltraHuman,
		Tone:               s.Tone,
		SelectedAgent:      s.SelectedAgent,
		TabAsSpaces:        s.TabAsSpaces,
		SpacesPerTab:       s.SpacesPerTab,
		Hotkeys:            s.Hotkeys,
		LiveIdleMs:         s.LiveIdleMs,
		ExtendWindowMs:     s.ExtendWindowMs,
		LogLevel:           s.LogLevel,
		LogToFile:          s.LogToFile,
		DebugLogEnabled:    s.DebugLogEnabled,
		DebugLogMaxEntries: s.DebugLogMaxEntries,
	}
	return json.MarshalIndent(w, "", "  ")
}
