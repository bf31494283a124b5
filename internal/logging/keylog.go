package logging

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Keystroke-log bounds (persisted state: 500 recent entries of at
// most 2000 characters each, cleared on demand).
const (
	keylogMaxEntries  = 500
	keylogMaxEntryLen = 2000
)

// KeystrokeEntry is one recorded buffer observation.
type KeystrokeEntry struct {
	Time   time.Time `json:"time"`
	Window string    `json:"window"`
	Text   string    `json:"text"`
}

// KeystrokeLog is the optional debug log of recent buffer states. It
// lives in memory, capped, and is persisted to a single JSON file on
// Flush; Clear empties both.
type KeystrokeLog struct {
	mu      sync.Mutex
	enabled bool
	path    string
	entries []KeystrokeEntry
}

// NewKeystrokeLog builds a KeystrokeLog writing to path. When disabled,
// Record is a no-op and the file is never created.
func NewKeystrokeLog(path string, enabled bool) *KeystrokeLog {
	return &KeystrokeLog{enabled: enabled, path: path}
}

// Record appends a buffer observation, truncating text to the entry cap
// and evicting the oldest entry past the count cap.
func (k *KeystrokeLog) Record(window, text string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.enabled {
		return
	}
	if r := []rune(text); len(r) > keylogMaxEntryLen {
		text = string(r[:keylogMaxEntryLen])
	}
	k.entries = append(k.entries, KeystrokeEntry{Time: time.Now(), Window: window, Text: text})
	if len(k.entries) > keylogMaxEntries {
		drop := len(k.entries) - keylogMaxEntries
		copy(k.entries, k.entries[drop:])
		k.entries = k.entries[:keylogMaxEntries]
	}
}

// Entries returns a copy of the recorded entries.
func (k *KeystrokeLog) Entries() []KeystrokeEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]KeystrokeEntry, len(k.entries))
	copy(out, k.entries)
	return out
}

// Flush persists the current entries to the log file.
func (k *KeystrokeLog) Flush() error {
	k.mu.Lock()
	enabled, path := k.enabled, k.path
	entries := make([]KeystrokeEntry, len(k.entries))
	copy(entries, k.entries)
	k.mu.Unlock()

	if !enabled || path == "" {
		return nil
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Clear empties the log in memory and on disk.
func (k *KeystrokeLog) Clear() error {
	k.mu.Lock()
	k.entries = nil
	path := k.path
	k.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
