// Package hotkeys registers the daemon's global hotkeys and delivers
// fired actions to a single callback. Bindings are keyed directly by
// trigger.HotkeyAction so a fired key needs no translation layer on its
// way to the pipeline.
package hotkeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	"github.com/Rajmali-22/NXlayer/internal/logging"
	"github.com/Rajmali-22/NXlayer/internal/trigger"
)

// Manager holds the action→hotkey bindings and the listener lifecycle.
// Bind everything first, then Run (or RunAsync) once.
type Manager struct {
	logger *logging.Logger
	fire   func(trigger.HotkeyAction)

	mu       sync.Mutex
	bindings map[trigger.HotkeyAction]*binding
	cancel   context.CancelFunc
	done     chan struct{}
}

type binding struct {
	combo string
	hk    *hotkey.Hotkey
}

// NewManager builds a Manager delivering fired actions to fire.
func NewManager(logger *logging.Logger, fire func(trigger.HotkeyAction)) *Manager {
	return &Manager{
		logger:   logger,
		fire:     fire,
		bindings: make(map[trigger.HotkeyAction]*binding),
	}
}

// Bind parses combo (e.g. "Ctrl+Shift+G") and associates it with
// action, replacing any previous binding for that action. Unknown
// modifiers or keys are an error, not a silent zero binding.
func (m *Manager) Bind(action trigger.HotkeyAction, combo string) error {
	mods, key, err := parseCombo(combo)
	if err != nil {
		return fmt.Errorf("hotkeys: bind %s to %q: %w", action, combo, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.bindings[action]; ok {
		old.hk.Unregister()
	}
	m.bindings[action] = &binding{combo: combo, hk: hotkey.New(mods, key)}
	m.logger.Info("hotkeys", "bound %s to %s", combo, action)
	return nil
}

// Combo returns the combo string bound to action, if any.
func (m *Manager) Combo(action trigger.HotkeyAction) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[action]
	if !ok {
		return "", false
	}
	return b.combo, true
}

// Run registers every binding and occupies the calling goroutine with
// the OS event loop the hotkey facility needs; it returns after Stop.
// Call from the main goroutine.
func (m *Manager) Run() {
	ctx := m.startContext()
	if ctx == nil {
		return
	}
	mainthread.Init(func() { m.listen(ctx) })
}

// RunAsync is Run on a fresh goroutine, for platforms without the
// main-thread constraint.
func (m *Manager) RunAsync() {
	ctx := m.startContext()
	if ctx == nil {
		return
	}
	go m.listen(ctx)
}

func (m *Manager) startContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil // already running
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	return ctx
}

func (m *Manager) listen(ctx context.Context) {
	defer close(m.done)

	m.mu.Lock()
	registered := make(map[trigger.HotkeyAction]*hotkey.Hotkey, len(m.bindings))
	for action, b := range m.bindings {
		if err := b.hk.Register(); err != nil {
			m.logger.Error("hotkeys", "register %s (%s): %v", b.combo, action, err)
			continue
		}
		registered[action] = b.hk
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for action, hk := range registered {
		wg.Add(1)
		go func(action trigger.HotkeyAction, hk *hotkey.Hotkey) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-hk.Keydown():
					m.fire(action)
				}
			}
		}(action, hk)
	}

	<-ctx.Done()
	for _, hk := range registered {
		hk.Unregister()
	}
	wg.Wait()
}

// Stop unregisters every hotkey and ends Run/RunAsync.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// parseCombo splits a "+"-separated combo into modifiers and the final
// key, case-insensitively.
func parseCombo(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(combo, "+")
	last := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	if last == "" {
		return nil, 0, errors.New("empty key")
	}

	var mods []hotkey.Modifier
	for _, part := range parts[:len(parts)-1] {
		name := strings.ToLower(strings.TrimSpace(part))
		mod, ok := modifierByName(name)
		if !ok {
			return nil, 0, fmt.Errorf("unknown modifier %q", part)
		}
		mods = append(mods, mod)
	}

	key, ok := keyByName[last]
	if !ok {
		return nil, 0, fmt.Errorf("unknown key %q", last)
	}
	return mods, key, nil
}

// keyByName maps lowercase key names to the hotkey facility's codes.
// The letter/digit/function keys cover the default bindings; the named
// entries cover what users realistically put in a combo.
var keyByName = map[string]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3,
	"f4": hotkey.KeyF4, "f5": hotkey.KeyF5, "f6": hotkey.KeyF6,
	"f7": hotkey.KeyF7, "f8": hotkey.KeyF8, "f9": hotkey.KeyF9,
	"f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,

	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"return": hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
}
