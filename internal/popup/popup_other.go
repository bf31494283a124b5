//go:build !darwin && !windows

package popup

// Manager stub for platforms without a native popup window. The
// Controller still runs its state machine; everything here is a no-op
// and IsSupported reports false so the orchestrator can prefer
// auto-inject.
type Manager struct{}

func NewManager() *Manager { return &Manager{} }

func (m *Manager) Show() {}

func (m *Manager) Hide() {}

func (m *Manager) IsVisible() bool { return false }

func (m *Manager) EvalJS(js string) {}

func (m *Manager) EvalJSWithResult(js string) string { return "" }

func (m *Manager) Destroy() {}

func (m *Manager) IsSupported() bool { return false }

func (m *Manager) GetWindowNumber() int { return 0 }

func (m *Manager) SetIgnoresMouseEvents(ignores bool) {}

func (m *Manager) GetMouseLocation() (x, y float64) { return 0, 0 }

func (m *Manager) GetScreenSize() (w, h float64) { return 0, 0 }

func (m *Manager) DiagnosticCheck() (visible bool, jsWorks bool, windowInfo string) {
	return false, false, "unsupported platform"
}
