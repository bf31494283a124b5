// Package platform checks the OS-level preconditions the daemon needs
// before the key hook and injector can work: Accessibility / input
// monitoring on macOS, SendInput availability on Windows, a display
// server on Linux. The daemon's entrypoint consults these at startup,
// before installing the Key Observer hook, and logs a missing grant as a
// warning so a following HookInstallFailed is not a bare hook error.
package platform

// Status is the coarse grant state of one permission.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusUnknown Status = "unknown"
)

// Check describes one permission the daemon depends on.
type Check struct {
	Name     string
	Detail   string
	Status   Status
	Required bool
}

// InputGranted reports whether global key observation and synthesis are
// available right now.
func InputGranted() bool {
	return checkInputControl() == StatusGranted
}

// Diagnose returns every platform check with its current status, for the
// startup log and the HookInstallFailed diagnostic message.
func Diagnose() []Check {
	return []Check{
		{
			Name:     "input control",
			Detail:   inputControlDetail,
			Status:   checkInputControl(),
			Required: true,
		},
	}
}

// OpenInputSettings opens the OS settings pane where the user grants the
// input-control permission. Best effort; a headless session ignores it.
func OpenInputSettings() {
	openInputSettings()
}
