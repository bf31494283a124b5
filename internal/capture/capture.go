// Package capture marks the daemon's owned windows (the popup overlay)
// as excluded from the OS screen-capture APIs, so the generated text
// stays visible to the local user but invisible to screen-sharing and
// recording consumers. Where the facility is unavailable the windows
// are still created and the ConfigSnapshot reports them capture-visible.
package capture

import "sync"

// Exempter applies the per-OS capture-exclusion facility to every window
// owned by this process. One instance serves the whole daemon.
type Exempter struct {
	mu     sync.Mutex
	active bool
}

// New returns an Exempter; nothing is marked until Apply.
func New() *Exempter {
	return &Exempter{}
}

// Apply marks all currently owned windows capture-exempt and returns the
// number of windows affected. Re-run after creating a new window.
func (e *Exempter) Apply() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := markOwnedWindows(true)
	e.active = n > 0
	return n
}

// Clear restores capture visibility on all owned windows.
func (e *Exempter) Clear() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	return markOwnedWindows(false)
}

// Active reports whether an Apply succeeded for at least one window.
func (e *Exempter) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// IsSupported reports whether this OS exposes a capture-exclusion
// facility at all; false means snapshots must carry capture-visible.
func (e *Exempter) IsSupported() bool {
	return exclusionSupported()
}
