//go:build !darwin && !windows

package keyobserver

import "fmt"

func init() {
	// No low-level hook API on this platform; navigation-key detection is
	// unreachable, so the set stays empty (IsNavigationKey always false).
}

// platformStart reports HookInstallFailed immediately: this build target
// has no supported low-level keyboard hook.
func platformStart(o *Observer) (func(), error) {
	return nil, fmt.Errorf("keyobserver: no key hook implementation for this platform")
}
