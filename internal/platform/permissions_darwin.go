//go:build darwin

package platform

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreGraphics

#include <ApplicationServices/ApplicationServices.h>
#include <CoreGraphics/CoreGraphics.h>

// accessibilityTrusted reports whether this process may observe and
// synthesize input events. AXIsProcessTrusted covers the Accessibility
// grant; CGPreflightListenEventAccess (10.15+) covers Input Monitoring,
// which the event tap additionally needs for key-down contents.
static int accessibilityTrusted() {
	if (!AXIsProcessTrusted()) {
		return 0;
	}
	return CGPreflightListenEventAccess() ? 1 : 0;
}
*/
import "C"

import "os/exec"

const inputControlDetail = "Accessibility and Input Monitoring grants are required to install the event tap and type replacements. Re-launch after granting."

func checkInputControl() Status {
	if C.accessibilityTrusted() == 1 {
		return StatusGranted
	}
	return StatusDenied
}

func openInputSettings() {
	_ = exec.Command("open", "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility").Start()
}
