//go:build windows

package platform

import (
	"os/exec"
	"syscall"
)

var (
	permUser32    = syscall.NewLazyDLL("user32.dll")
	procSendInput = permUser32.NewProc("SendInput")
)

const inputControlDetail = "SendInput must be reachable; UIPI blocks injection into elevated windows unless the daemon itself runs elevated."

// checkInputControl verifies SendInput resolves. Windows has no grant
// dialog for low-level hooks; the practical failure mode is an AV or
// policy blocking user32 injection, which surfaces here as a missing proc.
func checkInputControl() Status {
	if procSendInput.Find() == nil {
		return StatusGranted
	}
	return StatusDenied
}

func openInputSettings() {
	_ = exec.Command("cmd", "/c", "start", "ms-settings:easeofaccess-keyboard").Start()
}
