//go:build windows

package capture

import (
	"syscall"
	"unsafe"
)

var (
	capUser32                    = syscall.NewLazyDLL("user32.dll")
	procSetWindowDisplayAffinity = capUser32.NewProc("SetWindowDisplayAffinity")
	procEnumWindows              = capUser32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = capUser32.NewProc("GetWindowThreadProcessId")

	capKernel32             = syscall.NewLazyDLL("kernel32.dll")
	procGetCurrentProcessId = capKernel32.NewProc("GetCurrentProcessId")
)

const (
	wdaNone               = 0x00000000
	wdaExcludeFromCapture = 0x00000011 // Windows 10 2004+
)

// markOwnedWindows walks every top-level window of this process and sets
// its display affinity. Returns how many windows accepted the call.
func markOwnedWindows(exempt bool) int {
	affinity := uintptr(wdaNone)
	if exempt {
		affinity = wdaExcludeFromCapture
	}

	pid, _, _ := procGetCurrentProcessId.Call()
	ourPID := uint32(pid)

	count := 0
	cb := syscall.NewCallback(func(hwnd uintptr, lParam uintptr) uintptr {
		var windowPID uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&windowPID)))
		if windowPID == ourPID {
			if ret, _, _ := procSetWindowDisplayAffinity.Call(hwnd, affinity); ret != 0 {
				count++
			}
		}
		return 1
	})
	procEnumWindows.Call(cb, 0)
	return count
}

func exclusionSupported() bool {
	return procSetWindowDisplayAffinity.Find() == nil
}
