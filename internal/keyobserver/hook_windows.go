//go:build windows

package keyobserver

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32   = syscall.NewLazyDLL("user32.dll")
	kernel32 = syscall.NewLazyDLL("kernel32.dll")

	procSetWindowsHookEx        = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx          = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx     = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage              = user32.NewProc("GetMessageW")
	procPostThreadMessage       = user32.NewProc("PostThreadMessageW")
	procGetForegroundWindow     = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW          = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetCurrentThreadId      = kernel32.NewProc("GetCurrentThreadId")
	procOpenProcess             = kernel32.NewProc("OpenProcess")
	procQueryFullProcessImageNameW = kernel32.NewProc("QueryFullProcessImageNameW")
	procCloseHandle             = kernel32.NewProc("CloseHandle")
	procGetAsyncKeyState        = user32.NewProc("GetAsyncKeyState")
)

const (
	whKeyboardLL = 13

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
	wmQuit       = 0x0012

	llkhfInjected = 0x00000010

	vkShift      = 0x10
	vkControl    = 0x11
	vkMenu       = 0x12
	vkCapital    = 0x14
	vkLeft       = 0x25
	vkUp         = 0x26
	vkRight      = 0x27
	vkDown       = 0x28
	vkHome       = 0x24
	vkEnd        = 0x23
	vkPageUp     = 0x21
	vkPageDown   = 0x22
	vkInsert     = 0x2D
	vkLWin       = 0x5B
	vkRWin       = 0x5C
	vkLShift     = 0xA0
	vkRShift     = 0xA1
	vkLControl   = 0xA2
	vkRControl   = 0xA3
	vkLMenu      = 0xA4
	vkRMenu      = 0xA5

	processQueryLimitedInformation = 0x1000
)

func init() {
	registerNavigationKeys(vkLeft, vkUp, vkRight, vkDown, vkHome, vkEnd, vkPageUp, vkPageDown, vkInsert)
}

// kbdllhookstruct mirrors the Windows KBDLLHOOKSTRUCT layout delivered to
// a WH_KEYBOARD_LL hook procedure.
type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

var (
	activeObserver *Observer
	hookMu         sync.Mutex
	hookHandle     uintptr
	hookThreadID   uint32
)

func isModifierVK(vk uint32) bool {
	switch vk {
	case vkShift, vkControl, vkMenu, vkCapital,
		vkLShift, vkRShift, vkLControl, vkRControl, vkLMenu, vkRMenu,
		vkLWin, vkRWin:
		return true
	}
	return false
}

// vkToRune gives a best-effort ASCII mapping; full dead-key composition
// is left to the OS and observed indirectly through WM_CHAR in a future
// revision. The unshifted VK covers the common alnum range, which is
// what trigger recognition and buffer echo actually need.
func vkToRune(vk uint32, shiftDown bool) rune {
	switch {
	case vk >= 0x30 && vk <= 0x39: // '0'-'9'
		return rune(vk)
	case vk >= 0x41 && vk <= 0x5A: // 'A'-'Z'
		if shiftDown {
			return rune(vk)
		}
		return rune(vk) + ('a' - 'A')
	case vk == 0x20:
		return ' '
	case vk == 0xBC:
		return ','
	case vk == 0xBE:
		return '.'
	case vk == 0xBF:
		return '/'
	case vk == 0xBA:
		return ';'
	case vk == 0xDE:
		return '\''
	case vk == 0xC0:
		return '`'
	case vk == 0xBD:
		return '-'
	case vk == 0xBB:
		return '='
	case vk == 0x0D: // VK_RETURN
		return '\r'
	}
	return 0
}

func hookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode >= 0 && activeObserver != nil {
		kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		isDown := wParam == wmKeyDown || wParam == wmSysKeyDown
		isUp := wParam == wmKeyUp || wParam == wmSysKeyUp
		if isDown || isUp {
			injected := kb.Flags&llkhfInjected != 0
			r := rune(0)
			if isDown {
				r = vkToRune(kb.VkCode, isKeyPressed(vkShift))
			}
			activeObserver.dispatch(RawKeyEvent{
				VirtualKey:       int(kb.VkCode),
				Rune:             r,
				IsKeyDown:        isDown,
				IsModifier:       isModifierVK(kb.VkCode),
				IsNavigation:     IsNavigationKey(int(kb.VkCode)),
				IsBackspace:      kb.VkCode == 0x08, // VK_BACK
				IsEscape:         kb.VkCode == 0x1B, // VK_ESCAPE
				IsSystemInjected: injected,
				Timestamp:        time.Now(),
			})
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func isKeyPressed(vk int) bool {
	ret, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return ret&0x8000 != 0
}

func platformStart(o *Observer) (func(), error) {
	hookMu.Lock()
	activeObserver = o
	hookMu.Unlock()

	ready := make(chan error, 1)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		hookThreadID = getCurrentThreadID()

		cb := syscall.NewCallback(hookProc)
		h, _, errno := procSetWindowsHookEx.Call(uintptr(whKeyboardLL), cb, 0, 0)
		if h == 0 {
			ready <- fmt.Errorf("keyobserver: SetWindowsHookExW failed: %v", errno)
			close(doneCh)
			return
		}
		hookHandle = h
		ready <- nil

		go pollForegroundWindow(o, stopCh)

		var msg struct {
			Hwnd    uintptr
			Message uint32
			WParam  uintptr
			LParam  uintptr
			Time    uint32
			Pt      struct{ X, Y int32 }
		}
		for {
			r, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if r == 0 || int32(r) == -1 {
				break
			}
		}
		procUnhookWindowsHookEx.Call(hookHandle)
		close(doneCh)
	}()

	if err := <-ready; err != nil {
		return nil, err
	}

	stop := func() {
		close(stopCh)
		if hookThreadID != 0 {
			procPostThreadMessage.Call(uintptr(hookThreadID), wmQuit, 0, 0)
		}
		<-doneCh
	}
	return stop, nil
}

func getCurrentThreadID() uint32 {
	r, _, _ := procGetCurrentThreadId.Call()
	return uint32(r)
}

func pollForegroundWindow(o *Observer, stop <-chan struct{}) {
	var lastHwnd uintptr
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			hwnd, _, _ := procGetForegroundWindow.Call()
			if hwnd == 0 || hwnd == lastHwnd {
				continue
			}
			lastHwnd = hwnd

			title := getWindowText(hwnd)
			process := getProcessImageName(hwnd)
			o.dispatchFocus(title, filepath.Base(process))
		}
	}
}

func getWindowText(hwnd uintptr) string {
	buf := make([]uint16, 512)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}

func getProcessImageName(hwnd uintptr) string {
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return ""
	}
	h, _, _ := procOpenProcess.Call(uintptr(processQueryLimitedInformation), 0, uintptr(pid))
	if h == 0 {
		return ""
	}
	defer procCloseHandle.Call(h)

	buf := make([]uint16, 512)
	size := uint32(len(buf))
	ok, _, _ := procQueryFullProcessImageNameW.Call(h, 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ok == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:size])
}
