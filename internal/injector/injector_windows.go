//go:build windows

package injector

import (
	"syscall"
	"unicode/utf16"
	"unsafe"
)

var (
	user32        = syscall.NewLazyDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard     = 1
	keyeventfUnicode  = 0x0004
	keyeventfKeyup    = 0x0002
	vkBack            = 0x08
	vkControl         = 0x11
	vkV               = 0x56
)

// input mirrors the Win32 INPUT struct for type=INPUT_KEYBOARD: a 4-byte
// type tag, 4 bytes of alignment padding before the union (the union is
// 8-byte aligned on amd64 because KEYBDINPUT.dwExtraInfo is a
// ULONG_PTR), then the KEYBDINPUT fields.
type input struct {
	Type        uint32
	_           uint32
	WVk         uint16
	WScan       uint16
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

func sendKeyEvent(vk uint16, flags uint32) {
	in := input{Type: inputKeyboard, WVk: vk, DwFlags: flags}
	procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
}

func sendUnicodeChar(r rune) {
	units := utf16.Encode([]rune{r})
	for _, u := range units {
		down := input{Type: inputKeyboard, WScan: u, DwFlags: keyeventfUnicode}
		procSendInput.Call(1, uintptr(unsafe.Pointer(&down)), unsafe.Sizeof(down))

		up := input{Type: inputKeyboard, WScan: u, DwFlags: keyeventfUnicode | keyeventfKeyup}
		procSendInput.Call(1, uintptr(unsafe.Pointer(&up)), unsafe.Sizeof(up))
	}
}

func platformType(text string) error {
	for _, r := range text {
		if r == '\n' {
			sendKeyEvent(0x0D, 0) // VK_RETURN
			sendKeyEvent(0x0D, keyeventfKeyup)
			continue
		}
		sendUnicodeChar(r)
	}
	return nil
}

func platformBackspace(n int) error {
	for i := 0; i < n; i++ {
		sendKeyEvent(vkBack, 0)
		sendKeyEvent(vkBack, keyeventfKeyup)
	}
	return nil
}

func platformPaste() error {
	sendKeyEvent(vkControl, 0)
	sendKeyEvent(vkV, 0)
	sendKeyEvent(vkV, keyeventfKeyup)
	sendKeyEvent(vkControl, keyeventfKeyup)
	return nil
}
