package trigger

import (
	"golang.design/x/clipboard"
)

// SystemClipboard implements ClipboardReader with a synchronous read of
// the system clipboard. There is no polling monitor; the clipboard is
// read on demand at hotkey-press time.
type SystemClipboard struct{}

// InitSystemClipboard must be called once from the main goroutine before any
// SystemClipboard is used (golang.design/x/clipboard requires this).
func InitSystemClipboard() error {
	return clipboard.Init()
}

// ReadText returns the clipboard's current plain-text contents, or "" if the
// clipboard holds no text.
func (SystemClipboard) ReadText() (string, error) {
	data := clipboard.Read(clipboard.FmtText)
	return string(data), nil
}
