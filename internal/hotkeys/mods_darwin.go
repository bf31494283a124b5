//go:build darwin

package hotkeys

import "golang.design/x/hotkey"

// modifierByName resolves a modifier name to this platform's code. The
// hotkey facility defines a different Modifier set per OS, so the
// lookup lives in per-OS files rather than behind runtime.GOOS checks
// that would not compile everywhere.
func modifierByName(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl", "control":
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	case "alt", "option":
		return hotkey.ModOption, true
	case "cmd", "command", "super", "win", "mod":
		return hotkey.ModCmd, true
	}
	return 0, false
}
