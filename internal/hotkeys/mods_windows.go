//go:build windows

package hotkeys

import "golang.design/x/hotkey"

func modifierByName(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl", "control", "cmd", "command", "mod":
		// Cmd maps to Ctrl so one combo string works across platforms.
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	case "alt", "option":
		return hotkey.ModAlt, true
	case "super", "win":
		return hotkey.ModWin, true
	}
	return 0, false
}
