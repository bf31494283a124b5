//go:build !darwin && !windows

package injector

import "github.com/go-vgo/robotgo"

func platformType(text string) error {
	robotgo.Type(text)
	return nil
}

func platformBackspace(n int) error {
	for i := 0; i < n; i++ {
		robotgo.KeyTap("backspace")
	}
	return nil
}

func platformPaste() error {
	robotgo.KeyTap("v", "ctrl")
	return nil
}
