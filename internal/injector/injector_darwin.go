//go:build darwin

package injector

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics -framework Carbon

#include <CoreGraphics/CoreGraphics.h>
#include <Carbon/Carbon.h>

// typeUnicodeChar posts a synthetic key down/up pair carrying ch, using a
// private event source (sourceStateID != 1) so the event tap's
// injected-flag classification recognizes it as synthetic (see
// keyobserver/hook_darwin.go's goRawKeyEvent: IsSystemInjected = sourceStateID != 1).
static void typeUnicodeChar(UniChar ch) {
    CGEventSourceRef source = CGEventSourceCreate(kCGEventSourceStatePrivate);
    if (source == NULL) {
        source = CGEventSourceCreate(kCGEventSourceStateCombinedSessionState);
    }
    CGEventRef keyDown = CGEventCreateKeyboardEvent(source, 0, true);
    CGEventRef keyUp = CGEventCreateKeyboardEvent(source, 0, false);
    if (keyDown && keyUp) {
        CGEventKeyboardSetUnicodeString(keyDown, 1, &ch);
        CGEventKeyboardSetUnicodeString(keyUp, 1, &ch);
        CGEventPost(kCGHIDEventTap, keyDown);
        usleep(1000);
        CGEventPost(kCGHIDEventTap, keyUp);
    }
    if (keyDown) CFRelease(keyDown);
    if (keyUp) CFRelease(keyUp);
    if (source) CFRelease(source);
}

static void postKeyTap(CGKeyCode vk, CGEventFlags flags) {
    CGEventSourceRef source = CGEventSourceCreate(kCGEventSourceStatePrivate);
    CGEventRef down = CGEventCreateKeyboardEvent(source, vk, true);
    CGEventRef up = CGEventCreateKeyboardEvent(source, vk, false);
    if (flags != 0) {
        CGEventSetFlags(down, flags);
        CGEventSetFlags(up, flags);
    }
    CGEventPost(kCGHIDEventTap, down);
    usleep(1000);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    if (source) CFRelease(source);
}

static void postBackspace(void) {
    postKeyTap(kVK_Delete, 0);
}

static void postPaste(void) {
    postKeyTap(kVK_ANSI_V, kCGEventFlagMaskCommand);
}
*/
import "C"

func platformType(text string) error {
	for _, r := range text {
		if r == '\n' {
			C.postKeyTap(C.CGKeyCode(C.kVK_Return), 0)
			continue
		}
		C.typeUnicodeChar(C.UniChar(r))
	}
	return nil
}

func platformBackspace(n int) error {
	for i := 0; i < n; i++ {
		C.postBackspace()
	}
	return nil
}

func platformPaste() error {
	C.postPaste()
	return nil
}
