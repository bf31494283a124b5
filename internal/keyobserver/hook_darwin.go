//go:build darwin

package keyobserver

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics -framework ApplicationServices -framework Carbon

#include <CoreGraphics/CoreGraphics.h>
#include <ApplicationServices/ApplicationServices.h>
#include <Carbon/Carbon.h>
#include <stdlib.h>

extern void goRawKeyEvent(int vkCode, int isKeyDown, unsigned long long flags, int sourceStateID);
extern void goFocusChanged(char *title, char *process);

static CFMachPortRef eventTap = NULL;
static CFRunLoopSourceRef runLoopSource = NULL;
static CFRunLoopRef tapRunLoop = NULL;

static CGEventRef eventTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
    if (type == kCGEventTapDisabledByTimeout || type == kCGEventTapDisabledByUserInput) {
        if (eventTap) {
            CGEventTapEnable(eventTap, true);
        }
        return event;
    }
    if (type != kCGEventKeyDown && type != kCGEventKeyUp) {
        return event;
    }

    int64_t sourceStateID = CGEventGetIntegerValueField(event, kCGEventSourceStateID);
    CGKeyCode keyCode = (CGKeyCode)CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
    CGEventFlags flags = CGEventGetFlags(event);
    int isDown = (type == kCGEventKeyDown) ? 1 : 0;

    goRawKeyEvent((int)keyCode, isDown, (unsigned long long)flags, (int)sourceStateID);

    return event;
}

static int startEventTap(void) {
    if (eventTap != NULL) {
        return 1;
    }
    CGEventMask eventMask = CGEventMaskBit(kCGEventKeyDown) | CGEventMaskBit(kCGEventKeyUp);
    eventTap = CGEventTapCreate(kCGSessionEventTap, kCGHeadInsertEventTap, kCGEventTapOptionListenOnly,
        eventMask, eventTapCallback, NULL);
    if (eventTap == NULL) {
        return 0;
    }
    runLoopSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, eventTap, 0);
    if (runLoopSource == NULL) {
        CFRelease(eventTap);
        eventTap = NULL;
        return 0;
    }
    return 1;
}

static void runEventTapLoop(void) {
    if (runLoopSource == NULL) {
        return;
    }
    tapRunLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(tapRunLoop, runLoopSource, kCFRunLoopCommonModes);
    CGEventTapEnable(eventTap, true);
    CFRunLoopRun();
}

static void stopEventTap(void) {
    if (tapRunLoop != NULL) {
        CFRunLoopStop(tapRunLoop);
        tapRunLoop = NULL;
    }
    if (eventTap != NULL) {
        CGEventTapEnable(eventTap, false);
        CFRelease(eventTap);
        eventTap = NULL;
    }
    if (runLoopSource != NULL) {
        CFRelease(runLoopSource);
        runLoopSource = NULL;
    }
}

// pollFrontmostApplication reports the current frontmost app's name (used
// as both "title" and "process" proxies on darwin, where the per-window
// title is not reliably obtainable without Accessibility API permission
// beyond the event tap's own).
static void pollFrontmostApplication(void) {
    @autoreleasepool {
        NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
        if (app == nil) {
            return;
        }
        NSString *name = app.localizedName ?: @"";
        NSString *bundleID = app.bundleIdentifier ?: @"";
        goFocusChanged((char *)[name UTF8String], (char *)[bundleID UTF8String]);
    }
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"time"
)

func init() {
	// macOS has no universal "Home/End moves caret" virtual key distinct
	// from the keys below; kVK_LeftArrow=0x7B, kVK_RightArrow=0x7C,
	// kVK_DownArrow=0x7D, kVK_UpArrow=0x7E, kVK_Home=0x73, kVK_End=0x77,
	// kVK_PageUp=0x74, kVK_PageDown=0x79.
	registerNavigationKeys(0x7B, 0x7C, 0x7D, 0x7E, 0x73, 0x77, 0x74, 0x79)
}

var (
	darwinObserver *Observer
	// darwinLastFocus is the last reported (title, process); polls that
	// match it are not focus changes and are not dispatched.
	darwinLastFocus [2]string
)

//export goRawKeyEvent
func goRawKeyEvent(vkCode C.int, isKeyDown C.int, flags C.ulonglong, sourceStateID C.int) {
	if darwinObserver == nil {
		return
	}
	injected := int64(sourceStateID) != 1
	vk := int(vkCode)
	darwinObserver.dispatch(RawKeyEvent{
		VirtualKey:       vk,
		Rune:             darwinRune(vk, uint64(flags)),
		IsKeyDown:        isKeyDown != 0,
		IsModifier:       darwinIsModifier(vk),
		IsNavigation:     IsNavigationKey(vk),
		IsBackspace:      vk == 0x33, // kVK_Delete
		IsEscape:         vk == 0x35, // kVK_Escape
		IsSystemInjected: injected,
		Timestamp:        time.Now(),
	})
}

//export goFocusChanged
func goFocusChanged(title *C.char, process *C.char) {
	if darwinObserver == nil {
		return
	}
	t, p := C.GoString(title), C.GoString(process)
	if darwinLastFocus == [2]string{t, p} {
		return
	}
	darwinLastFocus = [2]string{t, p}
	darwinObserver.dispatchFocus(t, p)
}

func darwinIsModifier(vk int) bool {
	switch vk {
	case 0x38, 0x3C, 0x3B, 0x3E, 0x3A, 0x3D, 0x37, 0x36, 0x39: // shift/ctrl/opt/cmd L+R, capslock
		return true
	}
	return false
}

// darwinRune gives a best-effort ASCII mapping for the common alnum
// range; full Unicode layout resolution is left to UCKeyTranslate in a
// future revision (see hook_windows.go's vkToRune for the same tradeoff).
func darwinRune(vk int, flags uint64) rune {
	const shiftMask = 0x00020000 // kCGEventFlagMaskShift
	table := map[int]rune{
		0x00: 'a', 0x0B: 'b', 0x08: 'c', 0x02: 'd', 0x0E: 'e', 0x03: 'f',
		0x05: 'g', 0x04: 'h', 0x22: 'i', 0x26: 'j', 0x28: 'k', 0x25: 'l',
		0x2E: 'm', 0x2D: 'n', 0x1F: 'o', 0x23: 'p', 0x0C: 'q', 0x0F: 'r',
		0x01: 's', 0x11: 't', 0x20: 'u', 0x09: 'v', 0x0D: 'w', 0x07: 'x',
		0x10: 'y', 0x06: 'z',
		0x1D: '0', 0x12: '1', 0x13: '2', 0x14: '3', 0x15: '4', 0x17: '5',
		0x16: '6', 0x1A: '7', 0x1C: '8', 0x19: '9',
		0x31: ' ',
		0x24: '\r', // kVK_Return
	}
	r, ok := table[vk]
	if !ok {
		return 0
	}
	if flags&shiftMask != 0 && r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

func platformStart(o *Observer) (func(), error) {
	darwinObserver = o
	darwinLastFocus = [2]string{}

	ready := make(chan error, 1)
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if ok := C.startEventTap(); ok == 0 {
			ready <- fmt.Errorf("keyobserver: CGEventTapCreate failed (missing Accessibility permission?)")
			close(doneCh)
			return
		}
		ready <- nil
		go pollFrontmost(stopCh)
		C.runEventTapLoop()
		close(doneCh)
	}()

	if err := <-ready; err != nil {
		return nil, err
	}

	stop := func() {
		close(stopCh)
		C.stopEventTap()
		<-doneCh
	}
	return stop, nil
}

func pollFrontmost(stop <-chan struct{}) {
	t := time.NewTicker(300 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			C.pollFrontmostApplication()
		}
	}
}
