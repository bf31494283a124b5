//go:build darwin

package capture

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics

#import <Cocoa/Cocoa.h>
#import <CoreGraphics/CoreGraphics.h>
#include <dlfcn.h>

// CGS private API, loaded lazily. setSharingType alone hides the window
// from screen-sharing apps; the CGS tags additionally exclude it from
// one-shot screenshots on the macOS versions that honor them.
typedef int CGSConnectionID;
typedef int CGSWindowID;
typedef uint32_t CGSWindowTag;

static CGSConnectionID (*pCGSMainConnectionID)(void) = NULL;
static CGError (*pCGSSetWindowTags)(CGSConnectionID, CGSWindowID, CGSWindowTag *, int32_t) = NULL;
static CGError (*pCGSClearWindowTags)(CGSConnectionID, CGSWindowID, CGSWindowTag *, int32_t) = NULL;
static bool cgsLoaded = false;

static void loadCGS() {
	if (cgsLoaded) return;
	void *handle = dlopen("/System/Library/Frameworks/CoreGraphics.framework/CoreGraphics", RTLD_NOW);
	if (handle) {
		pCGSMainConnectionID = dlsym(handle, "CGSMainConnectionID");
		pCGSSetWindowTags = dlsym(handle, "CGSSetWindowTags");
		pCGSClearWindowTags = dlsym(handle, "CGSClearWindowTags");
	}
	cgsLoaded = true;
}

static const CGSWindowTag captureTags[] = {
	(1 << 11),  // no-shadow variant honored by older capture paths
	(1 << 17),  // exclude-from-capture
};

static void setWindowExempt(NSWindow *window, bool exempt) {
	if (window == nil) return;
	loadCGS();

	[window setSharingType:(exempt ? NSWindowSharingNone : NSWindowSharingReadOnly)];

	if (pCGSMainConnectionID == NULL) return;
	CGSConnectionID cid = pCGSMainConnectionID();
	CGSWindowID wid = (CGSWindowID)[window windowNumber];
	for (unsigned i = 0; i < sizeof(captureTags)/sizeof(captureTags[0]); i++) {
		CGSWindowTag tag = captureTags[i];
		if (exempt && pCGSSetWindowTags) {
			pCGSSetWindowTags(cid, wid, &tag, 1);
		} else if (!exempt && pCGSClearWindowTags) {
			pCGSClearWindowTags(cid, wid, &tag, 1);
		}
	}
}

// markAllWindows applies the exemption to every window of this app on the
// main queue (AppKit windows must be touched from the main thread).
static int markAllWindows(bool exempt) {
	NSArray *windows = [[NSApplication sharedApplication] windows];
	int count = (int)[windows count];
	dispatch_async(dispatch_get_main_queue(), ^{
		for (NSWindow *window in [[NSApplication sharedApplication] windows]) {
			setWindowExempt(window, exempt);
		}
	});
	return count;
}
*/
import "C"

func markOwnedWindows(exempt bool) int {
	return int(C.markAllWindows(C.bool(exempt)))
}

func exclusionSupported() bool { return true }
