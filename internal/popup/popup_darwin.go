//go:build darwin

package popup

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework WebKit -framework CoreGraphics

#import <Cocoa/Cocoa.h>
#import <WebKit/WebKit.h>

static NSWindow *popupWindow = nil;
static WKWebView *popupWebView = nil;

// createPopupWindow builds a borderless, transparent, non-activating
// full-screen window hosting a WKWebView, initially ordered out. The
// visible card is positioned inside the page, so the native window
// never moves.
static void createPopupWindow(const char *htmlContent) {
	char *htmlCopy = strdup(htmlContent);
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWindow != nil) {
			free(htmlCopy);
			return;
		}

		NSScreen *screen = [NSScreen mainScreen];
		popupWindow = [[NSWindow alloc]
			initWithContentRect:screen.frame
			styleMask:NSWindowStyleMaskBorderless
			backing:NSBackingStoreBuffered
			defer:NO];
		if (popupWindow == nil) {
			NSLog(@"popup: NSWindow alloc failed");
			free(htmlCopy);
			return;
		}

		[popupWindow setLevel:NSScreenSaverWindowLevel + 100];
		[popupWindow setBackgroundColor:[NSColor clearColor]];
		[popupWindow setOpaque:NO];
		[popupWindow setHasShadow:NO];
		[popupWindow setIgnoresMouseEvents:YES];
		[popupWindow setCollectionBehavior:
			NSWindowCollectionBehaviorCanJoinAllSpaces |
			NSWindowCollectionBehaviorStationary |
			NSWindowCollectionBehaviorFullScreenAuxiliary];
		[popupWindow setReleasedWhenClosed:NO];

		NSView *contentView = popupWindow.contentView;
		[contentView setWantsLayer:YES];
		contentView.layer.backgroundColor = [NSColor clearColor].CGColor;

		WKWebViewConfiguration *config = [[WKWebViewConfiguration alloc] init];
		#pragma clang diagnostic push
		#pragma clang diagnostic ignored "-Wdeprecated-declarations"
		config.preferences.javaScriptEnabled = YES;
		#pragma clang diagnostic pop

		popupWebView = [[WKWebView alloc]
			initWithFrame:contentView.bounds
			configuration:config];
		[config release];
		if (popupWebView == nil) {
			NSLog(@"popup: WKWebView alloc failed");
			free(htmlCopy);
			return;
		}

		[popupWebView setAutoresizingMask:NSViewWidthSizable | NSViewHeightSizable];
		[popupWebView setWantsLayer:YES];
		[popupWebView setValue:@(NO) forKey:@"drawsBackground"];

		// Private but long-stable; without it the page background renders
		// white on some macOS versions.
		SEL transpSel = NSSelectorFromString(@"_setDrawsTransparentBackground:");
		if ([popupWebView respondsToSelector:transpSel]) {
			typedef void (*TranspIMP)(id, SEL, BOOL);
			TranspIMP imp = (TranspIMP)[popupWebView methodForSelector:transpSel];
			imp(popupWebView, transpSel, YES);
		}

		[contentView addSubview:popupWebView];

		NSString *html = [NSString stringWithUTF8String:htmlCopy];
		free(htmlCopy);
		[popupWebView loadHTMLString:html baseURL:nil];

		// Stays ordered out until the controller shows a session result.
	});
}

static void destroyPopupWindow(void) {
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWindow != nil) {
			[popupWindow close];
			popupWebView = nil;
			popupWindow = nil;
		}
	});
}

static void showPopupWindow(void) {
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWindow != nil) {
			[popupWindow orderFrontRegardless];
		}
	});
}

static void hidePopupWindow(void) {
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWindow != nil) {
			[popupWindow orderOut:nil];
		}
	});
}

static void popupEvalJS(const char *js) {
	char *jsCopy = strdup(js);
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWebView == nil) {
			free(jsCopy);
			return;
		}
		NSString *script = [NSString stringWithUTF8String:jsCopy];
		free(jsCopy);
		[popupWebView evaluateJavaScript:script completionHandler:^(id result, NSError *error) {
			if (error) {
				NSLog(@"popup: eval error: %@", error.localizedDescription);
			}
		}];
	});
}

static int popupWindowNumber(void) {
	return popupWindow != nil ? (int)[popupWindow windowNumber] : 0;
}

static void setPopupIgnoresMouse(int ignores) {
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWindow != nil) {
			[popupWindow setIgnoresMouseEvents:(ignores ? YES : NO)];
		}
	});
}

static void pointerLocation(double *outX, double *outY) {
	NSPoint p = [NSEvent mouseLocation];
	NSScreen *screen = [NSScreen mainScreen];
	*outX = p.x;
	*outY = screen.frame.size.height - p.y; // flip to top-left origin
}

static void mainScreenSize(double *outW, double *outH) {
	NSScreen *screen = [NSScreen mainScreen];
	*outW = screen.frame.size.width;
	*outH = screen.frame.size.height;
}

// Synchronous JS eval: one shared buffer + semaphore, serialized on the
// Go side.
static char *jsResultBuffer = NULL;
static dispatch_semaphore_t jsResultSema = NULL;

static void popupEvalJSWithResult(const char *js) {
	if (jsResultSema == NULL) {
		jsResultSema = dispatch_semaphore_create(0);
	}
	char *jsCopy = strdup(js);
	dispatch_async(dispatch_get_main_queue(), ^{
		if (popupWebView == nil) {
			free(jsCopy);
			if (jsResultBuffer != NULL) {
				free(jsResultBuffer);
			}
			jsResultBuffer = strdup("");
			dispatch_semaphore_signal(jsResultSema);
			return;
		}
		NSString *script = [NSString stringWithUTF8String:jsCopy];
		free(jsCopy);
		[popupWebView evaluateJavaScript:script completionHandler:^(id result, NSError *error) {
			if (jsResultBuffer != NULL) {
				free(jsResultBuffer);
				jsResultBuffer = NULL;
			}
			if (result && !error) {
				jsResultBuffer = strdup([[NSString stringWithFormat:@"%@", result] UTF8String]);
			} else {
				jsResultBuffer = strdup("");
			}
			dispatch_semaphore_signal(jsResultSema);
		}];
	});
}

static const char* waitPopupJSResult(void) {
	if (jsResultSema == NULL) {
		jsResultSema = dispatch_semaphore_create(0);
	}
	dispatch_semaphore_wait(jsResultSema, dispatch_time(DISPATCH_TIME_NOW, 2 * NSEC_PER_SEC));
	return jsResultBuffer ? jsResultBuffer : "";
}
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"
)

// Manager owns the popup's native window on macOS. The window is
// created hidden; the Controller shows it per session.
type Manager struct {
	mu      sync.RWMutex
	created bool
	visible bool

	topmostStop chan struct{}
	wg          sync.WaitGroup

	// Serializes EvalJSWithResult: the C layer keeps a single shared
	// result buffer and semaphore.
	evalResultMu sync.Mutex
}

// NewManager creates the native window, hidden.
func NewManager() *Manager {
	m := &Manager{}

	cHTML := C.CString(popupHTML)
	defer C.free(unsafe.Pointer(cHTML))
	C.createPopupWindow(cHTML)

	m.created = true

	// Another always-on-top app can bury the window; reassert while
	// visible.
	m.topmostStop = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-m.topmostStop:
				return
			case <-ticker.C:
				m.mu.RLock()
				vis := m.visible
				m.mu.RUnlock()
				if vis {
					C.showPopupWindow()
				}
			}
		}
	}()

	return m
}

// Show makes the popup window visible.
func (m *Manager) Show() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		C.showPopupWindow()
		m.visible = true
	}
}

// Hide hides the popup window.
func (m *Manager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		C.hidePopupWindow()
		m.visible = false
	}
}

// IsVisible reports whether the popup window is shown.
func (m *Manager) IsVisible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible
}

// EvalJS executes JavaScript in the popup page, fire-and-forget.
func (m *Manager) EvalJS(js string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.created {
		cJS := C.CString(js)
		defer C.free(unsafe.Pointer(cJS))
		C.popupEvalJS(cJS)
	}
}

// EvalJSWithResult executes JavaScript and blocks for its stringified
// result, up to 2s.
func (m *Manager) EvalJSWithResult(js string) string {
	m.mu.RLock()
	created := m.created
	m.mu.RUnlock()
	if !created {
		return ""
	}
	m.evalResultMu.Lock()
	defer m.evalResultMu.Unlock()
	cJS := C.CString(js)
	defer C.free(unsafe.Pointer(cJS))
	C.popupEvalJSWithResult(cJS)
	return C.GoString(C.waitPopupJSResult())
}

// Destroy tears down the native window.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if !m.created {
		m.mu.Unlock()
		return
	}
	if m.topmostStop != nil {
		close(m.topmostStop)
		m.topmostStop = nil
	}
	m.created = false
	m.visible = false
	m.mu.Unlock()

	m.wg.Wait()
	C.destroyPopupWindow()
}

// IsSupported reports that macOS has a native popup implementation.
func (m *Manager) IsSupported() bool {
	return true
}

// GetWindowNumber returns the popup window number. The capture package
// does not use it; it finds the process's windows itself.
func (m *Manager) GetWindowNumber() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.created {
		return int(C.popupWindowNumber())
	}
	return 0
}

// SetIgnoresMouseEvents toggles click-through; the vision-prompt
// variant needs clicks and a focusable input.
func (m *Manager) SetIgnoresMouseEvents(ignores bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.created {
		v := C.int(0)
		if ignores {
			v = 1
		}
		C.setPopupIgnoresMouse(v)
	}
}

// GetMouseLocation returns the pointer position in screen pixels,
// top-left origin.
func (m *Manager) GetMouseLocation() (x, y float64) {
	var cx, cy C.double
	C.pointerLocation(&cx, &cy)
	return float64(cx), float64(cy)
}

// GetScreenSize returns the main screen size in pixels.
func (m *Manager) GetScreenSize() (w, h float64) {
	var cw, ch C.double
	C.mainScreenSize(&cw, &ch)
	return float64(cw), float64(ch)
}

// DiagnosticCheck verifies the page is alive and the card is wired up.
func (m *Manager) DiagnosticCheck() (visible bool, jsWorks bool, windowInfo string) {
	m.mu.RLock()
	created := m.created
	vis := m.visible
	m.mu.RUnlock()

	if !created {
		return false, false, "not created"
	}

	result := m.EvalJSWithResult(`(function(){
		var card = document.getElementById("card");
		return "popup_ok_" + window.innerWidth + "x" + window.innerHeight +
			"_card=" + (card ? card.style.display || "none" : "missing");
	})()`)
	jsWorks = result != ""

	info := "visible=false"
	if vis {
		info = "visible=true"
	}
	return vis, jsWorks, info + " jsResult=" + result
}
