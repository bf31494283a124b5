//go:build windows

package popup

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/wailsapp/go-webview2/pkg/edge"
	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	dwmapi   = windows.NewLazySystemDLL("dwmapi.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	ole32    = windows.NewLazySystemDLL("ole32.dll")

	procRegisterClassExW           = user32.NewProc("RegisterClassExW")
	procCreateWindowExW            = user32.NewProc("CreateWindowExW")
	procDestroyWindow              = user32.NewProc("DestroyWindow")
	procDefWindowProcW             = user32.NewProc("DefWindowProcW")
	procShowWindow                 = user32.NewProc("ShowWindow")
	procGetMessageW                = user32.NewProc("GetMessageW")
	procTranslateMessage           = user32.NewProc("TranslateMessage")
	procDispatchMessageW           = user32.NewProc("DispatchMessageW")
	procPostMessageW               = user32.NewProc("PostMessageW")
	procPostQuitMessage            = user32.NewProc("PostQuitMessage")
	procGetWindowLongPtrW          = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtrW          = user32.NewProc("SetWindowLongPtrW")
	procSetWindowPos               = user32.NewProc("SetWindowPos")
	procSetLayeredWindowAttributes = user32.NewProc("SetLayeredWindowAttributes")
	procGetCursorPos               = user32.NewProc("GetCursorPos")
	procGetSystemMetrics           = user32.NewProc("GetSystemMetrics")
	procGetDpiForWindow            = user32.NewProc("GetDpiForWindow")
	procGetModuleHandleW           = kernel32.NewProc("GetModuleHandleW")
	procDwmExtendFrameIntoClient   = dwmapi.NewProc("DwmExtendFrameIntoClientArea")
	procCoInitializeEx             = ole32.NewProc("CoInitializeEx")
)

const (
	_WS_POPUP = 0x80000000

	_WS_EX_TOPMOST     = 0x00000008
	_WS_EX_TOOLWINDOW  = 0x00000080
	_WS_EX_NOACTIVATE  = 0x08000000
	_WS_EX_LAYERED     = 0x00080000
	_WS_EX_TRANSPARENT = 0x00000020

	_GWL_EXSTYLE = ^uintptr(19) // -20 in two's complement

	_SW_SHOW = 5
	_SW_HIDE = 0

	_SWP_NOSIZE     = 0x0001
	_SWP_NOMOVE     = 0x0002
	_SWP_NOACTIVATE = 0x0010
	_SWP_SHOWWINDOW = 0x0040

	_HWND_TOPMOST = ^uintptr(0) // (HWND)-1

	_SM_CXSCREEN = 0
	_SM_CYSCREEN = 1

	_LWA_ALPHA = 0x00000002

	_COINIT_APARTMENTTHREADED = 0x2

	_WM_DESTROY = 0x0002
	_WM_SIZE    = 0x0005
	_WM_USER    = 0x0400

	_WM_POPUP_EVALJS       = _WM_USER + 1
	_WM_POPUP_SHOW         = _WM_USER + 2
	_WM_POPUP_HIDE         = _WM_USER + 3
	_WM_POPUP_DESTROY      = _WM_USER + 4
	_WM_POPUP_CLICKTHROUGH = _WM_USER + 5
)

// popupWindowClass is the Win32 class name this daemon registers for its
// popup surface.
const popupWindowClass = "CopilotdPopupWindow"

type _WNDCLASSEXW struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CnClsExtra    int32
	CbWndExtra    int32
	HInstance     uintptr
	HIcon         uintptr
	HCursor       uintptr
	HbrBackground uintptr
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       uintptr
}

type _MSG struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      _POINT
	_       uint32
}

type _MARGINS struct {
	CxLeftWidth    int32
	CxRightWidth   int32
	CyTopHeight    int32
	CyBottomHeight int32
}

type _POINT struct {
	X, Y int32
}

// Manager owns the popup's native window on Windows: a full-screen
// transparent layered WS_EX_NOACTIVATE window hosting a WebView2, with
// the visible card positioned inside the page. All window mutation
// happens on one dedicated OS thread driving the Win32 message loop;
// other goroutines talk to it via PostMessage.
type Manager struct {
	mu      sync.RWMutex
	created bool
	visible bool

	hwnd uintptr // accessed atomically; PostMessage is called from any goroutine

	chromium *edge.Chromium

	evalMu      sync.Mutex
	evalQueue   map[uint64]string
	evalCounter uint64

	resultMu      sync.Mutex
	resultChans   map[string]chan string
	resultCounter uint64

	dpiScale float64 // cached on the UI thread, read elsewhere

	topmostStop chan struct{}
	wg          sync.WaitGroup
	ready       chan struct{}
}

// NewManager creates the native window hidden; the Controller shows it
// on demand.
func NewManager() *Manager {
	m := &Manager{
		evalQueue:   make(map[uint64]string),
		resultChans: make(map[string]chan string),
		ready:       make(chan struct{}),
	}

	go m.uiThread()

	select {
	case <-m.ready:
	case <-time.After(15 * time.Second):
		log.Println("popup: window thread init timed out")
		return m
	}

	// A topmost window can still be buried by other always-on-top apps;
	// reassert while visible.
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
					m.post(_WM_POPUP_SHOW, 0, 0)
				}
			}
		}
	}()

	return m
}

// uiThread is the dedicated OS thread owning the window and its Win32
// message loop.
func (m *Manager) uiThread() {
	runtime.LockOSThread()
	// Never unlocked: the window and its WebView2 live and die with this
	// thread.

	procCoInitializeEx.Call(0, _COINIT_APARTMENTTHREADED)
	hInstance, _, _ := procGetModuleHandleW.Call(0)

	className := windows.StringToUTF16Ptr(popupWindowClass)
	var wcx _WNDCLASSEXW
	wcx.CbSize = uint32(unsafe.Sizeof(wcx))
	wcx.LpfnWndProc = syscall.NewCallback(m.wndProc)
	wcx.HInstance = hInstance
	wcx.LpszClassName = className
	if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wcx))); atom == 0 {
		log.Printf("popup: RegisterClassExW failed: %v", err)
		close(m.ready)
		return
	}

	screenW, _, _ := procGetSystemMetrics.Call(_SM_CXSCREEN)
	screenH, _, _ := procGetSystemMetrics.Call(_SM_CYSCREEN)

	exStyle := uintptr(_WS_EX_TOPMOST | _WS_EX_TOOLWINDOW | _WS_EX_NOACTIVATE |
		_WS_EX_LAYERED | _WS_EX_TRANSPARENT)

	// Created without WS_VISIBLE: the popup starts hidden and is shown
	// per session.
	hwnd, _, err := procCreateWindowExW.Call(
		exStyle,
		uintptr(unsafe.Pointer(className)),
		uintptr(unsafe.Pointer(windows.StringToUTF16Ptr(""))),
		_WS_POPUP,
		0, 0, screenW, screenH,
		0, 0, hInstance, 0,
	)
	if hwnd == 0 {
		log.Printf("popup: CreateWindowExW failed: %v", err)
		close(m.ready)
		return
	}

	// Per-pixel transparency through DWM composition.
	margins := _MARGINS{-1, -1, -1, -1}
	procDwmExtendFrameIntoClient.Call(hwnd, uintptr(unsafe.Pointer(&margins)))
	procSetLayeredWindowAttributes.Call(hwnd, 0, 255, _LWA_ALPHA)

	chromium := edge.NewChromium()
	exe, exeErr := os.Executable()
	if exeErr != nil {
		exe = "copilotd"
	}
	chromium.DataPath = filepath.Join(filepath.Dir(exe), "popup_webview2_data")

	if !chromium.Embed(hwnd) {
		log.Println("popup: WebView2 embed failed, destroying window")
		procDestroyWindow.Call(hwnd)
		close(m.ready)
		return
	}
	chromium.SetBackgroundColour(0, 0, 0, 0)
	chromium.Resize()

	chromium.MessageCallback = func(message string, sender *edge.ICoreWebView2, args *edge.ICoreWebView2WebMessageReceivedEventArgs) {
		m.handleWebMessage(message)
	}
	chromium.Init(`
		window.__evalCallback = function(id, result) {
			window.chrome.webview.postMessage(JSON.stringify({
				type: "eval_result",
				id: id,
				result: String(result)
			}));
		};
	`)
	chromium.NavigateToString(popupHTML)

	dpi, _, _ := procGetDpiForWindow.Call(hwnd)
	if dpi == 0 {
		dpi = 96
	}

	atomic.StoreUintptr(&m.hwnd, hwnd)
	m.mu.Lock()
	m.chromium = chromium
	m.dpiScale = float64(dpi) / 96.0
	m.created = true
	m.visible = false
	m.mu.Unlock()

	close(m.ready)

	var msg _MSG
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if ret == 0 || ret == ^uintptr(0) {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func (m *Manager) wndProc(hwnd, msg, wparam, lparam uintptr) uintptr {
	switch msg {
	case _WM_SIZE:
		m.mu.RLock()
		c := m.chromium
		m.mu.RUnlock()
		if c != nil {
			c.Resize()
		}
		return 0

	case _WM_POPUP_EVALJS:
		id := uint64(wparam)
		m.evalMu.Lock()
		js, ok := m.evalQueue[id]
		delete(m.evalQueue, id)
		m.evalMu.Unlock()
		if ok {
			m.mu.RLock()
			c := m.chromium
			m.mu.RUnlock()
			if c != nil {
				c.Eval(js)
			}
		}
		return 0

	case _WM_POPUP_SHOW:
		procShowWindow.Call(hwnd, _SW_SHOW)
		procSetWindowPos.Call(hwnd, _HWND_TOPMOST, 0, 0, 0, 0,
			_SWP_NOMOVE|_SWP_NOSIZE|_SWP_NOACTIVATE|_SWP_SHOWWINDOW)
		return 0

	case _WM_POPUP_HIDE:
		procShowWindow.Call(hwnd, _SW_HIDE)
		return 0

	case _WM_POPUP_DESTROY:
		m.mu.RLock()
		c := m.chromium
		m.mu.RUnlock()
		if c != nil {
			c.ShuttingDown()
		}
		procDestroyWindow.Call(hwnd)
		return 0

	case _WM_POPUP_CLICKTHROUGH:
		style, _, _ := procGetWindowLongPtrW.Call(hwnd, _GWL_EXSTYLE)
		old := style
		if wparam != 0 {
			style |= _WS_EX_TRANSPARENT
		} else {
			style &^= _WS_EX_TRANSPARENT
		}
		if style != old {
			procSetWindowLongPtrW.Call(hwnd, _GWL_EXSTYLE, style)
		}
		return 0

	case _WM_DESTROY:
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProcW.Call(hwnd, msg, wparam, lparam)
	return ret
}

// post delivers a control message to the UI thread.
func (m *Manager) post(msg uintptr, wparam, lparam uintptr) {
	hwnd := atomic.LoadUintptr(&m.hwnd)
	if hwnd != 0 {
		procPostMessageW.Call(hwnd, msg, wparam, lparam)
	}
}

// handleWebMessage routes page→Go messages; the only message the popup
// page sends is an eval_result for EvalJSWithResult.
func (m *Manager) handleWebMessage(message string) {
	var parsed struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(message), &parsed); err != nil {
		log.Printf("popup: bad page message: %v", err)
		return
	}
	if parsed.Type != "eval_result" {
		return
	}

	m.resultMu.Lock()
	ch, ok := m.resultChans[parsed.ID]
	if ok {
		delete(m.resultChans, parsed.ID)
	}
	m.resultMu.Unlock()

	if ok {
		// Buffered channel: a caller that already timed out never blocks
		// this callback.
		select {
		case ch <- parsed.Result:
		default:
		}
	}
}

// Show makes the popup window visible.
func (m *Manager) Show() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		m.visible = true
		m.post(_WM_POPUP_SHOW, 0, 0)
	}
}

// Hide hides the popup window.
func (m *Manager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		m.visible = false
		m.post(_WM_POPUP_HIDE, 0, 0)
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
	if !m.created {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	m.evalMu.Lock()
	m.evalCounter++
	id := m.evalCounter
	m.evalQueue[id] = js
	m.evalMu.Unlock()

	m.post(_WM_POPUP_EVALJS, uintptr(id), 0)
}

// EvalJSWithResult executes JavaScript and blocks for its stringified
// result, up to 2s.
func (m *Manager) EvalJSWithResult(js string) string {
	m.mu.RLock()
	if !m.created {
		m.mu.RUnlock()
		return ""
	}
	m.mu.RUnlock()

	m.resultMu.Lock()
	m.resultCounter++
	resultID := fmt.Sprintf("r%d", m.resultCounter)
	ch := make(chan string, 1)
	m.resultChans[resultID] = ch
	m.resultMu.Unlock()

	wrapped := fmt.Sprintf(
		`(function(){ try { var __r = (%s); window.__evalCallback(%q, String(__r)); } catch(__e) { window.__evalCallback(%q, "ERROR:" + __e.message); } })()`,
		js, resultID, resultID,
	)

	m.evalMu.Lock()
	m.evalCounter++
	queueID := m.evalCounter
	m.evalQueue[queueID] = wrapped
	m.evalMu.Unlock()
	m.post(_WM_POPUP_EVALJS, uintptr(queueID), 0)

	select {
	case result := <-ch:
		return result
	case <-time.After(2 * time.Second):
		m.resultMu.Lock()
		delete(m.resultChans, resultID)
		m.resultMu.Unlock()
		return ""
	}
}

// Destroy tears down the window and its UI thread.
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

	m.evalMu.Lock()
	m.evalQueue = make(map[uint64]string)
	m.evalMu.Unlock()

	m.resultMu.Lock()
	for id, ch := range m.resultChans {
		close(ch)
		delete(m.resultChans, id)
	}
	m.resultMu.Unlock()

	m.post(_WM_POPUP_DESTROY, 0, 0)
}

// IsSupported reports that Windows has a native popup implementation.
func (m *Manager) IsSupported() bool {
	return true
}

// GetWindowNumber returns the popup HWND. The capture package does not
// use it; it finds the process's windows itself.
func (m *Manager) GetWindowNumber() int {
	return int(atomic.LoadUintptr(&m.hwnd))
}

// SetIgnoresMouseEvents toggles click-through (WS_EX_TRANSPARENT); the
// vision-prompt variant needs clicks and focusable input.
func (m *Manager) SetIgnoresMouseEvents(ignores bool) {
	m.mu.RLock()
	if !m.created {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	val := uintptr(0)
	if ignores {
		val = 1
	}
	m.post(_WM_POPUP_CLICKTHROUGH, val, 0)
}

// GetMouseLocation returns the pointer position in CSS pixels, top-left
// origin, matching the page's coordinate space.
func (m *Manager) GetMouseLocation() (x, y float64) {
	var pt _POINT
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	scale := m.dpiScale
	if scale < 1.0 {
		scale = 1.0
	}
	return float64(pt.X) / scale, float64(pt.Y) / scale
}

// GetScreenSize returns the primary screen size in pixels.
func (m *Manager) GetScreenSize() (w, h float64) {
	cx, _, _ := procGetSystemMetrics.Call(_SM_CXSCREEN)
	cy, _, _ := procGetSystemMetrics.Call(_SM_CYSCREEN)
	return float64(cx), float64(cy)
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
	windowInfo = fmt.Sprintf("hwnd=0x%x visible=%v jsResult=%s",
		atomic.LoadUintptr(&m.hwnd), vis, result)
	return vis, jsWorks, windowInfo
}
