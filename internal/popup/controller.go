// Controller adapts the platform-native overlay Manager (window
// creation, positioning, JS evaluation) into the popup
// controller contract: a non-focus-stealing window
// anchored at the pointer, streamed chunk coalescing at ~30 FPS, and a
// focus-accepting vision-prompt variant.
package popup

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// coalesceInterval batches chunk appends at ~30 FPS so streaming does
// not redraw per token.
const coalesceInterval = time.Second / 30

// edgeMargin keeps the popup within the work area.
const edgeMargin = 8.0

// Controller is the popup contract. It owns one Manager window and
// serializes all state transitions through a mutex since Show/Append/
// Hide may be called from the Orchestrator's single mailbox goroutine
// concurrently with the coalescing ticker's flush.
type Controller struct {
	mgr *Manager

	mu        sync.Mutex
	pending   strings.Builder
	visible   bool
	streaming bool
	ticker    *time.Ticker
	stopTick  chan struct{}
}

// NewController constructs a Controller over a fresh native Manager.
func NewController() *Controller {
	return &Controller{mgr: NewManager()}
}

// IsSupported reports whether this platform has a native overlay
// implementation (unsupported platforms still create a
// window but report capture-visible; here, IsSupported false also means
// no popup-based path is available and the Orchestrator should rely on
// auto-inject only).
func (c *Controller) IsSupported() bool { return c.mgr.IsSupported() }

// ShowStreamingAtCursor positions the window at (pointer.x, pointer.y+20)
// below the pointer, flips above it when it would cross the
// work-area bottom, and shifts horizontally to stay in-bounds, then shows
// an empty streaming popup and starts the 30 FPS coalescing flusher.
func (c *Controller) ShowStreamingAtCursor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positionAtCursorLocked()
	c.pending.Reset()
	c.renderLocked("")
	c.mgr.EvalJS(`window.__setPopupMode && window.__setPopupMode("text")`)
	c.mgr.SetIgnoresMouseEvents(true) // non-focus-stealing: clicks pass through
	c.mgr.Show()
	c.visible = true
	c.streaming = true

	if c.ticker == nil {
		c.ticker = time.NewTicker(coalesceInterval)
		c.stopTick = make(chan struct{})
		go c.flushLoop(c.ticker, c.stopTick)
	}
}

func (c *Controller) flushLoop(t *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.pending.Len() > 0 && c.visible {
				c.renderLocked(c.pending.String())
			}
			c.mu.Unlock()
		}
	}
}

// AppendChunk queues text_delta for the next coalesced flush.
func (c *Controller) AppendChunk(textDelta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		return
	}
	c.pending.WriteString(textDelta)
}

// EndStream stops the coalescing flusher after one final render so the
// last chunk is never dropped.
func (c *Controller) EndStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
	c.renderLocked(c.pending.String())
	c.stopFlushLocked()
}

// ShowComplete renders a one-shot non-streaming result, repositioning
// at the current cursor.
func (c *Controller) ShowComplete(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionAtCursorLocked()
	c.pending.Reset()
	c.pending.WriteString(text)
	c.renderLocked(text)
	c.mgr.SetIgnoresMouseEvents(true)
	c.mgr.Show()
	c.visible = true
}

// ShowVisionPrompt shows a variant that *does* accept focus, since the
// user types an instruction into it.
func (c *Controller) ShowVisionPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positionAtCursorLocked()
	c.pending.Reset()
	c.renderLocked("")
	c.mgr.EvalJS(`window.__setPopupMode && window.__setPopupMode("prompt")`)
	c.mgr.SetIgnoresMouseEvents(false)
	c.mgr.Show()
	c.visible = true
}

// ShowError renders a short user-visible failure message. The eventual
// self-hide on Escape or focus change is the Orchestrator's
// responsibility via Hide().
func (c *Controller) ShowError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.Reset()
	c.renderLocked("⚠ " + message)
	c.mgr.Show()
	c.visible = true
}

// Hide hides the popup and stops the flusher.
func (c *Controller) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
	c.stopFlushLocked()
	c.mgr.Hide()
	c.visible = false
}

func (c *Controller) stopFlushLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		close(c.stopTick)
		c.ticker = nil
	}
}

// IsVisible reports whether the popup window is currently shown.
func (c *Controller) IsVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Destroy tears down the native window entirely (daemon shutdown).
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopFlushLocked()
	c.mgr.Destroy()
}

func (c *Controller) positionAtCursorLocked() {
	x, y := c.mgr.GetMouseLocation()
	w, h := c.mgr.GetScreenSize()
	const popupW, popupH = 420.0, 160.0

	py := y + 20
	if py+popupH > h-edgeMargin {
		py = y - popupH - 20 // flip above the pointer
	}
	px := x
	if px+popupW > w-edgeMargin {
		px = w - popupW - edgeMargin
	}
	if px < edgeMargin {
		px = edgeMargin
	}

	js, _ := json.Marshal(map[string]float64{"x": px, "y": py})
	c.mgr.EvalJS("window.__setPopupPosition && window.__setPopupPosition(" + string(js) + ")")
}

func (c *Controller) renderLocked(text string) {
	encoded, _ := json.Marshal(text)
	c.mgr.EvalJS("window.__setPopupText && window.__setPopupText(" + string(encoded) + ")")
}
