// Package trigger implements the daemon's trigger recognizer: it runs
// beside the text buffer and recognizes the backtick sentinel,
// extension re-trigger, live-mode idle pause, and clipboard-with-
// instruction patterns, and converts OS global-hotkey deliveries into
// TriggerEvents.
package trigger

import (
	"time"

	"github.com/Rajmali-22/NXlayer/internal/keyobserver"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
)

// Kind tags the TriggerEvent union.
type Kind int

const (
	KindBacktick Kind = iota
	KindExtension
	KindLive
	KindHotkey
	KindClipboardWithInstruction
)

func (k Kind) String() string {
	switch k {
	case KindBacktick:
		return "backtick"
	case KindExtension:
		return "extension"
	case KindLive:
		return "live"
	case KindHotkey:
		return "hotkey"
	case KindClipboardWithInstruction:
		return "clipboard_with_instruction"
	default:
		return "unknown"
	}
}

// HotkeyAction identifies which global hotkey fired.
type HotkeyAction string

const (
	ActionGenerate    HotkeyAction = "generate"
	ActionClipboard   HotkeyAction = "clipboard"
	ActionScreenshot  HotkeyAction = "screenshot"
	ActionVoice       HotkeyAction = "voice"
	ActionToggle      HotkeyAction = "toggle"
	ActionPaste       HotkeyAction = "paste"
	ActionCancel      HotkeyAction = "cancel"
	ActionPauseResume HotkeyAction = "pause_resume"
)

// Event is the trigger tagged union: buffer snapshot,
// raw_count, active context, and a mode-specific extra payload.
type Event struct {
	Kind           Kind
	Hotkey         HotkeyAction // set when Kind == KindHotkey
	BufferText     string
	RawCount       int64
	Context        keyobserver.ActiveContext
	ClipboardText  string // KindClipboardWithInstruction
	Instruction    string // KindClipboardWithInstruction
	LastOutput     string // KindExtension
	ScreenshotData []byte // ActionScreenshot hotkey payload
	At             time.Time
}

// Config holds the recognizer's timing tunables.
type Config struct {
	LiveIdle     time.Duration // T_live ~= 700ms
	ExtendWindow time.Duration // T_extend ~= 2s
}

func DefaultConfig() Config {
	return Config{LiveIdle: 700 * time.Millisecond, ExtendWindow: 2 * time.Second}
}

// ClipboardReader reads the current system clipboard text on demand at
// hotkey-press time; there is no change-detection polling.
type ClipboardReader interface {
	ReadText() (string, error)
}

// ScreenshotSource supplies the screen image for the vision trigger.
// Capture itself is an external collaborator's job; a nil source means
// the trigger fires with an empty payload and the worker decides what
// to do without an image.
type ScreenshotSource interface {
	Capture() ([]byte, error)
}

// Recognizer holds the running state needed to recognize sentinel,
// extension, and live triggers as key events and hotkey deliveries arrive.
// It owns no goroutine of its own: the single pipeline worker drives it
// by calling OnKeyEvent/OnHotkey/Tick in lockstep with the Buffer it
// shares.
type Recognizer struct {
	cfg         Config
	buffer      *textbuffer.Buffer
	clipboard   ClipboardReader
	screenshots ScreenshotSource

	frozen bool // true while a Session is Dispatching/Streaming/Presenting/Injecting

	lastCompletionAt time.Time
	hasLastCompletion bool
	typedSinceOutput  bool
	lastOutput        string

	lastKeyAt    time.Time
	sawBacktick  bool
	backtickText []rune
}

// New builds a Recognizer over buffer, reading the clipboard via cr.
func New(cfg Config, buffer *textbuffer.Buffer, cr ClipboardReader) *Recognizer {
	return &Recognizer{cfg: cfg, buffer: buffer, clipboard: cr}
}

// SetScreenshotSource attaches the external screenshot collaborator
// consulted when the Screenshot hotkey fires.
func (r *Recognizer) SetScreenshotSource(src ScreenshotSource) {
	r.screenshots = src
}

// Freeze stops trigger recognition while a Session is dispatched.
// Unfreeze is called when the Session resolves.
func (r *Recognizer) Freeze()   { r.frozen = true }
func (r *Recognizer) Unfreeze() { r.frozen = false }

// NotifyCompletion records that a Session completed with text, arming the
// T_extend window for the Extension trigger.
func (r *Recognizer) NotifyCompletion(text string) {
	r.lastCompletionAt = time.Now()
	r.hasLastCompletion = true
	r.typedSinceOutput = false
	r.lastOutput = text
}

// OnKeyEvent updates sentinel-tracking state and returns a TriggerEvent
// if the backtick sentinel pattern (<text>`<Enter>) just completed. Non-
// printable/navigation keys and any printable key both clear the
// Extension arm's "no intervening typing" condition.
//
// printable/enter classification is the caller's responsibility (the buffer has
// already normalized composition); ev.Rune != 0 means printable.
func (r *Recognizer) OnKeyEvent(ev keyobserver.RawKeyEvent, snapshotBeforeKey textbuffer.Snapshot) *Event {
	if r.frozen || !ev.IsKeyDown || ev.IsSystemInjected {
		return nil
	}

	r.lastKeyAt = time.Now()

	const vkReturn = '\r' // caller maps Enter to this sentinel rune value
	switch {
	case ev.Rune == '`':
		r.sawBacktick = true
		r.backtickText = []rune(snapshotBeforeKey.Text)
		return nil
	case ev.Rune == vkReturn && r.sawBacktick:
		prompt := string(r.backtickText)
		r.sawBacktick = false
		r.backtickText = nil
		return &Event{
			Kind:       KindBacktick,
			BufferText: prompt,
			RawCount:   int64(len([]rune(prompt))) + 2,
			At:         time.Now(),
		}
	case ev.Rune != 0:
		r.sawBacktick = false
		r.typedSinceOutput = true
		return nil
	case ev.IsBackspace:
		// The backtick (or part of the prompt) was just erased.
		r.sawBacktick = false
		return nil
	case ev.IsNavigation:
		r.sawBacktick = false
		r.typedSinceOutput = true
		return nil
	}
	return nil
}

// Tick is called periodically (e.g. every 50-100ms) by the pipeline task to
// detect the Live idle-pause trigger. liveModeEnabled and ctx
// come from the current Settings/ActiveContext at call time.
func (r *Recognizer) Tick(liveModeEnabled bool, ctx keyobserver.ActiveContext) *Event {
	if r.frozen || !liveModeEnabled || ctx.IsSensitive {
		return nil
	}
	if r.buffer.IsEmpty() {
		return nil
	}
	if r.lastKeyAt.IsZero() || time.Since(r.lastKeyAt) < r.cfg.LiveIdle {
		return nil
	}
	snap := r.buffer.Snapshot()
	r.lastKeyAt = time.Time{} // fire once per idle period
	return &Event{
		Kind:       KindLive,
		BufferText: snap.Text,
		RawCount:   snap.RawCount,
		Context:    ctx,
		At:         time.Now(),
	}
}

// OnHotkey converts a delivered global hotkey into a
// TriggerEvent, resolving Extension vs plain Generate, and Clipboard vs
// ClipboardWithInstruction.
func (r *Recognizer) OnHotkey(action HotkeyAction, ctx keyobserver.ActiveContext) *Event {
	// Control hotkeys must reach the Orchestrator even while Dispatching/
	// Streaming/Presenting/Injecting holds recognition frozen; only the
	// content-generating hotkeys are gated by the freeze.
	if r.frozen {
		switch action {
		case ActionCancel, ActionPauseResume, ActionPaste, ActionToggle:
			return &Event{Kind: KindHotkey, Hotkey: action, Context: ctx, At: time.Now()}
		default:
			return nil
		}
	}
	switch action {
	case ActionGenerate:
		if r.hasLastCompletion && !r.typedSinceOutput && time.Since(r.lastCompletionAt) <= r.cfg.ExtendWindow {
			snap := r.buffer.Snapshot()
			return &Event{
				Kind:       KindExtension,
				BufferText: snap.Text,
				RawCount:   snap.RawCount,
				LastOutput: r.lastOutput,
				Context:    ctx,
				At:         time.Now(),
			}
		}
		snap := r.buffer.Snapshot()
		return &Event{Kind: KindHotkey, Hotkey: ActionGenerate, BufferText: snap.Text, RawCount: snap.RawCount, Context: ctx, At: time.Now()}

	case ActionClipboard:
		snap := r.buffer.Snapshot()
		clip := ""
		if r.clipboard != nil {
			clip, _ = r.clipboard.ReadText()
		}
		if !r.buffer.IsEmpty() {
			return &Event{
				Kind:          KindClipboardWithInstruction,
				ClipboardText: clip,
				Instruction:   snap.Text,
				RawCount:      snap.RawCount,
				Context:       ctx,
				At:            time.Now(),
			}
		}
		return &Event{Kind: KindHotkey, Hotkey: ActionClipboard, ClipboardText: clip, Context: ctx, At: time.Now()}

	case ActionScreenshot:
		// The typed buffer, if any, is the instruction accompanying the
		// screenshot; it gets erased on inject like any other prompt.
		snap := r.buffer.Snapshot()
		var shot []byte
		if r.screenshots != nil {
			shot, _ = r.screenshots.Capture()
		}
		return &Event{
			Kind:           KindHotkey,
			Hotkey:         ActionScreenshot,
			BufferText:     snap.Text,
			RawCount:       snap.RawCount,
			ScreenshotData: shot,
			Context:        ctx,
			At:             time.Now(),
		}

	default:
		return &Event{Kind: KindHotkey, Hotkey: action, Context: ctx, At: time.Now()}
	}
}
