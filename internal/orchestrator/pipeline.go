package orchestrator

import (
	"context"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/keyobserver"
	"github.com/Rajmali-22/NXlayer/internal/logging"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
	"github.com/Rajmali-22/NXlayer/internal/trigger"
)

// tickInterval is how often Pipeline polls the Recognizer for the live
// idle-pause trigger; it must stay well under the idle threshold.
const tickInterval = 50 * time.Millisecond

// EnterKeySentinel is the RawKeyEvent.Rune value the keyobserver platform
// hooks must map the Enter/Return key to, matching the sentinel rune value
// trigger.Recognizer.OnKeyEvent expects for the backtick-then-Enter
// pattern.
const EnterKeySentinel = '\r'

// Pipeline is the pipeline task: the single worker that drains the observer's
// channel serially so the Buffer and the Recognizer stay in lockstep, and
// forwards recognized TriggerEvents to the Orchestrator's mailbox.
type Pipeline struct {
	logger     *logging.Logger
	observer   *keyobserver.Observer
	buffer     *textbuffer.Buffer
	recognizer *trigger.Recognizer
	orch       *Orchestrator

	liveModeEnabled func() bool

	hotkeys chan trigger.HotkeyAction

	keylog *logging.KeystrokeLog
}

// PostHotkey hands a global-hotkey delivery to the pipeline goroutine, so
// the Recognizer's hotkey resolution runs on the same task that owns the
// Buffer (buffer and triggers in lockstep). Safe from any
// goroutine; drops if the pipeline is badly backlogged.
func (p *Pipeline) PostHotkey(action trigger.HotkeyAction) {
	select {
	case p.hotkeys <- action:
	default:
		p.logger.Warn("pipeline", "hotkey %s dropped: pipeline backlogged", action)
	}
}

// SetKeystrokeLog attaches the optional keystroke debug log; buffer
// states are recorded per printable key, never from sensitive contexts.
func (p *Pipeline) SetKeystrokeLog(k *logging.KeystrokeLog) { p.keylog = k }

// NewPipeline builds a Pipeline. liveModeEnabled is polled on every tick
// instead of snapshotted once, since Settings.LiveMode can change live.
func NewPipeline(logger *logging.Logger, observer *keyobserver.Observer, buffer *textbuffer.Buffer, recognizer *trigger.Recognizer, orch *Orchestrator, liveModeEnabled func() bool) *Pipeline {
	return &Pipeline{
		logger:          logger,
		observer:        observer,
		buffer:          buffer,
		recognizer:      recognizer,
		orch:            orch,
		liveModeEnabled: liveModeEnabled,
		hotkeys:         make(chan trigger.HotkeyAction, 8),
	}
}

// Run drains the Observer until ctx is canceled. Call from one goroutine.
// The Buffer is mutated here and by the Orchestrator's post-injection
// Reset, which runs on the Orchestrator's goroutine; the Buffer's own
// mutex serializes the two. No other component writes it.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-p.observer.Events():
			if !ok {
				return
			}
			p.onKeyEvent(ev)

		case fc, ok := <-p.observer.FocusChanges():
			if !ok {
				return
			}
			p.onFocusChange(fc)

		case action := <-p.hotkeys:
			p.onHotkey(action)

		case <-ticker.C:
			p.onTick()
		}
	}
}

func (p *Pipeline) onKeyEvent(ev keyobserver.RawKeyEvent) {
	// Echo suppression (EchoSuppressionWindow invariant): synthetic
	// keystrokes from the Injector must not update the Buffer or fire
	// triggers. is_system_injected is the OS-provided signal; the
	// Orchestrator's explicit suppression window covers OSes/paths where
	// that flag is unavailable.
	if ev.IsSystemInjected || p.orch.IsEchoSuppressed() {
		return
	}

	before := p.buffer.Snapshot()

	if !ev.IsKeyDown {
		return // key-up only matters for hold-to-talk voice, out of scope here
	}

	switch {
	case ev.IsEscape:
		// Esc leaves Presenting without injection; harmless
		// when no Session is live.
		if tev := p.recognizer.OnHotkey(trigger.ActionCancel, p.observer.LastContext()); tev != nil {
			p.orch.PostTrigger(tev)
		}
		return
	case ev.IsBackspace:
		p.buffer.Backspace(1)
	case ev.Rune == EnterKeySentinel:
		// Enter is not printable text; it only matters to the
		// Recognizer's backtick-sentinel pattern, handled below.
	case ev.Rune != 0:
		p.buffer.Append(string(ev.Rune))
		if p.keylog != nil && !p.buffer.Shadow() {
			p.keylog.Record(p.observer.LastContext().WindowTitle, p.buffer.Get())
		}
	case ev.IsNavigation:
		// Any caret-moving key resets: the buffer no longer reflects
		// contiguous typed text once the caret moves.
		p.buffer.Reset()
	}

	if p.buffer.Shadow() {
		return // sensitive context: the buffer accumulates but no trigger fires
	}
	if tev := p.recognizer.OnKeyEvent(ev, before); tev != nil {
		p.orch.PostTrigger(tev)
	}
}

func (p *Pipeline) onHotkey(action trigger.HotkeyAction) {
	ctx := p.observer.LastContext()
	if ctx.IsSensitive {
		// Content-generating hotkeys never observe a sensitive window;
		// control hotkeys still reach the Orchestrator.
		switch action {
		case trigger.ActionCancel, trigger.ActionPauseResume, trigger.ActionToggle:
		default:
			p.logger.Info("pipeline", "hotkey %s ignored in sensitive context", action)
			return
		}
	}
	if tev := p.recognizer.OnHotkey(action, ctx); tev != nil {
		p.orch.PostTrigger(tev)
	}
}

func (p *Pipeline) onFocusChange(ctx keyobserver.ActiveContext) {
	p.buffer.SetShadow(ctx.IsSensitive)
	// The buffer resets on every focus change: once the caret has moved
	// to another window the buffer no longer reflects contiguous typed
	// text. This also covers the sensitive-window shadow rule; text typed
	// in a sensitive context never survives the switch.
	p.buffer.Reset()
	p.orch.PostFocusChange()
}

func (p *Pipeline) onTick() {
	ctx := p.observer.LastContext()
	if tev := p.recognizer.Tick(p.liveModeEnabled(), ctx); tev != nil {
		p.orch.PostTrigger(tev)
	}
}
