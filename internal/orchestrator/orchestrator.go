// Package orchestrator implements the daemon's orchestrator: the state
// machine that owns the Session map, routes TriggerEvents to the AI worker,
// chooses popup-vs-auto-inject, and sequences backspace/inject/reset.
// Session state is touched only from a single goroutine draining one
// ordered mailbox, which is how the component avoids locking
// around Session mutation entirely. The one exception is the
// echo-suppression flag, which the key pipeline reads; it is atomic.
package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Rajmali-22/NXlayer/internal/aiworker"
	"github.com/Rajmali-22/NXlayer/internal/config"
	"github.com/Rajmali-22/NXlayer/internal/injector"
	"github.com/Rajmali-22/NXlayer/internal/keyobserver"
	"github.com/Rajmali-22/NXlayer/internal/logging"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
	"github.com/Rajmali-22/NXlayer/internal/trigger"
)

// Mode selects the generation flavor requested from the AI worker.
type Mode string

const (
	ModeGrammarFix               Mode = "grammar_fix"
	ModeExtend                   Mode = "extend"
	ModeClipboard                Mode = "clipboard"
	ModeClipboardWithInstruction Mode = "clipboard_with_instruction"
	ModeExplanation              Mode = "explanation"
	ModeFreePrompt                Mode = "free_prompt"
	ModeVision                   Mode = "vision"
)

// State is the per-Session state machine position.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateStreaming
	StatePresenting
	StateInjecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StatePresenting:
		return "presenting"
	case StateInjecting:
		return "injecting"
	default:
		return "unknown"
	}
}

// Session is the per-trigger transient record, created at trigger
// acceptance and destroyed on completion or cancel.
type Session struct {
	Mode                  Mode
	PendingBackspaceCount int
	AccumulatedText       string
	PopupShown            bool
	Completed             bool
	Canceled              bool
	CorrelationID         string

	// ExplanationText/ExplanationID back the coding-mode parallel
	// explanation request; never injectable.
	ExplanationID   string
	ExplanationText string

	Context keyobserver.ActiveContext

	originalPrompt string // remembered for the coding-mode explanation request
}

type msgKind int

const (
	msgTrigger msgKind = iota
	msgChunk
	msgExplanationChunk
	msgSettings
	msgFocusChange
)

type message struct {
	kind     msgKind
	trig     *trigger.Event
	chunk    aiworker.Chunk
	settings config.Settings
}

// Generator is the slice of the AI Worker Client the Orchestrator needs;
// *aiworker.Client satisfies it.
type Generator interface {
	Generate(req aiworker.GenerationRequest) (<-chan aiworker.Chunk, error)
	Cancel(id string) error
}

// TextInjector performs one delete-and-type operation; *injector.Client
// satisfies it.
type TextInjector interface {
	Inject(suppressor injector.EchoSuppressor, req injector.Request) (injector.Result, error)
}

// Popup is the overlay surface the Orchestrator drives; *popup.Controller
// satisfies it.
type Popup interface {
	ShowStreamingAtCursor()
	ShowVisionPrompt()
	AppendChunk(textDelta string)
	EndStream()
	ShowComplete(text string)
	ShowError(message string)
	Hide()
	IsVisible() bool
}

// Orchestrator drives the session state machine. Construct with New and run its
// mailbox loop with Run; feed it via PostTrigger/PostSettings from other
// goroutines (the key pipeline, hotkey manager, config watcher).
type Orchestrator struct {
	logger     *logging.Logger
	buffer     *textbuffer.Buffer
	recognizer *trigger.Recognizer
	worker     Generator
	injector   TextInjector
	popup      Popup

	mailbox chan message

	settings config.Settings // touched only by the mailbox goroutine
	paused   bool
	queued   *trigger.Event // one-deep queue, replaced by later triggers while paused

	session           *Session
	state             State
	echoSuppressed    atomic.Bool // also read by the key pipeline's goroutine
	lastGeneratedText string
}

// New constructs an Orchestrator over its collaborators. initial is the
// ConfigSnapshot's Settings at daemon start; later updates arrive via
// PostSettings.
func New(logger *logging.Logger, buffer *textbuffer.Buffer, recognizer *trigger.Recognizer, worker Generator, inj TextInjector, popup Popup, initial config.Settings) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		buffer:     buffer,
		recognizer: recognizer,
		worker:     worker,
		injector:   inj,
		popup:      popup,
		mailbox:    make(chan message, 32),
		settings:   initial,
		state:      StateIdle,
	}
}

// PostTrigger delivers a recognized TriggerEvent onto the single ordered
// mailbox.
func (o *Orchestrator) PostTrigger(ev *trigger.Event) {
	o.mailbox <- message{kind: msgTrigger, trig: ev}
}

// PostSettings delivers updated Settings. They replace the current ones
// as soon as the mailbox handles the message, and a Session already in
// flight sees them too: auto_inject, coding_mode, humanize_typing and the
// tab settings are read when its chunks arrive and when it injects, not
// captured at dispatch.
func (o *Orchestrator) PostSettings(s config.Settings) {
	o.mailbox <- message{kind: msgSettings, settings: s}
}

// Run drains the mailbox until ctx is canceled. Call from one goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.mailbox:
			o.handle(msg)
		}
	}
}

func (o *Orchestrator) handle(msg message) {
	switch msg.kind {
	case msgSettings:
		o.settings = msg.settings
	case msgTrigger:
		o.handleTrigger(msg.trig)
	case msgChunk:
		o.handleChunk(msg.chunk, false)
	case msgExplanationChunk:
		o.handleChunk(msg.chunk, true)
	case msgFocusChange:
		// Presenting --focus_change--> Idle. Other states are
		// unaffected: a Streaming session survives the user glancing at
		// another window.
		if o.state == StatePresenting {
			o.handleCancel()
		}
	}
}

// PostFocusChange informs the Orchestrator that the foreground window
// changed; only a Presenting session reacts.
func (o *Orchestrator) PostFocusChange() {
	select {
	case o.mailbox <- message{kind: msgFocusChange}:
	default:
	}
}

// OpenEchoSuppression/CloseEchoSuppression implement injector.EchoSuppressor;
// the key pipeline consults IsEchoSuppressed before applying a RawKeyEvent
// to the Buffer (EchoSuppressionWindow invariant).
func (o *Orchestrator) OpenEchoSuppression()  { o.echoSuppressed.Store(true) }
func (o *Orchestrator) CloseEchoSuppression() { o.echoSuppressed.Store(false) }
func (o *Orchestrator) IsEchoSuppressed() bool { return o.echoSuppressed.Load() }

func (o *Orchestrator) handleTrigger(ev *trigger.Event) {
	if ev.Kind == trigger.KindHotkey {
		switch ev.Hotkey {
		case trigger.ActionCancel:
			o.handleCancel()
			return
		case trigger.ActionPauseResume:
			o.togglePause()
			return
		case trigger.ActionToggle:
			o.toggleOverlay()
			return
		case trigger.ActionPaste:
			o.handlePasteHotkey()
			return
		case trigger.ActionVoice:
			o.logger.Info("orchestrator", "voice hotkey received; audio capture is an external collaborator and none is attached")
			return
		}
	}

	if !o.settings.MasterEnabled {
		return // invariant: no TriggerEvent reaches the Orchestrator when disabled
	}
	if o.paused {
		o.queued = ev // one-deep queue, later triggers replace it
		return
	}
	o.dispatch(ev)
}

func (o *Orchestrator) togglePause() {
	o.paused = !o.paused
	if !o.paused && o.queued != nil {
		ev := o.queued
		o.queued = nil
		o.dispatch(ev)
	}
}

func (o *Orchestrator) toggleOverlay() {
	if o.popup.IsVisible() {
		o.popup.Hide()
	} else if o.session != nil && o.session.Completed {
		o.popup.ShowComplete(o.session.AccumulatedText)
	}
}

// dispatch starts a new Session (Idle -trigger-> Dispatching). Only one
// Session may be in flight at a time; a trigger arriving mid-Session is
// dropped.
func (o *Orchestrator) dispatch(ev *trigger.Event) {
	if o.session != nil {
		o.logger.Warn("orchestrator", "dropping trigger: a Session is already in flight")
		return
	}

	mode, prompt, ctxMap, backspaces, ok := o.buildRequest(ev)
	if !ok {
		return
	}

	o.recognizer.Freeze()
	o.state = StateDispatching

	sess := &Session{Mode: mode, PendingBackspaceCount: backspaces, Context: ev.Context, CorrelationID: uuid.NewString()}
	o.session = sess

	if mode == ModeVision {
		// The vision variant accepts focus so the user can refine the
		// instruction while the request streams.
		o.popup.ShowVisionPrompt()
		sess.PopupShown = true
	}

	chunks, err := o.worker.Generate(aiworker.GenerationRequest{
		Mode: string(mode), PromptText: prompt, ContextMap: ctxMap, Stream: true, CorrelationID: sess.CorrelationID,
	})
	if err != nil {
		o.failSession(sess, err)
		return
	}
	o.state = StateStreaming
	sess.originalPrompt = prompt
	go o.pumpChunks(sess.CorrelationID, chunks, false)
}

// dispatchExplanation fires the coding-mode parallel explanation request
// once the main generation has finished: mode=explanation,
// prompt=original clipboard text, context.code=the now-complete generated
// code, on a separate correlation id. Its final text is shown with
// ShowComplete on the same popup as the main result (there is no separate
// explanation window) and is never injected; its chunks are dropped once
// the Session has ended, as it has right after an auto-inject.
func (o *Orchestrator) dispatchExplanation(sess *Session) {
	sess.ExplanationID = uuid.NewString()
	chunks, err := o.worker.Generate(aiworker.GenerationRequest{
		Mode:          string(ModeExplanation),
		PromptText:    sess.originalPrompt,
		ContextMap:    map[string]string{"code": sess.AccumulatedText},
		Stream:        true,
		CorrelationID: sess.ExplanationID,
	})
	if err != nil {
		o.logger.Warn("orchestrator", "explanation request failed to start: %v", err)
		return
	}
	go o.pumpChunks(sess.ExplanationID, chunks, true)
}

func (o *Orchestrator) pumpChunks(correlationID string, chunks <-chan aiworker.Chunk, explanation bool) {
	kind := msgChunk
	if explanation {
		kind = msgExplanationChunk
	}
	for ch := range chunks {
		ch.CorrelationID = correlationID
		o.mailbox <- message{kind: kind, chunk: ch}
	}
}

func (o *Orchestrator) handleChunk(ch aiworker.Chunk, explanation bool) {
	sess := o.session
	if sess == nil || sess.Canceled {
		return // discarded: no live Session for this id
	}

	if explanation {
		if ch.CorrelationID != sess.ExplanationID || ch.Err != nil {
			return
		}
		sess.ExplanationText += ch.TextDelta
		if ch.Final {
			o.popup.ShowComplete(sess.ExplanationText) // replaces what the main popup shows
		}
		return
	}

	if ch.CorrelationID != sess.CorrelationID {
		return // discarded: stale chunk from a superseded Session
	}

	if ch.Err != nil && sess.AccumulatedText == "" {
		// Recoverable error with nothing received (generation timeout
		// or the worker dropping mid-request).
		o.failSession(sess, ch.Err)
		return
	}

	if !sess.PopupShown && !o.settings.AutoInject {
		o.popup.ShowStreamingAtCursor()
		sess.PopupShown = true
	}
	sess.AccumulatedText += ch.TextDelta
	if !o.settings.AutoInject {
		o.popup.AppendChunk(ch.TextDelta)
	}
	if ch.OptionalExplanation != "" {
		sess.ExplanationText += ch.OptionalExplanation
	}

	if ch.Final {
		o.finishSession(sess)
	}
}

// finishSession handles the Streaming->final transition: either
// straight through to Injecting+Reset (auto_inject) or into Presenting,
// waiting for the Paste hotkey.
func (o *Orchestrator) finishSession(sess *Session) {
	sess.Completed = true
	o.recognizer.NotifyCompletion(sess.AccumulatedText)

	if o.settings.CodingMode && (sess.Mode == ModeClipboard || sess.Mode == ModeClipboardWithInstruction) {
		o.dispatchExplanation(sess)
	}

	if o.settings.AutoInject {
		o.state = StateInjecting
		o.injectSession(sess)
		return
	}

	o.state = StatePresenting
	o.popup.EndStream()
	o.lastGeneratedText = sess.AccumulatedText
}

func (o *Orchestrator) failSession(sess *Session, err error) {
	o.logger.Error("orchestrator", "generation failed: %v", err)
	o.popup.ShowError(fmt.Sprintf("Generation failed: %v", err))
	o.session = nil
	o.state = StateIdle
	o.recognizer.Unfreeze()
}

// handlePasteHotkey drives Presenting into Injecting: only meaningful
// once a Session has completed and is holding its result for the user to
// paste (auto_inject=false).
func (o *Orchestrator) handlePasteHotkey() {
	if o.session == nil || !o.session.Completed || o.session.Canceled {
		return
	}
	o.state = StateInjecting
	o.injectSession(o.session)
}

// injectSession performs the Injecting->Reset transition: the
// text is normalized exactly once, the EchoSuppressionWindow is opened by
// the injector.Client itself (o implements injector.EchoSuppressor), and the
// buffer and last_* fields are always cleared afterward — regardless of
// success — so a failed injection never leaves the daemon in Presenting.
func (o *Orchestrator) injectSession(sess *Session) {
	text := injector.NormalizeIndent(sess.AccumulatedText)
	req := injector.Request{
		Text:           text,
		BackspaceCount: sess.PendingBackspaceCount,
		Humanize:       o.settings.HumanizeTyping,
		TabAsSpaces:    o.settings.TabAsSpaces,
		SpacesPerTab:   o.settings.SpacesPerTab,
	}

	_, err := o.injector.Inject(o, req)
	if err != nil {
		o.logger.Error("orchestrator", "injection failed: %v", err)
		o.popup.ShowError(fmt.Sprintf("Injection failed: %v", err))
	}

	o.popup.Hide()
	o.buffer.Reset()
	o.lastGeneratedText = ""
	o.session = nil
	o.state = StateIdle
	o.recognizer.Unfreeze()
}

// handleCancel implements Escape/cancel-hotkey: best-effort
// cancel to the worker, popup hide, EchoSuppressionWindow close, and an
// unconditional transition back to Idle without injection.
func (o *Orchestrator) handleCancel() {
	if o.session != nil {
		o.session.Canceled = true
		_ = o.worker.Cancel(o.session.CorrelationID)
		if o.session.ExplanationID != "" {
			_ = o.worker.Cancel(o.session.ExplanationID)
		}
	}
	o.lastGeneratedText = ""
	o.popup.Hide()
	if o.IsEchoSuppressed() {
		o.CloseEchoSuppression()
	}
	o.session = nil
	o.state = StateIdle
	o.recognizer.Unfreeze()
}

// buildRequest maps a TriggerEvent onto a GenerationRequest.
// ok is false for hotkey triggers that carry no generation (already handled
// by handleTrigger before reaching here; defensive only).
func (o *Orchestrator) buildRequest(ev *trigger.Event) (mode Mode, prompt string, ctxMap map[string]string, backspaces int, ok bool) {
	ctxMap = map[string]string{"tone": o.settings.Tone, "agent": o.settings.SelectedAgent}

	switch ev.Kind {
	case trigger.KindBacktick:
		return ModeGrammarFix, ev.BufferText, ctxMap, int(ev.RawCount), true

	case trigger.KindLive:
		return ModeGrammarFix, ev.BufferText, ctxMap, int(ev.RawCount), true

	case trigger.KindExtension:
		ctxMap["last_output"] = ev.LastOutput
		return ModeExtend, ev.BufferText, ctxMap, int(ev.RawCount), true

	case trigger.KindClipboardWithInstruction:
		ctxMap["instruction"] = ev.Instruction
		return ModeClipboardWithInstruction, ev.ClipboardText, ctxMap, int(ev.RawCount), true

	case trigger.KindHotkey:
		switch ev.Hotkey {
		case trigger.ActionGenerate:
			if ev.BufferText == "" {
				return ModeFreePrompt, "", ctxMap, 0, true
			}
			return ModeGrammarFix, ev.BufferText, ctxMap, int(ev.RawCount), true
		case trigger.ActionClipboard:
			return ModeClipboard, ev.ClipboardText, ctxMap, 0, true
		case trigger.ActionScreenshot:
			// The image travels in the context map; capture itself is the
			// external collaborator's concern and may be absent.
			if len(ev.ScreenshotData) > 0 {
				ctxMap["screenshot"] = base64.StdEncoding.EncodeToString(ev.ScreenshotData)
			}
			return ModeVision, ev.BufferText, ctxMap, int(ev.RawCount), true
		}
	}
	return "", "", nil, 0, false
}

// StateOf reports the current Session state (for diagnostics/tests).
func (o *Orchestrator) StateOf() State { return o.state }
