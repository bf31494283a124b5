package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/aiworker"
	"github.com/Rajmali-22/NXlayer/internal/config"
	"github.com/Rajmali-22/NXlayer/internal/injector"
	"github.com/Rajmali-22/NXlayer/internal/logging"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
	"github.com/Rajmali-22/NXlayer/internal/trigger"
)

type fakeWorker struct {
	mu       sync.Mutex
	reqs     []aiworker.GenerationRequest
	streams  []chan aiworker.Chunk
	canceled []string
}

func (f *fakeWorker) Generate(req aiworker.GenerationRequest) (<-chan aiworker.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan aiworker.Chunk, 16)
	f.reqs = append(f.reqs, req)
	f.streams = append(f.streams, ch)
	return ch, nil
}

func (f *fakeWorker) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeWorker) requests() []aiworker.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]aiworker.GenerationRequest{}, f.reqs...)
}

func (f *fakeWorker) stream(i int) chan aiworker.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type fakeInjector struct {
	mu   sync.Mutex
	reqs []injector.Request
	err  error
}

func (f *fakeInjector) Inject(s injector.EchoSuppressor, req injector.Request) (injector.Result, error) {
	s.OpenEchoSuppression()
	defer s.CloseEchoSuppression()
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return injector.Result{}, f.err
}

func (f *fakeInjector) requests() []injector.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]injector.Request{}, f.reqs...)
}

type fakePopup struct {
	mu            sync.Mutex
	streaming     bool
	visible       bool
	appended      []string
	complete      []string
	errors        []string
	ended         int
	hidden        int
	visionPrompts int
}

func (f *fakePopup) ShowStreamingAtCursor() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming, f.visible = true, true
}

func (f *fakePopup) ShowVisionPrompt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visionPrompts++
	f.visible = true
}

func (f *fakePopup) AppendChunk(d string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, d)
}

func (f *fakePopup) EndStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = false
	f.ended++
}

func (f *fakePopup) ShowComplete(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete = append(f.complete, text)
	f.visible = true
}

func (f *fakePopup) ShowError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
	f.visible = true
}

func (f *fakePopup) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = false
	f.hidden++
}

func (f *fakePopup) IsVisible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

type harness struct {
	orch   *Orchestrator
	worker *fakeWorker
	inj    *fakeInjector
	popup  *fakePopup
	buffer *textbuffer.Buffer
	recog  *trigger.Recognizer
}

func newHarness(t *testing.T, settings config.Settings) *harness {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Enabled: false, Component: "test"})
	buffer := textbuffer.New()
	recog := trigger.New(trigger.DefaultConfig(), buffer, nil)
	fw := &fakeWorker{}
	fi := &fakeInjector{}
	fp := &fakePopup{}
	return &harness{
		orch:   New(logger, buffer, recog, fw, fi, fp, settings),
		worker: fw,
		inj:    fi,
		popup:  fp,
		buffer: buffer,
		recog:  recog,
	}
}

// drainUntil services the mailbox on the test goroutine until cond holds,
// standing in for the Run loop.
func (h *harness) drainUntil(t *testing.T, cond func() bool) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for !cond() {
		select {
		case msg := <-h.orch.mailbox:
			h.orch.handle(msg)
		case <-timeout:
			t.Fatalf("condition not reached; state=%s", h.orch.StateOf())
		}
	}
}

func enabledSettings() config.Settings {
	return config.Settings{MasterEnabled: true, Tone: "neutral", SelectedAgent: "default"}
}

func TestBacktickFlowPopupThenPaste(t *testing.T) {
	h := newHarness(t, enabledSettings())
	h.buffer.Append("h") // stands in for the typed prompt

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "hellow", RawCount: 8})
	if h.orch.StateOf() != StateStreaming {
		t.Fatalf("state = %s, want streaming", h.orch.StateOf())
	}
	reqs := h.worker.requests()
	if len(reqs) != 1 || reqs[0].Mode != string(ModeGrammarFix) || reqs[0].PromptText != "hellow" {
		t.Fatalf("unexpected generation request: %+v", reqs)
	}

	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "Hel"}
	st <- aiworker.Chunk{TextDelta: "lo", Final: true}
	close(st)

	h.drainUntil(t, func() bool { return h.orch.StateOf() == StatePresenting })

	if got := h.popup.appended; len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Fatalf("popup chunks = %v", got)
	}
	if h.popup.ended != 1 {
		t.Fatalf("EndStream calls = %d, want 1", h.popup.ended)
	}

	// Paste hotkey: 8 backspaces then the replacement, then a full reset.
	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindHotkey, Hotkey: trigger.ActionPaste})
	injs := h.inj.requests()
	if len(injs) != 1 || injs[0].BackspaceCount != 8 || injs[0].Text != "Hello" {
		t.Fatalf("unexpected injection: %+v", injs)
	}
	if h.orch.StateOf() != StateIdle {
		t.Fatalf("state after inject = %s, want idle", h.orch.StateOf())
	}
	if !h.buffer.IsEmpty() {
		t.Fatalf("buffer not reset after inject")
	}
	if h.orch.IsEchoSuppressed() {
		t.Fatalf("echo suppression left open")
	}
}

func TestAutoInjectSkipsPresenting(t *testing.T) {
	s := enabledSettings()
	s.AutoInject = true
	h := newHarness(t, s)

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindClipboardWithInstruction, ClipboardText: "code", Instruction: "explain briefly", RawCount: 15})

	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "the explanation", Final: true}
	close(st)

	h.drainUntil(t, func() bool { return h.orch.StateOf() == StateIdle })

	injs := h.inj.requests()
	if len(injs) != 1 || injs[0].BackspaceCount != 15 || injs[0].Text != "the explanation" {
		t.Fatalf("unexpected injection: %+v", injs)
	}
	if len(h.popup.appended) != 0 {
		t.Fatalf("popup streamed despite auto-inject: %v", h.popup.appended)
	}
	reqs := h.worker.requests()
	if reqs[0].ContextMap["instruction"] != "explain briefly" {
		t.Fatalf("instruction missing from context: %+v", reqs[0].ContextMap)
	}
}

func TestCancelMidStreamDiscardsLateChunks(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindLive, BufferText: "this are wrong", RawCount: 14})
	id := h.worker.requests()[0].CorrelationID

	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "This "}
	h.drainUntil(t, func() bool { return len(h.popup.appended) == 1 })

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindHotkey, Hotkey: trigger.ActionCancel})
	if h.orch.StateOf() != StateIdle {
		t.Fatalf("state after cancel = %s", h.orch.StateOf())
	}
	if len(h.worker.canceled) != 1 || h.worker.canceled[0] != id {
		t.Fatalf("worker cancel not issued: %v", h.worker.canceled)
	}
	if h.popup.IsVisible() {
		t.Fatalf("popup still visible after cancel")
	}

	// Straggler chunks for the canceled id are discarded.
	st <- aiworker.Chunk{TextDelta: "is wrong", Final: true}
	close(st)
	h.orch.handle(message{kind: msgChunk, chunk: aiworker.Chunk{CorrelationID: id, TextDelta: "is wrong", Final: true}})
	if len(h.inj.requests()) != 0 {
		t.Fatalf("canceled session injected: %+v", h.inj.requests())
	}
}

func TestPauseHoldsOneDeepQueue(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindHotkey, Hotkey: trigger.ActionPauseResume})

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "first", RawCount: 7})
	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "second", RawCount: 8})
	if len(h.worker.requests()) != 0 {
		t.Fatalf("trigger dispatched while paused")
	}

	// Resume: only the latest queued trigger dispatches.
	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindHotkey, Hotkey: trigger.ActionPauseResume})
	reqs := h.worker.requests()
	if len(reqs) != 1 || reqs[0].PromptText != "second" {
		t.Fatalf("queued trigger handling wrong: %+v", reqs)
	}
}

func TestMasterDisabledDropsTriggers(t *testing.T) {
	s := enabledSettings()
	s.MasterEnabled = false
	h := newHarness(t, s)

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "text", RawCount: 6})
	if len(h.worker.requests()) != 0 {
		t.Fatalf("trigger dispatched with master disabled")
	}
}

func TestSecondTriggerDroppedWhileInFlight(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "one", RawCount: 5})
	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "two", RawCount: 5})
	if len(h.worker.requests()) != 1 {
		t.Fatalf("second trigger dispatched during live session: %+v", h.worker.requests())
	}
}

func TestCodingModeFiresExplanationRequest(t *testing.T) {
	s := enabledSettings()
	s.CodingMode = true
	h := newHarness(t, s)

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindHotkey, Hotkey: trigger.ActionClipboard, ClipboardText: "def add(a,b): return a+b"})

	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "func add(a, b int) int { return a + b }", Final: true}
	close(st)

	h.drainUntil(t, func() bool { return len(h.worker.requests()) == 2 })

	reqs := h.worker.requests()
	expl := reqs[1]
	if expl.Mode != string(ModeExplanation) {
		t.Fatalf("second request mode = %s, want explanation", expl.Mode)
	}
	if expl.PromptText != "def add(a,b): return a+b" {
		t.Fatalf("explanation prompt = %q, want original clipboard", expl.PromptText)
	}
	if expl.ContextMap["code"] == "" {
		t.Fatalf("explanation context missing generated code")
	}
	if expl.CorrelationID == reqs[0].CorrelationID {
		t.Fatalf("explanation must use a separate correlation id")
	}

	// The explanation result is shown through the popup's ShowComplete
	// and is never injectable.
	est := h.worker.stream(1)
	est <- aiworker.Chunk{TextDelta: "adds two numbers", Final: true}
	close(est)
	h.drainUntil(t, func() bool { return len(h.popup.complete) == 1 })
	if h.popup.complete[0] != "adds two numbers" {
		t.Fatalf("explanation text = %q", h.popup.complete[0])
	}
	if len(h.inj.requests()) != 0 {
		t.Fatalf("explanation was injected")
	}
}

func TestScreenshotHotkeyStartsVisionSession(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{
		Kind:           trigger.KindHotkey,
		Hotkey:         trigger.ActionScreenshot,
		BufferText:     "what is this error",
		RawCount:       18,
		ScreenshotData: []byte{0x89, 'P', 'N', 'G'},
	})

	if h.popup.visionPrompts != 1 {
		t.Fatalf("vision prompt shown %d times, want 1", h.popup.visionPrompts)
	}
	reqs := h.worker.requests()
	if len(reqs) != 1 || reqs[0].Mode != string(ModeVision) {
		t.Fatalf("unexpected request: %+v", reqs)
	}
	if reqs[0].PromptText != "what is this error" {
		t.Fatalf("vision prompt = %q, want the typed instruction", reqs[0].PromptText)
	}
	if reqs[0].ContextMap["screenshot"] == "" {
		t.Fatalf("screenshot payload missing from context")
	}

	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "a nil pointer dereference", Final: true}
	close(st)
	h.drainUntil(t, func() bool { return h.orch.StateOf() == StatePresenting })
	if len(h.popup.appended) != 1 || h.popup.appended[0] != "a nil pointer dereference" {
		t.Fatalf("vision result did not stream into the popup: %v", h.popup.appended)
	}
}

func TestErrorChunkFailsSession(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "x", RawCount: 3})

	st := h.worker.stream(0)
	st <- aiworker.Chunk{Final: true, Err: errTest}
	close(st)

	h.drainUntil(t, func() bool { return h.orch.StateOf() == StateIdle })
	if len(h.popup.errors) != 1 {
		t.Fatalf("expected a user-visible error, got %v", h.popup.errors)
	}
	if len(h.inj.requests()) != 0 {
		t.Fatalf("failed session injected")
	}
}

func TestFocusChangeLeavesPresenting(t *testing.T) {
	h := newHarness(t, enabledSettings())

	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "hellow", RawCount: 8})
	st := h.worker.stream(0)
	st <- aiworker.Chunk{TextDelta: "Hello", Final: true}
	close(st)
	h.drainUntil(t, func() bool { return h.orch.StateOf() == StatePresenting })

	h.orch.handle(message{kind: msgFocusChange})
	if h.orch.StateOf() != StateIdle {
		t.Fatalf("focus change did not leave presenting: %s", h.orch.StateOf())
	}

	// Outside Presenting a focus change is a no-op for the session.
	h.orch.handleTrigger(&trigger.Event{Kind: trigger.KindBacktick, BufferText: "next", RawCount: 6})
	h.orch.handle(message{kind: msgFocusChange})
	if h.orch.StateOf() != StateStreaming {
		t.Fatalf("focus change killed a streaming session: %s", h.orch.StateOf())
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "generation exploded" }
