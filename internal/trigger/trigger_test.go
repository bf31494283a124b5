package trigger

import (
	"testing"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/keyobserver"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
)

type fakeClipboard struct{ text string }

func (f fakeClipboard) ReadText() (string, error) { return f.text, nil }

func keyDown(r rune) keyobserver.RawKeyEvent {
	return keyobserver.RawKeyEvent{Rune: r, IsKeyDown: true, Timestamp: time.Now()}
}

// typeInto mirrors the pipeline's lockstep: snapshot, recognize, then
// append the printable rune to the buffer.
func typeInto(r *Recognizer, b *textbuffer.Buffer, text string) *Event {
	for _, c := range text {
		before := b.Snapshot()
		ev := r.OnKeyEvent(keyDown(c), before)
		if ev != nil {
			return ev
		}
		if c != '\r' {
			b.Append(string(c))
		}
	}
	return nil
}

func TestBacktickSentinel(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})

	if ev := typeInto(r, b, "hellow`"); ev != nil {
		t.Fatalf("unexpected trigger before Enter: %+v", ev)
	}
	ev := r.OnKeyEvent(keyDown('\r'), b.Snapshot())
	if ev == nil || ev.Kind != KindBacktick {
		t.Fatalf("expected backtick trigger, got %+v", ev)
	}
	if ev.BufferText != "hellow" {
		t.Fatalf("prompt = %q, want %q", ev.BufferText, "hellow")
	}
	// The sentinel characters count toward the erase region: len("hellow")+2.
	if ev.RawCount != 8 {
		t.Fatalf("raw count = %d, want 8", ev.RawCount)
	}
}

func TestBacktickClearedByFurtherTyping(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})

	typeInto(r, b, "text`more")
	if ev := r.OnKeyEvent(keyDown('\r'), b.Snapshot()); ev != nil {
		t.Fatalf("sentinel should have been cleared by typing after the backtick, got %+v", ev)
	}
}

func TestExtensionWithinWindow(t *testing.T) {
	b := textbuffer.New()
	r := New(Config{LiveIdle: 700 * time.Millisecond, ExtendWindow: time.Second}, b, fakeClipboard{})

	b.Append("Hello")
	r.NotifyCompletion("Hello")

	ev := r.OnHotkey(ActionGenerate, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindExtension {
		t.Fatalf("expected extension trigger, got %+v", ev)
	}
	if ev.LastOutput != "Hello" || ev.BufferText != "Hello" {
		t.Fatalf("unexpected extension payload: %+v", ev)
	}
}

func TestExtensionExpiresAfterWindow(t *testing.T) {
	b := textbuffer.New()
	r := New(Config{LiveIdle: 700 * time.Millisecond, ExtendWindow: 20 * time.Millisecond}, b, fakeClipboard{})

	r.NotifyCompletion("Hello")
	time.Sleep(40 * time.Millisecond)

	ev := r.OnHotkey(ActionGenerate, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindHotkey || ev.Hotkey != ActionGenerate {
		t.Fatalf("expected plain generate hotkey after window expiry, got %+v", ev)
	}
}

func TestExtensionCanceledByTyping(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})

	r.NotifyCompletion("Hello")
	typeInto(r, b, "x")

	ev := r.OnHotkey(ActionGenerate, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind == KindExtension {
		t.Fatalf("typing should disarm the extension window, got %+v", ev)
	}
}

func TestLiveTriggerFiresOnIdle(t *testing.T) {
	b := textbuffer.New()
	r := New(Config{LiveIdle: 10 * time.Millisecond, ExtendWindow: time.Second}, b, fakeClipboard{})

	typeInto(r, b, "this are wrong")
	time.Sleep(25 * time.Millisecond)

	ev := r.Tick(true, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindLive {
		t.Fatalf("expected live trigger, got %+v", ev)
	}
	if ev.BufferText != "this are wrong" || ev.RawCount != 14 {
		t.Fatalf("unexpected live payload: text=%q raw=%d", ev.BufferText, ev.RawCount)
	}

	// Fires once per idle period.
	if ev := r.Tick(true, keyobserver.ActiveContext{}); ev != nil {
		t.Fatalf("live trigger re-fired without new typing: %+v", ev)
	}
}

func TestLiveTriggerSuppressed(t *testing.T) {
	b := textbuffer.New()
	r := New(Config{LiveIdle: 5 * time.Millisecond, ExtendWindow: time.Second}, b, fakeClipboard{})

	typeInto(r, b, "text")
	time.Sleep(15 * time.Millisecond)

	if ev := r.Tick(false, keyobserver.ActiveContext{}); ev != nil {
		t.Fatalf("live trigger fired with live mode off: %+v", ev)
	}
	if ev := r.Tick(true, keyobserver.ActiveContext{IsSensitive: true}); ev != nil {
		t.Fatalf("live trigger fired in sensitive context: %+v", ev)
	}
	r.Freeze()
	if ev := r.Tick(true, keyobserver.ActiveContext{}); ev != nil {
		t.Fatalf("live trigger fired while frozen: %+v", ev)
	}
}

func TestClipboardWithInstruction(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{text: "def add(a,b): return a+b"})

	typeInto(r, b, "explain briefly")

	ev := r.OnHotkey(ActionClipboard, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindClipboardWithInstruction {
		t.Fatalf("expected clipboard-with-instruction, got %+v", ev)
	}
	if ev.ClipboardText != "def add(a,b): return a+b" {
		t.Fatalf("clipboard payload = %q", ev.ClipboardText)
	}
	if ev.Instruction != "explain briefly" || ev.RawCount != 15 {
		t.Fatalf("instruction=%q raw=%d, want instruction from buffer with raw 15", ev.Instruction, ev.RawCount)
	}
}

func TestClipboardWithoutInstruction(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{text: "clip"})

	ev := r.OnHotkey(ActionClipboard, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindHotkey || ev.Hotkey != ActionClipboard {
		t.Fatalf("expected plain clipboard hotkey with empty buffer, got %+v", ev)
	}
	if ev.ClipboardText != "clip" {
		t.Fatalf("clipboard payload = %q", ev.ClipboardText)
	}
}

type fakeScreenshots struct{ data []byte }

func (f fakeScreenshots) Capture() ([]byte, error) { return f.data, nil }

func TestScreenshotHotkeyCarriesBufferAndImage(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})
	r.SetScreenshotSource(fakeScreenshots{data: []byte("png-bytes")})

	typeInto(r, b, "what is this")

	ev := r.OnHotkey(ActionScreenshot, keyobserver.ActiveContext{})
	if ev == nil || ev.Kind != KindHotkey || ev.Hotkey != ActionScreenshot {
		t.Fatalf("expected screenshot hotkey event, got %+v", ev)
	}
	if ev.BufferText != "what is this" || ev.RawCount != 12 {
		t.Fatalf("instruction payload wrong: text=%q raw=%d", ev.BufferText, ev.RawCount)
	}
	if string(ev.ScreenshotData) != "png-bytes" {
		t.Fatalf("screenshot payload = %q", ev.ScreenshotData)
	}
}

func TestScreenshotHotkeyWithoutSource(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})

	ev := r.OnHotkey(ActionScreenshot, keyobserver.ActiveContext{})
	if ev == nil || len(ev.ScreenshotData) != 0 {
		t.Fatalf("expected empty payload without a source, got %+v", ev)
	}
}

func TestFreezeGatesGenerationButNotControl(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})
	r.Freeze()

	if ev := r.OnHotkey(ActionGenerate, keyobserver.ActiveContext{}); ev != nil {
		t.Fatalf("generate hotkey should be gated while frozen, got %+v", ev)
	}
	if ev := r.OnHotkey(ActionClipboard, keyobserver.ActiveContext{}); ev != nil {
		t.Fatalf("clipboard hotkey should be gated while frozen, got %+v", ev)
	}
	for _, a := range []HotkeyAction{ActionCancel, ActionPaste, ActionPauseResume, ActionToggle} {
		ev := r.OnHotkey(a, keyobserver.ActiveContext{})
		if ev == nil || ev.Hotkey != a {
			t.Fatalf("control hotkey %s should pass while frozen, got %+v", a, ev)
		}
	}

	if ev := r.OnKeyEvent(keyDown('`'), b.Snapshot()); ev != nil {
		t.Fatalf("key recognition should be frozen, got %+v", ev)
	}

	r.Unfreeze()
	if ev := r.OnHotkey(ActionGenerate, keyobserver.ActiveContext{}); ev == nil {
		t.Fatalf("generate hotkey should flow after unfreeze")
	}
}

func TestInjectedKeysIgnored(t *testing.T) {
	b := textbuffer.New()
	r := New(DefaultConfig(), b, fakeClipboard{})

	ev := keyobserver.RawKeyEvent{Rune: '`', IsKeyDown: true, IsSystemInjected: true}
	if got := r.OnKeyEvent(ev, b.Snapshot()); got != nil {
		t.Fatalf("injected key produced a trigger: %+v", got)
	}
	if got := r.OnKeyEvent(keyDown('\r'), b.Snapshot()); got != nil {
		t.Fatalf("injected backtick armed the sentinel: %+v", got)
	}
}
