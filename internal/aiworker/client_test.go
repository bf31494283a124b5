package aiworker

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Enabled: false, Component: "test"})
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newTestClient wires a Client to an in-memory stdin sink and a pipe-fed
// read loop, without spawning a real subprocess. Tests register their
// request first, then feed worker lines through the returned writer.
func newTestClient(t *testing.T) (*Client, *bytes.Buffer, *io.PipeWriter) {
	t.Helper()
	c := New(testLogger(), "unused")
	var stdin bytes.Buffer
	c.stdin = nopWriteCloser{&stdin}
	c.readyCh = make(chan error, 1)

	pr, pw := io.Pipe()
	go c.readLoop(pr)
	t.Cleanup(func() { pw.Close() })
	return c, &stdin, pw
}

func feed(t *testing.T, w io.Writer, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
}

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
			if c.Final {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for chunks, have %d", len(out))
		}
	}
}

func TestGenerateWireFormat(t *testing.T) {
	c, stdin, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{
		Mode: "grammar_fix", PromptText: "hellow",
		ContextMap: map[string]string{"tone": "neutral"},
		Stream:     true, CorrelationID: "abc",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	feed(t, w, `{"event":"chunk","id":"abc","text":"x","final":true}`)
	collect(t, ch)

	var wire map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(stdin.Bytes()), &wire); err != nil {
		t.Fatalf("outbound line is not JSON: %v", err)
	}
	// Field names are pinned for wire compatibility with the worker child.
	for _, key := range []string{"cmd", "id", "prompt", "context", "streaming"} {
		if _, ok := wire[key]; !ok {
			t.Fatalf("outbound generate missing field %q: %v", key, wire)
		}
	}
	if wire["cmd"] != "generate" || wire["id"] != "abc" || wire["prompt"] != "hellow" {
		t.Fatalf("unexpected outbound values: %v", wire)
	}
}

func TestReadinessHandshake(t *testing.T) {
	c, _, w := newTestClient(t)
	feed(t, w, `{"event":"started","success":true,"pid":42}`)
	if err := <-c.readyCh; err != nil {
		t.Fatalf("readiness: %v", err)
	}
}

func TestStartedFailureReported(t *testing.T) {
	c, _, w := newTestClient(t)
	feed(t, w, `{"event":"started","success":false,"pid":7}`)
	if err := <-c.readyCh; err == nil {
		t.Fatalf("expected readiness failure for success=false")
	}
}

func TestStreamingChunksInOrder(t *testing.T) {
	c, _, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{CorrelationID: "s1", Stream: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	feed(t, w,
		`{"event":"chunk","id":"s1","text":"Hel","final":false}`,
		`{"event":"chunk","id":"s1","text":"lo","final":true}`,
	)
	got := collect(t, ch)
	if len(got) != 2 || got[0].TextDelta != "Hel" || got[1].TextDelta != "lo" || !got[1].Final {
		t.Fatalf("unexpected chunk sequence: %+v", got)
	}
}

func TestInterleavedIDsAreDemuxed(t *testing.T) {
	c, _, w := newTestClient(t)

	chA, err := c.Generate(GenerationRequest{CorrelationID: "a", Stream: true})
	if err != nil {
		t.Fatalf("Generate a: %v", err)
	}
	chB, err := c.Generate(GenerationRequest{CorrelationID: "b", Stream: true})
	if err != nil {
		t.Fatalf("Generate b: %v", err)
	}
	feed(t, w,
		`{"event":"chunk","id":"a","text":"A1","final":false}`,
		`{"event":"chunk","id":"b","text":"B1","final":false}`,
		`{"event":"chunk","id":"a","text":"A2","final":true}`,
		`{"event":"chunk","id":"b","text":"B2","final":true}`,
	)

	gotA := collect(t, chA)
	gotB := collect(t, chB)
	if gotA[0].TextDelta != "A1" || gotA[1].TextDelta != "A2" {
		t.Fatalf("stream a out of order: %+v", gotA)
	}
	if gotB[0].TextDelta != "B1" || gotB[1].TextDelta != "B2" {
		t.Fatalf("stream b out of order: %+v", gotB)
	}
}

func TestCompleteEventIsTerminal(t *testing.T) {
	c, _, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{CorrelationID: "one"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	feed(t, w, `{"event":"complete","id":"one","text":"done"}`)
	got := collect(t, ch)
	if len(got) != 1 || got[0].TextDelta != "done" || !got[0].Final {
		t.Fatalf("unexpected result for complete event: %+v", got)
	}
}

func TestErrorWithoutChunks(t *testing.T) {
	c, _, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{CorrelationID: "bad"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	feed(t, w, `{"event":"error","id":"bad","message":"provider rejected request"}`)
	got := collect(t, ch)
	if len(got) != 1 || !got[0].Final || got[0].Err == nil {
		t.Fatalf("expected terminal error chunk, got %+v", got)
	}
}

func TestWorkerExitMidStreamYieldsPartial(t *testing.T) {
	c, _, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{CorrelationID: "p", Stream: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Two chunks then EOF, no final: the partial accumulation resolves as
	// a recoverable success, not an error.
	feed(t, w,
		`{"event":"chunk","id":"p","text":"Hel","final":false}`,
		`{"event":"chunk","id":"p","text":"lo","final":false}`,
	)
	w.Close()

	got := collect(t, ch)
	last := got[len(got)-1]
	if !last.Final || last.Err != nil {
		t.Fatalf("partial stream should end with a clean final, got %+v", last)
	}
	text := ""
	for _, g := range got {
		text += g.TextDelta
	}
	if text != "Hello" {
		t.Fatalf("partial accumulation = %q, want %q", text, "Hello")
	}
}

func TestUnparseableLinesAreSkipped(t *testing.T) {
	c, _, w := newTestClient(t)

	ch, err := c.Generate(GenerationRequest{CorrelationID: "k"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	feed(t, w,
		"not json at all",
		`{"event":"chunk","id":"k","text":"ok","final":true}`,
	)
	got := collect(t, ch)
	if len(got) != 1 || got[0].TextDelta != "ok" {
		t.Fatalf("protocol garbage broke the stream: %+v", got)
	}
}

func TestCancelAndShutdownWireFormat(t *testing.T) {
	c, stdin, _ := newTestClient(t)

	if err := c.Cancel("xyz"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdin.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 outbound lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"cmd":"cancel"`) || !strings.Contains(lines[0], `"id":"xyz"`) {
		t.Fatalf("cancel line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"cmd":"shutdown"`) {
		t.Fatalf("shutdown line = %s", lines[1])
	}
}
