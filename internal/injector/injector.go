// Package injector implements the daemon's injector client: a
// delete-and-type operation that erases a prompt region and types a
// generated replacement, with optional human-timing, an echo-suppression
// gate the Observer consults, indent normalization, and a
// clipboard-paste fallback when direct key synthesis fails.
package injector

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.design/x/clipboard"

	"github.com/Rajmali-22/NXlayer/internal/logging"
)

// Escape renders text for the subprocess wire: exactly \\ \n \r \t are
// escaped, nothing else. The in-process Injector never needs this since
// it receives Go strings directly; Escape/Unescape exist for the
// subprocess entrypoint (cmd/injector).
func Escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

// Unescape is the left inverse of Escape, rejecting any other \x
// sequence: the escape alphabet is pinned and anything else is a
// caller bug, not a silent pass-through.
func Unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("injector: trailing backslash in escaped text")
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			return "", fmt.Errorf("injector: unrecognized escape sequence \\%c", s[i])
		}
	}
	return b.String(), nil
}

// EchoSuppressor is the minimal interface the Injector needs on the
// observer side to open/close the EchoSuppressionWindow. The
// Orchestrator's buffer-owning task implements it.
type EchoSuppressor interface {
	OpenEchoSuppression()
	CloseEchoSuppression()
}

// Request is one delete-and-type operation.
type Request struct {
	Text            string
	BackspaceCount  int
	Humanize        bool
	TabAsSpaces     bool
	SpacesPerTab    int
}

// Result reports what actually happened, for the Orchestrator's error
// handling.
type Result struct {
	UsedClipboardFallback bool
}

// Client serializes injection: at most one in-flight delete-and-type.
// The mutex below is that serialization point.
type Client struct {
	mu     sync.Mutex
	logger *logging.Logger
}

// New constructs a Client.
func New(logger *logging.Logger) *Client {
	return &Client{logger: logger}
}

// NormalizeIndent applies the indent-normalization contract:
// strip leading whitespace per line (the target editor applies its
// own auto-indent on Enter) and trim leading/trailing blank lines. The
// Orchestrator calls this exactly once per Session before injecting.
func NormalizeIndent(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimLeft(l, " \t")
	}
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// Inject performs one delete-and-type operation:
//  1. open the echo-suppression window,
//  2. emit BackspaceCount backspaces,
//  3. type Text (optionally humanized),
//  4. close the echo-suppression window only after the last event is
//     confirmed injected.
//
// On platform injection failure, Inject falls back to clipboard+paste;
// if that also fails, the returned FailedError carries the text so the
// caller can tell the user where to find it.
func (c *Client) Inject(suppressor EchoSuppressor, req Request) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	suppressor.OpenEchoSuppression()
	defer suppressor.CloseEchoSuppression()

	if req.SpacesPerTab <= 0 {
		req.SpacesPerTab = 4
	}

	if err := platformBackspace(req.BackspaceCount); err != nil {
		c.logger.Warn("injector", "backspace emission failed: %v, falling back to clipboard", err)
		return c.clipboardFallback(req, false)
	}

	typed := req.Text
	if req.TabAsSpaces {
		typed = strings.ReplaceAll(typed, "\t", strings.Repeat(" ", req.SpacesPerTab))
	}

	if err := c.typeText(typed, req.Humanize); err != nil {
		c.logger.Warn("injector", "type emission failed: %v, falling back to clipboard", err)
		return c.clipboardFallback(req, true)
	}

	return Result{}, nil
}

func (c *Client) typeText(text string, humanize bool) error {
	if !humanize {
		return platformType(text)
	}
	return c.typeHumanized(text)
}

// typeHumanized emits one character at a time with jittered delays
// centered at ~55ms (+/-25ms, truncated) and occasional short
// typo-then-backspace runs. Purely observable behavior.
func (c *Client) typeHumanized(text string) error {
	runes := []rune(text)
	sinceTypo := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if sinceTypo >= 40 && rand.IntN(40) == 0 {
			typo := randomTypoFor(r)
			if typo != 0 {
				if err := platformType(string(typo)); err != nil {
					return err
				}
				time.Sleep(jitteredDelay())
				if err := platformBackspace(1); err != nil {
					return err
				}
				sinceTypo = 0
			}
		}

		if err := platformType(string(r)); err != nil {
			return err
		}
		sinceTypo++
		time.Sleep(jitteredDelay())
	}
	return nil
}

func jitteredDelay() time.Duration {
	const base, jitter = 55, 25
	d := base + rand.IntN(2*jitter+1) - jitter
	if d < base-jitter {
		d = base - jitter
	}
	return time.Duration(d) * time.Millisecond
}

// randomTypoFor returns a plausible adjacent-key slip for r, or 0 if none
// is known. Purely cosmetic.
func randomTypoFor(r rune) rune {
	neighbors := map[rune]string{
		'a': "s", 's': "ad", 'd': "sf", 'f': "dg", 'e': "wr", 'r': "et",
		'n': "bm", 'm': "n", 'o': "ip", 'i': "ou",
	}
	set, ok := neighbors[r]
	if !ok || set == "" {
		return 0
	}
	return rune(set[rand.IntN(len(set))])
}

// clipboardFallback is the degraded injection path: clipboard write
// plus a synthesized paste. backspacesDone tells it whether the prompt
// region was already erased, so the fallback never deletes twice.
func (c *Client) clipboardFallback(req Request, backspacesDone bool) (Result, error) {
	if !backspacesDone {
		if err := platformBackspace(req.BackspaceCount); err != nil {
			c.logger.Error("injector", "clipboard fallback: backspace also failed: %v", err)
		}
	}
	clipboard.Write(clipboard.FmtText, []byte(req.Text))
	if err := platformPaste(); err != nil {
		c.logger.Error("injector", "clipboard fallback paste failed: %v", err)
		return Result{UsedClipboardFallback: true}, &FailedError{Text: req.Text, Cause: err}
	}
	return Result{UsedClipboardFallback: true}, nil
}

// FailedError is the terminal injection failure: both key synthesis and
// the clipboard-paste fallback failed. Text carries the generated output
// so the Orchestrator can tell the user where to find it.
type FailedError struct {
	Text  string
	Cause error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("injector: paste fallback failed, generated text preserved in clipboard: %v", e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }
