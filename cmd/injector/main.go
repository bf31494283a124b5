// injector is the standalone delete-and-type helper: it erases a prompt
// region with virtual backspaces and types the replacement text.
//
// Invocation: injector <escaped_text> [--backspace N] [--humanize]
//
// <escaped_text> carries literal `\\`, `\n`, `\r`, `\t` escapes which are
// un-escaped before typing; any other backslash sequence is rejected.
// Exit code 0 on success; nonzero with the cause on stderr.
package main

import (
	"flag"
	"fmt"
	"os"

	"golang.design/x/clipboard"

	"github.com/Rajmali-22/NXlayer/internal/injector"
	"github.com/Rajmali-22/NXlayer/internal/logging"
)

func main() {
	os.Exit(run())
}

// noopSuppressor satisfies the injector's echo-suppression contract when
// running as a standalone process: the observing daemon relies on the
// OS-injected flag instead of an in-process window.
type noopSuppressor struct{}

func (noopSuppressor) OpenEchoSuppression()  {}
func (noopSuppressor) CloseEchoSuppression() {}

func run() int {
	backspaces := flag.Int("backspace", 0, "number of backspaces to emit before typing")
	humanize := flag.Bool("humanize", false, "jitter inter-keystroke delays")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: injector <escaped_text> [--backspace N] [--humanize]")
		return 2
	}

	text, err := injector.Unescape(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "injector: %v\n", err)
		return 2
	}

	if err := clipboard.Init(); err != nil {
		// The paste fallback is unavailable; direct synthesis may still work.
		fmt.Fprintf(os.Stderr, "injector: clipboard unavailable: %v\n", err)
	}

	logger := logging.NewLogger(logging.Config{Enabled: true, Component: "injector"})
	defer logger.Close()

	client := injector.New(logger)
	_, err = client.Inject(noopSuppressor{}, injector.Request{
		Text:           text,
		BackspaceCount: *backspaces,
		Humanize:       *humanize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "injector: %v\n", err)
		return 1
	}
	return 0
}
