// copilotd is the typing-copilot orchestration daemon: it observes
// keystrokes system-wide, recognizes triggers, consults the AI worker
// subprocess, and surfaces results through the overlay popup or by
// typing them at the caret.
//
// Exit codes: 0 clean, 1 fatal-start (hook install failed), 2 config
// invalid, 3 supervisor gave up on a required child.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/aiworker"
	"github.com/Rajmali-22/NXlayer/internal/capture"
	"github.com/Rajmali-22/NXlayer/internal/config"
	"github.com/Rajmali-22/NXlayer/internal/hotkeys"
	"github.com/Rajmali-22/NXlayer/internal/injector"
	"github.com/Rajmali-22/NXlayer/internal/keyobserver"
	"github.com/Rajmali-22/NXlayer/internal/logging"
	"github.com/Rajmali-22/NXlayer/internal/orchestrator"
	"github.com/Rajmali-22/NXlayer/internal/platform"
	"github.com/Rajmali-22/NXlayer/internal/popup"
	"github.com/Rajmali-22/NXlayer/internal/supervisor"
	"github.com/Rajmali-22/NXlayer/internal/textbuffer"
	"github.com/Rajmali-22/NXlayer/internal/trigger"
)

const (
	exitClean          = 0
	exitHookFailed     = 1
	exitConfigInvalid  = 2
	exitSupervisorGave = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config", "", "configuration directory (default ~/.copilotd)")
	workerCmd := flag.String("worker", "copilot-worker", "path to the AI worker binary")
	flag.Parse()

	store, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "copilotd: %v\n", err)
		return exitConfigInvalid
	}
	settings := store.Settings()

	logger := logging.NewLogger(logging.Config{
		Enabled:   true,
		Level:     settings.LogLevel,
		Component: "daemon",
		LogToFile: settings.LogToFile,
		LogDir:    store.Dir(),
	})
	defer logger.Close()

	if store.Keys().IsPlaintextFallback() {
		logger.Warn("config", "no machine key available; API keys are stored in plaintext")
	}
	for _, check := range platform.Diagnose() {
		logger.Info("platform", "%s: %s", check.Name, check.Status)
		if check.Required && check.Status != platform.StatusGranted {
			logger.Warn("platform", "%s not granted: %s", check.Name, check.Detail)
			platform.OpenInputSettings()
		}
	}

	if err := trigger.InitSystemClipboard(); err != nil {
		logger.Warn("clipboard", "clipboard unavailable, clipboard triggers and paste fallback disabled: %v", err)
	}

	// The hook is a fatal-start dependency (HookInstallFailed).
	observer := keyobserver.New(logger, keyobserver.NewPrivacyList())
	if err := observer.Start(); err != nil {
		logger.Error("keyobserver", "hook install failed: %v", err)
		return exitHookFailed
	}
	defer observer.Stop()

	popupCtl := popup.NewController()
	defer popupCtl.Destroy()

	exempter := capture.New()
	if n := exempter.Apply(); n > 0 {
		logger.Info("capture", "marked %d owned window(s) capture-exempt", n)
	} else if !exempter.IsSupported() {
		logger.Warn("capture", "no capture-exclusion facility; popup is capture-visible")
	}

	buffer := textbuffer.New()
	recognizer := trigger.New(triggerConfig(settings), buffer, trigger.SystemClipboard{})
	worker := aiworker.New(logger, *workerCmd)
	inj := injector.New(logger)

	orch := orchestrator.New(logger, buffer, recognizer, worker, inj, popupCtl, settings)
	pipeline := orchestrator.NewPipeline(logger, observer, buffer, recognizer, orch, func() bool {
		return store.Settings().LiveMode
	})

	keylog := logging.NewKeystrokeLog(filepath.Join(store.Dir(), "keystrokes.json"), settings.DebugLogEnabled)
	pipeline.SetKeystrokeLog(keylog)
	defer keylog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go orch.Run(ctx)
	go pipeline.Run(ctx)

	store.OnChange(func(s config.Settings) {
		orch.PostSettings(s)
	})
	store.WatchAndReload()

	// The AI worker is the one supervised required child; its restart
	// gets a fresh ConfigSnapshot each time.
	exitCode := exitClean
	sup := supervisor.New(logger)
	sup.Start(ctx, supervisor.Child{
		Name: "aiworker",
		Launch: func(ctx context.Context) error {
			snapshot := store.Snapshot(exempter.Active())
			if err := worker.Start(ctx, snapshot); err != nil {
				return err
			}
			sup.MarkRunning("aiworker")
			return worker.Wait()
		},
		OnStateChange: func(st supervisor.State) {
			if st == supervisor.StateFailed {
				logger.Error("supervisor", "AI worker gave up; shutting down")
				exitCode = exitSupervisorGave
				cancel()
			}
		},
	})

	hk := hotkeys.NewManager(logger, pipeline.PostHotkey)
	bindHotkeys(hk, settings.Hotkeys, logger)
	go func() {
		<-ctx.Done()
		hk.Stop()
	}()

	// Blocks on the OS message loop until Stop; everything else runs on
	// its own goroutine.
	hk.Run()

	sup.Stop()
	_ = worker.Shutdown()
	return exitCode
}

func triggerConfig(s config.Settings) trigger.Config {
	cfg := trigger.DefaultConfig()
	if s.LiveIdleMs > 0 {
		cfg.LiveIdle = msToDuration(s.LiveIdleMs)
	}
	if s.ExtendWindowMs > 0 {
		cfg.ExtendWindow = msToDuration(s.ExtendWindowMs)
	}
	return cfg
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func bindHotkeys(hk *hotkeys.Manager, bindings config.HotkeyConfig, logger *logging.Logger) {
	for action, combo := range map[trigger.HotkeyAction]string{
		trigger.ActionToggle:     bindings.ToggleOverlay,
		trigger.ActionPaste:      bindings.PasteLast,
		trigger.ActionGenerate:   bindings.Generate,
		trigger.ActionClipboard:  bindings.Clipboard,
		trigger.ActionScreenshot: bindings.Screenshot,
		trigger.ActionVoice:      bindings.Voice,
	} {
		if combo == "" {
			continue
		}
		if err := hk.Bind(action, combo); err != nil {
			logger.Warn("hotkeys", "%v", err)
		}
	}
}
