// Package keyobserver implements the daemon's key observer: a
// system-wide low-level keyboard hook that emits a normalized stream of
// RawKeyEvents and focus-change ActiveContexts to a bounded channel
// consumed, in lockstep, by the pipeline task.
package keyobserver

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RawKeyEvent is one normalized key-down/key-up observation.
type RawKeyEvent struct {
	VirtualKey       int
	Rune             rune // printable rune, or 0 for non-printable keys
	IsKeyDown        bool
	IsModifier       bool
	IsNavigation     bool // caret-moving key (arrows, Home/End, PageUp/Down)
	IsBackspace      bool
	IsEscape         bool
	IsSystemInjected bool
	Timestamp        time.Time
}

// ActiveContext is the foreground window classification,
// re-evaluated on every focus change.
type ActiveContext struct {
	WindowTitle     string
	ProcessIdentity string
	IsSensitive     bool
}

// PrivacyList classifies an ActiveContext as sensitive by matching the
// window title or process identity against a case-insensitive substring
// list (banking, password managers, auth/login surfaces, private
// browsing). Extra needles come from NewPrivacyList's arguments or
// SetExtra; the daemon entrypoint uses the defaults only.
type PrivacyList struct {
	mu       sync.RWMutex
	needles  []string
}

// DefaultPrivacyNeedles seeds PrivacyList with common sensitive-surface
// markers; NewPrivacyList and SetExtra add to this list.
var DefaultPrivacyNeedles = []string{
	"password", "1password", "bitwarden", "keepass", "lastpass",
	"login", "sign in", "bank", "chase", "wells fargo", "paypal",
	"private browsing", "incognito", "credential manager", "keychain access",
}

// NewPrivacyList builds a PrivacyList seeded with extra needles appended
// to DefaultPrivacyNeedles.
func NewPrivacyList(extra ...string) *PrivacyList {
	pl := &PrivacyList{needles: append(append([]string{}, DefaultPrivacyNeedles...), extra...)}
	return pl
}

// Classify reports whether title or process matches any needle.
func (p *PrivacyList) Classify(title, process string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lt, lp := strings.ToLower(title), strings.ToLower(process)
	for _, n := range p.needles {
		if n == "" {
			continue
		}
		if strings.Contains(lt, n) || strings.Contains(lp, n) {
			return true
		}
	}
	return false
}

// SetExtra replaces the user-configurable portion of the list, keeping
// DefaultPrivacyNeedles.
func (p *PrivacyList) SetExtra(extra []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.needles = append(append([]string{}, DefaultPrivacyNeedles...), extra...)
}

// QueueDepth bounds the RawKeyEvent channel. On overflow (consumer
// starvation) the oldest events are dropped and counted.
const QueueDepth = 256

// Observer is the cross-platform hook contract. Each platform file supplies
// platformStart, which installs the hook, pushes onto the channels
// returned here, and returns the function that uninstalls it.
type Observer struct {
	logger interface {
		Info(string, string, ...interface{})
		Warn(string, string, ...interface{})
		Error(string, string, ...interface{})
	}

	events   chan RawKeyEvent
	focus    chan ActiveContext
	dropped  int64
	privacy  *PrivacyList
	running  int32

	lastContext atomic.Value // ActiveContext

	stopFn func()
}

type observerLogger = interface {
	Info(string, string, ...interface{})
	Warn(string, string, ...interface{})
	Error(string, string, ...interface{})
}

// New constructs an Observer. Call Start to install the platform hook.
func New(logger observerLogger, privacy *PrivacyList) *Observer {
	return &Observer{
		logger:  logger,
		events:  make(chan RawKeyEvent, QueueDepth),
		focus:   make(chan ActiveContext, 8),
		privacy: privacy,
	}
}

// Events returns the channel of normalized key events.
func (o *Observer) Events() <-chan RawKeyEvent { return o.events }

// FocusChanges returns the channel of ActiveContext transitions.
func (o *Observer) FocusChanges() <-chan ActiveContext { return o.focus }

// DroppedCount reports how many events were discarded for consumer
// starvation.
func (o *Observer) DroppedCount() int64 { return atomic.LoadInt64(&o.dropped) }

// Start installs the platform hook and blocks until the readiness
// handshake completes (or returns a fatal HookInstallFailed error).
func (o *Observer) Start() error {
	if !atomic.CompareAndSwapInt32(&o.running, 0, 1) {
		return nil
	}
	stop, err := platformStart(o)
	if err != nil {
		atomic.StoreInt32(&o.running, 0)
		return err
	}
	o.stopFn = stop
	return nil
}

// Stop uninstalls the hook and drains the queue.
func (o *Observer) Stop() {
	if !atomic.CompareAndSwapInt32(&o.running, 1, 0) {
		return
	}
	if o.stopFn != nil {
		o.stopFn()
	}
	for {
		select {
		case <-o.events:
		default:
			return
		}
	}
}

// dispatch pushes ev onto the bounded event channel, non-blocking, oldest
// first on overflow. Called from the platform hook thread.
func (o *Observer) dispatch(ev RawKeyEvent) {
	select {
	case o.events <- ev:
	default:
		select {
		case <-o.events:
			atomic.AddInt64(&o.dropped, 1)
		default:
		}
		select {
		case o.events <- ev:
		default:
		}
		if o.logger != nil {
			o.logger.Warn("keyobserver", "event queue overflow, dropped=%d", atomic.LoadInt64(&o.dropped))
		}
	}
}

// dispatchFocus classifies and pushes an ActiveContext focus-change
// (is_sensitive re-evaluated on each focus change).
func (o *Observer) dispatchFocus(title, process string) {
	sensitive := o.privacy != nil && o.privacy.Classify(title, process)
	ctx := ActiveContext{WindowTitle: title, ProcessIdentity: process, IsSensitive: sensitive}
	o.lastContext.Store(ctx)
	select {
	case o.focus <- ctx:
	default:
		// focus channel is small and latest-wins; drop the oldest pending.
		select {
		case <-o.focus:
		default:
		}
		select {
		case o.focus <- ctx:
		default:
		}
	}
}

// LastContext returns the most recently observed ActiveContext, or the
// zero value before the first focus_change.
func (o *Observer) LastContext() ActiveContext {
	v, _ := o.lastContext.Load().(ActiveContext)
	return v
}

// navigationKeys is the fixed set of caret-moving virtual-key codes that
// force a Buffer.Reset.
var navigationKeys = map[int]bool{}

// IsNavigationKey reports whether vk is a registered navigation key.
func IsNavigationKey(vk int) bool { return navigationKeys[vk] }

func registerNavigationKeys(vks ...int) {
	for _, vk := range vks {
		navigationKeys[vk] = true
	}
}
