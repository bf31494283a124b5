// Package textbuffer implements the orchestration engine's rolling text
// buffer: an append-only, bounded character sequence with an explicit
// reset and a raw-count of logical insertions distinct from rune length.
package textbuffer

import (
	"sync"

	"golang.org/x/text/unicode/norm"
)

// MaxBufferRunes caps the buffer at roughly 16 KiB of UTF-8 text. On
// overflow the buffer is truncated from the head, discarding the oldest
// characters first.
const MaxBufferRunes = 16 * 1024

// Buffer is the daemon's rolling text buffer: a bounded, NFC-normalized
// rune sequence with append/backspace/reset, guarded by a single mutex
// since it is mutated only by the pipeline task in response to observer
// events or orchestrator reset commands.
type Buffer struct {
	mu       sync.RWMutex
	runes    []rune
	rawCount int64
	shadow   bool
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append normalizes s to NFC and appends its runes, incrementing the
// raw-count by one per logical insertion (s is one logical insertion even
// when it expands to multiple runes, e.g. a composed grapheme).
func (b *Buffer) Append(s string) {
	if s == "" {
		return
	}
	normalized := norm.NFC.String(s)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.runes = append(b.runes, []rune(normalized)...)
	b.rawCount++
	b.truncateLocked()
}

func (b *Buffer) truncateLocked() {
	if len(b.runes) <= MaxBufferRunes {
		return
	}
	drop := len(b.runes) - MaxBufferRunes
	b.runes = append([]rune(nil), b.runes[drop:]...)
}

// Backspace removes up to n runes from the tail and decrements the
// raw-count by n (floored at zero).
func (b *Buffer) Backspace(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.runes) {
		n = len(b.runes)
	}
	b.runes = b.runes[:len(b.runes)-n]
	b.rawCount -= int64(n)
	if b.rawCount < 0 {
		b.rawCount = 0
	}
}

// Reset clears the buffer and raw-count. Issued explicitly by the
// Orchestrator post-injection, on non-printable caret-moving keys, and on
// focus_change.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = nil
	b.rawCount = 0
}

// Get returns the current buffer contents.
func (b *Buffer) Get() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.runes)
}

// RawCount returns the number of logical insertions since the last reset.
func (b *Buffer) RawCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rawCount
}

// Len returns the rune length of the current contents.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.runes)
}

// IsEmpty reports whether the buffer is empty.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Snapshot captures the buffer contents and raw-count atomically, for a
// trigger acceptance that must observe the buffer at a single instant
// (ordering guarantee).
type Snapshot struct {
	Text     string
	RawCount int64
}

// Snapshot returns the current contents and raw-count as one atomic read.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{Text: string(b.runes), RawCount: b.rawCount}
}

// SetShadow toggles shadow mode: while true, the buffer still accumulates
// (so that a reset on focus-change has something to discard) but trigger
// recognition must not fire from it while shadow is set. Shadow mode
// is entered when the active context is sensitive (invariant).
func (b *Buffer) SetShadow(shadow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shadow = shadow
}

// Shadow reports whether the buffer is currently in shadow mode.
func (b *Buffer) Shadow() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shadow
}
