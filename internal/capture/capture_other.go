//go:build !darwin && !windows

package capture

// No capture-exclusion facility on this platform; windows are created
// capture-visible and the ConfigSnapshot says so.

func markOwnedWindows(exempt bool) int { return 0 }

func exclusionSupported() bool { return false }
