//go:build windows

package capture

import "github.com/lxn/win"

// WindowsThrottleDetector reports the desktop as not capturable when the
// current thread cannot open the input desktop — the situation during a
// UAC secure-desktop prompt, the scenario named in spec.md's description of
// "Throttled". Grounded in the original implementation's handling of
// DXGI_ERROR_ACCESS_LOST around secure-desktop transitions (screen_samples.rs).
type WindowsThrottleDetector struct{}

// NewThrottleDetector returns the platform's ThrottleDetector.
func NewThrottleDetector() ThrottleDetector { return WindowsThrottleDetector{} }

func (WindowsThrottleDetector) Throttled() bool {
	desktop := win.OpenInputDesktop(0, false, win.GENERIC_ALL)
	if desktop == 0 {
		return true
	}
	win.CloseDesktop(desktop)
	return false
}
