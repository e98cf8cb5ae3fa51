// Package capture is the duplication-aware screen capture front end: it
// yields a frame (pixel buffer + stride + dimensions) or a transient
// failure class per display per tick. The concrete implementation is a thin
// wrapper around the platform's desktop duplication capability — the real
// GPU-level work is an external collaborator, not something this package
// re-implements.
package capture

import "context"

// Status classifies one display's result for a single Snapshot call.
type Status int

const (
	// StatusFrame means Frame is populated with a fresh capture.
	StatusFrame Status = iota
	// StatusUnchanged means the capture subsystem reports no update since
	// the last call; the sampler must skip this display and let its
	// prior-frame vector carry forward unchanged (after fade/floor).
	StatusUnchanged
	// StatusThrottled means no display is capturable this tick (e.g. a
	// secure desktop prompt is active). It applies to the whole Snapshot
	// call: the throttled flag is set and every display entry carries this
	// status, telling the driver to sleep for ThrottleTimer instead of
	// sampling.
	StatusThrottled
	// StatusTransientFailure means this display's capture object should be
	// recreated on the next tick; the current tick should emit this
	// display's prior frame unchanged.
	StatusTransientFailure
)

// Frame is one display's raw pixel buffer for a tick. Pixels are laid out
// RGBA8, row-major, Stride bytes per row (Stride may exceed Width*4 due to
// row padding).
type Frame struct {
	Pixels []byte
	Stride int
	Width  int
	Height int
}

// DisplayResult is one display's outcome for a Snapshot call.
type DisplayResult struct {
	Status Status
	Frame  Frame
}

// Source is the capture front end's public contract. A Source is permitted
// to coalesce multiple displays' states into a single Snapshot call to
// amortize OS-level locking.
type Source interface {
	// Snapshot returns one DisplayResult per configured display, in
	// configuration order. If the returned throttled flag is true, every
	// entry's Status is StatusThrottled and the driver must not sample or
	// push any sink this tick.
	Snapshot(ctx context.Context) (results []DisplayResult, throttled bool, err error)

	// Close releases any resources held by the Source.
	Close() error
}
