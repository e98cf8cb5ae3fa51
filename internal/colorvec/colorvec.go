// Package colorvec defines the RGB8 color type shared by every stage of the
// pipeline, from the sampler through to the serial and OPC sinks.
package colorvec

// RGB is one LED's 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// Sum returns the sum of the three channels, used by the minimum-brightness
// floor check (the comparison is on the sum, not per channel).
func (c RGB) Sum() int {
	return int(c.R) + int(c.G) + int(c.B)
}
