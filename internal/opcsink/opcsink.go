// Package opcsink drives one or more Open Pixel Control TCP servers,
// gathering each configured channel's source LEDs from a display.Set,
// spreading them evenly across the channel's output pixels, and writing
// framed OPC messages. Grounded in TeamNorCal-mawt's fadecandy.go, which
// drives a fadecandy OPC server with the same go-opc/go-colorful pair.
package opcsink

import (
	"context"
	"fmt"
	"math"

	"github.com/kellydunn/go-opc"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/config"
	"github.com/scheerer/adalight-pipeline/internal/display"
	"github.com/scheerer/adalight-pipeline/internal/logging"
)

var logger = logging.New("opcsink")

// bobLightSystemID is the sysex system ID BobLight uses for its alpha
// channel extension to OPC; cmd 0xFF on an OPC message is a firmware
// command rather than a pixel-set, and BobLight reserves system ID 0xB0B
// within that command for per-channel brightness/alpha.
const (
	bobLightCommand  = 0xFF
	bobLightSystemID = 0xB0B
	bobLightAlpha    = 0xFF
)

// Sink drives every configured OpcServer. Connections are lazy: a server is
// dialed on first Send and redialed on write error, with no fixed backoff —
// the next tick simply tries again.
type Sink struct {
	set     *display.Set
	servers []*serverConn
}

type serverConn struct {
	cfg    config.OpcServer
	client *opc.Client
}

// New builds a Sink for every server in cfg, reading source colors from set.
func New(set *display.Set, servers []config.OpcServer) *Sink {
	s := &Sink{set: set}
	for _, sc := range servers {
		s.servers = append(s.servers, &serverConn{cfg: sc})
	}
	return s
}

// Send renders every configured server's channels from the current state of
// the display.Set and writes them out. A single server's connection failure
// is logged and does not prevent other servers from being sent to.
func (s *Sink) Send(ctx context.Context) {
	for _, sc := range s.servers {
		if err := sc.send(s.set); err != nil {
			logger.With(zap.String("host", sc.cfg.Host), zap.String("port", sc.cfg.Port), zap.Error(err)).
				Warn("Failed to send OPC frame, will retry connection next tick")
		}
	}
}

// Close disconnects every server connection, combining any close errors.
func (s *Sink) Close() error {
	var err error
	for _, sc := range s.servers {
		if sc.client != nil {
			err = multierr.Append(err, sc.client.Close())
			sc.client = nil
		}
	}
	return err
}

func (sc *serverConn) send(set *display.Set) error {
	if sc.client == nil {
		client := opc.NewClient()
		addr := fmt.Sprintf("%s:%s", sc.cfg.Host, sc.cfg.Port)
		if err := client.Connect("tcp", addr); err != nil {
			return err
		}
		sc.client = client
	}

	for _, ch := range sc.cfg.Channels {
		msg := buildChannelMessage(set, ch)
		if err := sc.client.Send(msg); err != nil {
			sc.client.Close()
			sc.client = nil
			return err
		}

		if sc.cfg.AlphaChannel {
			if err := sc.client.Send(buildAlphaMessage(ch.Channel, ch.TotalPixelCount())); err != nil {
				sc.client.Close()
				sc.client = nil
				return err
			}
		}
	}

	return nil
}

// buildChannelMessage renders each of ch's pixel ranges independently and
// writes each range's output pixels at its own contiguous offset in the
// message buffer. A range with no source LEDs leaves its span black rather
// than borrowing colors from a neighboring range.
func buildChannelMessage(set *display.Set, ch config.OpcChannel) *opc.Message {
	pixelCount := ch.TotalPixelCount()

	msg := opc.NewMessage(ch.Channel)
	msg.SetLength(uint16(pixelCount * 3))

	offset := 0
	for _, r := range ch.Pixels {
		source := gatherRangeSource(set, r)
		out := interpolate(source, r.PixelCount)
		for i, c := range out {
			msg.SetPixelColor(offset+i, c.R, c.G, c.B)
		}
		offset += r.PixelCount
	}

	return msg
}

func gatherRangeSource(set *display.Set, r config.OpcPixelRange) []colorvec.RGB {
	source := make([]colorvec.RGB, 0, r.SampleCount())
	for di, leds := range r.DisplayIndex {
		for _, led := range leds {
			source = append(source, set.Lookup(di, led))
		}
	}
	return source
}

// interpolate spreads the source vector over n output pixels with even
// distribution: output pixel k samples source position s = k*(len-1)/(n-1),
// linearly blending the two nearest source colors and rounding half to
// even. Endpoints map exactly onto the first and last source colors.
func interpolate(source []colorvec.RGB, n int) []colorvec.RGB {
	out := make([]colorvec.RGB, n)
	if len(source) == 0 || n == 0 {
		return out
	}
	if len(source) == 1 || n == 1 {
		for i := range out {
			out[i] = source[0]
		}
		return out
	}

	for k := 0; k < n; k++ {
		s := float64(k) * float64(len(source)-1) / float64(n-1)
		lo := int(s)
		hi := lo + 1
		if hi >= len(source) {
			out[k] = source[len(source)-1]
			continue
		}
		frac := s - float64(lo)
		out[k] = blend(source[lo], source[hi], frac)
	}

	return out
}

// blend linearly interpolates between a and b at t in [0, 1] per channel,
// rounding half-to-even back to uint8. go-colorful's Color gives us a
// convenient float-space RGB triple to interpolate in (mirroring how
// TeamNorCal-mawt builds colorful.Color values for its gradient blends)
// even though the final rounding step is done explicitly here rather than
// through BlendRgb, since OPC's even-distribution interpolation has its own
// rounding rule.
func blend(a, b colorvec.RGB, t float64) colorvec.RGB {
	ca := colorful.Color{R: float64(a.R) / 255, G: float64(a.G) / 255, B: float64(a.B) / 255}
	cb := colorful.Color{R: float64(b.R) / 255, G: float64(b.G) / 255, B: float64(b.B) / 255}

	return colorvec.RGB{
		R: roundHalfToEven(ca.R*255*(1-t) + cb.R*255*t),
		G: roundHalfToEven(ca.G*255*(1-t) + cb.G*255*t),
		B: roundHalfToEven(ca.B*255*(1-t) + cb.B*255*t),
	}
}

// roundHalfToEven implements banker's rounding: ties round to the nearest
// even integer rather than always up, avoiding the systematic upward bias a
// naive round introduces across many repeated interpolations.
func roundHalfToEven(v float64) uint8 {
	floor := math.Floor(v)
	diff := v - floor
	switch {
	case diff < 0.5:
		return uint8(floor)
	case diff > 0.5:
		return uint8(floor + 1)
	default:
		if int64(floor)%2 == 0 {
			return uint8(floor)
		}
		return uint8(floor + 1)
	}
}

// buildAlphaMessage builds the BobLight sysex extension frame: the 2-byte
// system ID followed by one alpha byte per pixel on the channel (always
// bobLightAlpha here — the driver doesn't vary per-channel brightness
// independently of the color pipeline, so every pixel gets the same
// constant alpha).
func buildAlphaMessage(channel byte, pixelCount int) *opc.Message {
	msg := opc.NewMessage(channel)
	msg.Command = bobLightCommand

	data := make([]byte, 2+pixelCount)
	data[0] = byte(bobLightSystemID >> 8)
	data[1] = byte(bobLightSystemID & 0xFF)
	for i := 2; i < len(data); i++ {
		data[i] = bobLightAlpha
	}

	msg.Data = data
	msg.Length = uint16(len(data))
	return msg
}
