// Package serialsink drives an AdaLight-protocol serial device: it maintains
// a discovery/reconnect loop over available serial ports, probes each
// candidate for the "Ada\n" cookie, and writes framed RGB payloads to
// whichever port answers.
package serialsink

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/scheerer/adalight-pipeline/internal/colorvec"
	"github.com/scheerer/adalight-pipeline/internal/logging"
)

var logger = logging.New("serialsink")

const (
	baudRate = 115200
	cookie   = "Ada\n"
)

// state mirrors the Disconnected -> Probing -> Connected lifecycle a sink
// moves through as ports come and go.
type state int

const (
	stateDisconnected state = iota
	stateProbing
	stateConnected
)

// Sink writes color vectors to an AdaLight device over a serial port. It is
// safe to call Send concurrently with its own internal reconnect attempts,
// but Send is not expected to be called from multiple goroutines at once.
type Sink struct {
	ledCount int
	timeout  time.Duration

	mu           sync.Mutex
	state        state
	port         serial.Port
	portName     string
	lastDiscover time.Time
}

// New builds a Sink that expects to drive ledCount LEDs. timeoutMs is both
// the per-port probe deadline and the minimum interval between discovery
// attempts while disconnected.
func New(ledCount int, timeoutMs int) *Sink {
	return &Sink{
		ledCount: ledCount,
		timeout:  time.Duration(timeoutMs) * time.Millisecond,
		state:    stateDisconnected,
	}
}

// Send writes one frame. It is a no-op, not an error, when no device is
// currently connected and the reconnect window hasn't elapsed — the caller's
// tick loop should keep calling it every frame regardless of connection
// state.
func (s *Sink) Send(ctx context.Context, vector []colorvec.RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateConnected {
		s.tryReconnectLocked()
		if s.state != stateConnected {
			return nil
		}
	}

	frame := encodeFrame(vector)
	if _, err := s.port.Write(frame); err != nil {
		logger.With(zap.String("port", s.portName), zap.Error(err)).Warn("Write failed, disconnecting")
		s.disconnectLocked()
		return nil
	}

	return nil
}

// Close releases the underlying port, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
	return nil
}

func (s *Sink) disconnectLocked() {
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.state = stateDisconnected
	s.portName = ""
}

// tryReconnectLocked re-runs port discovery at most once per timeout window.
// Grounded in the teacher's LifxLights discovery ticker (internal/lights/lifx.go),
// adapted from "rediscover bulbs every 15s" to "rediscover the serial port no
// more than once per configured timeout".
func (s *Sink) tryReconnectLocked() {
	now := time.Now()
	if now.Sub(s.lastDiscover) < s.timeout {
		return
	}
	s.lastDiscover = now
	s.state = stateProbing

	ports, err := serial.GetPortsList()
	if err != nil {
		logger.With(zap.Error(err)).Error("Failed to list serial ports")
		s.state = stateDisconnected
		return
	}

	for _, name := range ports {
		port, err := probe(name, s.ledCount, s.timeout)
		if err != nil {
			logger.With(zap.String("port", name), zap.Error(err)).Debug("Port did not answer AdaLight probe")
			continue
		}
		logger.With(zap.String("port", name)).Info("Connected to AdaLight device")
		s.port = port
		s.portName = name
		s.state = stateConnected
		return
	}

	logger.Debug("No AdaLight device found during discovery")
	s.state = stateDisconnected
}

// probe opens name at the AdaLight baud rate, writes an all-zero probe
// frame sized for ledCount LEDs, and waits up to timeout for the "Ada\n"
// cookie the firmware emits in response, confirming the attached device
// speaks the expected protocol before committing to it.
func probe(name string, ledCount int, timeout time.Duration) (serial.Port, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}

	port.SetReadTimeout(timeout)

	probeFrame := encodeFrame(make([]colorvec.RGB, ledCount))
	if _, err := port.Write(probeFrame); err != nil {
		port.Close()
		return nil, err
	}

	reader := bufio.NewReader(port)
	line, err := reader.ReadString('\n')
	if err != nil || line != cookie {
		port.Close()
		if err == nil {
			err = fmt.Errorf("unexpected greeting %q", line)
		}
		return nil, err
	}

	return port, nil
}

// encodeFrame builds the AdaLight wire frame: a 6-byte header followed by
// the RGB payload for every LED in vector, in order.
//
//	'A' 'd' 'a' hi lo checksum
//
// where count = len(vector)-1, split into hi/lo bytes, and
// checksum = hi ^ lo ^ 0x55.
func encodeFrame(vector []colorvec.RGB) []byte {
	count := len(vector) - 1
	hi := byte(count >> 8)
	lo := byte(count & 0xFF)
	checksum := hi ^ lo ^ 0x55

	frame := make([]byte, 6+len(vector)*3)
	frame[0], frame[1], frame[2] = 'A', 'd', 'a'
	frame[3], frame[4], frame[5] = hi, lo, checksum

	for i, c := range vector {
		o := 6 + i*3
		frame[o], frame[o+1], frame[o+2] = c.R, c.G, c.B
	}

	return frame
}
