package audio

import (
	"math"
	"sync"
)

// Meter tracks the RMS level of the most recently observed audio chunk.
// Used for the CLI mic-energy display.
type Meter struct {
	mu  sync.Mutex
	rms float64
}

func NewMeter() *Meter {
	return &Meter{}
}

// Push computes and records the RMS of a 16-bit PCM chunk.
func (m *Meter) Push(chunk []byte) float64 {
	rms := RMS(chunk)
	m.mu.Lock()
	m.rms = rms
	m.mu.Unlock()
	return rms
}

// Level returns the last recorded RMS value.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rms
}

// RMS computes the root mean square of 16-bit little-endian PCM, normalized
// to [0, 1].
func RMS(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}

	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}

	return math.Sqrt(sum / float64(len(chunk)/2))
}
