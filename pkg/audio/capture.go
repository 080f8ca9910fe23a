package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Microphone captures 16-bit PCM from the default input device and delivers
// it in fixed-interval chunks suitable for a streaming transcriber.
type Microphone struct {
	eng        *Engine
	sampleRate int
	channels   int
	interval   time.Duration

	mu      sync.Mutex
	device  *malgo.Device
	buf     []byte
	target  int
	onChunk func(pcm []byte)
}

// NewMicrophone creates an unstarted microphone on the engine's context.
func NewMicrophone(eng *Engine, sampleRate, channels int, interval time.Duration) *Microphone {
	return &Microphone{
		eng:        eng,
		sampleRate: sampleRate,
		channels:   channels,
		interval:   interval,
	}
}

// Start acquires the input device and begins delivering chunks. The context
// parameter is accepted for interface symmetry; device release happens via
// Stop.
func (m *Microphone) Start(_ context.Context, onChunk func(pcm []byte)) error {
	m.mu.Lock()
	if m.device != nil {
		m.mu.Unlock()
		return fmt.Errorf("microphone already started")
	}
	m.onChunk = onChunk
	m.target = m.sampleRate * m.channels * 2 * int(m.interval.Milliseconds()) / 1000
	m.mu.Unlock()

	mctx, err := m.eng.context()
	if err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.channels)
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: m.onSamples})
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()
	return nil
}

// Stop releases the input device. Safe to call when not started.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	device := m.device
	m.device = nil
	m.buf = nil
	m.onChunk = nil
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	return nil
}

func (m *Microphone) onSamples(_, pInput []byte, frameCount uint32) {
	if pInput == nil {
		return
	}

	m.mu.Lock()
	m.buf = append(m.buf, pInput...)
	var chunk []byte
	if m.target > 0 && len(m.buf) >= m.target {
		chunk = make([]byte, m.target)
		copy(chunk, m.buf[:m.target])
		m.buf = append(m.buf[:0], m.buf[m.target:]...)
	}
	cb := m.onChunk
	m.mu.Unlock()

	if chunk != nil && cb != nil {
		cb(chunk)
	}
}
