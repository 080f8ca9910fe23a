package audio

import (
	"sync"

	"github.com/gen2brain/malgo"
)

// Engine owns the underlying audio context shared by every capture and
// playback device. Creating the context is expensive, so it is initialized
// lazily on first use and reused for the life of the session.
type Engine struct {
	mu   sync.Mutex
	mctx *malgo.AllocatedContext
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) context() (*malgo.AllocatedContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mctx != nil {
		return e.mctx, nil
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	e.mctx = mctx
	return mctx, nil
}

// Close tears down the audio context. All devices must be stopped first.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mctx != nil {
		_ = e.mctx.Uninit()
		e.mctx.Free()
		e.mctx = nil
	}
}

// Playback is one actively sounding audio resource. At most one should be
// live at a time; sequencing is the playback queue's job.
type Playback struct {
	mu      sync.Mutex
	device  *malgo.Device
	stopped bool
	done    bool
}

// Play renders pcm (16-bit little-endian) on the default output device and
// fires onDone exactly once on natural completion. onDone never fires for a
// playback halted via Stop.
func (e *Engine) Play(pcm []byte, sampleRate, channels int, onDone func()) (*Playback, error) {
	mctx, err := e.context()
	if err != nil {
		return nil, err
	}

	p := &Playback{}
	offset := 0

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		n := copy(pOutput, pcm[offset:])
		offset += n
		for i := n; i < len(pOutput); i++ {
			pOutput[i] = 0
		}
		if offset >= len(pcm) {
			p.mu.Lock()
			alreadyFinished := p.done || p.stopped
			p.done = true
			p.mu.Unlock()
			if !alreadyFinished {
				// Uninit cannot run from the device callback itself.
				go func() {
					p.teardown()
					if onDone != nil {
						onDone()
					}
				}()
			}
		}
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return nil, err
	}
	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, err
	}
	return p, nil
}

// Stop halts playback immediately and releases the device. The completion
// callback does not fire for a stopped playback. Idempotent.
func (p *Playback) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	// If the buffer already drained, the completion goroutine owns teardown.
	tearDown := !p.done
	p.mu.Unlock()

	if tearDown {
		p.teardown()
	}
}

func (p *Playback) teardown() {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.mu.Unlock()
	if device != nil {
		device.Uninit()
	}
}
