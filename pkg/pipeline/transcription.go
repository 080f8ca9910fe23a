package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ConnState is the lifecycle state of a transcription session.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TranscriptionSession owns the microphone and one live transcription stream
// and derives the user-speaking signal plus the sequence of finalized
// utterances. Exactly one instance exists per active call.
//
// The speaking signal has a single writer (this session); dependent
// components observe transitions through OnSpeakingChanged, invoked
// synchronously on every flip with no batching.
type TranscriptionSession struct {
	mic         Microphone
	transcriber LiveTranscriber
	opts        LiveOptions
	logger      Logger

	mu              sync.Mutex
	state           ConnState
	stream          LiveStream
	interim         string
	finals          []string
	speaking        bool
	speechFinalSeen bool

	onSpeaking func(bool)
	onInterim  func(string)
	onAudio    func([]byte)
}

// NewTranscriptionSession creates an idle session. Callbacks should be
// registered before Start.
func NewTranscriptionSession(mic Microphone, transcriber LiveTranscriber, cfg Config, logger Logger) *TranscriptionSession {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &TranscriptionSession{
		mic:         mic,
		transcriber: transcriber,
		opts: LiveOptions{
			SampleRate:         cfg.SampleRate,
			Channels:           cfg.Channels,
			Endpointing:        cfg.Endpointing,
			UtteranceEndWindow: cfg.UtteranceEndWindow,
			InterimResults:     true,
			Punctuate:          true,
		},
		logger: logger,
	}
}

// OnSpeakingChanged registers the observer for user-speaking transitions.
func (s *TranscriptionSession) OnSpeakingChanged(fn func(speaking bool)) {
	s.mu.Lock()
	s.onSpeaking = fn
	s.mu.Unlock()
}

// OnInterim registers the observer for interim transcript updates. An empty
// string means the interim display was cleared.
func (s *TranscriptionSession) OnInterim(fn func(text string)) {
	s.mu.Lock()
	s.onInterim = fn
	s.mu.Unlock()
}

// OnAudioChunk registers a tap that sees every captured PCM chunk before it
// is shipped to the transcription stream.
func (s *TranscriptionSession) OnAudioChunk(fn func(pcm []byte)) {
	s.mu.Lock()
	s.onAudio = fn
	s.mu.Unlock()
}

// Start opens the transcription stream and acquires the microphone.
// Connection failures wrap ErrConnection, device failures wrap
// ErrAcquisition; both leave the session idle so it can be restarted.
func (s *TranscriptionSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateActive {
		s.mu.Unlock()
		return fmt.Errorf("transcription session already started")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	stream, err := s.transcriber.Connect(ctx, s.opts, LiveHandlers{
		OnTranscript:   s.handleTranscript,
		OnUtteranceEnd: s.handleUtteranceEnd,
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := s.mic.Start(ctx, s.feedAudio); err != nil {
		if cerr := stream.Close(); cerr != nil {
			s.logger.Warn("closing transcription stream after failed mic start", "error", cerr)
		}
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info("transcription session started", "provider", s.transcriber.Name())
	return nil
}

// Stop releases the microphone, closes the stream and resets all derived
// state. Every release is best-effort; a failure on one resource never
// prevents releasing the others, and Stop never reports an error.
func (s *TranscriptionSession) Stop() {
	s.mu.Lock()
	stream := s.stream
	wasSpeaking := s.speaking
	cb := s.onSpeaking
	s.stream = nil
	s.state = StateClosed
	s.interim = ""
	s.finals = nil
	s.speaking = false
	s.speechFinalSeen = false
	s.mu.Unlock()

	if err := s.mic.Stop(); err != nil {
		s.logger.Warn("microphone release failed", "error", err)
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("transcription stream close failed", "error", err)
		}
	}
	if wasSpeaking && cb != nil {
		cb(false)
	}
	s.logger.Info("transcription session stopped")
}

// State returns the current connection state.
func (s *TranscriptionSession) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsUserSpeaking reports whether the user is currently mid-utterance.
func (s *TranscriptionSession) IsUserSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// InterimText returns the latest unconfirmed transcript fragment.
func (s *TranscriptionSession) InterimText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// DrainFinalUtterances returns all finalized utterances confirmed so far, in
// order, and clears the pending list.
func (s *TranscriptionSession) DrainFinalUtterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.finals
	s.finals = nil
	return out
}

func (s *TranscriptionSession) feedAudio(pcm []byte) {
	s.mu.Lock()
	stream := s.stream
	tap := s.onAudio
	s.mu.Unlock()
	if tap != nil {
		tap(pcm)
	}
	if stream == nil {
		return
	}
	if err := stream.SendAudio(pcm); err != nil {
		s.logger.Warn("sending audio frame failed", "error", err)
	}
}

// handleTranscript processes one recognition result. The first event of an
// utterance flips the speaking signal on; a speech-final result flips it off
// on the fast path and arms the guard against the slower fallback signal.
func (s *TranscriptionSession) handleTranscript(ev TranscriptEvent) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}

	var fire []func()
	speakCB := s.onSpeaking
	interimCB := s.onInterim

	if !s.speaking {
		s.speaking = true
		if speakCB != nil {
			fire = append(fire, func() { speakCB(true) })
		}
	}

	if ev.IsFinal {
		if txt := strings.TrimSpace(ev.Text); txt != "" {
			s.finals = append(s.finals, txt)
		}
		if ev.SpeechFinal {
			s.speechFinalSeen = true
			s.speaking = false
			s.interim = ""
			if speakCB != nil {
				fire = append(fire, func() { speakCB(false) })
			}
			if interimCB != nil {
				fire = append(fire, func() { interimCB("") })
			}
		}
	} else {
		s.interim = ev.Text
		if interimCB != nil {
			txt := ev.Text
			fire = append(fire, func() { interimCB(txt) })
		}
	}
	s.mu.Unlock()

	for _, f := range fire {
		f()
	}
}

// handleUtteranceEnd is the fallback end-of-utterance path. It only flips the
// speaking signal if the fast path (speech-final) did not already handle this
// utterance, and always clears the guard afterward.
func (s *TranscriptionSession) handleUtteranceEnd(ev UtteranceEndEvent) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}

	var fire func()
	if !s.speechFinalSeen && s.speaking {
		s.speaking = false
		s.interim = ""
		if cb := s.onSpeaking; cb != nil {
			fire = func() { cb(false) }
		}
	}
	s.speechFinalSeen = false
	s.mu.Unlock()

	if fire != nil {
		fire()
	}
	s.logger.Debug("utterance end", "last_word_end", ev.LastWordEnd)
}
