package pipeline

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// Microphone delivers raw PCM chunks from an input device on a fixed interval.
type Microphone interface {
	Start(ctx context.Context, onChunk func(pcm []byte)) error
	Stop() error
}

// TranscriptEvent is a single recognition result from the live transcriber.
// IsFinal marks a segment the service will not revise further; SpeechFinal
// additionally marks end of the user's utterance (fast path).
type TranscriptEvent struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
}

// UtteranceEndEvent is the slower fallback end-of-utterance signal, fired
// after prolonged silence.
type UtteranceEndEvent struct {
	LastWordEnd float64
}

// LiveHandlers receive parsed events from a live transcription stream.
// Malformed wire messages are dropped by the provider and never reach these.
type LiveHandlers struct {
	OnTranscript   func(TranscriptEvent)
	OnUtteranceEnd func(UtteranceEndEvent)
}

// LiveOptions configure a live transcription stream.
type LiveOptions struct {
	SampleRate int
	Channels   int
	// Endpointing is the short silence threshold for the fast-path
	// end-of-utterance signal.
	Endpointing time.Duration
	// UtteranceEndWindow is the longer fallback utterance-end timeout.
	UtteranceEndWindow time.Duration
	InterimResults     bool
	Punctuate          bool
}

// LiveTranscriber opens streaming speech-to-text sessions.
type LiveTranscriber interface {
	Connect(ctx context.Context, opts LiveOptions, handlers LiveHandlers) (LiveStream, error)
	Name() string
}

// LiveStream is an open transcription stream accepting raw audio frames.
type LiveStream interface {
	SendAudio(pcm []byte) error
	Close() error
}

// TTSClient converts a batch of text into audio bytes in WAV container
// format. Implementations live in pkg/providers/tts.
type TTSClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
}

// AudioUnit is a decoded, playable audio payload together with its format.
type AudioUnit struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Synthesizer converts text to a playable audio unit.
type Synthesizer interface {
	Convert(ctx context.Context, text string) (*AudioUnit, error)
}

// PlaybackHandle is ownership of one actively sounding audio resource.
type PlaybackHandle interface {
	// Stop halts playback immediately. The completion callback passed to
	// Play does not fire for a stopped playback.
	Stop()
}

// Player renders one audio unit at a time. onDone fires exactly once when
// playback runs to natural completion, and never after Stop.
type Player interface {
	Play(pcm []byte, sampleRate, channels int, onDone func()) (PlaybackHandle, error)
}

// AudioSink receives synthesized audio units in arrival order.
type AudioSink interface {
	Enqueue(unit *AudioUnit, sourceText string)
}

// ServerChannel is the outbound half of the bidirectional event channel to
// the interview server. Inbound events are delivered to the orchestrator's
// Handle* methods by the channel's read loop.
type ServerChannel interface {
	JoinSession(sessionID string) error
	StartSession() error
	SendUserResponse(text string) error
	Close() error
}

type EventType string

const (
	UserSpeaking      EventType = "USER_SPEAKING"
	UserStopped       EventType = "USER_STOPPED"
	InterimTranscript EventType = "INTERIM_TRANSCRIPT"
	AnswerSent        EventType = "ANSWER_SENT"
	AssistantSpeaking EventType = "ASSISTANT_SPEAKING"
	AssistantText     EventType = "ASSISTANT_TEXT"
	SessionCompleted  EventType = "SESSION_COMPLETED"
	ErrorEvent        EventType = "ERROR"
)

// Event is a UI-facing notification emitted by the orchestrator.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

type Config struct {
	SampleRate   int
	Channels     int
	BytesPerSamp int
	// BatchWordThreshold is the number of whitespace-delimited words that
	// triggers a non-forced flush of the text buffer.
	BatchWordThreshold int
	// ChunkInterval is how often microphone audio frames are shipped to the
	// transcription stream.
	ChunkInterval time.Duration
	// Endpointing is the transcription service's short silence threshold.
	Endpointing time.Duration
	// UtteranceEndWindow is the service's fallback utterance-end timeout.
	UtteranceEndWindow time.Duration
	// CompletedCloseDelay is how long the channel stays open after the
	// server reports the session completed, so final state can render.
	CompletedCloseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:          16000,
		Channels:            1,
		BytesPerSamp:        2,
		BatchWordThreshold:  20,
		ChunkInterval:       250 * time.Millisecond,
		Endpointing:         700 * time.Millisecond,
		UtteranceEndWindow:  1500 * time.Millisecond,
		CompletedCloseDelay: 2 * time.Second,
	}
}
