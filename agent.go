// Package vocaprep bundles the realtime interview-practice client pipeline
// behind a small API: microphone capture, live transcription, server text
// streaming, speech synthesis and gapless playback, wired together with
// sensible defaults.
package vocaprep

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/channel"
	"github.com/vocaprep-ai/vocaprep-agent/pkg/pipeline"
)

// AgentOptions configures a client agent. SessionID, ServerURL, Transcriber,
// TTS, Microphone and Player are required; Config and Logger fall back to
// defaults.
type AgentOptions struct {
	SessionID   string
	ServerURL   string
	Transcriber pipeline.LiveTranscriber
	TTS         pipeline.TTSClient
	Microphone  pipeline.Microphone
	Player      pipeline.Player
	Config      pipeline.Config
	Logger      pipeline.Logger
}

// Agent is one end-to-end interview session on the client side.
//
// Example:
//
//	agent, err := vocaprep.NewAgent(opts)
//	if err != nil { ... }
//	if err := agent.Start(ctx); err != nil { ... }
//	for ev := range agent.Events() { ... }
type Agent struct {
	opts    AgentOptions
	session *pipeline.TranscriptionSession
	queue   *pipeline.AudioPlaybackQueue
	buffer  *pipeline.TextChunkBuffer

	mu   sync.Mutex
	orch *pipeline.SessionOrchestrator
}

// NewAgent validates the options and assembles the pipeline. The server
// channel is not dialed until Start.
func NewAgent(opts AgentOptions) (*Agent, error) {
	switch {
	case opts.SessionID == "":
		return nil, fmt.Errorf("session id is required")
	case opts.ServerURL == "":
		return nil, fmt.Errorf("server url is required")
	case opts.Transcriber == nil:
		return nil, fmt.Errorf("transcriber is required")
	case opts.TTS == nil:
		return nil, fmt.Errorf("tts client is required")
	case opts.Microphone == nil:
		return nil, fmt.Errorf("microphone is required")
	case opts.Player == nil:
		return nil, fmt.Errorf("player is required")
	}
	if opts.Logger == nil {
		opts.Logger = &pipeline.NoOpLogger{}
	}
	if opts.Config.SampleRate == 0 {
		opts.Config = pipeline.DefaultConfig()
	}

	a := &Agent{opts: opts}
	a.session = pipeline.NewTranscriptionSession(opts.Microphone, opts.Transcriber, opts.Config, opts.Logger)
	a.queue = pipeline.NewAudioPlaybackQueue(opts.Player, opts.Logger)
	synth := pipeline.NewSpeechSynthesizer(opts.TTS, opts.Logger)
	a.buffer = pipeline.NewTextChunkBuffer(context.Background(), synth, a.queue, opts.Config, opts.Logger)
	return a, nil
}

// Start dials the interview server and begins the session. The server only
// emits events after join_session, so handlers registered here cannot fire
// before the orchestrator exists.
func (a *Agent) Start(ctx context.Context) error {
	ch, err := channel.Dial(ctx, a.opts.ServerURL, channel.Handlers{
		OnTextChunk: func(chunk string) {
			if o := a.orchestrator(); o != nil {
				o.HandleTextChunk(chunk)
			}
		},
		OnTextComplete: func(fullText string) {
			if o := a.orchestrator(); o != nil {
				o.HandleTextComplete(fullText)
			}
		},
		OnSessionCompleted: func(message string, score float64) {
			if o := a.orchestrator(); o != nil {
				o.HandleSessionCompleted(message, score)
			}
		},
		OnError: func(message string) {
			if o := a.orchestrator(); o != nil {
				o.HandleServerError(message)
			}
		},
	}, a.opts.Logger)
	if err != nil {
		return err
	}

	orch := pipeline.NewSessionOrchestrator(a.opts.SessionID, a.session, a.buffer, a.queue, ch, a.opts.Config, a.opts.Logger)
	a.mu.Lock()
	a.orch = orch
	a.mu.Unlock()

	return orch.Start(ctx)
}

// Stop tears the session down. Safe to call before Start or more than once.
func (a *Agent) Stop() {
	if o := a.orchestrator(); o != nil {
		o.Stop()
	}
}

// Events returns the orchestrator's notification stream, or nil before Start.
func (a *Agent) Events() <-chan pipeline.Event {
	if o := a.orchestrator(); o != nil {
		return o.Events()
	}
	return nil
}

// Session exposes the transcription session for observers such as level
// meters.
func (a *Agent) Session() *pipeline.TranscriptionSession {
	return a.session
}

func (a *Agent) orchestrator() *pipeline.SessionOrchestrator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orch
}
