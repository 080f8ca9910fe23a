package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	gws "github.com/gorilla/websocket"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/pipeline"
)

// Deepgram opens live transcription streams against the Deepgram listening
// API: continuous recognition with interim results, punctuation, short
// silence endpointing (fast path) and a longer utterance-end fallback window.
type Deepgram struct {
	apiKey string
	model  string
	url    string
	logger pipeline.Logger
}

func NewDeepgram(apiKey string, logger pipeline.Logger) *Deepgram {
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}
	return &Deepgram{
		apiKey: apiKey,
		model:  "nova-2",
		url:    "wss://api.deepgram.com/v1/listen",
		logger: logger,
	}
}

func (d *Deepgram) Name() string {
	return "deepgram-live"
}

func (d *Deepgram) Connect(ctx context.Context, opts pipeline.LiveOptions, handlers pipeline.LiveHandlers) (pipeline.LiveStream, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, err
	}

	params := u.Query()
	params.Set("model", d.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	params.Set("channels", strconv.Itoa(opts.Channels))
	if opts.Punctuate {
		params.Set("punctuate", "true")
	}
	if opts.InterimResults {
		params.Set("interim_results", "true")
	}
	if opts.Endpointing > 0 {
		params.Set("endpointing", strconv.Itoa(int(opts.Endpointing.Milliseconds())))
	}
	if opts.UtteranceEndWindow > 0 {
		params.Set("utterance_end_ms", strconv.Itoa(int(opts.UtteranceEndWindow.Milliseconds())))
	}
	u.RawQuery = params.Encode()

	header := http.Header{"Authorization": {"Token " + d.apiKey}}
	conn, resp, err := gws.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram dial failed: %w", err)
	}

	s := &liveStream{conn: conn, handlers: handlers, logger: d.logger}
	go s.readLoop()
	return s, nil
}

type liveStream struct {
	conn     *gws.Conn
	handlers pipeline.LiveHandlers
	logger   pipeline.Logger

	mu     sync.Mutex
	closed bool
}

func (s *liveStream) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("transcription stream is closed")
	}
	return s.conn.WriteMessage(gws.BinaryMessage, pcm)
}

func (s *liveStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	// Ask the service to flush pending results before dropping the socket.
	_ = s.conn.WriteMessage(gws.TextMessage, []byte(`{"type":"CloseStream"}`))
	return s.conn.Close()
}

func (s *liveStream) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("transcription stream read failed", "error", err)
			}
			return
		}
		s.handleMessage(message)
	}
}

// deepgramMessage covers the union of live API message shapes we handle.
type deepgramMessage struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	LastWordEnd float64 `json:"last_word_end"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// handleMessage parses one inbound frame. Malformed messages are logged and
// dropped; they never take down the stream.
func (s *liveStream) handleMessage(data []byte) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("dropping malformed transcription message", "error", err)
		return
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			// Silence results carry empty transcripts; not speech events.
			return
		}
		if s.handlers.OnTranscript != nil {
			s.handlers.OnTranscript(pipeline.TranscriptEvent{
				Text:        text,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
			})
		}
	case "UtteranceEnd":
		if s.handlers.OnUtteranceEnd != nil {
			s.handlers.OnUtteranceEnd(pipeline.UtteranceEndEvent{LastWordEnd: msg.LastWordEnd})
		}
	case "Metadata", "SpeechStarted":
		// Informational only.
	default:
		s.logger.Debug("ignoring transcription message", "type", msg.Type)
	}
}
