package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/audio"
)

// SpeechSynthesizer converts a text batch into a playable audio unit through
// a TTS client. It enforces no ordering of its own; sequencing is the text
// buffer's job.
type SpeechSynthesizer struct {
	client TTSClient
	logger Logger
}

// NewSpeechSynthesizer wraps a TTS client.
func NewSpeechSynthesizer(client TTSClient, logger Logger) *SpeechSynthesizer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &SpeechSynthesizer{client: client, logger: logger}
}

// Convert synthesizes text into decoded PCM. Empty or whitespace-only text,
// a non-success provider response, and an undecodable audio payload all fail
// with an error wrapping ErrSynthesis.
func (s *SpeechSynthesizer) Convert(ctx context.Context, text string) (*AudioUnit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesis)
	}

	raw, err := s.client.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	pcm, sampleRate, channels, err := audio.DecodeWav(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s payload: %v", ErrSynthesis, s.client.Name(), err)
	}

	s.logger.Debug("batch synthesized", "provider", s.client.Name(), "bytes", len(pcm), "sample_rate", sampleRate)
	return &AudioUnit{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}
