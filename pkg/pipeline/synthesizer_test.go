package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/audio"
)

type MockTTSClient struct {
	result   []byte
	err      error
	requests []string
}

func (m *MockTTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	m.requests = append(m.requests, text)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *MockTTSClient) Name() string {
	return "MockTTS"
}

func TestConvertDecodesProviderAudio(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x00, 0x40, 0x00}
	client := &MockTTSClient{result: audio.NewWavBuffer(pcm, 24000, 1)}
	s := NewSpeechSynthesizer(client, nil)

	unit, err := s.Convert(context.Background(), "hello candidate")
	if err != nil {
		t.Fatalf("Expected conversion to succeed, got %v", err)
	}
	if !bytes.Equal(unit.PCM, pcm) {
		t.Errorf("Expected decoded PCM %v, got %v", pcm, unit.PCM)
	}
	if unit.SampleRate != 24000 || unit.Channels != 1 {
		t.Errorf("Expected 24kHz mono unit, got %d/%d", unit.SampleRate, unit.Channels)
	}
	if len(client.requests) != 1 || client.requests[0] != "hello candidate" {
		t.Errorf("Expected one synthesis request, got %v", client.requests)
	}
}

func TestConvertRejectsEmptyText(t *testing.T) {
	client := &MockTTSClient{}
	s := NewSpeechSynthesizer(client, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Convert(context.Background(), text); !errors.Is(err, ErrSynthesis) {
			t.Errorf("Expected ErrSynthesis for %q, got %v", text, err)
		}
	}
	if len(client.requests) != 0 {
		t.Errorf("Expected no provider calls for empty text, got %v", client.requests)
	}
}

func TestConvertWrapsProviderFailure(t *testing.T) {
	client := &MockTTSClient{err: fmt.Errorf("quota exceeded")}
	s := NewSpeechSynthesizer(client, nil)

	_, err := s.Convert(context.Background(), "some text")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis, got %v", err)
	}
}

func TestConvertRejectsUndecodablePayload(t *testing.T) {
	client := &MockTTSClient{result: []byte("not a wav file")}
	s := NewSpeechSynthesizer(client, nil)

	_, err := s.Convert(context.Background(), "some text")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis for bad payload, got %v", err)
	}
}
