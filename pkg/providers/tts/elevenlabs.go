package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vocaprep-ai/vocaprep-agent/pkg/audio"
)

// ElevenLabs converts text to speech through the ElevenLabs API. The API
// returns raw PCM, which is wrapped into a WAV container so all TTS clients
// hand back the same payload shape.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	sampleRate int
	httpc      *http.Client
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:     apiKey,
		voiceID:    voiceID,
		modelID:    "eleven_multilingual_v2",
		baseURL:    "https://api.elevenlabs.io",
		sampleRate: 24000,
		httpc:      http.DefaultClient,
	}
}

func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d", e.baseURL, e.voiceID, e.sampleRate)

	payload := map[string]interface{}{
		"text":     text,
		"model_id": e.modelID,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs error (status %d): %s", resp.StatusCode, string(respBody))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return audio.NewWavBuffer(pcm, e.sampleRate, 1), nil
}
