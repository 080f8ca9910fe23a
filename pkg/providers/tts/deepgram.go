package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Deepgram converts text to speech through the Deepgram speak REST API,
// returning WAV-containerized 16-bit PCM.
type Deepgram struct {
	apiKey     string
	model      string
	url        string
	sampleRate int
	httpc      *http.Client
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey:     apiKey,
		model:      "aura-asteria-en",
		url:        "https://api.deepgram.com/v1/speak",
		sampleRate: 24000,
		httpc:      http.DefaultClient,
	}
}

func (d *Deepgram) Name() string {
	return "deepgram-speak"
}

func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("model", d.model)
	params.Set("encoding", "linear16")
	params.Set("container", "wav")
	params.Set("sample_rate", strconv.Itoa(d.sampleRate))
	u.RawQuery = params.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram speak error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return io.ReadAll(resp.Body)
}
