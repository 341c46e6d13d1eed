package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/readaloud-tools/readaloud/internal/config"
)

type openAISynth struct {
	baseURL string
	key     string
	client  *http.Client
}

// NewOpenAISynth returns a Synthesizer backed by an OpenAI-compatible
// /audio/speech endpoint.
func NewOpenAISynth(cfg config.APIConfig) Synthesizer {
	return &openAISynth{
		baseURL: cfg.BaseURL,
		key:     cfg.Key,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

func (o *openAISynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	payload := speechRequest{
		Model:          req.Model,
		Input:          req.Input,
		Voice:          req.Voice,
		ResponseFormat: req.Format,
	}
	// The endpoint treats 1.0 as neutral; omit it entirely.
	if req.Speed != 0 && req.Speed != 1.0 {
		payload.Speed = req.Speed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech api returned status %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech api returned empty audio")
	}
	return audio, nil
}
