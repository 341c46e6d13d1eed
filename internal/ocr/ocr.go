// Package ocr extracts text from images through a remote vision-capable
// chat-completions endpoint.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/readaloud-tools/readaloud/internal/config"
)

// Reader turns an image file into extracted text.
type Reader interface {
	ReadImage(ctx context.Context, path string) (string, error)
}

type visionReader struct {
	baseURL   string
	key       string
	model     string
	prompt    string
	maxTokens int
	client    *http.Client
}

// NewVisionReader returns a Reader backed by an OpenAI-compatible
// /chat/completions endpoint with image input.
func NewVisionReader(api config.APIConfig, cfg config.OCRConfig) Reader {
	return &visionReader{
		baseURL:   api.BaseURL,
		key:       api.Key,
		model:     cfg.Model,
		prompt:    cfg.Prompt,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: time.Duration(api.TimeoutMS) * time.Millisecond},
	}
}

type visionContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type visionMessage struct {
	Role    string          `json:"role"`
	Content []visionContent `json:"content"`
}

type visionRequest struct {
	Model     string          `json:"model"`
	Messages  []visionMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (v *visionReader) ReadImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := mimeForExt(filepath.Ext(path))
	if mime == "" {
		return "", fmt.Errorf("unsupported image type: %s", path)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	payload := visionRequest{
		Model: v.model,
		Messages: []visionMessage{{
			Role: "user",
			Content: []visionContent{
				{Type: "text", Text: v.prompt},
				{Type: "image_url", ImageURL: &struct {
					URL string `json:"url"`
				}{URL: dataURL}},
			},
		}},
		MaxTokens: v.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+v.key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("vision api returned status %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vision api returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
