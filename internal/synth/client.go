// Package synth talks to the speech synthesis service and keeps the
// rendered audio assets the switch plays into calls.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxAudioBytes = 32 << 20

// Synthesizer renders text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Client calls the HTTP synthesis endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewClientWithHTTP(url, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP uses a caller-provided HTTP client.
func NewClientWithHTTP(url string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{url: url, httpClient: httpClient, log: logger.Named("synth")}
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis service returned no audio")
	}

	c.log.Debug("Synthesized audio",
		zap.Int("chars", len(text)),
		zap.String("voice", voice),
		zap.Int("bytes", len(audio)),
		zap.Duration("took", time.Since(start)))
	return audio, nil
}
