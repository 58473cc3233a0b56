package cohere

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"

	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
)

// Config for the Cohere chat client.
type Config struct {
	APIKey      string // if empty, falls back to env COHERE_API_KEY
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client implements llm.Provider on top of the Cohere chat endpoint.
type Client struct {
	cfg    Config
	client *cohereclient.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("COHERE_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "command-r"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	return &Client{cfg: cfg, client: client, logger: logger}
}

func (c *Client) Name() string { return "cohere" }

// Complete sends the prompt as a single chat turn with the system text as preamble.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	start := time.Now()
	model := c.cfg.Model
	preamble := p.System
	temp := c.cfg.Temperature

	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message:     p.User,
		Model:       &model,
		Preamble:    &preamble,
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("llm.cohere.api_error",
				"status", apiErr.StatusCode,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return "", &llm.ProviderError{Provider: c.Name(), StatusCode: apiErr.StatusCode, Body: err.Error()}
		}
		return "", fmt.Errorf("cohere chat error: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("cohere chat returned empty text: %w", llm.ErrMalformedResponse)
	}

	c.logger.Info("llm.cohere.response",
		"model", model,
		"bytes", len(resp.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(resp.Text), nil
}
