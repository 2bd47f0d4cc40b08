package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// OllamaOptions configures the Ollama client.
type OllamaOptions struct {
	Host            string
	Temperature     float64
	MaxOutputTokens int
	Language        string
	PromptCharCap   int
}

// Ollama calls the /api/generate endpoint of an Ollama server. One request
// per call: no retry, no streaming.
type Ollama struct {
	opts   OllamaOptions
	client *http.Client
	logger zerolog.Logger
}

// NewOllama creates an Ollama client. The per-call deadline comes from the
// Request, so the HTTP client itself carries no timeout.
func NewOllama(opts OllamaOptions, logger zerolog.Logger) *Ollama {
	opts.Host = strings.TrimSuffix(opts.Host, "/")
	return &Ollama{
		opts:   opts,
		logger: logger,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize sends the templated prompt and classifies the result.
func (c *Ollama) Summarize(ctx context.Context, req Request) Outcome {
	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: BuildPrompt(req.Target, c.opts.Language, req.Logs, c.opts.PromptCharCap),
		Stream: false,
		Options: generateOptions{
			Temperature: c.opts.Temperature,
			NumPredict:  c.opts.MaxOutputTokens,
		},
	})
	if err != nil {
		return Degraded(ReasonTransport, fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Degraded(ReasonTransport, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return c.transportFailure(req, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Degraded(ReasonBadStatus, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if isTimeout(err) {
			return c.transportFailure(req, err)
		}
		return Degraded(ReasonInvalidResponse, fmt.Sprintf("decode response: %v", err))
	}

	if strings.TrimSpace(out.Response) == "" {
		return Degraded(ReasonEmptyResponse, "empty response")
	}

	c.logger.Debug().
		Str("target", req.Target).
		Str("model", req.Model).
		Dur("latency", time.Since(start)).
		Int("chars", len(out.Response)).
		Msg("analysis received")

	return Success(out.Response)
}

func (c *Ollama) transportFailure(req Request, err error) Outcome {
	if isTimeout(err) {
		return Degraded(ReasonTimeout, fmt.Sprintf("timeout reached after %s waiting for the inference backend", req.Timeout))
	}
	return Degraded(ReasonTransport, fmt.Sprintf("error calling the inference backend: %v", err))
}

// Ping checks the backend answers GET /api/tags.
func (c *Ollama) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
