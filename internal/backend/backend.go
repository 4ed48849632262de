// Package backend talks to the inference services behind the engine: one
// endpoint per backend tier, speaking the vLLM completions API, plus a
// mock client for running without GPUs.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mindmesh/mindmesh/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrModelUnavailable means the endpoint refused or failed the request
	// at the transport or HTTP layer.
	ErrModelUnavailable = errors.New("model backend unavailable")

	// ErrInferenceTimeout means the call exceeded its deadline before the
	// backend answered.
	ErrInferenceTimeout = errors.New("inference timed out")
)

// Client is one inference endpoint. Implementations must be safe for
// concurrent use.
type Client interface {
	// Generate runs one completion. The context deadline is the caller's
	// timeout; on expiry the returned error wraps ErrInferenceTimeout.
	Generate(ctx context.Context, req models.InferenceRequest) (*models.InferenceResponse, error)

	// HealthCheck reports whether the endpoint currently answers.
	HealthCheck(ctx context.Context) bool

	Close() error
}

// EndpointConfig describes one backend endpoint.
type EndpointConfig struct {
	Tier      models.BackendTier
	URL       string
	ModelName string

	// MaxTokens is the hard ceiling the model itself supports, distinct
	// from the per-cognitive-tier ceilings enforced upstream.
	MaxTokens int
}

// DefaultEndpointConfigs returns the standard three-endpoint layout for
// local vLLM serving.
func DefaultEndpointConfigs() map[models.BackendTier]EndpointConfig {
	return map[models.BackendTier]EndpointConfig{
		models.BackendSmall: {
			Tier:      models.BackendSmall,
			URL:       "http://localhost:8001",
			ModelName: "Qwen/Qwen2.5-3B-Instruct",
			MaxTokens: 2048,
		},
		models.BackendMedium: {
			Tier:      models.BackendMedium,
			URL:       "http://localhost:8002",
			ModelName: "Qwen/Qwen2.5-7B-Instruct",
			MaxTokens: 4096,
		},
		models.BackendLarge: {
			Tier:      models.BackendLarge,
			URL:       "http://localhost:8003",
			ModelName: "Qwen/Qwen2.5-14B-Instruct",
			MaxTokens: 8192,
		},
	}
}

// HTTPClient calls a vLLM-compatible completions endpoint.
type HTTPClient struct {
	cfg  EndpointConfig
	http *http.Client
}

// NewHTTPClient builds a client for one endpoint, sharing the given
// http.Client across calls. A nil httpClient gets a default with sane
// connection pooling.
func NewHTTPClient(cfg EndpointConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		}
	}
	return &HTTPClient{cfg: cfg, http: httpClient}
}

type completionPayload struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

type completionResult struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) Generate(ctx context.Context, req models.InferenceRequest) (*models.InferenceResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens > c.cfg.MaxTokens {
		maxTokens = c.cfg.MaxTokens
	}
	topP := req.TopP
	if topP == 0 {
		topP = 0.95
	}
	stop := req.Stop
	if stop == nil {
		stop = []string{}
	}

	body, err := json.Marshal(completionPayload{
		Model:       c.cfg.ModelName,
		Prompt:      req.Prompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        topP,
		Stop:        stop,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s after %s", ErrInferenceTimeout, c.cfg.Tier, time.Since(start))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, c.cfg.Tier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrModelUnavailable, c.cfg.Tier, resp.StatusCode)
	}

	var result completionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %v", ErrModelUnavailable, c.cfg.Tier, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", ErrModelUnavailable, c.cfg.Tier)
	}

	return &models.InferenceResponse{
		Text:             result.Choices[0].Text,
		ModelUsed:        c.cfg.ModelName,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		Latency:          time.Since(start),
		Backend:          c.cfg.Tier,
	}, nil
}

func (c *HTTPClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Str("tier", string(c.cfg.Tier)).Err(err).Msg("health check failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
