package backend

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mindmesh/mindmesh/pkg/models"
)

// MockConfig controls simulated behavior of a MockClient.
type MockConfig struct {
	// MinLatency and MaxLatency bound the simulated per-call latency.
	MinLatency time.Duration
	MaxLatency time.Duration

	// FailureRate in [0,1] is the probability a call errors.
	FailureRate float64

	// Healthy controls what HealthCheck reports.
	Healthy bool

	// TokensPerWord approximates usage accounting.
	TokensPerWord float64

	// FixedResponse, when set, is returned verbatim instead of a
	// template. Useful for deterministic tests.
	FixedResponse string

	// Seed fixes the RNG for reproducible tests. Zero seeds from the clock.
	Seed int64
}

// DefaultMockConfig simulates a fast, healthy endpoint.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		MinLatency:    5 * time.Millisecond,
		MaxLatency:    20 * time.Millisecond,
		Healthy:       true,
		TokensPerWord: 1.3,
	}
}

var mockResponses = map[models.BackendTier][]string{
	models.BackendSmall: {
		"I understand. Let me help with that.",
		"Here's a quick thought on this matter.",
		"Based on my understanding, the answer is straightforward.",
	},
	models.BackendMedium: {
		"This is an interesting question that requires some consideration. Let me break it down step by step.",
		"I've analyzed this carefully. Here's what I think is most relevant to your situation.",
		"There are several factors to consider here. Let me walk you through the key points.",
	},
	models.BackendLarge: {
		"This is a complex topic that warrants thorough analysis. Let me provide a comprehensive breakdown of the key considerations, potential approaches, and my recommended path forward. First, we need to understand the underlying context.",
		"I'll provide a detailed response that covers the foundations, practical implications, and actionable recommendations. Let's start with the fundamentals.",
		"This requires careful consideration of multiple factors. I'll structure my response to address the immediate concerns, broader implications, and strategic recommendations.",
	},
}

// MockClient simulates an inference endpoint for development and tests.
// Behavior is controllable at runtime: latency, error injection, and
// reported health can all change while the engine runs.
type MockClient struct {
	tier models.BackendTier

	mu     sync.Mutex
	cfg    MockConfig
	rng    *rand.Rand
	calls  int
	tokens int64
}

// NewMockClient builds a mock endpoint for one backend tier.
func NewMockClient(tier models.BackendTier, cfg MockConfig) *MockClient {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockClient{
		tier: tier,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SetHealthy flips the reported health, for fault-injection tests.
func (c *MockClient) SetHealthy(healthy bool) {
	c.mu.Lock()
	c.cfg.Healthy = healthy
	c.mu.Unlock()
}

// SetFixedResponse pins the response text for deterministic tests.
func (c *MockClient) SetFixedResponse(text string) {
	c.mu.Lock()
	c.cfg.FixedResponse = text
	c.mu.Unlock()
}

// SetFailureRate adjusts the per-call error probability.
func (c *MockClient) SetFailureRate(rate float64) {
	c.mu.Lock()
	c.cfg.FailureRate = rate
	c.mu.Unlock()
}

// CallCount reports how many Generate calls this client has served.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *MockClient) Generate(ctx context.Context, req models.InferenceRequest) (*models.InferenceResponse, error) {
	c.mu.Lock()
	c.calls++
	cfg := c.cfg
	delay := cfg.MinLatency
	if span := cfg.MaxLatency - cfg.MinLatency; span > 0 {
		delay += time.Duration(c.rng.Int63n(int64(span)))
	}
	fail := cfg.FailureRate > 0 && c.rng.Float64() < cfg.FailureRate
	pick := 0
	if n := len(mockResponses[c.tier]); n > 0 {
		pick = c.rng.Intn(n)
	}
	c.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: mock %s", ErrInferenceTimeout, c.tier)
	}

	if fail {
		return nil, fmt.Errorf("%w: mock %s injected failure", ErrModelUnavailable, c.tier)
	}

	text := cfg.FixedResponse
	if text == "" {
		text = mockResponses[c.tier][pick]
	}
	promptTokens := estimateTokens(req.Prompt, cfg.TokensPerWord)
	completionTokens := estimateTokens(text, cfg.TokensPerWord)
	if completionTokens > req.MaxTokens && req.MaxTokens > 0 {
		completionTokens = req.MaxTokens
	}

	c.mu.Lock()
	c.tokens += int64(promptTokens + completionTokens)
	c.mu.Unlock()

	return &models.InferenceResponse{
		Text:             text,
		ModelUsed:        fmt.Sprintf("mock-%s", c.tier),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Latency:          delay,
		Backend:          c.tier,
	}, nil
}

func estimateTokens(text string, tokensPerWord float64) int {
	words := len(strings.Fields(text))
	tokens := int(float64(words) * tokensPerWord)
	if tokens == 0 && words > 0 {
		tokens = 1
	}
	return tokens
}

func (c *MockClient) HealthCheck(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Healthy
}

func (c *MockClient) Close() error { return nil }
