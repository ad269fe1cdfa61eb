package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"YieldKeeper/internal/advisory"
	"YieldKeeper/internal/logger"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAnswer means the model produced no usable {strategy, reason} object.
var ErrNoAnswer = errors.New("model returned no valid recommendation")

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. baseURL may be empty for the
// public OpenAI API; a trailing /v1 is added when missing.
func NewOpenAICompleter(apiKey, baseURL, model, proxyURL string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = normalizeBaseURL(baseURL)
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	cfg.HTTPClient = &http.Client{Transport: transport}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Chooser asks the model for a recommendation and enforces the response shape.
type Chooser struct {
	Completer Completer
	Timeout   time.Duration
	log       zerolog.Logger
}

// NewChooser creates a Chooser. timeout bounds each model call.
func NewChooser(c Completer, timeout time.Duration) *Chooser {
	return &Chooser{Completer: c, Timeout: timeout, log: logger.For("advisor")}
}

// Choose returns a recommendation with exactly a strategy and a reason.
func (c *Chooser) Choose(ctx context.Context, strategies []advisory.StrategyQuote) (*advisory.ChooseResponse, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	text, err := c.Completer.Complete(ctx, BuildPrompt(strategies))
	if err != nil {
		return nil, err
	}
	obj, ok := ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrNoAnswer, truncate(text, 200))
	}
	rec, err := advisory.DecodeRecommendation(strings.NewReader(obj))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}

	known := false
	for _, st := range strategies {
		if st.Name == rec.Strategy {
			known = true
			break
		}
	}
	if !known {
		// the keeper falls back on unknown names, so pass it through
		c.log.Warn().Str("strategy", rec.Strategy).Msg("model picked a strategy outside the request")
	}
	return &advisory.ChooseResponse{Strategy: rec.Strategy, Reason: rec.Reason}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
