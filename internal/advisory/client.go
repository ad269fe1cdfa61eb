package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"YieldKeeper/internal/logger"
	"YieldKeeper/internal/model"

	"github.com/rs/zerolog"
)

const maxResponseBytes = 1 << 20

// StrategyQuote is one entry of the request body sent to POST /choose.
type StrategyQuote struct {
	Name string  `json:"name"`
	APY  float64 `json:"apy"`
}

// ChooseRequest is the body of POST /choose.
type ChooseRequest struct {
	Strategies []StrategyQuote `json:"strategies"`
}

// ChooseResponse is the only accepted response shape.
type ChooseResponse struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Client asks the advisory service which strategy to use.
type Client struct {
	URL     string
	Timeout time.Duration
	HTTP    *http.Client
	log     zerolog.Logger
}

// NewClient creates an advisory client with optional proxy support.
func NewClient(endpoint string, timeout time.Duration, proxyURL string) *Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Client{
		URL:     endpoint,
		Timeout: timeout,
		HTTP:    &http.Client{Transport: transport},
		log:     logger.For("advisory"),
	}
}

// NewChooseRequest builds the request body for a snapshot.
func NewChooseRequest(snap *model.Snapshot) ChooseRequest {
	req := ChooseRequest{Strategies: make([]StrategyQuote, 0, snap.Len())}
	if snap == nil {
		return req
	}
	for _, st := range snap.Strategies {
		req.Strategies = append(req.Strategies, StrategyQuote{Name: st.Name, APY: st.APY.InexactFloat64()})
	}
	return req
}

// Recommend sends the snapshot to the advisory service. Errors are always
// *TimeoutError or *UnavailableError.
func (c *Client) Recommend(ctx context.Context, snap *model.Snapshot) (*model.Recommendation, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(NewChooseRequest(snap))
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, c.classify(fmt.Errorf("post %s: %w", c.URL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{Err: fmt.Errorf("status %d, body: %s", resp.StatusCode, string(snippet))}
	}

	rec, err := DecodeRecommendation(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classify(err)
	}

	c.log.Debug().Str("strategy", rec.Strategy).Dur("took", time.Since(start)).Msg("advisory answered")
	return rec, nil
}

func (c *Client) classify(err error) error {
	if isTimeout(err) {
		return &TimeoutError{Timeout: c.Timeout, Err: err}
	}
	return &UnavailableError{Err: err}
}

// DecodeRecommendation parses a response body that must be exactly
// {"strategy": string, "reason": string}. Unknown fields, missing fields,
// wrong types and trailing data are all rejected.
func DecodeRecommendation(r io.Reader) (*model.Recommendation, error) {
	var raw struct {
		Strategy *string `json:"strategy"`
		Reason   *string `json:"reason"`
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode response: trailing data after JSON object")
	}
	if raw.Strategy == nil {
		return nil, errors.New("decode response: missing field \"strategy\"")
	}
	if raw.Reason == nil {
		return nil, errors.New("decode response: missing field \"reason\"")
	}
	if *raw.Strategy == "" {
		return nil, errors.New("decode response: empty \"strategy\"")
	}
	return &model.Recommendation{Strategy: *raw.Strategy, Reason: *raw.Reason}, nil
}
