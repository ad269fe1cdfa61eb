package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"YieldKeeper/internal/advisory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

var quotes = []advisory.StrategyQuote{{Name: "AlphaYield", APY: 5.2}, {Name: "BetaBoost", APY: 7.5}}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(quotes)
	assert.Contains(t, p, "- AlphaYield: 5.2% APY\n- BetaBoost: 7.5% APY\n")
	assert.Contains(t, p, "Risk profile: moderate")
	assert.Contains(t, p, `{"strategy": "<name>", "reason": "<explanation>"}`)
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"bare":   {`{"a":1}`, `{"a":1}`, true},
		"fenced": {"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		"prose":  {`Sure! {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, true},
		"none":   {`no json here`, "", false},
		"order":  {`} {`, "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChoose(t *testing.T) {
	cases := map[string]struct {
		completion string
		err        error
		want       *advisory.ChooseResponse
		wantErr    bool
	}{
		"clean":         {completion: `{"strategy":"BetaBoost","reason":"highest APY"}`, want: &advisory.ChooseResponse{Strategy: "BetaBoost", Reason: "highest APY"}},
		"wrapped":       {completion: "Here you go:\n```json\n{\"strategy\":\"AlphaYield\",\"reason\":\"safer\"}\n```", want: &advisory.ChooseResponse{Strategy: "AlphaYield", Reason: "safer"}},
		"unknown name":  {completion: `{"strategy":"Other","reason":"x"}`, want: &advisory.ChooseResponse{Strategy: "Other", Reason: "x"}},
		"extra key":     {completion: `{"strategy":"BetaBoost","reason":"x","risk":"low"}`, wantErr: true},
		"missing key":   {completion: `{"strategy":"BetaBoost"}`, wantErr: true},
		"no json":       {completion: `I recommend BetaBoost.`, wantErr: true},
		"model failure": {err: errors.New("429 rate limited"), wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := &mockCompleter{}
			m.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
				return strings.Contains(p, "BetaBoost: 7.5% APY")
			})).Return(tc.completion, tc.err)

			got, err := NewChooser(m, time.Second).Choose(context.Background(), quotes)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestChoose_AppliesTimeout(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})
	_, err := NewChooser(m, 50*time.Millisecond).Choose(context.Background(), quotes)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/choose", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Choose(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return(`{"strategy":"BetaBoost","reason":"best"}`, nil)
	h := NewServer(NewChooser(m, time.Second)).Handler(nil)

	w := post(t, h, `{"strategies":[{"name":"AlphaYield","apy":5.2},{"name":"BetaBoost","apy":7.5}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	// the keeper's strict decoder must accept what the server emits
	rec, err := advisory.DecodeRecommendation(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "BetaBoost", rec.Strategy)
	assert.Equal(t, "best", rec.Reason)
}

func TestServer_ModelErrorIs502(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return("not json at all", nil)
	h := NewServer(NewChooser(m, time.Second)).Handler(nil)

	w := post(t, h, `{"strategies":[{"name":"AlphaYield","apy":5.2}]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "AI service error"}, body)
}

func TestServer_BadRequests(t *testing.T) {
	m := &mockCompleter{}
	h := NewServer(NewChooser(m, time.Second)).Handler(nil)

	for name, body := range map[string]string{
		"not json":   `strategies`,
		"empty list": `{"strategies":[]}`,
		"no name":    `{"strategies":[{"name":" ","apy":1}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, post(t, h, body).Code)
		})
	}
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestServer_HealthAndCORS(t *testing.T) {
	h := NewServer(NewChooser(&mockCompleter{}, time.Second)).Handler([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/choose", nil)
	pre.Header.Set("Origin", "http://evil.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, pre)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1", normalizeBaseURL("https://api.example.com/"))
	assert.Equal(t, "https://api.example.com/v1", normalizeBaseURL("https://api.example.com/v1"))
}
