// Package refine implements the optional LLM enhancement layer over the
// rule-based policy. The client is best-effort by contract: every failure
// surfaces as an error so the caller falls back to deterministic rules.
package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
)

// Config configures the OpenAI-compatible chat completions client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns defaults suitable for the public OpenAI endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		MaxTokens:   512,
		Timeout:     20 * time.Second,
	}
}

// Client calls an OpenAI-compatible chat completions endpoint and parses the
// structured verdict out of the response.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ domain.Refiner = (*Client)(nil)

// NewClient creates a refinement client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "refiner")),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// verdict is the JSON shape the model is instructed to emit.
type verdict struct {
	Signal     string  `json:"signal"`
	Confidence int     `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Entry      float64 `json:"entry,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

const systemPrompt = `You are an order book microstructure analyst. Given derived liquidity metrics you answer with a single JSON object and nothing else: {"signal":"BUY|SELL|NEUTRAL","confidence":0-100,"reasoning":"...","entry":0,"stop_loss":0,"take_profit":0}. Omit price fields you cannot justify.`

// Refine asks the model for a verdict over the metrics block.
func (c *Client) Refine(ctx context.Context, instrument domain.Instrument, m *domain.Metrics, sanity domain.SanityResult) (domain.Refinement, error) {
	prompt, err := buildPrompt(instrument, m, sanity)
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: build prompt: %w", instrument, err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: marshal request: %w", instrument, err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: build request: %w", instrument, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: %w", instrument, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: read response: %w", instrument, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Refinement{}, fmt.Errorf("refine %s: status %d: %s", instrument, resp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: decode response: %w", instrument, err)
	}
	if chat.Error != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: api error: %s", instrument, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return domain.Refinement{}, fmt.Errorf("refine %s: empty choices", instrument)
	}

	ref, err := ParseVerdict(chat.Choices[0].Message.Content)
	if err != nil {
		return domain.Refinement{}, fmt.Errorf("refine %s: %w", instrument, err)
	}

	c.logger.Debug("refinement received",
		slog.String("instrument", instrument.String()),
		slog.String("signal", string(ref.Signal)),
		slog.Int("confidence", ref.Confidence),
	)
	return ref, nil
}

// ParseVerdict extracts the structured verdict from the model's reply,
// tolerating markdown code fences around the JSON object.
func ParseVerdict(content string) (domain.Refinement, error) {
	content = stripFences(content)

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return domain.Refinement{}, fmt.Errorf("unparseable verdict: %w", err)
	}

	sig := domain.Signal(strings.ToUpper(strings.TrimSpace(v.Signal)))
	switch sig {
	case domain.SignalBuy, domain.SignalSell, domain.SignalNeutral:
	default:
		return domain.Refinement{}, fmt.Errorf("unparseable verdict: unknown signal %q", v.Signal)
	}

	return domain.Refinement{
		Signal:     sig,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
		Entry:      v.Entry,
		StopLoss:   v.StopLoss,
		TakeProfit: v.TakeProfit,
	}, nil
}

func buildPrompt(instrument domain.Instrument, m *domain.Metrics, sanity domain.SanityResult) (string, error) {
	snapshot := map[string]any{
		"instrument":       instrument,
		"mid_price":        m.MidPrice,
		"spread_percent":   m.SpreadPercent,
		"bid_depth":        m.BidDepth,
		"ask_depth":        m.AskDepth,
		"bid_ask_ratio":    m.BidAskRatio,
		"liquidity_score":  m.LiquidityScore,
		"support_zones":    m.SupportZones,
		"resistance_zones": m.ResistanceZones,
		"gaps":             m.Gaps,
		"large_bids":       m.LargeBids,
		"large_asks":       m.LargeAsks,
		"sanity_ok":        sanity.OK,
	}
	if !sanity.OK {
		snapshot["sanity_reason"] = sanity.Reason
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return "Derived order book metrics:\n" + string(encoded), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
