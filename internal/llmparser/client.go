// Package llmparser turns a raw Telegram message into a domain.ParseOutcome
// by calling the Anthropic Messages API. No Anthropic SDK for Go exists in
// the retrieved example corpus, so the HTTP transport is hand-rolled in the
// shape of the teacher's exec/client.go (explicit *http.Client, JSON
// request/response structs, bounded retry loop).
package llmparser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/domain"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
const anthropicVersion = "2023-06-01"

// Config carries the parser's connection and model settings. BaseURL
// defaults to the production Anthropic endpoint; tests override it to
// point at a local stub.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	MaxRetries     int
	RequestTimeout time.Duration
	BaseURL        string
}

// Client calls the Anthropic Messages API to parse one raw message at a
// time, retrying transient failures with exponential backoff, matching the
// original source's SignalParser.parse(message, retries=3).
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicMessagesURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []chatMessage   `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// llmSignalJSON is the shape the system prompt instructs the model to
// return, mirroring original_source/src/parser/models.py's LLMParseResult.
type llmSignalJSON struct {
	IsSignal            bool     `json:"is_signal"`
	SignalType          string   `json:"signal_type"`
	Direction           string   `json:"direction"`
	OriginalDirection   string   `json:"original_direction"`
	Symbol              string   `json:"symbol"`
	EntryPrice          *string  `json:"entry_price"`
	StopLoss            *string  `json:"stop_loss"`
	TakeProfits         []string `json:"take_profits"`
	Confidence          float64  `json:"confidence"`
	Warnings            []string `json:"warnings"`
	RejectionReason     string   `json:"rejection_reason"`
	SuggestedCorrection string   `json:"suggested_correction"`
	LotModifierKind     string   `json:"lot_modifier_kind"`
	LotModifierValue    *string  `json:"lot_modifier_value"`
}

// Parse sends message to the model and maps the JSON reply into a
// domain.ParseOutcome. It never returns an error for a model-side rejection
// — that is represented as ParseOutcome.IsSignal == false. When every
// attempt fails (network, auth, malformed response), Parse also returns a
// rejected outcome ("parser failed: ...") with a nil error, matching the
// original parser's "never raises" contract. The only error return is
// ctx.Err() when the context is cancelled during a retry backoff.
func (c *Client) Parse(ctx context.Context, message string) (domain.ParseOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return domain.ParseOutcome{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		outcome, err := c.attempt(ctx, message)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
	}

	return domain.ParseOutcome{
		IsSignal:        false,
		RejectionReason: fmt.Sprintf("parser failed: %v", lastErr),
	}, nil
}

func (c *Client) attempt(ctx context.Context, message string) (domain.ParseOutcome, error) {
	reqBody := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    signalParserSystemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: message}},
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return domain.ParseOutcome{}, fmt.Errorf("%w: anthropic status %d", domain.ErrUpstreamTransient, resp.StatusCode)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return domain.ParseOutcome{}, fmt.Errorf("anthropic error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return domain.ParseOutcome{}, fmt.Errorf("empty response content")
	}

	return decodeOutcome(cleanJSONResponse(parsed.Content[0].Text))
}

// cleanJSONResponse strips a ```json ... ``` or ``` ... ``` code fence the
// model sometimes wraps its answer in, matching
// original_source/src/parser/llm_parser.py's _clean_json_response.
func cleanJSONResponse(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func decodeOutcome(jsonText string) (domain.ParseOutcome, error) {
	var sig llmSignalJSON
	if err := json.Unmarshal([]byte(jsonText), &sig); err != nil {
		return domain.ParseOutcome{}, fmt.Errorf("decode model json: %w", err)
	}

	if !sig.IsSignal {
		return domain.ParseOutcome{
			IsSignal:        false,
			RejectionReason: sig.RejectionReason,
			Confidence:      decimal.NewFromFloat(sig.Confidence),
		}, nil
	}

	if sig.Symbol == "" || sig.Direction == "" {
		return domain.ParseOutcome{}, fmt.Errorf("model returned is_signal=true missing required fields")
	}

	outcome := domain.ParseOutcome{
		IsSignal:            true,
		SignalType:          domain.SignalType(sig.SignalType),
		Direction:           domain.Direction(sig.Direction),
		OriginalDirection:   domain.Direction(sig.OriginalDirection),
		Symbol:              sig.Symbol,
		Confidence:           decimal.NewFromFloat(sig.Confidence),
		Warnings:            sig.Warnings,
		SuggestedCorrection: sig.SuggestedCorrection,
		LotModifierKind:     sig.LotModifierKind,
	}

	if sig.EntryPrice != nil {
		d, err := decimal.NewFromString(*sig.EntryPrice)
		if err != nil {
			return domain.ParseOutcome{}, fmt.Errorf("parse entry_price: %w", err)
		}
		outcome.Entry = d
	}
	if sig.StopLoss != nil {
		d, err := decimal.NewFromString(*sig.StopLoss)
		if err != nil {
			return domain.ParseOutcome{}, fmt.Errorf("parse stop_loss: %w", err)
		}
		outcome.StopLoss = d
	}
	for _, tp := range sig.TakeProfits {
		d, err := decimal.NewFromString(tp)
		if err != nil {
			return domain.ParseOutcome{}, fmt.Errorf("parse take_profit: %w", err)
		}
		outcome.TakeProfits = append(outcome.TakeProfits, d)
	}
	if sig.LotModifierValue != nil {
		d, err := decimal.NewFromString(*sig.LotModifierValue)
		if err != nil {
			return domain.ParseOutcome{}, fmt.Errorf("parse lot_modifier_value: %w", err)
		}
		outcome.LotModifierValue = d
	}

	return outcome, nil
}
