// Package llm provides a JSON-calling client over a chat-completion API.
// The funnel depends on the funnel.JSONCaller interface; this is the real
// implementation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anatolykoptev/go-kit/llm"
	"github.com/xeipuuv/gojsonschema"

	"github.com/anatolykoptev/go_scout/internal/engine"
)

// Completer is the chat-completion surface the client needs. Satisfied by
// *llm.Client; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, opts ...llm.ChatOption) (string, error)
}

// Config for the JSON client.
type Config struct {
	BaseURL      string
	APIKey       string
	FallbackKeys []string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Client turns chat completions into validated JSON values.
type Client struct {
	chat        Completer
	temperature float64
	maxTokens   int
	metrics     *engine.Metrics
}

// New builds a client over the configured chat API.
func New(cfg Config, metrics *engine.Metrics) *Client {
	opts := []llm.Option{}
	if len(cfg.FallbackKeys) > 0 {
		opts = append(opts, llm.WithFallbackKeys(cfg.FallbackKeys))
	}
	chat := llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, opts...)
	return NewWithCompleter(chat, cfg.Temperature, cfg.MaxTokens, metrics)
}

// NewWithCompleter wires a client over any Completer.
func NewWithCompleter(chat Completer, temperature float64, maxTokens int, metrics *engine.Metrics) *Client {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{chat: chat, temperature: temperature, maxTokens: maxTokens, metrics: metrics}
}

// CallJSON completes a prompt and decodes the answer into out: strict parse
// first, then a salvage pass over the first balanced JSON substring, then
// schema validation when schema is non-empty. Malformed output is not retried
// here; callers own the retry budget.
func (c *Client) CallJSON(ctx context.Context, system, user, schema string, out any) error {
	if c.metrics != nil {
		c.metrics.LLMCalls.Add(1)
	}
	raw, err := c.chat.Complete(ctx, system, user,
		llm.WithChatTemperature(c.temperature),
		llm.WithChatMaxTokens(c.maxTokens),
	)
	if err != nil {
		if c.metrics != nil {
			c.metrics.LLMErrors.Add(1)
		}
		return fmt.Errorf("llm complete: %w", err)
	}

	payload := engine.StripFences(raw)
	if !json.Valid([]byte(payload)) {
		salvaged, ok := engine.SalvageJSON(payload)
		if !ok {
			if c.metrics != nil {
				c.metrics.LLMErrors.Add(1)
			}
			return fmt.Errorf("llm returned non-JSON output (%d bytes)", len(raw))
		}
		payload = salvaged
	}

	if schema != "" {
		result, err := gojsonschema.Validate(
			gojsonschema.NewStringLoader(schema),
			gojsonschema.NewStringLoader(payload),
		)
		if err != nil {
			if c.metrics != nil {
				c.metrics.LLMErrors.Add(1)
			}
			return fmt.Errorf("schema validation: %w", err)
		}
		if !result.Valid() {
			if c.metrics != nil {
				c.metrics.LLMErrors.Add(1)
			}
			return fmt.Errorf("llm output failed schema validation: %v", result.Errors())
		}
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		if c.metrics != nil {
			c.metrics.LLMErrors.Add(1)
		}
		return fmt.Errorf("decode llm output: %w", err)
	}
	return nil
}
