// Package llm invokes chat-completion providers on behalf of an agent.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lexdesk/lexagent/internal/model"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 60 * time.Second

// ProviderError reports a failed provider call. Body carries the upstream
// response body verbatim when one was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s error: request timed out", e.Provider)
	case e.Body != "":
		return fmt.Sprintf("%s error: %s", e.Provider, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s error: status %d", e.Provider, e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   *int
}

// Completion is the provider's answer. Usage fields are zero when the
// provider did not report them.
type Completion struct {
	Content string
	Usage   model.TokenUsage
}

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Invoker routes agent invocations to a provider and bounds each call.
type Invoker struct {
	openai    Provider
	anthropic Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewInvoker creates an Invoker. Either provider may be nil; a non-positive timeout
// selects DefaultTimeout. Models prefixed "claude" go to anthropic when it is
// configured, everything else to openai.
func NewInvoker(openai, anthropic Provider, timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{openai: openai, anthropic: anthropic, timeout: timeout, logger: logger}
}

func (i *Invoker) route(modelName string) Provider {
	if i.anthropic != nil && strings.HasPrefix(modelName, "claude") {
		return i.anthropic
	}
	return i.openai
}

// Invoke sends input to the model configured for cfg using cfg's system
// prompt precedence. A non-string input is serialized as JSON.
func (i *Invoker) Invoke(ctx context.Context, cfg model.AgentConfig, input any) (Completion, error) {
	user, err := SerializeInput(input)
	if err != nil {
		return Completion{}, err
	}
	p := i.route(cfg.Model)
	if p == nil {
		return Completion{}, &ProviderError{Provider: "llm", Err: fmt.Errorf("no provider configured for model %q", cfg.Model)}
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	out, err := p.Complete(ctx, Request{
		Model:       cfg.Model,
		System:      SystemPrompt(cfg.Key, cfg.SystemPrompt),
		User:        user,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			pe = &ProviderError{Provider: p.Name(), Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			pe.Timeout = true
		}
		i.logger.Warn("llm: completion failed",
			"provider", p.Name(), "model", cfg.Model, "agent_key", cfg.Key,
			"status", pe.StatusCode, "timeout", pe.Timeout, "error", err)
		return Completion{}, pe
	}

	i.logger.Debug("llm: completion",
		"provider", p.Name(), "model", cfg.Model, "agent_key", cfg.Key,
		"total_tokens", out.Usage.TotalTokens, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// SerializeInput renders an agent input as the user message: strings pass
// through, nil becomes "", raw JSON is kept, anything else is JSON-encoded.
func SerializeInput(input any) (string, error) {
	switch v := input.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("llm: encode input: %w", err)
		}
		return string(b), nil
	}
}
