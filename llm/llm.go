// Package llm wraps the OpenAI client used by the analysis loop, the
// chat and interview workers, and the report summarizer. Callers treat
// Generate as a single atomic call; parameter-incompatibility retries
// happen internally.
package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Turn is one completed question/answer exchange carried as history.
type Turn struct {
	Question string
	Answer   string
}

// Request describes one generation call. Context, labels, transcript
// and history are expected to be pre-capped by the caller.
type Request struct {
	System        string
	ContextLabels []string
	Context       string
	Transcript    string
	History       []Turn
	User          string
	MaxTokens     int64
	Temperature   float64
}

type Client struct {
	api   openai.Client
	model string
}

func New(cfg Config) *Client {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:   openai.NewClient(opts...),
		model: cfg.Model,
	}
}

// Available reports whether generation can be attempted at all.
func (c *Client) Available() bool {
	return c != nil && c.model != ""
}

func formatLabels(labels []string) string {
	var b strings.Builder
	b.WriteString("CONTEXT SOURCES:\n")
	for _, l := range labels {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Client) messages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.System),
	}
	if len(req.ContextLabels) > 0 {
		msgs = append(msgs, openai.SystemMessage(formatLabels(req.ContextLabels)))
	}
	if req.Context != "" {
		msgs = append(msgs, openai.SystemMessage("CONTEXT (truncated):\n"+req.Context))
	}
	if req.Transcript != "" {
		msgs = append(msgs, openai.SystemMessage("RECENT TRANSCRIPT:\n"+req.Transcript))
	}
	for _, turn := range req.History {
		if turn.Question != "" {
			msgs = append(msgs, openai.UserMessage(turn.Question))
		}
		if turn.Answer != "" {
			msgs = append(msgs, openai.AssistantMessage(turn.Answer))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.User))
	return msgs
}

// Generate performs one chat completion. Some models reject max_tokens
// in favor of max_completion_tokens, and some reject any sampling
// temperature; both rejections are retried once with the offending
// parameter swapped or dropped. Other failures return the error
// unmodified. An empty completion returns ("", nil) so callers can
// substitute their placeholder.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !c.Available() {
		return "", nil
	}

	msgs := c.messages(req)
	useCompletionTokens := false
	withTemperature := true

	build := func() openai.ChatCompletionNewParams {
		params := openai.ChatCompletionNewParams{
			Model:    c.model,
			Messages: msgs,
		}
		if useCompletionTokens {
			params.MaxCompletionTokens = openai.Int(req.MaxTokens)
		} else {
			params.MaxTokens = openai.Int(req.MaxTokens)
		}
		if withTemperature {
			params.Temperature = openai.Float(req.Temperature)
		}
		return params
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.api.Chat.Completions.New(ctx, build())
		if err != nil {
			if isTokenParamError(err) && !useCompletionTokens {
				useCompletionTokens = true
				continue
			}
			if isTemperatureError(err) && withTemperature {
				withTemperature = false
				continue
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", nil
}

func isTokenParamError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "max_tokens") &&
		strings.Contains(errStr, "max_completion_tokens")
}

func isTemperatureError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "temperature") &&
		(strings.Contains(errStr, "unsupported") || strings.Contains(errStr, "does not support"))
}
