package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/stellarlinkco/digestbot/internal/config"
)

// Completer is the one completion call the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
}

// CompleterSource resolves a Completer per request, so a misconfigured
// provider surfaces as a completion failure instead of a startup error.
type CompleterSource func(ctx context.Context) (Completer, error)

// Static wraps a ready Completer.
func Static(c Completer) CompleterSource {
	return func(context.Context) (Completer, error) {
		return c, nil
	}
}

// NewSource builds the completer selected in cfg. A summary is exactly one
// HTTP request: SDK retries are switched off and failures go straight back
// to the caller.
func NewSource(cfg *config.Config) CompleterSource {
	providerType := cfg.Provider.Type
	if providerType == "" {
		providerType = config.DefaultProviderType
	}
	apiKey := strings.TrimSpace(cfg.Provider.APIKey)
	baseURL := strings.TrimSpace(cfg.Provider.BaseURL)
	modelName := cfg.Summary.Model
	maxTokens := cfg.Summary.MaxTokens

	return func(context.Context) (Completer, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("%s: api key required", providerType)
		}
		switch providerType {
		case "anthropic":
			opts := []anthropicopt.RequestOption{
				anthropicopt.WithAPIKey(apiKey),
				anthropicopt.WithMaxRetries(0),
			}
			if baseURL != "" {
				opts = append(opts, anthropicopt.WithBaseURL(baseURL))
			}
			return &anthropicCompleter{
				client:    anthropic.NewClient(opts...),
				model:     modelName,
				maxTokens: maxTokens,
			}, nil
		default: // "openai"
			opts := []openaiopt.RequestOption{
				openaiopt.WithAPIKey(apiKey),
				openaiopt.WithMaxRetries(0),
			}
			if baseURL != "" {
				opts = append(opts, openaiopt.WithBaseURL(baseURL))
			}
			return &openAICompleter{
				client:    openai.NewClient(opts...),
				model:     modelName,
				maxTokens: maxTokens,
			}, nil
		}
	}
}

type openAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int
}

func (c *openAICompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(pick(req.Model, c.model)),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(pickTokens(req.MaxTokens, c.maxTokens))),
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: completion has no choices")
	}
	choice := completion.Choices[0]
	return &model.Response{
		Message:    model.Message{Role: "assistant", Content: choice.Message.Content},
		StopReason: choice.FinishReason,
	}, nil
}

type anthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func (c *anthropicCompleter) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(pick(req.Model, c.model)),
		MaxTokens: int64(pickTokens(req.MaxTokens, c.maxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &model.Response{
		Message:    model.Message{Role: "assistant", Content: sb.String()},
		StopReason: string(msg.StopReason),
	}, nil
}

func pick(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func pickTokens(n, fallback int) int {
	if n > 0 {
		return n
	}
	if fallback > 0 {
		return fallback
	}
	return config.DefaultMaxTokens
}
