package llmgateway

import (
	"context"
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicBackend implements backend against the Anthropic Messages API,
// grounded on the request/response shapes used by the ecosystem's
// anthropic-sdk-go adapters.
type anthropicBackend struct {
	client sdk.Client
}

func newAnthropicBackend(apiKey string) *anthropicBackend {
	return &anthropicBackend{client: sdk.NewClient(option.WithAPIKey(apiKey))}
}

func (b *anthropicBackend) complete(ctx context.Context, model string, messages []Message, opts Options) (*ChatResult, error) {
	params, err := buildParams(model, messages, opts)
	if err != nil {
		return nil, err
	}
	msg, err := b.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, err
	}
	return translateMessage(msg), nil
}

func (b *anthropicBackend) stream(ctx context.Context, model string, messages []Message, opts Options, onDelta func(Delta)) (*ChatResult, error) {
	params, err := buildParams(model, messages, opts)
	if err != nil {
		return nil, err
	}
	stream := b.client.Messages.NewStreaming(ctx, *params)
	defer stream.Close()

	result := &ChatResult{Model: model}
	var text []byte
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				text = append(text, delta.Text...)
				if onDelta != nil {
					onDelta(Delta{Text: delta.Text})
				}
			}
		case sdk.MessageDeltaEvent:
			result.Usage.PromptTokens = int(ev.Usage.InputTokens)
			result.Usage.CompletionTokens = int(ev.Usage.OutputTokens)
			result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if onDelta != nil {
		onDelta(Delta{Done: true})
	}
	result.Text = string(text)
	return result, nil
}

func buildParams(model string, messages []Message, opts Options) (*sdk.MessageNewParams, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range messages {
		if m.Role == RoleSystem {
			if m.Text != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Text})
			}
			continue
		}
		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.Images))
		if m.Text != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Text))
		}
		for _, img := range m.Images {
			blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, string(img.Data)))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("llm gateway: at least one user/assistant message is required")
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = sdk.Float(opts.TopP)
	}
	return params, nil
}

func translateMessage(msg *sdk.Message) *ChatResult {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &ChatResult{
		Text:  text,
		Model: string(msg.Model),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// anthropicClassification maps an SDK error to a retryable verdict so
// gateway.go's retry loop can decide whether to spend another attempt.
func anthropicClassification(err error) classification {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPError(apiErr.StatusCode, err)
	}
	return classifyHTTPError(http.StatusInternalServerError, err)
}
