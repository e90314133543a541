package ai

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient is a Runtime backed by the official OpenAI SDK. The SDK
// owns retries; errors are mapped onto this package's typed errors.
type OpenAIClient struct {
	client  openai.Client
	apiKey  string
	baseURL string
}

// NewOpenAIClient builds a client from cfg. An empty APIKey is reported on
// the first request rather than here.
func NewOpenAIClient(cfg RuntimeConfig) *OpenAIClient {
	base := cfg.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.HTTPTimeout))
	}
	if cfg.RetryMax > 0 {
		// RetryMax counts attempts; the SDK counts retries after the first.
		opts = append(opts, option.WithMaxRetries(cfg.RetryMax-1))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), apiKey: cfg.APIKey, baseURL: base}
}

func (c *OpenAIClient) check(req GenerateRequest) error {
	if c.apiKey == "" {
		return &AuthError{APIError: &APIError{StatusCode: http.StatusUnauthorized, Message: "OPENAI_API_KEY is missing"}}
	}
	if req.Model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

func (c *OpenAIClient) params(req GenerateRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		p.Temperature = openai.Float(req.Temperature)
	}
	return p
}

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return nil, c.mapError(err)
	}
	out := &GenerateResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Message: Message{Role: "assistant", Content: ch.Message.Content}})
	}
	return out, nil
}

// GenerateStream streams completion deltas to onDelta.
func (c *OpenAIClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := c.check(req); err != nil {
		return err
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return c.mapError(err)
	}
	return nil
}

// mapError converts SDK errors. openai.Error.Error() dereferences the
// request and response, so only its fields are read here.
func (c *OpenAIClient) mapError(err error) error {
	var sdkErr *openai.Error
	if !errors.As(err, &sdkErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &UnreachableError{Host: c.baseURL, Err: err}
	}
	apiErr := &APIError{
		StatusCode: sdkErr.StatusCode,
		Code:       sdkErr.Code,
		Message:    sdkErr.Message,
		RequestID:  extractRequestID(sdkErr.Response),
	}
	return classifyAPIError(apiErr, sdkErr.Response)
}
