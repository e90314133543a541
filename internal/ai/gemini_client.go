package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient is a Runtime backed by the Google Gen AI SDK.
type GeminiClient struct {
	client *genai.Client
	host   string
}

// NewGeminiClient builds a Gemini API client. A missing key yields a client
// whose calls fail with AuthError, matching the other runtimes.
func NewGeminiClient(cfg RuntimeConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return &GeminiClient{}, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.HTTPTimeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	host := "generativelanguage.googleapis.com"
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
		host = cfg.BaseURL
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, host: host}, nil
}

func (c *GeminiClient) check(req GenerateRequest) error {
	if c.client == nil {
		return &AuthError{APIError: &APIError{StatusCode: http.StatusUnauthorized, Message: "GEMINI_API_KEY is missing"}}
	}
	if req.Model == "" {
		return errors.New("model cannot be empty")
	}
	return nil
}

// contents splits system messages into the system instruction and maps
// the rest onto user and model turns.
func (c *GeminiClient) contents(req GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var system []string
	var turns []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			turns = append(turns, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			turns = append(turns, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	return turns, cfg
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	turns, cfg := c.contents(req)
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, turns, cfg)
	if err != nil {
		return nil, c.mapError(err)
	}
	out := &GenerateResponse{
		ID:      resp.ResponseID,
		Model:   req.Model,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// GenerateStream streams text parts to onDelta.
func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if err := c.check(req); err != nil {
		return err
	}
	turns, cfg := c.contents(req)
	for resp, err := range c.client.Models.GenerateContentStream(ctx, req.Model, turns, cfg) {
		if err != nil {
			return c.mapError(err)
		}
		if t := resp.Text(); t != "" {
			onDelta(t)
		}
	}
	return nil
}

func (c *GeminiClient) mapError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &UnreachableError{Host: c.host, Err: err}
	}
	e := &APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
	if e.StatusCode == http.StatusBadRequest && containsFold(e.Message, "api key") {
		return &AuthError{APIError: e}
	}
	if e.Code == "RESOURCE_EXHAUSTED" && e.StatusCode != http.StatusTooManyRequests {
		return &QuotaExceededError{APIError: e}
	}
	return classifyAPIError(e, nil)
}
