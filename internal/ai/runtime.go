package ai

import "context"

// Runtime is implemented by the LLM backends. It aligns to the shared
// request/response types in this package.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used for selection.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

// StreamRuntime is an optional extension that supports streaming output.
// Implementors invoke onDelta with each partial content chunk.
type StreamRuntime interface {
	GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error
}

// Collect runs a streaming request and assembles the full response.
func Collect(ctx context.Context, rt StreamRuntime, req GenerateRequest, onDelta func(string)) (*GenerateResponse, error) {
	var text []byte
	err := rt.GenerateStream(ctx, req, func(d string) {
		text = append(text, d...)
		if onDelta != nil {
			onDelta(d)
		}
	})
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{
		Model:   req.Model,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: string(text)}}},
	}, nil
}
