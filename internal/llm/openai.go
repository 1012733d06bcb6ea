package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is an LLM backend using the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a new OpenAI client.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	config := openai.DefaultConfig(apiKey)
	return &OpenAI{client: openai.NewClientWithConfig(config), model: model}, nil
}

// Generate produces the complete answer for a prompt.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content with openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream produces the answer incrementally over a channel.
func (o *OpenAI) GenerateStream(ctx context.Context, prompt string) (<-chan string, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start openai stream: %w", err)
	}

	deltaChan := make(chan string)
	go func() {
		defer close(deltaChan)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			select {
			case deltaChan <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()

	return deltaChan, nil
}

// HealthCheck reports whether the OpenAI API is reachable.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai is unreachable: %w", err)
	}
	return nil
}

var _ LLM = (*OpenAI)(nil)
