package ai

import (
	"context"
	"os"

	"github.com/myrjola/hoerquiz/internal/errors"
	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client configured from the OPENAI_API_KEY
// environment variable.
func NewClient() Client {
	return Client{
		client: openai.NewClient(os.Getenv("OPENAI_API_KEY")),
	}
}

// Configured reports whether an API key is available.
func Configured() bool {
	return os.Getenv("OPENAI_API_KEY") != ""
}

const MaxTokens = 4096

// CompleteJSON requests a chat completion constrained to a single JSON object
// and returns its raw content. The model must support JSON mode.
func (c *Client) CompleteJSON(ctx context.Context, model, system, user string) (string, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     model,
			MaxTokens: MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{ //nolint:exhaustruct // this is better for readability
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{ //nolint:exhaustruct // this is better for readability
					Role:    openai.ChatMessageRoleUser,
					Content: user,
				},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "create chat completion")
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
