package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const describePrompt = "Describe this image in two or three sentences so it can be filed with related documents. " +
	"Mention the kind of document or scene, visible titles and the main subject. Do not speculate about people."

// ErrEmptyResponse is returned when the model answered with no content.
var ErrEmptyResponse = errors.New("empty response from LLM")

// Complete sends prompt as a single user message to the label model.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := p.chat.GenerateContent(ctx, content,
		llms.WithModel(p.config.LabelModel),
		llms.WithMaxTokens(p.config.MaxTokens),
		llms.WithTemperature(p.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	return firstChoice(response)
}

// Describe asks the vision model for a textual description of an image.
func (p *Provider) Describe(ctx context.Context, mimeType string, data []byte) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(describePrompt),
				llms.BinaryPart(mimeType, data),
			},
		},
	}

	response, err := p.chat.GenerateContent(ctx, content,
		llms.WithModel(p.config.VisionModel),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return "", fmt.Errorf("describe error: %w", err)
	}

	return firstChoice(response)
}

func firstChoice(response *llms.ContentResponse) (string, error) {
	if response == nil {
		return "", ErrEmptyResponse
	}
	for _, choice := range response.Choices {
		if choice != nil && strings.TrimSpace(choice.Content) != "" {
			return choice.Content, nil
		}
	}
	return "", ErrEmptyResponse
}
