package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"medscan/internal/logger"
)

const extractorSystemPrompt = `You are a pharmaceutical text analyzer. You receive raw OCR text from a medication package and tag medication-related entities.

Entity types:
- "medication": a brand or generic medication name
- "dosage": a strength or amount, e.g. "500 mg"
- "form": a dosage form, e.g. "tablet", "capsule", "syrup"

CRITICAL: Respond ONLY with a valid JSON array of objects with "text" and "type" fields. No markdown, no explanations, no trailing commas. Respond with [] when nothing is found.`

// OpenAIExtractor implements Extractor with a ChatGPT completion returning
// strict JSON.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIExtractor creates an extractor using the given API key.
func NewOpenAIExtractor(apiKey string) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("entity: OPENAI_API_KEY is required")
	}
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
		log:    logger.WithComponent("entity-openai"),
	}, nil
}

// ExtractEntities tags medication-related spans in text.
func (e *OpenAIExtractor) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	const op = "ExtractEntities"

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: 800,
	})
	if err != nil {
		return nil, fmt.Errorf("entity: %s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("entity: %s: no response choices", op)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var entities []Entity
	if err := json.Unmarshal([]byte(content), &entities); err != nil {
		e.log.Error().
			Err(err).
			Str("response", content).
			Msg("Failed to parse entity JSON response")
		return nil, fmt.Errorf("entity: %s: parse response: %w", op, err)
	}

	e.log.Debug().Int("entities", len(entities)).Msg("Entity extraction completed")
	return entities, nil
}
