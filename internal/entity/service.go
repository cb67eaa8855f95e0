// Package entity detects medication-related entities in recognized text.
//
// Two providers are available: an OpenAI-backed extractor working over plain
// text, and a Document AI-backed extractor working over the original package
// image when a processor is configured. Either may fail per call; callers
// treat a failure as "no entities from that provider".
package entity

import "context"

// Entity is one tagged span of text.
type Entity struct {
	// Text is the span as it appears in the source.
	Text string `json:"text"`

	// Type is the provider's label for the span (e.g. "medication",
	// "dosage").
	Type string `json:"type"`
}

// Extractor tags medication-related entities in text.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
}

// Spans returns just the text spans of a set of entities.
func Spans(entities []Entity) []string {
	spans := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Text != "" {
			spans = append(spans, e.Text)
		}
	}
	return spans
}
