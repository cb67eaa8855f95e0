package identify

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"medscan/internal/logger"
	"medscan/pkg/models"
)

// SimilarityLookup resolves a text span to medications with similarity
// scores. It is backed by the remote medication store.
type SimilarityLookup func(ctx context.Context, span string) ([]models.SimilarEntry, error)

// Dosage and form patterns that mark a line as medication-like.
var spanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s*mg\b`),
	regexp.MustCompile(`(?i)\d+\s*mcg\b`),
	regexp.MustCompile(`(?i)\d+\s*ml\b`),
	regexp.MustCompile(`(?i)\btablets?\b`),
	regexp.MustCompile(`(?i)\bcapsules?\b`),
}

// PatternExtractor detects medication-like text spans heuristically and
// resolves them through a similarity lookup.
type PatternExtractor struct {
	log zerolog.Logger
}

// NewPatternExtractor creates a pattern extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{
		log: logger.WithComponent("pattern-extractor"),
	}
}

// Extract collects candidate spans from externally-tagged entities and from
// lines matching dosage/unit patterns, then resolves each span through the
// lookup. A failing span is skipped; partial results are acceptable and the
// extraction never aborts as a whole.
func (e *PatternExtractor) Extract(ctx context.Context, text string, entities []string, lookup SimilarityLookup) []models.MedicationCandidate {
	spans := collectSpans(text, entities)
	if len(spans) == 0 || lookup == nil {
		return nil
	}

	var candidates []models.MedicationCandidate
	for _, span := range spans {
		entries, err := lookup(ctx, span)
		if err != nil {
			e.log.Warn().
				Err(err).
				Str("span", span).
				Msg("Similarity lookup failed, skipping span")
			continue
		}

		for _, entry := range entries {
			if strings.TrimSpace(entry.GenericName) == "" {
				continue
			}
			candidates = append(candidates, models.MedicationCandidate{
				BrandName:   TitleCase(entry.BrandName),
				GenericName: TitleCase(entry.GenericName),
				Confidence:  clamp01(entry.Similarity),
				Source:      models.SourcePattern,
				Metadata:    map[string]any{"span": span},
			})
		}
	}

	e.log.Debug().
		Int("spans", len(spans)).
		Int("candidates", len(candidates)).
		Msg("Pattern extraction completed")

	return candidates
}

// collectSpans merges entity spans with lines that carry a dosage or form
// pattern, deduplicated on their normalized form.
func collectSpans(text string, entities []string) []string {
	var spans []string
	seen := make(map[string]bool)

	add := func(span string) {
		span = strings.TrimSpace(span)
		key := Normalize(span)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		spans = append(spans, span)
	}

	for _, entity := range entities {
		add(entity)
	}

	for _, line := range strings.Split(text, "\n") {
		for _, pattern := range spanPatterns {
			if pattern.MatchString(line) {
				add(line)
				break
			}
		}
	}

	return spans
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
