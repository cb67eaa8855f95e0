package identify

import (
	"strings"

	"github.com/rs/zerolog"

	"medscan/internal/logger"
	"medscan/pkg/models"
)

// DictionaryConfidence is the fixed confidence assigned to exact dictionary
// hits. Substring containment of a known brand name is near-certain, so the
// score does not vary with OCR noise.
const DictionaryConfidence = 0.95

// DictionaryMatcher finds exact brand-name substring matches against the
// brand→generic dictionary.
type DictionaryMatcher struct {
	log zerolog.Logger
}

// NewDictionaryMatcher creates a dictionary matcher.
func NewDictionaryMatcher() *DictionaryMatcher {
	return &DictionaryMatcher{
		log: logger.WithComponent("dictionary-matcher"),
	}
}

// Match tests every (brand, generic) pair for case-insensitive substring
// containment of the brand in text. Distinct brands mapping to the same
// generic each produce a separate candidate; deduplication happens in the
// consolidator. Result order is not significant.
func (m *DictionaryMatcher) Match(text string, dictionary map[string]string) []models.MedicationCandidate {
	if strings.TrimSpace(text) == "" || len(dictionary) == 0 {
		return nil
	}

	normalizedText := Normalize(text)

	var candidates []models.MedicationCandidate
	for brand, generic := range dictionary {
		normalizedBrand := Normalize(brand)
		if normalizedBrand == "" || strings.TrimSpace(generic) == "" {
			continue
		}

		offset := strings.Index(normalizedText, normalizedBrand)
		if offset < 0 {
			continue
		}

		candidates = append(candidates, models.MedicationCandidate{
			BrandName:   TitleCase(brand),
			GenericName: TitleCase(generic),
			Confidence:  DictionaryConfidence,
			Source:      models.SourceDictionary,
			Metadata:    map[string]any{"offset": offset},
		})
	}

	m.log.Debug().
		Int("dictionary_size", len(dictionary)).
		Int("matches", len(candidates)).
		Msg("Dictionary matching completed")

	return candidates
}
