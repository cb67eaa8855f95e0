package identify

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"medscan/internal/logger"
	"medscan/pkg/models"
)

// ErrEmptyText is returned when the OCR text contains nothing to identify.
// It is the only condition that aborts the pipeline and surfaces to the user.
var ErrEmptyText = errors.New("no text to identify")

// Input bundles the collaborators and data one identification run needs.
// Any collaborator may be absent; the corresponding detector then simply
// contributes no candidates.
type Input struct {
	// Dictionary is the brand→generic map from the dictionary cache.
	Dictionary map[string]string

	// Entities are externally-tagged spans fed to the pattern extractor.
	Entities []string

	// Lookup resolves spans to similar medications via the remote store.
	Lookup SimilarityLookup

	// Scorer is the external classifier; nil when the model is unavailable.
	Scorer Scorer

	// ClassMap resolves classifier class indices to known medications.
	ClassMap map[int]models.DictionaryEntry

	// Threshold is the minimum classifier score; zero means DefaultThreshold.
	Threshold float64
}

// Pipeline runs the three detectors over OCR text and consolidates their
// candidates into one ranked list.
type Pipeline struct {
	dictionary *DictionaryMatcher
	pattern    *PatternExtractor
	classifier *ClassifierMatcher
	log        zerolog.Logger
}

// NewPipeline creates an identification pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		dictionary: NewDictionaryMatcher(),
		pattern:    NewPatternExtractor(),
		classifier: NewClassifierMatcher(),
		log:        logger.WithComponent("identify"),
	}
}

// Identify runs dictionary, pattern and classifier matching concurrently
// over text, waits for all three, and consolidates the results. Detector
// failures degrade to "no candidates from that source"; only empty input
// aborts the run. The result is sorted by confidence descending with the
// generic name as tiebreaker.
func (p *Pipeline) Identify(ctx context.Context, text string, input Input) ([]models.MedicationCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var (
		wg                sync.WaitGroup
		dictionaryMatches []models.MedicationCandidate
		patternMatches    []models.MedicationCandidate
		classifierMatches []models.MedicationCandidate
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		dictionaryMatches = p.dictionary.Match(text, input.Dictionary)
	}()
	go func() {
		defer wg.Done()
		patternMatches = p.pattern.Extract(ctx, text, input.Entities, input.Lookup)
	}()
	go func() {
		defer wg.Done()
		classifierMatches = p.classifier.Classify(ctx, text, input.Scorer, input.ClassMap, input.Threshold)
	}()
	wg.Wait()

	consolidated := Consolidate(dictionaryMatches, patternMatches, classifierMatches)

	sort.SliceStable(consolidated, func(i, j int) bool {
		if consolidated[i].Confidence != consolidated[j].Confidence {
			return consolidated[i].Confidence > consolidated[j].Confidence
		}
		return consolidated[i].GenericName < consolidated[j].GenericName
	})

	p.log.Info().
		Int("dictionary", len(dictionaryMatches)).
		Int("pattern", len(patternMatches)).
		Int("classifier", len(classifierMatches)).
		Int("consolidated", len(consolidated)).
		Msg("Identification completed")

	return consolidated, nil
}
