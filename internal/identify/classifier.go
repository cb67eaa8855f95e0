package identify

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"medscan/internal/logger"
	"medscan/pkg/models"
)

// Chunking constants for classifier input windows.
const (
	// ChunkLength is the window size in runes.
	ChunkLength = 120

	// ChunkStride is the window step; half the length so adjacent windows
	// overlap.
	ChunkStride = 60
)

// DefaultThreshold is the minimum class score for a chunk-level detection.
const DefaultThreshold = 0.70

// ensembleCap bounds occurrence-boosted confidence.
const ensembleCap = 0.99

// Scorer produces one score per known class for an encoded input vector.
// It is an opaque external model; it may be unavailable entirely.
type Scorer interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

// ClassifierMatcher chunks text, scores each chunk with an external
// classifier, and consolidates repeated detections with an occurrence boost.
type ClassifierMatcher struct {
	chunkLength int
	chunkStride int
	log         zerolog.Logger
}

// NewClassifierMatcher creates a classifier matcher with the default
// chunking configuration.
func NewClassifierMatcher() *ClassifierMatcher {
	return &ClassifierMatcher{
		chunkLength: ChunkLength,
		chunkStride: ChunkStride,
		log:         logger.WithComponent("classifier-matcher"),
	}
}

// chunk is one classifier input window.
type chunk struct {
	text   string
	offset int // rune offset into the source text
}

// detection is one raw per-chunk classifier hit.
type detection struct {
	entry  models.DictionaryEntry
	score  float64
	offset int
}

// Classify partitions text into overlapping chunks, scores each chunk, maps
// class indices above threshold to known medications, and consolidates
// repeated detections. An unavailable scorer yields an empty result rather
// than a pipeline failure; dictionary and pattern matching remain
// authoritative.
func (m *ClassifierMatcher) Classify(ctx context.Context, text string, scorer Scorer, classMap map[int]models.DictionaryEntry, threshold float64) []models.MedicationCandidate {
	if scorer == nil || len(classMap) == 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	classes := sortedClasses(classMap)

	var detections []detection
	for _, c := range m.chunks(text) {
		scores, err := scorer.Run(ctx, encodeChunk(c.text, classes, classMap))
		if err != nil {
			m.log.Warn().
				Err(err).
				Int("offset", c.offset).
				Msg("Classifier scoring failed, skipping chunk")
			continue
		}

		for i, index := range classes {
			if i >= len(scores) {
				break
			}
			score := float64(scores[i])
			entry := classMap[index]
			if score <= threshold || strings.TrimSpace(entry.GenericName) == "" {
				continue
			}
			detections = append(detections, detection{entry: entry, score: score, offset: c.offset})
		}
	}

	candidates := consolidateDetections(detections)

	m.log.Debug().
		Int("detections", len(detections)).
		Int("candidates", len(candidates)).
		Msg("Classifier matching completed")

	return candidates
}

// chunks splits text into overlapping fixed-size rune windows.
func (m *ClassifierMatcher) chunks(text string) []chunk {
	runes := []rune(text)
	if len(runes) <= m.chunkLength {
		return []chunk{{text: text, offset: 0}}
	}

	var out []chunk
	for start := 0; start < len(runes); start += m.chunkStride {
		end := start + m.chunkLength
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, chunk{text: string(runes[start:end]), offset: start})
		if end == len(runes) {
			break
		}
	}
	return out
}

// encodeChunk builds a bag-of-keyword-presence vector over the class map's
// brand and generic names: two features per class, ordered by class index.
func encodeChunk(text string, classes []int, classMap map[int]models.DictionaryEntry) []float32 {
	normalized := Normalize(text)
	vector := make([]float32, 2*len(classes))
	for i, index := range classes {
		entry := classMap[index]
		if brand := Normalize(entry.BrandName); brand != "" && strings.Contains(normalized, brand) {
			vector[2*i] = 1
		}
		if generic := Normalize(entry.GenericName); generic != "" && strings.Contains(normalized, generic) {
			vector[2*i+1] = 1
		}
	}
	return vector
}

// consolidateDetections groups raw chunk hits by generic name. The highest
// individual score is the base; medications detected in more than one chunk
// get a logarithmic occurrence boost, capped below certainty, and are
// relabeled as ensemble detections.
func consolidateDetections(detections []detection) []models.MedicationCandidate {
	type group struct {
		best    detection
		offsets []int
	}

	groups := make(map[string]*group)
	var order []string
	for _, d := range detections {
		key := strings.ToLower(Normalize(d.entry.GenericName))
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{best: d, offsets: []int{d.offset}}
			order = append(order, key)
			continue
		}
		if d.score > g.best.score {
			g.best = d
		}
		g.offsets = append(g.offsets, d.offset)
	}

	candidates := make([]models.MedicationCandidate, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		occurrences := len(g.offsets)

		confidence := g.best.score
		source := models.SourceClassifier
		metadata := map[string]any{"offsets": g.offsets}

		if occurrences > 1 {
			confidence = math.Min(ensembleCap, confidence+0.1*math.Log(float64(occurrences)))
			source = models.SourceEnsemble
			metadata["occurrences"] = occurrences
		}

		candidates = append(candidates, models.MedicationCandidate{
			BrandName:   TitleCase(g.best.entry.BrandName),
			GenericName: TitleCase(g.best.entry.GenericName),
			Confidence:  confidence,
			Source:      source,
			Metadata:    metadata,
		})
	}
	return candidates
}

func sortedClasses(classMap map[int]models.DictionaryEntry) []int {
	classes := make([]int, 0, len(classMap))
	for index := range classMap {
		classes = append(classes, index)
	}
	sort.Ints(classes)
	return classes
}
