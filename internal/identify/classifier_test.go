package identify_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/identify"
	"medscan/pkg/models"
)

type fakeScorer struct {
	run func(input []float32) ([]float32, error)
}

func (f *fakeScorer) Run(_ context.Context, input []float32) ([]float32, error) {
	return f.run(input)
}

func TestClassifierMatcher_Classify(t *testing.T) {
	matcher := identify.NewClassifierMatcher()
	ctx := context.Background()

	classMap := map[int]models.DictionaryEntry{
		0: {BrandName: "tylenol", GenericName: "acetaminophen"},
	}

	t.Run("single detection keeps the classifier source", func(t *testing.T) {
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.9}, nil
		}}

		candidates := matcher.Classify(ctx, "short package text", scorer, classMap, 0.70)

		require.Len(t, candidates, 1)
		assert.Equal(t, "Tylenol", candidates[0].BrandName)
		assert.Equal(t, "Acetaminophen", candidates[0].GenericName)
		assert.InDelta(t, 0.9, candidates[0].Confidence, 1e-6)
		assert.Equal(t, models.SourceClassifier, candidates[0].Source)
		assert.Equal(t, []int{0}, candidates[0].Metadata["offsets"])
		assert.NotContains(t, candidates[0].Metadata, "occurrences")
	})

	t.Run("repeated detections get a logarithmic occurrence boost", func(t *testing.T) {
		// Long enough for four overlapping chunks; the scorer fires on the
		// first three.
		text := strings.Repeat("tylenol acetaminophen 500mg caplets ", 8)

		calls := 0
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			calls++
			if calls <= 3 {
				return []float32{0.8}, nil
			}
			return []float32{0.1}, nil
		}}

		candidates := matcher.Classify(ctx, text, scorer, classMap, 0.70)

		require.Len(t, candidates, 1)
		expected := math.Min(0.99, 0.8+0.1*math.Log(3))
		assert.InDelta(t, expected, candidates[0].Confidence, 1e-6)
		assert.Equal(t, models.SourceEnsemble, candidates[0].Source)
		assert.Equal(t, 3, candidates[0].Metadata["occurrences"])
		assert.Equal(t, []int{0, 60, 120}, candidates[0].Metadata["offsets"])
	})

	t.Run("boost base is the best single score", func(t *testing.T) {
		text := strings.Repeat("tylenol acetaminophen 500mg caplets ", 8)

		scores := []float32{0.7, 0.8, 0.75, 0.1}
		calls := 0
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			score := scores[calls%len(scores)]
			calls++
			return []float32{score}, nil
		}}

		candidates := matcher.Classify(ctx, text, scorer, classMap, 0.5)

		require.Len(t, candidates, 1)
		expected := math.Min(0.99, 0.8+0.1*math.Log(3))
		assert.InDelta(t, expected, candidates[0].Confidence, 1e-6)
		assert.Equal(t, 3, candidates[0].Metadata["occurrences"])
	})

	t.Run("boosted confidence is capped below certainty", func(t *testing.T) {
		text := strings.Repeat("tylenol acetaminophen 500mg caplets ", 8)

		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.95}, nil
		}}

		candidates := matcher.Classify(ctx, text, scorer, classMap, 0.70)

		require.Len(t, candidates, 1)
		assert.Equal(t, 0.99, candidates[0].Confidence)
	})

	t.Run("scores at the threshold are excluded", func(t *testing.T) {
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.70}, nil
		}}
		assert.Empty(t, matcher.Classify(ctx, "short text", scorer, classMap, 0.70))
	})

	t.Run("zero threshold falls back to the default", func(t *testing.T) {
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.65}, nil
		}}
		assert.Empty(t, matcher.Classify(ctx, "short text", scorer, classMap, 0))

		scorer = &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.75}, nil
		}}
		assert.Len(t, matcher.Classify(ctx, "short text", scorer, classMap, 0), 1)
	})

	t.Run("chunks are encoded as keyword presence per class", func(t *testing.T) {
		multiClass := map[int]models.DictionaryEntry{
			0: {BrandName: "tylenol", GenericName: "acetaminophen"},
			2: {BrandName: "advil", GenericName: "ibuprofen"},
		}

		var encoded []float32
		scorer := &fakeScorer{run: func(input []float32) ([]float32, error) {
			encoded = input
			return []float32{0, 0}, nil
		}}

		matcher.Classify(ctx, "contains ADVIL only", scorer, multiClass, 0.70)

		// Two features per class, ordered by class index.
		assert.Equal(t, []float32{0, 0, 1, 0}, encoded)
	})

	t.Run("failing chunks are skipped", func(t *testing.T) {
		text := strings.Repeat("tylenol acetaminophen 500mg caplets ", 8)

		calls := 0
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("session closed")
			}
			return []float32{0.8}, nil
		}}

		candidates := matcher.Classify(ctx, text, scorer, classMap, 0.70)
		require.Len(t, candidates, 1)
	})

	t.Run("missing scorer or class map yields nothing", func(t *testing.T) {
		scorer := &fakeScorer{run: func(_ []float32) ([]float32, error) {
			return []float32{0.9}, nil
		}}
		assert.Nil(t, matcher.Classify(ctx, "text", nil, classMap, 0.70))
		assert.Nil(t, matcher.Classify(ctx, "text", scorer, nil, 0.70))
		assert.Nil(t, matcher.Classify(ctx, "   ", scorer, classMap, 0.70))
	})
}
