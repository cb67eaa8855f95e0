package identify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/identify"
	"medscan/pkg/models"
)

func TestPatternExtractor_Extract(t *testing.T) {
	extractor := identify.NewPatternExtractor()
	ctx := context.Background()

	text := "Paracetamol 500 mg\nTake two tablets daily\nKeep out of reach of children"

	t.Run("resolves dosage lines and entity spans", func(t *testing.T) {
		var lookedUp []string
		lookup := func(_ context.Context, span string) ([]models.SimilarEntry, error) {
			lookedUp = append(lookedUp, span)
			if span == "Paracetamol 500 mg" {
				return []models.SimilarEntry{
					{BrandName: "biogesic", GenericName: "paracetamol", Similarity: 0.88},
				}, nil
			}
			return nil, nil
		}

		candidates := extractor.Extract(ctx, text, []string{"Biogesic"}, lookup)

		// Entity span first, then the two pattern-matching lines.
		assert.Equal(t, []string{"Biogesic", "Paracetamol 500 mg", "Take two tablets daily"}, lookedUp)

		require.Len(t, candidates, 1)
		assert.Equal(t, "Biogesic", candidates[0].BrandName)
		assert.Equal(t, "Paracetamol", candidates[0].GenericName)
		assert.Equal(t, 0.88, candidates[0].Confidence)
		assert.Equal(t, models.SourcePattern, candidates[0].Source)
		assert.Equal(t, "Paracetamol 500 mg", candidates[0].Metadata["span"])
	})

	t.Run("duplicate spans are looked up once", func(t *testing.T) {
		var calls int
		lookup := func(_ context.Context, span string) ([]models.SimilarEntry, error) {
			calls++
			return nil, nil
		}

		extractor.Extract(ctx, "PARACETAMOL 500 MG", []string{"paracetamol 500 mg"}, lookup)
		assert.Equal(t, 1, calls)
	})

	t.Run("failing span is skipped, others resolve", func(t *testing.T) {
		lookup := func(_ context.Context, span string) ([]models.SimilarEntry, error) {
			if span == "Paracetamol 500 mg" {
				return nil, errors.New("connection reset")
			}
			return []models.SimilarEntry{
				{BrandName: "generic", GenericName: "paracetamol", Similarity: 0.8},
			}, nil
		}

		candidates := extractor.Extract(ctx, text, nil, lookup)
		assert.Len(t, candidates, 1)
	})

	t.Run("similarity is clamped to the unit interval", func(t *testing.T) {
		lookup := func(_ context.Context, _ string) ([]models.SimilarEntry, error) {
			return []models.SimilarEntry{
				{BrandName: "a", GenericName: "alpha", Similarity: 1.4},
				{BrandName: "b", GenericName: "beta", Similarity: -0.2},
			}, nil
		}

		candidates := extractor.Extract(ctx, "something 10 mg", nil, lookup)
		require.Len(t, candidates, 2)
		assert.Equal(t, 1.0, candidates[0].Confidence)
		assert.Equal(t, 0.0, candidates[1].Confidence)
	})

	t.Run("nil lookup yields nothing", func(t *testing.T) {
		assert.Empty(t, extractor.Extract(ctx, text, []string{"Biogesic"}, nil))
	})

	t.Run("text without medication-like spans yields nothing", func(t *testing.T) {
		lookup := func(_ context.Context, _ string) ([]models.SimilarEntry, error) {
			t.Fatal("lookup should not be called")
			return nil, nil
		}
		assert.Empty(t, extractor.Extract(ctx, "store in a cool dry place", nil, lookup))
	})

	t.Run("entries without a generic name are dropped", func(t *testing.T) {
		lookup := func(_ context.Context, _ string) ([]models.SimilarEntry, error) {
			return []models.SimilarEntry{{BrandName: "mystery", Similarity: 0.9}}, nil
		}
		assert.Empty(t, extractor.Extract(ctx, "mystery 20 mg", nil, lookup))
	})
}
