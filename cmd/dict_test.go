package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/logger"
	"medscan/pkg/models"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadDictionaryCSV(t *testing.T) {
	log := logger.WithComponent("test")

	t.Run("brand generic pairs with header", func(t *testing.T) {
		path := writeCSV(t, "brand_name,generic_name\nTylenol,Acetaminophen\nAdvil,Ibuprofen\n")

		entries, err := readDictionaryCSV(path, log)

		require.NoError(t, err)
		assert.Equal(t, []models.DictionaryEntry{
			{BrandName: "Tylenol", GenericName: "Acetaminophen"},
			{BrandName: "Advil", GenericName: "Ibuprofen"},
		}, entries)
	})

	t.Run("single column molecule list", func(t *testing.T) {
		path := writeCSV(t, "molecule\nParacetamol\nAmoxicillin\n")

		entries, err := readDictionaryCSV(path, log)

		require.NoError(t, err)
		assert.Equal(t, []models.DictionaryEntry{
			{BrandName: "Paracetamol", GenericName: "Paracetamol"},
			{BrandName: "Amoxicillin", GenericName: "Amoxicillin"},
		}, entries)
	})

	t.Run("no header row", func(t *testing.T) {
		path := writeCSV(t, "Tylenol,Acetaminophen\n")

		entries, err := readDictionaryCSV(path, log)

		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Tylenol", entries[0].BrandName)
	})

	t.Run("blank rows are skipped", func(t *testing.T) {
		path := writeCSV(t, "Tylenol,Acetaminophen\n  ,\nAdvil,Ibuprofen\n")

		entries, err := readDictionaryCSV(path, log)

		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("missing generic falls back to the brand", func(t *testing.T) {
		path := writeCSV(t, "Paracetamol,\n")

		entries, err := readDictionaryCSV(path, log)

		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Paracetamol", entries[0].GenericName)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readDictionaryCSV(filepath.Join(t.TempDir(), "missing.csv"), log)
		assert.Error(t, err)
	})
}

func TestSummarizeCandidates(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		assert.Equal(t, "No medications were recognized on the package.", summarizeCandidates(nil))
	})

	t.Run("single candidate", func(t *testing.T) {
		summary := summarizeCandidates([]models.MedicationCandidate{
			{BrandName: "Tylenol", GenericName: "Acetaminophen"},
		})
		assert.Equal(t, "The medication is Tylenol, generic name Acetaminophen.", summary)
	})

	t.Run("multiple candidates", func(t *testing.T) {
		summary := summarizeCandidates([]models.MedicationCandidate{
			{BrandName: "Tylenol", GenericName: "Acetaminophen"},
			{BrandName: "Advil", GenericName: "Ibuprofen"},
		})
		assert.Contains(t, summary, "2 medications were recognized")
		assert.Contains(t, summary, "Tylenol, generic name Acetaminophen")
		assert.Contains(t, summary, "Advil, generic name Ibuprofen")
	})
}
