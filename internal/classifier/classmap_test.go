package classifier_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/classifier"
	"medscan/pkg/models"
)

func TestLoadClassMap(t *testing.T) {
	t.Run("parses indexed entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "classes.json")
		content := `{
			"0": {"brand_name": "tylenol", "generic_name": "acetaminophen"},
			"3": {"brand_name": "advil", "generic_name": "ibuprofen"}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		classMap, err := classifier.LoadClassMap(path)

		require.NoError(t, err)
		require.Len(t, classMap, 2)
		assert.Equal(t, models.DictionaryEntry{BrandName: "tylenol", GenericName: "acetaminophen"}, classMap[0])
		assert.Equal(t, models.DictionaryEntry{BrandName: "advil", GenericName: "ibuprofen"}, classMap[3])
	})

	t.Run("rejects non-numeric class indices", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "classes.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"first": {"brand_name": "x"}}`), 0644))

		_, err := classifier.LoadClassMap(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := classifier.LoadClassMap(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}

func TestClassMapFromDictionary(t *testing.T) {
	dict := map[string]string{
		"tylenol":  "acetaminophen",
		"advil":    "ibuprofen",
		"biogesic": "paracetamol",
	}

	classMap := classifier.ClassMapFromDictionary(dict)

	require.Len(t, classMap, 3)
	// Indices follow sorted brand order so the mapping is stable across runs.
	assert.Equal(t, "advil", classMap[0].BrandName)
	assert.Equal(t, "biogesic", classMap[1].BrandName)
	assert.Equal(t, "tylenol", classMap[2].BrandName)
	assert.Equal(t, "ibuprofen", classMap[0].GenericName)
}
