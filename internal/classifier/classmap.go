// Package classifier provides the on-device medication classifier: an ONNX
// model scoring encoded text chunks, plus the class map resolving class
// indices to known medications.
package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"medscan/pkg/models"
)

// LoadClassMap reads a class map from a JSON file shaped as
// {"0": {"brand_name": "...", "generic_name": "..."}, ...}.
func LoadClassMap(path string) (map[int]models.DictionaryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read class map: %w", err)
	}

	var raw map[string]models.DictionaryEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("classifier: parse class map: %w", err)
	}

	classMap := make(map[int]models.DictionaryEntry, len(raw))
	for key, entry := range raw {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("classifier: class index %q is not a number", key)
		}
		classMap[index] = entry
	}
	return classMap, nil
}

// ClassMapFromDictionary derives a class map from the brand→generic
// dictionary, assigning indices in sorted brand order so the mapping is
// deterministic across runs. Used when no class-map file is configured.
func ClassMapFromDictionary(dictionary map[string]string) map[int]models.DictionaryEntry {
	brands := make([]string, 0, len(dictionary))
	for brand := range dictionary {
		brands = append(brands, brand)
	}
	sort.Strings(brands)

	classMap := make(map[int]models.DictionaryEntry, len(brands))
	for i, brand := range brands {
		classMap[i] = models.DictionaryEntry{
			BrandName:   brand,
			GenericName: dictionary[brand],
		}
	}
	return classMap
}
