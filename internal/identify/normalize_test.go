package identify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"medscan/internal/identify"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercases", input: "TYLENOL", expected: "tylenol"},
		{name: "keeps digits", input: "Tylenol 500 mg", expected: "tylenol 500 mg"},
		{name: "strips punctuation", input: "Aspirin®!", expected: "aspirin"},
		{name: "collapses whitespace", input: "  extra \t strength \n tylenol ", expected: "extra strength tylenol"},
		{name: "empty input", input: "", expected: ""},
		{name: "punctuation only", input: "***!!!", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, identify.Normalize(tt.input))
		})
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Tylenol 500", identify.TitleCase("TYLENOL 500"))
	assert.Equal(t, "Extra Strength Tylenol", identify.TitleCase("extra strength TYLENOL"))
	assert.Equal(t, "", identify.TitleCase("  !! "))
}
