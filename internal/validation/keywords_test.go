package validation

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords_LumbarDictation(t *testing.T) {
	text := Sanitize("72-year-old male with 3 weeks of low back pain radiating to left leg. History of DDD.")

	keywords := ExtractKeywords(text)

	for _, want := range []string{"back", "leg", "lumbar", "pain", "radiating", "ddd", "degenerative disc disease"} {
		assert.Contains(t, keywords, want)
	}
	assert.True(t, sort.StringsAreSorted(keywords))
}

func TestExtractKeywords_Codes(t *testing.T) {
	keywords := ExtractKeywords("Prior imaging 72148 for m54.5, billing ref 12345 and Z87.891")

	assert.Contains(t, keywords, "72148")
	assert.Contains(t, keywords, "M54.5")
	assert.Contains(t, keywords, "Z87.891")
	assert.NotContains(t, keywords, "12345")
}

func TestExtractKeywords_WholeWordsOnly(t *testing.T) {
	keywords := ExtractKeywords("Patient is painless and legible")

	assert.NotContains(t, keywords, "pain")
	assert.NotContains(t, keywords, "leg")
}

func TestExtractKeywords_DeduplicatesAndBounds(t *testing.T) {
	keywords := ExtractKeywords("pain PAIN Pain pain")
	assert.Equal(t, []string{"pain"}, keywords)

	assert.Empty(t, ExtractKeywords(""))

	var long string
	for _, term := range append(append([]string{}, anatomyTerms...), conditionTerms...) {
		long += term + ". "
	}
	assert.Len(t, ExtractKeywords(long), MaxKeywords)
}
