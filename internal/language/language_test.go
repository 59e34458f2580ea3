package language

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialguard/mentions-monitor/internal/models"
)

const (
	frenchText  = "Bonjour, le produit est très bien"
	englishText = "The product is really good and I love it"
)

func TestDetect(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"french", frenchText, "fr"},
		{"english", englishText, "en"},
		{"spanish", "Hola, gracias por todo, muy bueno", "es"},
		{"german", "Hallo, das ist wirklich sehr gut und danke", "de"},
		{"tie keeps first language", "la", "fr"},
		{"no lexicon hit", "xyz qwerty 123", Unknown},
		{"empty", "", Unknown},
		{"punctuation only", "!!! ... ???", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.text).Language)
		})
	}
}

func TestDetect_Confidence(t *testing.T) {
	d := NewDetector()

	res := d.Detect(frenchText)
	// bonjour(2) le(1) est(1) très(2) over 6 words
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)

	res = d.Detect("the cat")
	assert.Equal(t, "en", res.Language)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)

	assert.Equal(t, Result{Language: Unknown}, d.Detect("zzz"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"peut-être", "déjà", "ça", "42"}, Tokenize("Peut-être DÉJÀ, ça -- 42!"))
	assert.Empty(t, Tokenize("  --  "))
}

func TestFilter_AllowListRejectsLowConfidence(t *testing.T) {
	d := NewDetector()
	weak := "bonjour " + strings.Repeat("xyz ", 40)

	res := d.Detect(weak)
	require.Equal(t, "fr", res.Language)
	require.Less(t, res.Confidence, DefaultConfidenceThreshold)

	mentions := []models.Mention{
		{ExternalID: "weak", Content: weak},
		{ExternalID: "fr", Content: frenchText},
		{ExternalID: "en", Content: englishText},
	}

	kept := d.Filter(mentions, models.Filters{Languages: []string{"fr"}}, DefaultConfidenceThreshold)

	require.Len(t, kept, 1)
	assert.Equal(t, "fr", kept[0].ExternalID)
}

func TestFilter_DenyList(t *testing.T) {
	d := NewDetector()
	mentions := []models.Mention{
		{ExternalID: "en", Content: englishText},
		{ExternalID: "fr", Content: frenchText},
		{ExternalID: "unknown", Content: "xyz"},
	}

	kept := d.Filter(mentions, models.Filters{ExcludeLanguages: []string{"EN"}}, DefaultConfidenceThreshold)

	var ids []string
	for _, m := range kept {
		ids = append(ids, m.ExternalID)
	}
	assert.Equal(t, []string{"fr", "unknown"}, ids)
}

func TestFilter_DenyListWinsOverAllowList(t *testing.T) {
	d := NewDetector()
	mentions := []models.Mention{{ExternalID: "en", Content: englishText}}

	kept := d.Filter(mentions, models.Filters{
		Languages:        []string{"en"},
		ExcludeLanguages: []string{"en"},
	}, DefaultConfidenceThreshold)

	assert.Empty(t, kept)
}

func TestFilter_NoRulesPassesEverything(t *testing.T) {
	d := NewDetector()
	mentions := []models.Mention{{Content: englishText}, {Content: ""}}

	assert.Equal(t, mentions, d.Filter(mentions, models.Filters{}, DefaultConfidenceThreshold))
}

func TestFilter_PerJobThreshold(t *testing.T) {
	d := NewDetector()
	weak := "bonjour " + strings.Repeat("xyz ", 40)
	mentions := []models.Mention{{ExternalID: "weak", Content: weak}}

	low := 0.01
	kept := d.Filter(mentions, models.Filters{
		Languages:                   []string{"fr"},
		LanguageConfidenceThreshold: &low,
	}, DefaultConfidenceThreshold)

	assert.Len(t, kept, 1)
}
