// Package language guesses the language of short social media text from
// static word lists and filters mentions by locale.
package language

import (
	"strings"
	"unicode"
)

// Unknown is returned when no word of the text appears in any lexicon
const Unknown = "unknown"

// DefaultConfidenceThreshold is the minimum confidence for a detection to count
const DefaultConfidenceThreshold = 0.06

// Result is a detected language with its confidence. Confidence is the
// weighted hit count divided by the number of words and may exceed 1.
type Result struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type lexicon struct {
	code     string
	common   map[string]bool
	specific map[string]bool
}

// Detector scores text against per-language lexicons. Common words weigh 1,
// distinguishing words weigh 2. Ties go to the language listed first.
type Detector struct {
	lexicons []lexicon
}

// NewDetector returns a detector for French, English, Spanish and German
func NewDetector() *Detector {
	return &Detector{
		lexicons: []lexicon{
			newLexicon("fr",
				[]string{"le", "la", "les", "un", "une", "des", "de", "du", "et", "ou", "que", "qui", "avec", "pour", "dans", "sur", "est", "sont", "avoir", "être", "faire", "aller", "voir", "cette", "ce", "ça", "au", "aux", "ils", "elles", "nous", "vous"},
				[]string{"bonjour", "merci", "salut", "français", "france", "paris", "très", "beaucoup", "maintenant", "toujours", "jamais", "peut-être", "déjà", "encore"},
			),
			newLexicon("en",
				[]string{"the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "is", "are", "was", "were", "have", "has", "had", "will", "would", "could", "should", "this", "that", "these", "those"},
				[]string{"hello", "thanks", "thank", "please", "very", "really", "just", "now", "always", "never", "maybe", "also", "already"},
			),
			newLexicon("es",
				[]string{"el", "la", "los", "las", "un", "una", "y", "o", "de", "en", "por", "para", "con", "que", "es", "son", "estar", "tener", "hacer", "ser", "ir", "ver", "dar", "saber", "querer"},
				[]string{"hola", "gracias", "español", "españa", "muy", "mucho", "ahora", "siempre", "nunca", "también", "ya"},
			),
			newLexicon("de",
				[]string{"der", "die", "das", "und", "oder", "in", "auf", "mit", "von", "zu", "ist", "sind", "haben", "sein", "werden", "können", "müssen"},
				[]string{"hallo", "danke", "bitte", "deutsch", "deutschland", "sehr", "wirklich", "jetzt"},
			),
		},
	}
}

func newLexicon(code string, common, specific []string) lexicon {
	l := lexicon{code: code, common: make(map[string]bool), specific: make(map[string]bool)}
	for _, w := range common {
		l.common[w] = true
	}
	for _, w := range specific {
		l.specific[w] = true
	}
	return l
}

// Languages returns the supported language codes in tie-break order
func (d *Detector) Languages() []string {
	codes := make([]string, len(d.lexicons))
	for i, l := range d.lexicons {
		codes[i] = l.code
	}
	return codes
}

// Detect returns the best scoring language, or Unknown with zero confidence
func (d *Detector) Detect(text string) Result {
	words := Tokenize(text)
	if len(words) == 0 {
		return Result{Language: Unknown}
	}

	best := Result{Language: Unknown}
	for _, l := range d.lexicons {
		score := 0
		for _, w := range words {
			if l.common[w] {
				score++
			}
			if l.specific[w] {
				score += 2
			}
		}
		confidence := float64(score) / float64(len(words))
		if confidence > best.Confidence {
			best = Result{Language: l.code, Confidence: confidence}
		}
	}
	return best
}

// Tokenize lowercases text and splits it into words. Letters, digits and
// inner hyphens belong to a word, so accented words and "peut-être" survive.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.Trim(f, "-"); f != "" {
			words = append(words, f)
		}
	}
	return words
}
