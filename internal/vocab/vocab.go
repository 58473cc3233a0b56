// Package vocab holds the single keyword vocabulary shared by the pre-filter,
// the extraction prompt builder and the pattern learner.
package vocab

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary is immutable after Parse; safe for concurrent use.
type Vocabulary struct {
	Version        int
	Reject         []string
	StrongPositive []string
	Talent         []string
	Project        []string
	Contact        []string
	Payment        []string
	Location       []string

	// normalized copies, index-aligned with the lists above
	norm map[string][]string
}

type document struct {
	Version        int      `yaml:"version"`
	Reject         []string `yaml:"reject"`
	StrongPositive []string `yaml:"strong_positive"`
	Talent         []string `yaml:"talent"`
	Project        []string `yaml:"project"`
	Contact        []string `yaml:"contact"`
	Payment        []string `yaml:"payment"`
	Location       []string `yaml:"location"`
}

const (
	listReject         = "reject"
	listStrongPositive = "strong_positive"
)

var (
	defaultOnce sync.Once
	defaultVoc  *Vocabulary
	defaultErr  error
)

// Default returns the embedded vocabulary, parsed once.
func Default() *Vocabulary {
	defaultOnce.Do(func() {
		defaultVoc, defaultErr = Parse(defaultVocabulary)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("vocab: embedded vocabulary invalid: %v", defaultErr))
	}
	return defaultVoc
}

// Parse decodes a YAML vocabulary document.
func Parse(data []byte) (*Vocabulary, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if len(doc.Reject) == 0 || len(doc.StrongPositive) == 0 || len(doc.Talent) == 0 {
		return nil, fmt.Errorf("vocabulary v%d: reject, strong_positive and talent lists are required", doc.Version)
	}
	v := &Vocabulary{
		Version:        doc.Version,
		Reject:         doc.Reject,
		StrongPositive: doc.StrongPositive,
		Talent:         doc.Talent,
		Project:        doc.Project,
		Contact:        doc.Contact,
		Payment:        doc.Payment,
		Location:       doc.Location,
		norm:           make(map[string][]string, 7),
	}
	v.norm[listReject] = normalizeAll(v.Reject)
	v.norm[listStrongPositive] = normalizeAll(v.StrongPositive)
	v.norm[string(constants.CategoryTalent)] = normalizeAll(v.Talent)
	v.norm[string(constants.CategoryProject)] = normalizeAll(v.Project)
	v.norm[string(constants.CategoryContact)] = normalizeAll(v.Contact)
	v.norm[string(constants.CategoryPayment)] = normalizeAll(v.Payment)
	v.norm[string(constants.CategoryLocation)] = normalizeAll(v.Location)
	return v, nil
}

// List returns the raw keywords of a pattern category.
func (v *Vocabulary) List(cat constants.PatternCategory) []string {
	switch cat {
	case constants.CategoryTalent:
		return v.Talent
	case constants.CategoryProject:
		return v.Project
	case constants.CategoryContact:
		return v.Contact
	case constants.CategoryPayment:
		return v.Payment
	case constants.CategoryLocation:
		return v.Location
	}
	return nil
}

// Match returns the keywords of cat found in normalizedText, in vocabulary order.
// normalizedText must already have gone through Normalize.
func (v *Vocabulary) Match(cat constants.PatternCategory, normalizedText string) []string {
	return v.match(string(cat), v.List(cat), normalizedText)
}

// FirstReject returns the first reject keyword present, if any.
func (v *Vocabulary) FirstReject(normalizedText string) (string, bool) {
	return v.first(listReject, v.Reject, normalizedText)
}

// FirstStrongPositive returns the first strong-positive keyword present, if any.
func (v *Vocabulary) FirstStrongPositive(normalizedText string) (string, bool) {
	return v.first(listStrongPositive, v.StrongPositive, normalizedText)
}

func (v *Vocabulary) first(list string, raw []string, text string) (string, bool) {
	for i, kw := range v.norm[list] {
		if containsKeyword(text, kw) {
			return raw[i], true
		}
	}
	return "", false
}

func (v *Vocabulary) match(list string, raw []string, text string) []string {
	var out []string
	for i, kw := range v.norm[list] {
		if containsKeyword(text, kw) {
			out = append(out, raw[i])
		}
	}
	return out
}

// containsKeyword reports whether kw occurs in text. ASCII keywords must sit on
// word boundaries so "fee" does not match "coffee". Arabic keywords match as
// substrings since prefixes like ال and و attach to the word.
func containsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	if !isASCII(kw) {
		return strings.Contains(text, kw)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(kw)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Normalize(s)
	}
	return out
}

var arabicFold = map[rune]rune{
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
	'ٱ': 'ا',
	'ة': 'ه',
	'ى': 'ي',
	'ؤ': 'و',
	'ئ': 'ي',
}

// Normalize lowercases, folds Arabic letter variants, drops tatweel and
// diacritics, and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == 'ـ': // tatweel
			continue
		case r >= 0x064B && r <= 0x065F, r == 0x0670: // harakat, superscript alef
			continue
		case unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		if f, ok := arabicFold[r]; ok {
			r = f
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimRight(b.String(), " ")
}
