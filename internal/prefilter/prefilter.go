// Package prefilter is the cheap local gate run before any extraction call.
package prefilter

import (
	"regexp"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/vocab"
)

// Decision is the result of Classify.
type Decision struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

// Filter classifies raw text using a shared vocabulary. It does no I/O.
type Filter struct {
	voc *vocab.Vocabulary
}

// phone numbers count as a contact marker
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-]{6,}\d`)

func New(v *vocab.Vocabulary) *Filter {
	if v == nil {
		v = vocab.Default()
	}
	return &Filter{voc: v}
}

// Classify runs reject keywords first, then strong positives, then requires a
// talent term together with a contact or payment marker.
func (f *Filter) Classify(text string) Decision {
	norm := vocab.Normalize(text)
	if norm == "" {
		return Decision{Pass: false, Reason: "empty text"}
	}
	if kw, ok := f.voc.FirstReject(norm); ok {
		return Decision{Pass: false, Reason: "reject keyword: " + kw}
	}
	if kw, ok := f.voc.FirstStrongPositive(norm); ok {
		return Decision{Pass: true, Reason: "strong keyword: " + kw}
	}

	talent := f.voc.Match(constants.CategoryTalent, norm)
	if len(talent) == 0 {
		return Decision{Pass: false, Reason: "no talent-seeking term"}
	}
	if c := f.voc.Match(constants.CategoryContact, norm); len(c) > 0 {
		return Decision{Pass: true, Reason: "talent " + talent[0] + " with contact " + c[0]}
	}
	if rePhone.MatchString(text) {
		return Decision{Pass: true, Reason: "talent " + talent[0] + " with phone number"}
	}
	if p := f.voc.Match(constants.CategoryPayment, norm); len(p) > 0 {
		return Decision{Pass: true, Reason: "talent " + talent[0] + " with payment " + p[0]}
	}
	return Decision{Pass: false, Reason: "talent term without contact or payment marker"}
}
