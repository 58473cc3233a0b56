package entity

import (
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

// MaxPatternExamples bounds LearnedPattern.Examples; the first ones seen are kept.
const MaxPatternExamples = 5

// LearnedPattern is a keyword with adaptive confidence.
type LearnedPattern struct {
	Pattern     string                    `json:"pattern"`
	Category    constants.PatternCategory `json:"category"`
	Confidence  float64                   `json:"confidence"`
	Occurrences int                       `json:"occurrences"`
	LastSeen    time.Time                 `json:"last_seen"`
	Examples    []string                  `json:"examples"`
}
