package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// ParseResult turns raw provider output into a validated ExtractionResult.
// It returns the normalized document, which is what gets cached.
// Any failure is an ExtractionError of kind InvalidOutput.
func ParseResult(raw string, lenient bool, logger *slog.Logger) (ExtractionResult, []byte, error) {
	invalid := func(reason string, err error) (ExtractionResult, []byte, error) {
		return ExtractionResult{}, nil, &ExtractionError{Kind: KindInvalidOutput, Reason: reason, Raw: raw, Err: err}
	}

	doc, _, err := NormalizeAndSanitizeJSON([]byte(raw), logger)
	if err != nil {
		return invalid("malformed json", err)
	}

	if err := ValidateCastingJSON(doc); err != nil {
		if !lenient {
			return invalid("schema validation failed", err)
		}
		cleaned, dropped, sErr := SanitizeOptionalFields(doc)
		if sErr != nil {
			return invalid("sanitize failed", sErr)
		}
		if vErr := ValidateCastingJSON(cleaned); vErr != nil {
			return invalid("schema validation failed", vErr)
		}
		if logger != nil {
			logger.Warn("llm.extract.lenient_sanitize_applied", "dropped", dropped)
		}
		doc = cleaned
	}

	var out ExtractionResult
	if err := json.Unmarshal(doc, &out); err != nil {
		return invalid("unmarshal result", fmt.Errorf("unmarshal fields: %w", err))
	}
	return out, doc, nil
}
