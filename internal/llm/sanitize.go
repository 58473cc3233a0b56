package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
)

var allowedKeys = map[string]struct{}{
	"is_casting_call": {}, "rejection_reason": {}, "title": {}, "description": {},
	"company": {}, "location": {}, "compensation": {}, "requirements": {},
	"deadline": {}, "contact_info": {}, "project_type": {}, "confidence": {},
}

// StripCodeFence removes a surrounding ```json fence some models add despite instructions.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (contact -> contact_info, pay -> compensation)
// - Coerces is_casting_call given as "true"/"false"
// - Drops null/empty optionals
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(string(raw))), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	renamed("isCastingCall", "is_casting_call")
	renamed("rejectionReason", "rejection_reason")
	renamed("reason", "rejection_reason")
	renamed("contact", "contact_info")
	renamed("contactInfo", "contact_info")
	renamed("pay", "compensation")
	renamed("salary", "compensation")
	renamed("projectType", "project_type")
	renamed("city", "location")

	if v, ok := m["is_casting_call"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			m["is_casting_call"] = true
		case "false", "no":
			m["is_casting_call"] = false
		}
	}

	for k := range maps.Clone(m) {
		if _, ok := allowedKeys[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	for k, v := range maps.Clone(m) {
		switch t := v.(type) {
		case nil:
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
