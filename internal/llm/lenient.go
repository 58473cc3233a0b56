package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	reISODate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateLayout = []string{"2006/01/02", "02/01/2006", "2-1-2006", "2006-1-2", "January 2, 2006", "2 January 2006", time.RFC3339}
	optStrings = []string{"compensation", "requirements", "contact_info", "project_type"}
)

// SanitizeOptionalFields removes or normalizes optional fields that don't meet the stricter schema,
// so the overall document can still validate. Only OPTIONALS are touched.
func SanitizeOptionalFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	// deadline: reformat recognizable dates, drop the rest
	if v, ok := m["deadline"]; ok {
		s, isStr := v.(string)
		s = strings.TrimSpace(s)
		switch {
		case !isStr:
			delete(m, "deadline")
			dropped = append(dropped, "deadline")
		case reISODate.MatchString(s) && isCalendarDate(s):
			m["deadline"] = s
		default:
			if d, ok := parseLooseDate(s); ok {
				m["deadline"] = d
			} else {
				delete(m, "deadline")
				dropped = append(dropped, "deadline")
			}
		}
	}

	for _, k := range optStrings {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
		case float64:
			m[k] = fmt.Sprintf("%g", t)
		case []any:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			if len(parts) == 0 {
				delete(m, k)
				dropped = append(dropped, k)
			} else {
				m[k] = strings.Join(parts, "; ")
			}
		default:
			delete(m, k)
			dropped = append(dropped, k)
		}
	}

	if c, ok := m["confidence"].(float64); ok && (c < 0 || c > 1) {
		delete(m, "confidence")
		dropped = append(dropped, "confidence")
	} else if _, isNum := m["confidence"].(float64); !isNum {
		if _, present := m["confidence"]; present {
			delete(m, "confidence")
			dropped = append(dropped, "confidence")
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func parseLooseDate(s string) (string, bool) {
	for _, layout := range dateLayout {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func isCalendarDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
