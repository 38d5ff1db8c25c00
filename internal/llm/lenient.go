package llm

import (
	"encoding/json"
	"strconv"
	"strings"
)

var (
	probabilityFields = []string{"confidence"}
	boolFields        = []string{"isMenu"}
	textFields        = []string{"finalText", "reasoning", "reason"}
)

// CoerceScalars repairs the scalar fields models most often get wrong so the
// document can still validate:
//   - confidence as a string ("0.9", "85%") or on a 0-100 scale
//   - isMenu as "true"/"yes"/"false"/"no"
//   - null text fields (dropped)
func CoerceScalars(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var changed []string

	for _, k := range probabilityFields {
		v, ok := m[k]
		if !ok {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case string:
			s := strings.TrimSpace(t)
			pct := strings.HasSuffix(s, "%")
			parsed, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
			if err != nil {
				continue
			}
			f = parsed
			if pct {
				f /= 100
			}
		default:
			continue
		}
		if f > 1 && f <= 100 {
			f /= 100
		}
		if f != v {
			m[k] = f
			changed = append(changed, k)
		}
	}

	for _, k := range boolFields {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y":
			m[k] = true
		case "false", "no", "n":
			m[k] = false
		default:
			continue
		}
		changed = append(changed, k)
	}

	for _, k := range textFields {
		if v, ok := m[k]; ok && v == nil {
			delete(m, k)
			changed = append(changed, k)
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, changed, nil
}
