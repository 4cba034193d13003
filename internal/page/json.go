package page

import "encoding/json"

func jsonUnmarshal(raw string, v interface{}) error {
	return json.Unmarshal([]byte(raw), v)
}

// TypeMatches reports whether a structured-data block declares one of the
// given @type values. The field is matched case-sensitively and may be either
// a scalar or a list.
func TypeMatches(block map[string]interface{}, types ...string) bool {
	declared, ok := block["@type"]
	if !ok {
		return false
	}
	switch v := declared.(type) {
	case string:
		for _, t := range types {
			if v == t {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			for _, t := range types {
				if s == t {
					return true
				}
			}
		}
	}
	return false
}

// StringField digs a string out of a (possibly nested) structured-data block.
func StringField(block map[string]interface{}, path ...string) (string, bool) {
	current := block
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			s, ok := value.(string)
			return s, ok && s != ""
		}
		current, ok = value.(map[string]interface{})
		if !ok {
			return "", false
		}
	}
	return "", false
}

// NumberField digs a numeric value out of a structured-data block. Numbers
// rendered as strings are accepted, since the source mixes both.
func NumberField(block map[string]interface{}, path ...string) (float64, bool) {
	current := block
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return 0, false
		}
		if i == len(path)-1 {
			switch v := value.(type) {
			case float64:
				return v, true
			case string:
				var f float64
				if err := json.Unmarshal([]byte(v), &f); err == nil {
					return f, true
				}
			}
			return 0, false
		}
		current, ok = value.(map[string]interface{})
		if !ok {
			return 0, false
		}
	}
	return 0, false
}
