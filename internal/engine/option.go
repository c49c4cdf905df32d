package engine

// Option is one normalized answer choice. Upstream payloads carry options
// either as bare strings or as objects with optional label/value keys;
// normalization happens once at ingestion so the rest of the engine never
// type-sniffs.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// NormalizeOptions converts a decoded JSON option list into Option records.
// A bare string becomes both label and value. For object entries, label and
// value each fall back to the other; entries with neither are dropped.
func NormalizeOptions(raw []interface{}) []Option {
	out := make([]Option, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			if v == "" {
				continue
			}
			out = append(out, Option{Label: v, Value: v})
		case map[string]interface{}:
			label, _ := v["label"].(string)
			value, _ := v["value"].(string)
			if label == "" {
				label = value
			}
			if value == "" {
				value = label
			}
			if label == "" {
				continue
			}
			out = append(out, Option{Label: label, Value: value})
		}
	}
	return out
}

// Labels returns the display labels of the options in order.
func Labels(opts []Option) []string {
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	return labels
}
