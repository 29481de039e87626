package channels

func getStringOption(opts map[string]any, key string, def string) string {
	if opts == nil {
		return def
	}
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func getIntOption(opts map[string]any, key string, def int) int {
	if opts == nil {
		return def
	}
	if v, ok := opts[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case int64:
			return int(t)
		case uint64:
			return int(t)
		case float64:
			return int(t)
		}
	}
	return def
}

func getFloatOption(opts map[string]any, key string, def float64) float64 {
	if opts == nil {
		return def
	}
	if v, ok := opts[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case int64:
			return float64(t)
		}
	}
	return def
}
