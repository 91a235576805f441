package esri

// maxExtractDepth bounds the recursive attribute search. Provider responses
// nest the attribute object a handful of levels deep; anything deeper is
// malformed.
const maxExtractDepth = 8

// ExtractAttributes searches a decoded JSON tree for the first "attributes"
// object. The provider nests it at varying depth depending on the request
// shape, so the search walks objects and arrays rather than assuming a fixed
// path. Returns nil when no attribute object exists within the depth bound.
func ExtractAttributes(node any) map[string]any {
	return extractAttributes(node, 0)
}

func extractAttributes(node any, depth int) map[string]any {
	if depth > maxExtractDepth {
		return nil
	}

	switch v := node.(type) {
	case map[string]any:
		if attrs, ok := v["attributes"].(map[string]any); ok {
			return attrs
		}
		for _, child := range v {
			if found := extractAttributes(child, depth+1); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range v {
			if found := extractAttributes(item, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

// attrFloat coerces a provider attribute value to float64, defaulting to 0
// for absent or non-numeric values.
func attrFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		return parseFloatOrZero(n)
	default:
		return 0
	}
}
