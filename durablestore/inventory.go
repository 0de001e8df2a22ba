package durablestore

// compareVersions implements the §4.4 version comparison policy. ok is
// false when the two sides are not comparable (mixed numeric/string types
// other than the nil special case), in which case the caller should treat
// it as a type mismatch.
//
// A nil stored version is strictly less than any non-nil candidate. Two
// nil versions are equal.
func compareVersions(stored, candidate any) (cmp int, ok bool) {
	if stored == nil && candidate == nil {
		return 0, true
	}
	if stored == nil {
		return -1, true
	}
	if candidate == nil {
		return 1, true
	}

	sNum, sIsNum := asFloat64(stored)
	cNum, cIsNum := asFloat64(candidate)
	if sIsNum && cIsNum {
		switch {
		case sNum < cNum:
			return -1, true
		case sNum > cNum:
			return 1, true
		default:
			return 0, true
		}
	}

	sStr, sIsStr := stored.(string)
	cStr, cIsStr := candidate.(string)
	if sIsStr && cIsStr {
		switch {
		case sStr < cStr:
			return -1, true
		case sStr > cStr:
			return 1, true
		default:
			return 0, true
		}
	}

	return 0, false
}

// sameVersionType reports whether stored and candidate share the version
// "type" the inventory tracks (numeric vs string); nil is compatible with
// either, since a nil stored version has never committed a type yet.
func sameVersionType(stored, candidate any) bool {
	if stored == nil || candidate == nil {
		return true
	}
	_, sIsNum := asFloat64(stored)
	_, cIsNum := asFloat64(candidate)
	if sIsNum != cIsNum {
		return false
	}
	if sIsNum {
		return true
	}
	_, sIsStr := stored.(string)
	_, cIsStr := candidate.(string)
	return sIsStr == cIsStr
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
