package util

import (
	"math"
	"strconv"
	"strings"
)

// missingTokens are amount cells treated as absent rather than malformed.
var missingTokens = map[string]struct{}{
	"": {}, "nan": {}, "na": {}, "n/a": {}, "null": {}, "none": {}, "-": {},
}

// ParseAmount reads a numeric cell. Thousands separators made of spaces and a
// lone decimal comma are accepted. ok is false for empty or non-numeric cells.
func ParseAmount(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)
	if _, missing := missingTokens[strings.ToLower(s)]; missing {
		return 0, false
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u2009", "", "_", "").Replace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeHeader lowercases and trims a column name, dropping a UTF-8 BOM.
func NormalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}
