package security

import (
	"math"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPropertyStringLength caps recorded analytics string values.
const MaxPropertyStringLength = 100

// ObjectMarker replaces nested objects in analytics properties.
const ObjectMarker = "[object]"

// sensitiveSubstrings are dropped wherever they appear in a property key.
var sensitiveSubstrings = []string{
	"email", "phone", "address", "token", "password", "passwd", "secret",
	"credential", "session", "cookie", "ssn", "birth", "location", "latitude",
	"longitude", "username", "fullname", "firstname", "lastname", "apikey",
}

// sensitiveWords are too short for substring matching and are compared
// against whole words of the key.
var sensitiveWords = map[string]bool{
	"ip":   true,
	"mac":  true,
	"name": true,
	"key":  true,
	"auth": true,
	"geo":  true,
	"pin":  true,
	"user": true,
}

// IsSensitiveKey reports whether an analytics property key names
// personally-identifying data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	compact := strings.NewReplacer("_", "", "-", "", ".", "", " ", "").Replace(lower)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(compact, s) {
			return true
		}
	}
	for _, w := range splitWords(key) {
		if sensitiveWords[w] {
			return true
		}
	}
	return false
}

// splitWords breaks camelCase, snake_case and kebab-case keys into lowercase words.
func splitWords(key string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	prevLower := false
	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
			prevLower = false
		case unicode.IsUpper(r) && prevLower:
			flush()
			cur.WriteRune(r)
			prevLower = false
		default:
			cur.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	flush()
	return words
}

// SanitizeProperties returns a privacy-filtered copy of props: sensitive keys
// are dropped, strings truncated, numbers rounded to two decimals, slices
// reduced to their length and nested objects replaced by ObjectMarker.
func SanitizeProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if IsSensitiveKey(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		return truncateRunes(val, MaxPropertyStringLength)
	case bool:
		return val
	case float64:
		return round2(val)
	case float32:
		return round2(float64(val))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return round2(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return round2(float64(rv.Uint()))
	case reflect.Slice, reflect.Array:
		return rv.Len()
	case reflect.String:
		return truncateRunes(rv.String(), MaxPropertyStringLength)
	default:
		return ObjectMarker
	}
}

func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*100) / 100
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
