package ir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName trims and NFC-normalizes an identifier segment
// (resource type, field, relationship or include path).
func CanonicalName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// SplitPath splits a dotted path into its segments.
// Returns nil for an empty path.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// FormatID returns the string form of a primary key value.
func FormatID(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// NormalizeValue converts a scanned column value into a JSON-friendly value.
// Driver byte slices become strings and times become RFC 3339 strings.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

// BindID converts a resource id into a query argument. Decimal ids bind as
// integers.
func BindID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
