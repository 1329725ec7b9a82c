// Package queryparams normalizes raw JSON:API query parameters into a
// queryir.Request.
//
// Normalization never fails. Values that cannot be interpreted are kept in
// their raw form and later degrade to "no constraint" in the compilers.
package queryparams

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/queryir"
)

// filterKeyPattern matches filter[field] and filter[field][op].
var filterKeyPattern = regexp.MustCompile(`^filter\[([^\]]+)\](?:\[([^\]]+)\])?$`)

// ParseQuery normalizes a raw query string. Malformed pairs are skipped.
func ParseQuery(rawQuery string) *queryir.Request {
	// ParseQuery keeps every well-formed pair even when it returns an error.
	values, _ := url.ParseQuery(rawQuery)
	return Parse(values)
}

// Parse normalizes query parameters. When a key repeats, the last value wins.
//
// Keys are processed in sorted order so the result does not depend on map
// iteration. A bare filter=<json> and bracketed filter[...] keys may be
// combined; both then apply (AND).
func Parse(values url.Values) *queryir.Request {
	req := queryir.NewRequest()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var bareFilter any
	fieldFilters := map[string]any{}

	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		raw := vals[len(vals)-1]

		switch {
		case key == "include":
			req.Include = canonicalList(raw, false)
		case strings.HasPrefix(key, "fields[") && strings.HasSuffix(key, "]"):
			typ := ir.CanonicalName(key[len("fields[") : len(key)-1])
			if typ != "" {
				req.Fields[typ] = canonicalList(raw, true)
			}
		case key == "sort":
			req.Sort = parseSort(raw)
		case strings.HasPrefix(key, "page[") && strings.HasSuffix(key, "]"):
			name := key[len("page[") : len(key)-1]
			if name != "" {
				req.Page[name] = queryir.NewPageValue(strings.TrimSpace(raw))
			}
		case key == "filter":
			bareFilter = parseBareFilter(raw)
		case strings.HasPrefix(key, "filter"):
			addFieldFilter(fieldFilters, key, raw)
		}
	}

	req.RawFilter = combineFilters(bareFilter, fieldFilters)
	req.Filter = queryir.BuildFilter(req.RawFilter)
	return req
}

// splitCSV splits on commas, trims each item and drops empty items.
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func canonicalList(raw string, dedupe bool) []string {
	items := splitCSV(raw)
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = ir.CanonicalName(item)
		if item == "" || (dedupe && seen[item]) {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func parseSort(raw string) []queryir.SortSpec {
	specs := []queryir.SortSpec{}
	for _, item := range splitCSV(raw) {
		dir := queryir.Asc
		if strings.HasPrefix(item, "-") {
			dir = queryir.Desc
		}
		field := ir.CanonicalName(strings.TrimLeft(item, "-"))
		if field == "" {
			continue
		}
		specs = append(specs, queryir.SortSpec{Field: field, Direction: dir})
	}
	return specs
}

// parseBareFilter interprets filter=<value>: a JSON object or list when it
// parses as one, otherwise {"value": raw}.
func parseBareFilter(raw string) any {
	switch v := maybeParseJSON(raw).(type) {
	case map[string]any, []any:
		return v
	default:
		return map[string]any{"value": raw}
	}
}

func addFieldFilter(filters map[string]any, key, raw string) {
	value := maybeParseJSON(raw)

	m := filterKeyPattern.FindStringSubmatch(key)
	if m == nil {
		filters[key] = value
		return
	}

	field := ir.CanonicalName(m[1])
	op := strings.TrimSpace(m[2])
	if op == "" {
		filters[field] = value
		return
	}

	entry, ok := filters[field].(map[string]any)
	if !ok || entry["op"] == nil {
		entry = map[string]any{}
	}
	entry["op"] = op
	if queryir.IsListOperatorSpelling(op) {
		entry["val"] = listValue(value)
	} else {
		entry["val"] = value
	}
	filters[field] = entry
}

// listValue splits a CSV string, passes a list through and wraps a scalar.
func listValue(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case string:
		items := splitCSV(val)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out
	default:
		return []any{val}
	}
}

func combineFilters(bare any, fields map[string]any) any {
	switch {
	case bare == nil && len(fields) == 0:
		return nil
	case bare == nil:
		return fields
	case len(fields) == 0:
		return bare
	default:
		return []any{bare, fields}
	}
}

// maybeParseJSON returns the decoded value when s is a JSON object or list,
// either directly or after percent-decoding. Otherwise s is returned as is.
func maybeParseJSON(s string) any {
	stripped := strings.TrimSpace(s)
	if stripped == "" {
		return s
	}
	if v, ok := decodeJSON(stripped); ok {
		return v
	}
	if decoded, err := url.PathUnescape(stripped); err == nil && decoded != stripped {
		if v, ok := decodeJSON(decoded); ok {
			return v
		}
	}
	return s
}

func decodeJSON(s string) (any, bool) {
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return nil, false
	}
	if !gjson.Valid(s) {
		return nil, false
	}
	return gjson.Parse(s).Value(), true
}
