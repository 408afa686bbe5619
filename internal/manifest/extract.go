package manifest

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// The two marker fields that make a map node look like a file entry. No
// other key paths are assumed anywhere in the document.
const (
	nameField = "filename"
	urlField  = "download_url"
	sizeField = "file_size_bytes"
	sha1Field = "sha1sum"
)

// FindEntries walks an arbitrarily nested document depth-first and collects
// every map node carrying both marker fields, at any depth. Descendants of a
// matched node are still visited, since entries can nest inside entries.
// Map keys are visited in sorted order so extraction order is stable across
// runs on the same input.
func FindEntries(doc any) []utils.Descriptor {
	var entries []utils.Descriptor
	walk(doc, func(d utils.Descriptor) {
		entries = append(entries, d)
	})
	return entries
}

func walk(node any, visit func(utils.Descriptor)) {
	switch v := node.(type) {
	case map[string]any:
		if _, hasName := v[nameField]; hasName {
			if _, hasURL := v[urlField]; hasURL {
				visit(descriptorFrom(v))
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], visit)
		}
	case []any:
		for _, item := range v {
			walk(item, visit)
		}
	}
	// Scalars are terminal.
}

func descriptorFrom(m map[string]any) utils.Descriptor {
	d := utils.Descriptor{SizeBytes: -1}
	if s, ok := m[nameField].(string); ok {
		d.Name = s
	}
	if s, ok := m[urlField].(string); ok {
		d.SourceURL = s
	}
	if n, ok := asInt64(m[sizeField]); ok {
		d.SizeBytes = n
	}
	if s, ok := m[sha1Field].(string); ok {
		d.SHA1 = s
	}
	return d
}

// asInt64 normalizes the numeric types the JSON and YAML decoders produce.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// HasSuffixFold reports whether name ends with suffix, case-insensitively.
// Entries without a name are never eligible.
func HasSuffixFold(name, suffix string) bool {
	if name == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix))
}

// FilterEligible keeps the entries whose name passes the suffix filter,
// preserving extraction order.
func FilterEligible(entries []utils.Descriptor, suffix string) []utils.Descriptor {
	var eligible []utils.Descriptor
	for _, e := range entries {
		if HasSuffixFold(e.Name, suffix) {
			eligible = append(eligible, e)
		}
	}
	return eligible
}

// Limit caps entries to the first n in extraction order. n <= 0 means no cap.
func Limit(entries []utils.Descriptor, n int) []utils.Descriptor {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}
