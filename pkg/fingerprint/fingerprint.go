// Package fingerprint hashes JSON-shaped values independently of map order
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Of returns the hex SHA-256 of v's canonical JSON form. exclude lists
// dot-notation paths to leave out; a path applies to every element of an
// array it passes through, so "groups.id" drops the id of each group.
func Of(v any, exclude ...string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		excluded[p] = true
	}

	var b strings.Builder
	canonicalize(&b, data, excluded, "")
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(b *strings.Builder, data any, excluded map[string]bool, path string) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			if !excluded[join(path, k)] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			b.Write(key)
			b.WriteByte(':')
			canonicalize(b, v[k], excluded, join(path, k))
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, excluded, path)
		}
		b.WriteByte(']')
	default:
		scalar, _ := json.Marshal(v)
		b.Write(scalar)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
