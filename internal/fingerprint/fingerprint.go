// Package fingerprint derives the deterministic cache keys the loader
// uses for single-flight deduplication and as join-alias seeds.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"graphload/selection"
)

// Compute returns the fingerprint of one load request. The encoding
// canonicalizes map key order before hashing, so two requests that
// differ only in key insertion order share a fingerprint.
func Compute(entity string, condition map[string]any, sel *selection.Tree) string {
	return framedSHA256(entity, EncodeValue(condition), encodeTree(sel))
}

// Alias derives the join-alias seed for a request from its fingerprint.
// Identifiers stay short and SQL-safe; twelve hex characters keep
// sibling requests collision-free within a batch.
func Alias(fp string) string {
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return "q" + fp
}

// EncodeValue renders a literal value canonically: map keys are sorted,
// lists keep their order, scalars use their default formatting.
func EncodeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "~"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = key + "=" + EncodeValue(v[key])
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = EncodeValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// encodeTree renders a selection tree canonically. The nil tree is a
// distinct sentinel so "select everything" never collides with an
// explicit selection.
func encodeTree(tree *selection.Tree) string {
	if tree == nil {
		return "*"
	}
	names := make([]string, 0, len(tree.Children))
	for name := range tree.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		node := tree.Children[name]
		part := name
		if len(node.Arguments) > 0 {
			part += "(" + EncodeValue(node.Arguments) + ")"
		}
		if node.Children != nil {
			part += encodeTree(node.Children)
		}
		parts[i] = part
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// framedSHA256 hashes length-framed parts so adjacent fields can never
// bleed into each other.
func framedSHA256(parts ...string) string {
	hash := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
