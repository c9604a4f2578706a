// Package fingerprint computes the deterministic cache key of a pipeline
// node. The fingerprint covers the node's semantic identity — api_class,
// canonicalized params, provider name, and the ordered fingerprints of its
// upstream nodes — so two nodes with equal fingerprints are interchangeable.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Compute hashes (api_class, canonical params, provider, upstream
// fingerprints) into a hex-encoded 256-bit digest.
func Compute(apiClass string, params json.RawMessage, provider string, upstream []string) (string, error) {
	canonical, err := Canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", apiClass, err)
	}

	h := sha256.New()
	// length-prefixed fields keep the encoding unambiguous
	writeField(h, apiClass)
	writeField(h, provider)
	writeField(h, canonical)
	for _, up := range upstream {
		writeField(h, up)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(h interface{ Write([]byte) (int, error) }, field string) {
	_, _ = fmt.Fprintf(h, "%d:", len(field))
	_, _ = h.Write([]byte(field))
}

// Canonicalize produces a stable encoding of a JSON param record: object
// keys sorted at every level, numbers normalized, no insignificant
// whitespace. NaN and infinities are rejected.
func Canonicalize(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}

	var value any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := encodeCanonical(&sb, value); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func encodeCanonical(sb *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if v {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case string:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		sb.Write(encoded)
	case json.Number:
		normalized, err := normalizeNumber(v)
		if err != nil {
			return err
		}
		sb.WriteString(normalized)
	case []any:
		sb.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := encodeCanonical(sb, elem); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(encodedKey)
			sb.WriteByte(':')
			if err := encodeCanonical(sb, v[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("cannot canonicalize value of type %T", value)
	}
	return nil
}

// normalizeNumber renders integers without exponent or fraction and other
// numbers in shortest round-trip form, so 1, 1.0 and 1e0 fingerprint
// identically.
func normalizeNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %q in params", n.String())
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}
