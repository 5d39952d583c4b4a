// Package canonical derives the deterministic identity key of an experiment
// configuration.
//
// Two configurations that are structurally equal — comparing Sets without
// regard to element order and sequences in order — always canonicalize to
// the same key, so the booking protocol deduplicates them across workers
// and across processes. Canonicalization is total over the supported value
// model and fails before any claim attempt for anything outside it: a
// configuration that cannot be canonicalized can never be deduplicated.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/machinalis/featureforge"
)

// Key returns the canonical identity key for cfg: the hex SHA-256 of its
// canonical textual form. It fails with featureforge.ErrUnsupportedValue
// for any value outside the supported model.
func Key(cfg featureforge.Config) (string, error) {
	text, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

// Marshal returns the canonical textual form of cfg: object keys sorted,
// sequences preserved in place, Sets sorted by the canonical form of their
// own elements. The encoding distinguishes integers from floats of equal
// numeric value (1 and 1.0 are different experiments) — a deliberate
// consequence of restricting configs to JSON-safe primitives.
func Marshal(cfg featureforge.Config) (string, error) {
	var b strings.Builder
	if err := encodeMap(&b, map[string]any(cfg), "$"); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeValue(b *strings.Builder, v any, path string) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case string:
		b.WriteString(strconv.Quote(t))
	case featureforge.Config:
		return encodeMap(b, map[string]any(t), path)
	case map[string]any:
		return encodeMap(b, t, path)
	case featureforge.Set:
		return encodeSet(b, t, path)
	case []any:
		return encodeSeq(b, t, path)
	case json.Number:
		// Preserved verbatim so that backlog files keep the exact numeric
		// text they were written with.
		b.WriteString(t.String())
	case int:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case float32:
		writeFloat(b, float64(t))
	case float64:
		writeFloat(b, t)
	default:
		return fmt.Errorf("%w: %T at %s", featureforge.ErrUnsupportedValue, v, path)
	}
	return nil
}

// writeFloat emits a float with an explicit fractional or exponent part so
// that float64(1) encodes as "1.0", distinct from int(1)'s "1".
func writeFloat(b *strings.Builder, f float64) {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && s != "NaN" {
		s += ".0"
	}
	b.WriteString(s)
}

func encodeMap(b *strings.Builder, m map[string]any, path string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		if err := encodeValue(b, m[k], path+"."+k); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func encodeSeq(b *strings.Builder, seq []any, path string) error {
	b.WriteByte('[')
	for i, e := range seq {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encodeValue(b, e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

// encodeSet emits elements sorted by their own canonical encoding, so the
// result is independent of the order the Set was built in. The <> delimiters
// keep a Set distinct from a sequence with the same elements.
func encodeSet(b *strings.Builder, set featureforge.Set, path string) error {
	encoded := make([]string, len(set))
	for i, e := range set {
		var eb strings.Builder
		if err := encodeValue(&eb, e, fmt.Sprintf("%s{%d}", path, i)); err != nil {
			return err
		}
		encoded[i] = eb.String()
	}
	sort.Strings(encoded)

	b.WriteByte('<')
	for i, s := range encoded {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s)
	}
	b.WriteByte('>')
	return nil
}
