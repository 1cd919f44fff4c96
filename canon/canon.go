// ABOUTME: Canonical JSON encoding for hashing and deterministic comparison
// ABOUTME: Sorted keys by UTF-16 code units, NFC strings, no HTML escaping
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v. Any value encoding/json accepts is
// first normalized to plain maps, slices and numbers, so structs and maps
// with the same JSON shape yield identical bytes.
func Marshal(v any) ([]byte, error) {
	plain, err := normalize(v, true)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(&buf, plain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Normalize round-trips v through JSON so it holds only map[string]any,
// []any, string, float64, bool and nil. Values read back from storage have
// this shape, so normalizing before hashing keeps hashes stable across reloads.
func Normalize(v any) (any, error) {
	return normalize(v, false)
}

// Compare orders two values by their canonical encoding. Values that cannot
// be encoded fall back to their Go formatting.
func Compare(a, b any) int {
	ab, errA := Marshal(a)
	if errA != nil {
		ab = []byte(fmt.Sprintf("%#v", a))
	}
	bb, errB := Marshal(b)
	if errB != nil {
		bb = []byte(fmt.Sprintf("%#v", b))
	}
	return bytes.Compare(ab, bb)
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

func normalize(v any, useNumber bool) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, json.Number:
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if useNumber {
		dec.UseNumber()
	}
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

func write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, val)
	case json.Number:
		s, err := formatNumberString(string(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case float64:
		s, err := formatFloat(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := write(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		plain, err := normalize(v, true)
		if err != nil {
			return err
		}
		return write(buf, plain)
	}
	return nil
}

// writeString escapes only quote, backslash and control characters.
func writeString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func formatNumberString(s string) (string, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", s, err)
	}
	return formatFloat(f)
}

// formatFloat renders integral values without a fraction and uses the
// shortest round-trip form otherwise, with unpadded exponents.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	if f == 0 {
		return "0", nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	digits := strings.TrimLeft(exp[1:], "0")
	if sign == '+' {
		return mant + "e+" + digits, nil
	}
	return mant + "e-" + digits, nil
}

// compareKeys orders keys by UTF-16 code units.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
