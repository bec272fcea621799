package ir

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON encoding used for every hash
// in the ledger.
// CRITICAL: This is the ONLY serialization that may feed a hash.
//
// Rules:
//  1. Strings and object keys are NFC normalized
//  2. Object keys sorted byte-wise on the normalized UTF-8 form
//  3. Null object members are elided; null elsewhere is ErrNullValue
//  4. Integers only; floats, NaN and infinities are ErrNonIntegerNumeric
//  5. No insignificant whitespace; only quote, backslash and control
//     characters are escaped (no HTML escaping)
func MarshalCanonical(v any) ([]byte, error) {
	val, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshalCanonical is like MarshalCanonical but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMarshalCanonical(v any) []byte {
	b, err := MarshalCanonical(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeCanonical(buf *bytes.Buffer, v IRValue) error {
	switch val := v.(type) {
	case nil, IRNull:
		return ErrNullValue
	case IRString:
		return writeCanonicalString(buf, string(val))
	case IRInt:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case IRBool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case IRArray:
		return encodeCanonicalArray(buf, val)
	case IRObject:
		return encodeCanonicalObject(buf, val)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func encodeCanonicalArray(buf *bytes.Buffer, arr IRArray) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

type canonicalMember struct {
	key   string // NFC normalized
	value IRValue
}

func encodeCanonicalObject(buf *bytes.Buffer, obj IRObject) error {
	members := make([]canonicalMember, 0, len(obj))
	for k, v := range obj {
		if isNull(v) {
			continue
		}
		if !utf8.ValidString(k) {
			return fmt.Errorf("key %q: %w", k, ErrInvalidUTF8)
		}
		members = append(members, canonicalMember{key: norm.NFC.String(k), value: v})
	}
	slices.SortFunc(members, func(a, b canonicalMember) int {
		return strings.Compare(a.key, b.key)
	})

	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			if members[i-1].key == m.key {
				return fmt.Errorf("key %q: %w", m.key, ErrDuplicateKey)
			}
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, m.key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeCanonical(buf, m.value); err != nil {
			return fmt.Errorf("value for key %q: %w", m.key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func isNull(v IRValue) bool {
	switch v.(type) {
	case nil, IRNull:
		return true
	}
	return false
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString writes s NFC normalized with RFC 8785 escaping:
// quote, backslash and U+0000..U+001F only. U+2028/U+2029 and <, >, & are
// written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c < 0x20:
			switch c {
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
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xF])
			}
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
	return nil
}
