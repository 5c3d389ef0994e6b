// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"encoding"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	_ encoding.TextUnmarshaler = (*Rat[int32])(nil)
	_ encoding.TextMarshaler   = Rat[int32]{}
)

// Rat is a TIFF rational number.
// Unlike math/big.Rat it is never normalized, so String returns the numerator and denominator
// exactly as stored in the file.
type Rat[T int32 | uint32] struct {
	Num T
	Den T
}

// Float64 returns the float64 representation of the rational number.
// A zero denominator gives an infinity or NaN.
func (r Rat[T]) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

// String returns the rational number as "num/den".
func (r Rat[T]) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r *Rat[T]) UnmarshalText(text []byte) error {
	s := string(text)
	if !strings.Contains(s, "/") {
		num, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
		}
		r.Num = T(num)
		r.Den = 1
		return nil
	}
	if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err != nil {
		return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
	}
	return nil
}

func (r Rat[T]) MarshalText() (text []byte, err error) {
	return []byte(r.String()), nil
}

type float64Provider interface {
	Float64() float64
}

func toFloat64(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64Provider:
		return vv.Float64(), true
	case float64:
		return vv, true
	default:
		return 0, false
	}
}

// UserComment is the decoded value of the UserComment tag.
type UserComment struct {
	// Encoding is one of ascii, jis, unicode or unknown, taken from the 8 byte prefix.
	Encoding string

	// Text is the remainder rendered as UTF-8 regardless of Encoding.
	Text string
}

var userCommentPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"ASCII\x00\x00\x00", "ascii"},
	{"JIS\x00\x00\x00\x00\x00", "jis"},
	{"UNICODE\x00", "unicode"},
}

const userCommentPrefixLen = 8

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// vc holds the value converters used in the tag table.
// Each converter type checks the raw entry and returns the semantic value.
type vc struct{}

func (vc) typeMismatch(e IFDEntry, want ...ValueType) error {
	return newInvalidFormatErrorf(ErrTypeMismatch, e.Offset, "tag %s: expected %v, got %s", tagIDString(e.Tag), want, e.Type)
}

func (vc) arityMismatch(e IFDEntry, want int) error {
	return newInvalidFormatErrorf(ErrArityMismatch, e.Offset, "tag %s: expected %d values, got %d", tagIDString(e.Tag), want, len(e.Values))
}

func (c vc) expectType(e IFDEntry, types ...ValueType) error {
	if !slices.Contains(types, e.Type) {
		return c.typeMismatch(e, types...)
	}
	return nil
}

func (c vc) expectSingle(e IFDEntry, types ...ValueType) (any, error) {
	if err := c.expectType(e, types...); err != nil {
		return nil, err
	}
	if len(e.Values) != 1 {
		return nil, c.arityMismatch(e, 1)
	}
	return e.Values[0], nil
}

func (c vc) bytes(e IFDEntry) ([]byte, error) {
	if err := c.expectType(e, TypeByte, TypeASCII, TypeUndefined); err != nil {
		return nil, err
	}
	b := make([]byte, len(e.Values))
	for i, v := range e.Values {
		b[i] = v.(uint8)
	}
	return b, nil
}

func (c vc) convertASCII(e IFDEntry) (any, error) {
	if err := c.expectType(e, TypeASCII); err != nil {
		return nil, err
	}
	b, _ := c.bytes(e)
	return lossyString(trimTrailingNulls(b)), nil
}

func (c vc) convertBytes(e IFDEntry) (any, error) {
	return c.bytes(e)
}

func (c vc) convertBytes4(e IFDEntry) (any, error) {
	if err := c.expectType(e, TypeByte); err != nil {
		return nil, err
	}
	if len(e.Values) != 4 {
		return nil, c.arityMismatch(e, 4)
	}
	var b [4]byte
	for i, v := range e.Values {
		b[i] = v.(uint8)
	}
	return b, nil
}

func (c vc) convertUndefinedString(e IFDEntry) (any, error) {
	b, err := c.bytes(e)
	if err != nil {
		return nil, err
	}
	return lossyString(trimTrailingNulls(b)), nil
}

func (c vc) convertUTF16(e IFDEntry) (any, error) {
	if err := c.expectType(e, TypeByte, TypeUndefined); err != nil {
		return nil, err
	}
	b, _ := c.bytes(e)
	s, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return nil, newInvalidFormatErrorf(ErrTypeMismatch, e.Offset, "tag %s: %s", tagIDString(e.Tag), err)
	}
	return strings.TrimRight(string(s), "\x00"), nil
}

func (c vc) convertUserComment(e IFDEntry) (any, error) {
	b, err := c.bytes(e)
	if err != nil {
		return nil, err
	}
	uc := UserComment{Encoding: "unknown"}
	if len(b) >= userCommentPrefixLen {
		prefix := string(b[:userCommentPrefixLen])
		for _, p := range userCommentPrefixes {
			if p.prefix == prefix {
				uc.Encoding = p.encoding
				break
			}
		}
		b = b[userCommentPrefixLen:]
	}
	uc.Text = lossyString(trimTrailingNulls(b))
	return uc, nil
}

func (c vc) convertShort(e IFDEntry) (any, error) {
	return c.expectSingle(e, TypeShort)
}

// convertShorts accepts one or more SHORT values.
func (c vc) convertShorts(e IFDEntry) (any, error) {
	if err := c.expectType(e, TypeShort); err != nil {
		return nil, err
	}
	if len(e.Values) == 0 {
		return nil, c.arityMismatch(e, 1)
	}
	s := make([]uint16, len(e.Values))
	for i, v := range e.Values {
		s[i] = v.(uint16)
	}
	return s, nil
}

func (c vc) convertLong(e IFDEntry) (any, error) {
	return c.expectSingle(e, TypeLong)
}

func (c vc) convertShortOrLong(e IFDEntry) (any, error) {
	v, err := c.expectSingle(e, TypeShort, TypeLong)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(uint16); ok {
		return uint32(s), nil
	}
	return v, nil
}

func (c vc) convertFloat(e IFDEntry) (any, error) {
	v, err := c.expectSingle(e, TypeRational, TypeSRational, TypeDouble)
	if err != nil {
		return nil, err
	}
	f, _ := toFloat64(v)
	return f, nil
}

func (c vc) convertFloats3(e IFDEntry) (any, error) {
	if err := c.expectType(e, TypeRational, TypeSRational, TypeDouble); err != nil {
		return nil, err
	}
	if len(e.Values) != 3 {
		return nil, c.arityMismatch(e, 3)
	}
	var f [3]float64
	for i, v := range e.Values {
		f[i], _ = toFloat64(v)
	}
	return f, nil
}

func (c vc) convertRatString(e IFDEntry) (any, error) {
	v, err := c.expectSingle(e, TypeRational, TypeSRational)
	if err != nil {
		return nil, err
	}
	return v.(fmt.Stringer).String(), nil
}

func (c vc) convertShortEnum(m map[uint16]string, fallback string) func(IFDEntry) (any, error) {
	return func(e IFDEntry) (any, error) {
		v, err := c.expectSingle(e, TypeShort)
		if err != nil {
			return nil, err
		}
		return enumString(m, v.(uint16), fallback), nil
	}
}

func (c vc) convertByteEnum(m map[uint16]string) func(IFDEntry) (any, error) {
	return func(e IFDEntry) (any, error) {
		v, err := c.expectSingle(e, TypeByte)
		if err != nil {
			return nil, err
		}
		return enumString(m, uint16(v.(uint8)), "Invalid"), nil
	}
}

func (c vc) convertUndefinedEnum(m map[uint16]string, fallback string) func(IFDEntry) (any, error) {
	return func(e IFDEntry) (any, error) {
		v, err := c.expectSingle(e, TypeUndefined, TypeByte)
		if err != nil {
			return nil, err
		}
		return enumString(m, uint16(v.(uint8)), fallback), nil
	}
}

func enumString(m map[uint16]string, v uint16, fallback string) string {
	if s, found := m[v]; found {
		return s
	}
	return fallback
}
