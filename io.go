// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"encoding/binary"
	"fmt"
	"strings"
)

type decoder interface {
	decode() error
}

// streamReader reads binary data from an in-memory buffer.
// The first failed read is remembered in err and all subsequent reads return zero values,
// so callers only need to check err at structure boundaries and in count driven loops.
// Note that this is not thread safe.
type streamReader struct {
	buf       []byte
	pos       int64
	byteOrder binary.ByteOrder

	// base is the absolute offset of buf[0] in the decoded input.
	// It is only used for error reporting.
	base int64

	err error
}

func newStreamReader(b []byte, byteOrder binary.ByteOrder) *streamReader {
	return &streamReader{
		buf:       b,
		byteOrder: byteOrder,
	}
}

// sub returns a new reader over buf[start:end] sharing the same byte order.
// Positions in the new reader are relative to start.
func (e *streamReader) sub(start, end int64) *streamReader {
	if start < 0 || end > e.size() || start > end {
		e.fail(ErrTruncatedInput, start, "sub range [%d:%d] of %d bytes", start, end, e.size())
		return &streamReader{byteOrder: e.byteOrder, base: e.base + start, err: e.err}
	}
	return &streamReader{
		buf:       e.buf[start:end],
		byteOrder: e.byteOrder,
		base:      e.base + start,
	}
}

func (e *streamReader) size() int64 {
	return int64(len(e.buf))
}

func (e *streamReader) remaining() int64 {
	return e.size() - e.pos
}

// offset returns the absolute position in the decoded input.
func (e *streamReader) offset() int64 {
	return e.base + e.pos
}

// fail records the first error. pos is relative to this reader.
func (e *streamReader) fail(kind error, pos int64, format string, args ...any) {
	if e.err != nil {
		return
	}
	e.err = newInvalidFormatErrorf(kind, e.base+pos, format, args...)
}

func (e *streamReader) seek(pos int64) {
	if e.err != nil {
		return
	}
	if pos < 0 || pos > e.size() {
		e.fail(ErrTruncatedInput, pos, "seek to %d in %d bytes", pos, e.size())
		return
	}
	e.pos = pos
}

func (e *streamReader) skip(n int64) {
	if e.err == nil && (n < 0 || n > e.remaining()) {
		e.fail(ErrTruncatedInput, e.pos, "skip %d bytes, have %d", n, e.remaining())
		return
	}
	e.seek(e.pos + n)
}

// next returns the next n bytes and advances the position.
// The returned slice aliases the buffer.
func (e *streamReader) next(n int64) []byte {
	if e.err != nil {
		return nil
	}
	if n < 0 || n > e.remaining() {
		e.fail(ErrTruncatedInput, e.pos, "need %d bytes, have %d", n, e.remaining())
		return nil
	}
	b := e.buf[e.pos : e.pos+n]
	e.pos += n
	return b
}

func (e *streamReader) read1() uint8 {
	b := e.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (e *streamReader) read2() uint16 {
	b := e.next(2)
	if b == nil {
		return 0
	}
	return e.byteOrder.Uint16(b)
}

func (e *streamReader) read4() uint32 {
	b := e.next(4)
	if b == nil {
		return 0
	}
	return e.byteOrder.Uint32(b)
}

func (e *streamReader) read8() uint64 {
	b := e.next(8)
	if b == nil {
		return 0
	}
	return e.byteOrder.Uint64(b)
}

// readBytes reads n bytes. The returned slice aliases the buffer.
func (e *streamReader) readBytes(n int64) []byte {
	return e.next(n)
}

// readString reads a NUL padded string of n bytes with the trailing NULs removed.
func (e *streamReader) readString(n int64) string {
	return lossyString(trimTrailingNulls(e.next(n)))
}

// readNullTerminatedString reads bytes until a NUL byte or limit is reached.
// The NUL byte is consumed but not included. Reaching limit without a NUL is not an error.
func (e *streamReader) readNullTerminatedString(limit int64) string {
	if e.err != nil {
		return ""
	}
	if limit > e.size() {
		limit = e.size()
	}
	start := e.pos
	for e.pos < limit {
		c := e.buf[e.pos]
		e.pos++
		if c == 0 {
			return lossyString(e.buf[start : e.pos-1])
		}
	}
	return lossyString(e.buf[start:e.pos])
}

// readVersionAndFlags reads the 1 byte version and 24 bit flags of an ISOBMFF full box.
func (e *streamReader) readVersionAndFlags() (uint8, uint32) {
	b := e.next(4)
	if b == nil {
		return 0, 0
	}
	return b[0], uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (e *streamReader) readFourCC() FourCC {
	var f FourCC
	copy(f[:], e.next(4))
	return f
}

// FourCC is a four character code, e.g. a box type.
type FourCC [4]byte

func (f FourCC) String() string {
	return lossyString(f[:])
}

// GoString makes the code readable in %#v and pretty printed output.
func (f FourCC) GoString() string {
	return fmt.Sprintf("%q", f.String())
}

func lossyString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func trimTrailingNulls(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
