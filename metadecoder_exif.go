// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"encoding/binary"
	"math"
	"path"
	"strconv"
)

const (
	byteOrderBigEndian    = 0x4d4d
	byteOrderLittleEndian = 0x4949
	tiffMagic             = 42

	// Size of one IFD entry.
	ifdEntrySize = 12
)

// ValueType is one of the 12 TIFF field types.
type ValueType uint16

const (
	TypeByte      ValueType = 1
	TypeASCII     ValueType = 2
	TypeShort     ValueType = 3
	TypeLong      ValueType = 4
	TypeRational  ValueType = 5
	TypeSByte     ValueType = 6
	TypeUndefined ValueType = 7
	TypeSShort    ValueType = 8
	TypeSLong     ValueType = 9
	TypeSRational ValueType = 10
	TypeFloat     ValueType = 11
	TypeDouble    ValueType = 12
)

// Size in bytes of each type.
var valueTypeSize = [...]int64{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
}

var valueTypeNames = [...]string{
	TypeByte:      "BYTE",
	TypeASCII:     "ASCII",
	TypeShort:     "SHORT",
	TypeLong:      "LONG",
	TypeRational:  "RATIONAL",
	TypeSByte:     "SBYTE",
	TypeUndefined: "UNDEFINED",
	TypeSShort:    "SSHORT",
	TypeSLong:     "SLONG",
	TypeSRational: "SRATIONAL",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
}

// Size returns the size in bytes of one value, or 0 if t is not a valid type.
func (t ValueType) Size() int64 {
	if !t.valid() {
		return 0
	}
	return valueTypeSize[t]
}

func (t ValueType) valid() bool {
	return t >= TypeByte && t <= TypeDouble
}

func (t ValueType) String() string {
	if !t.valid() {
		return "ValueType(" + strconv.Itoa(int(t)) + ")"
	}
	return valueTypeNames[t]
}

// IFDEntry is a raw entry in an Image File Directory.
//
// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for an offset to where the values are stored.
type IFDEntry struct {
	Tag   uint16
	Type  ValueType
	Count uint32

	// Values holds Count values, each of one of these Go types depending on Type:
	// uint8 (BYTE, ASCII, UNDEFINED), int8, uint16, int16, uint32, int32,
	// Rat[uint32], Rat[int32], float32 or float64.
	Values []any

	// Offset is the absolute offset of the entry in the file.
	Offset int64
}

// EXIF is a decoded TIFF/EXIF directory structure.
type EXIF struct {
	// ByteOrder is the byte order declared in the TIFF header.
	ByteOrder binary.ByteOrder

	// Tags holds the tags of all directories in the IFD chain, followed by the tags of the
	// Exif and GPS sub directories.
	// Tag IDs are not unique across directories, so the same name may appear more than once.
	Tags []Tag
}

// Get returns the first tag with the given name.
func (x *EXIF) Get(name TagName) (Tag, bool) {
	for _, t := range x.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// All returns all tags with the given name in directory visit order.
func (x *EXIF) All(name TagName) []Tag {
	var tags []Tag
	for _, t := range x.Tags {
		if t.Name == name {
			tags = append(tags, t)
		}
	}
	return tags
}

// DecodeEXIF decodes a TIFF/EXIF byte stream starting with the byte order mark.
// All offsets in the stream are relative to the start of b.
func DecodeEXIF(b []byte, opts Options) (*EXIF, error) {
	opts = opts.withDefaults()
	dec := newMetaDecoderEXIF(newStreamReader(b, binary.BigEndian), opts)
	if err := dec.decode(); err != nil {
		return nil, err
	}
	return dec.result, nil
}

func newMetaDecoderEXIF(r *streamReader, opts Options) *metaDecoderEXIF {
	return &metaDecoderEXIF{
		streamReader: r,
		opts:         opts,
		visited:      make(map[int64]bool),
	}
}

type metaDecoderEXIF struct {
	*streamReader
	opts Options

	numTags uint32
	visited map[int64]bool
	result  *EXIF
}

type namespacedEntry struct {
	namespace string
	entry     IFDEntry
}

func (e *metaDecoderEXIF) decode() error {
	bom := e.next(2)
	if e.err != nil {
		return e.err
	}
	switch byteOrderTag := binary.BigEndian.Uint16(bom); byteOrderTag {
	case byteOrderBigEndian:
		e.byteOrder = binary.BigEndian
	case byteOrderLittleEndian:
		e.byteOrder = binary.LittleEndian
	default:
		return newInvalidFormatErrorf(ErrBadMagic, e.offset()-2, "byte order mark %#04x", byteOrderTag)
	}

	if magic := e.read2(); e.err == nil && magic != tiffMagic {
		return newInvalidFormatErrorf(ErrBadMagic, e.offset()-2, "expected %d, got %d", tiffMagic, magic)
	}

	// The main IFD chain.
	var entries []namespacedEntry
	for i := 0; ; i++ {
		offset := e.read4()
		if e.err != nil {
			return e.err
		}
		if offset == 0 {
			break
		}
		namespace := "IFD" + strconv.Itoa(i)
		ifd, err := e.decodeIFDAt(int64(offset))
		if err != nil {
			return err
		}
		for _, entry := range ifd {
			entries = append(entries, namespacedEntry{namespace: namespace, entry: entry})
		}
	}

	tags, err := e.projectEntries(entries)
	if err != nil {
		return err
	}

	// Sub directories are decoded once, after the main chain, in the order their pointers were found.
	var subEntries []namespacedEntry
	for _, t := range tags {
		var dir string
		switch t.Name {
		case TagExifIfdPointer:
			dir = "ExifIFD"
		case TagGpsIfdPointer:
			dir = "GPSInfoIFD"
		default:
			continue
		}
		ifd, err := e.decodeSubIFDAt(int64(t.Value.(uint32)))
		if err != nil {
			return err
		}
		namespace := path.Join(t.Namespace, dir)
		for _, entry := range ifd {
			subEntries = append(subEntries, namespacedEntry{namespace: namespace, entry: entry})
		}
	}

	subTags, err := e.projectEntries(subEntries)
	if err != nil {
		return err
	}

	e.result = &EXIF{
		ByteOrder: e.byteOrder,
		Tags:      append(tags, subTags...),
	}

	return nil
}

func (e *metaDecoderEXIF) projectEntries(entries []namespacedEntry) ([]Tag, error) {
	tags := make([]Tag, 0, len(entries))
	for _, ne := range entries {
		t, err := projectTag(ne.entry)
		if err != nil {
			return nil, err
		}
		t.Namespace = ne.namespace
		tags = append(tags, t)
	}
	return tags, nil
}

// decodeIFDAt seeks to offset and decodes one directory of the main chain.
// The reader is left positioned just after the last entry, i.e. at the next IFD offset.
func (e *metaDecoderEXIF) decodeIFDAt(offset int64) ([]IFDEntry, error) {
	if e.visited[offset] {
		return nil, newInvalidFormatErrorf(ErrCyclicIFD, e.base+offset, "IFD visited twice")
	}
	e.visited[offset] = true
	e.seek(offset)
	return e.decodeIFD()
}

// decodeSubIFDAt decodes the directory an Exif or GPS pointer refers to.
// Pointers found inside it are not followed, and several pointers may share one directory.
func (e *metaDecoderEXIF) decodeSubIFDAt(offset int64) ([]IFDEntry, error) {
	e.seek(offset)
	return e.decodeIFD()
}

func (e *metaDecoderEXIF) decodeIFD() ([]IFDEntry, error) {
	numEntries := e.read2()
	if e.err != nil {
		return nil, e.err
	}
	e.numTags += uint32(numEntries)
	if e.numTags > e.opts.LimitNumTags {
		return nil, newInvalidFormatErrorf(ErrInvalidSize, e.offset()-2, "more than %d tags", e.opts.LimitNumTags)
	}

	var entries []IFDEntry
	for i := uint16(0); i < numEntries; i++ {
		entry, err := e.decodeEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *metaDecoderEXIF) decodeEntry() (IFDEntry, error) {
	start := e.pos
	entry := IFDEntry{
		Offset: e.offset(),
		Tag:    e.read2(),
		Type:   ValueType(e.read2()),
		Count:  e.read4(),
	}
	if e.err != nil {
		return entry, e.err
	}

	size := entry.Type.Size()
	if size == 0 {
		return entry, newInvalidFormatErrorf(ErrUnrecognizedValueType, entry.Offset, "tag %#04x has type %d", entry.Tag, entry.Type)
	}

	valLen := size * int64(entry.Count)
	if valLen > 4 {
		e.seek(int64(e.read4()))
	}
	if valLen > e.remaining() {
		e.fail(ErrTruncatedInput, e.pos, "tag %#04x needs %d bytes of values", entry.Tag, valLen)
	}
	if e.err != nil {
		return entry, e.err
	}

	entry.Values = e.readValues(entry.Type, int(entry.Count))
	if e.err != nil {
		return entry, e.err
	}

	// Continue with the next entry regardless of where the values were stored.
	e.seek(start + ifdEntrySize)

	return entry, e.err
}

func (e *metaDecoderEXIF) readValues(typ ValueType, count int) []any {
	values := make([]any, count)
	for i := range values {
		values[i] = e.readValue(typ)
	}
	return values
}

func (e *metaDecoderEXIF) readValue(typ ValueType) any {
	switch typ {
	case TypeByte, TypeASCII, TypeUndefined:
		return e.read1()
	case TypeSByte:
		return int8(e.read1())
	case TypeShort:
		return e.read2()
	case TypeSShort:
		return int16(e.read2())
	case TypeLong:
		return e.read4()
	case TypeSLong:
		return int32(e.read4())
	case TypeRational:
		n, d := e.read4(), e.read4()
		return Rat[uint32]{Num: n, Den: d}
	case TypeSRational:
		n, d := int32(e.read4()), int32(e.read4())
		return Rat[int32]{Num: n, Den: d}
	case TypeFloat:
		return math.Float32frombits(e.read4())
	case TypeDouble:
		return math.Float64frombits(e.read8())
	default:
		panic("unreachable")
	}
}
