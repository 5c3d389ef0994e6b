// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta_test

import (
	"bytes"
	"encoding/binary"
	"math"
)

// TIFF field types used when building test fixtures.
const (
	tByte      = 1
	tASCII     = 2
	tShort     = 3
	tLong      = 4
	tRational  = 5
	tUndefined = 7
	tSRational = 10
	tDouble    = 12
)

// byteOrder is implemented by binary.BigEndian and binary.LittleEndian.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// field is an IFD entry to be encoded.
type field struct {
	tag    uint16
	typ    uint16
	count  uint32
	encode func(order byteOrder) []byte
}

func asciiField(tag uint16, s string) field {
	return field{tag: tag, typ: tASCII, count: uint32(len(s) + 1), encode: func(byteOrder) []byte {
		return append([]byte(s), 0)
	}}
}

func bytesField(tag uint16, typ uint16, b []byte) field {
	return field{tag: tag, typ: typ, count: uint32(len(b)), encode: func(byteOrder) []byte {
		return b
	}}
}

func shortField(tag uint16, vals ...uint16) field {
	return field{tag: tag, typ: tShort, count: uint32(len(vals)), encode: func(order byteOrder) []byte {
		var b []byte
		for _, v := range vals {
			b = order.AppendUint16(b, v)
		}
		return b
	}}
}

func longField(tag uint16, vals ...uint32) field {
	return field{tag: tag, typ: tLong, count: uint32(len(vals)), encode: func(order byteOrder) []byte {
		var b []byte
		for _, v := range vals {
			b = order.AppendUint32(b, v)
		}
		return b
	}}
}

// ratField takes num, den pairs.
func ratField(tag uint16, numDen ...uint32) field {
	return field{tag: tag, typ: tRational, count: uint32(len(numDen) / 2), encode: func(order byteOrder) []byte {
		var b []byte
		for _, v := range numDen {
			b = order.AppendUint32(b, v)
		}
		return b
	}}
}

func sratField(tag uint16, numDen ...int32) field {
	return field{tag: tag, typ: tSRational, count: uint32(len(numDen) / 2), encode: func(order byteOrder) []byte {
		var b []byte
		for _, v := range numDen {
			b = order.AppendUint32(b, uint32(v))
		}
		return b
	}}
}

func doubleField(tag uint16, vals ...float64) field {
	return field{tag: tag, typ: tDouble, count: uint32(len(vals)), encode: func(order byteOrder) []byte {
		var b []byte
		for _, v := range vals {
			b = order.AppendUint64(b, math.Float64bits(v))
		}
		return b
	}}
}

// rawField writes an entry with the given type and count and 4 inline bytes.
func rawField(tag, typ uint16, count uint32, inline uint32) field {
	return field{tag: tag, typ: typ, count: count, encode: func(order byteOrder) []byte {
		return order.AppendUint32(nil, inline)
	}}
}

// tiffLayout describes a TIFF stream: a chain of main directories plus optional
// Exif and GPS sub directories, whose pointers are added to IFD0.
type tiffLayout struct {
	order byteOrder
	ifds  [][]field
	exif  []field
	gps   []field
}

func (l tiffLayout) build() []byte {
	const (
		exifPointer = 0x8769
		gpsPointer  = 0x8825
	)

	ifds := make([][]field, len(l.ifds))
	copy(ifds, l.ifds)

	dirs := ifds
	var exifIndex, gpsIndex int
	var pointers []field
	if l.exif != nil {
		exifIndex = len(ifds) + len(pointers)
		pointers = append(pointers, field{tag: exifPointer, typ: tLong, count: 1})
	}
	if l.gps != nil {
		gpsIndex = len(ifds) + len(pointers)
		pointers = append(pointers, field{tag: gpsPointer, typ: tLong, count: 1})
	}
	if len(pointers) > 0 {
		dirs[0] = append(append([]field(nil), dirs[0]...), pointers...)
	}
	if l.exif != nil {
		dirs = append(dirs, l.exif)
	}
	if l.gps != nil {
		dirs = append(dirs, l.gps)
	}

	encoded := make([][][]byte, len(dirs))
	offsets := make([]uint32, len(dirs))
	pos := uint32(8)
	for i, dir := range dirs {
		offsets[i] = pos
		pos += 2 + 12*uint32(len(dir)) + 4
		encoded[i] = make([][]byte, len(dir))
		for j, f := range dir {
			if f.encode == nil {
				encoded[i][j] = make([]byte, 4)
				continue
			}
			b := f.encode(l.order)
			encoded[i][j] = b
			if len(b) > 4 {
				pos += uint32(len(b) + len(b)%2)
			}
		}
	}

	// Resolve the sub directory pointers.
	if len(pointers) > 0 {
		ifd0 := dirs[0]
		for j, f := range ifd0 {
			switch {
			case f.tag == exifPointer && f.encode == nil && l.exif != nil:
				encoded[0][j] = l.order.AppendUint32(nil, offsets[exifIndex])
			case f.tag == gpsPointer && f.encode == nil && l.gps != nil:
				encoded[0][j] = l.order.AppendUint32(nil, offsets[gpsIndex])
			}
		}
	}

	var buf bytes.Buffer
	if l.order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	buf.Write(l.order.AppendUint16(nil, 42))
	first := uint32(0)
	if len(dirs) > 0 && len(l.ifds) > 0 {
		first = offsets[0]
	}
	buf.Write(l.order.AppendUint32(nil, first))

	for i, dir := range dirs {
		dataPos := offsets[i] + 2 + 12*uint32(len(dir)) + 4
		var data bytes.Buffer
		buf.Write(l.order.AppendUint16(nil, uint16(len(dir))))
		for j, f := range dir {
			b := encoded[i][j]
			buf.Write(l.order.AppendUint16(nil, f.tag))
			buf.Write(l.order.AppendUint16(nil, f.typ))
			buf.Write(l.order.AppendUint32(nil, f.count))
			if len(b) > 4 {
				buf.Write(l.order.AppendUint32(nil, dataPos+uint32(data.Len())))
				data.Write(b)
				if len(b)%2 == 1 {
					data.WriteByte(0)
				}
			} else {
				var inline [4]byte
				copy(inline[:], b)
				buf.Write(inline[:])
			}
		}
		next := uint32(0)
		if i+1 < len(l.ifds) {
			next = offsets[i+1]
		}
		buf.Write(l.order.AppendUint32(nil, next))
		buf.Write(data.Bytes())
	}

	return buf.Bytes()
}

// gpsFields are the GPS tags of the HEIC test image used throughout the tests.
func gpsFields() []field {
	return []field{
		bytesField(0x0000, tByte, []byte{2, 2, 0, 0}),
		asciiField(0x0001, "N"),
		ratField(0x0002, 35, 1, 39, 1, 4446, 100),
		asciiField(0x0003, "W"),
		ratField(0x0004, 82, 1, 30, 1, 2156, 100),
		bytesField(0x0005, tByte, []byte{0}),
		ratField(0x0006, 834755, 777),
	}
}

// cameraTIFF is a small TIFF stream with IFD0, IFD1, Exif and GPS directories.
func cameraTIFF(order byteOrder) []byte {
	return tiffLayout{
		order: order,
		ifds: [][]field{
			{
				asciiField(0x010f, "Apple"),
				asciiField(0x0110, "iPhone 12"),
				shortField(0x0112, 1),
				ratField(0x011a, 72, 1),
				ratField(0x011b, 72, 1),
				shortField(0x0128, 2),
				asciiField(0x0131, "GIMP 2.4.5"),
				asciiField(0x0132, "2021:07:04 12:13:14"),
			},
			{
				shortField(0x0103, 6),
				shortField(0x0112, 6),
			},
		},
		exif: []field{
			ratField(0x829a, 1, 200),
			ratField(0x829d, 18, 10),
			shortField(0x8822, 2),
			shortField(0x8827, 100),
			bytesField(0x9000, tUndefined, []byte("0232")),
			asciiField(0x9003, "2021:07:04 12:13:14"),
			sratField(0x9204, 0, 1),
			shortField(0x9207, 5),
			shortField(0x9209, 0x18),
			ratField(0x920a, 42, 10),
			shortField(0xa002, 4032),
			longField(0xa003, 3024),
			shortField(0xa403, 0),
			bytesField(0x9286, tUndefined, append([]byte("ASCII\x00\x00\x00"), "A comment"...)),
		},
		gps: gpsFields(),
	}.build()
}

// JPEG.

func jpegSegment(marker byte, payload []byte) []byte {
	b := []byte{0xff, marker}
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)+2))
	return append(b, payload...)
}

func buildJPEG(parts ...[]byte) []byte {
	b := []byte{0xff, 0xd8}
	for _, p := range parts {
		b = append(b, p...)
	}
	return append(b, 0xff, 0xd9)
}

// sofSegment is a baseline frame header with 3 components.
func sofSegment(width, height uint16) []byte {
	p := []byte{8}
	p = binary.BigEndian.AppendUint16(p, height)
	p = binary.BigEndian.AppendUint16(p, width)
	p = append(p, 3, 1, 0x22, 0, 2, 0x11, 1, 3, 0x11, 1)
	return jpegSegment(0xc0, p)
}

func sosSegment(entropy []byte) []byte {
	p := jpegSegment(0xda, []byte{3, 1, 0, 2, 0x11, 3, 0x11, 0, 0x3f, 0})
	return append(p, entropy...)
}

// ISOBMFF.

func be16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func be64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func cstr(s string) []byte { return append([]byte(s), 0) }

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func box(typ string, payload ...[]byte) []byte {
	body := concat(payload...)
	return concat(be32(uint32(8+len(body))), []byte(typ), body)
}

func fullBox(typ string, version uint8, flags uint32, payload ...[]byte) []byte {
	vf := be32(uint32(version)<<24 | flags&0xffffff)
	return box(typ, append([][]byte{vf}, payload...)...)
}

func infeV2(id uint16, itemType, name string, extra ...[]byte) []byte {
	return fullBox("infe", 2, 0, concat(be16(id), be16(0), []byte(itemType), cstr(name)), concat(extra...))
}

type testItem struct {
	id       uint16
	itemType string
	data     []byte
}

// heifLayout builds ftyp, meta and mdat boxes.
// Item data is stored in mdat and located with an iloc version 1 box.
type heifLayout struct {
	items   []testItem
	primary uint16
	extra   [][]byte // additional boxes in meta
}

func (l heifLayout) build() []byte {
	ftyp := box("ftyp", []byte("heic"), be32(0), []byte("mif1"), []byte("heic"))

	meta := func(mdatPayloadStart uint32) []byte {
		var infes [][]byte
		for _, it := range l.items {
			name := ""
			var extra []byte
			if it.itemType == "mime" {
				extra = cstr("application/rdf+xml")
			}
			infes = append(infes, infeV2(it.id, it.itemType, name, extra))
		}
		iinf := fullBox("iinf", 0, 0, be16(uint16(len(l.items))), concat(infes...))

		var locs [][]byte
		offset := mdatPayloadStart
		for _, it := range l.items {
			locs = append(locs, concat(
				be16(it.id),
				be16(0), // construction method 0
				be16(0), // data reference index
				be16(1), // extent count
				be32(offset),
				be32(uint32(len(it.data))),
			))
			offset += uint32(len(it.data))
		}
		iloc := fullBox("iloc", 1, 0, []byte{0x44, 0x00}, be16(uint16(len(l.items))), concat(locs...))

		hdlr := fullBox("hdlr", 0, 0, be32(0), []byte("pict"), be32(0), be32(0), be32(0), cstr(""))
		pitm := fullBox("pitm", 0, 0, be16(l.primary))

		return fullBox("meta", 0, 0, hdlr, pitm, iinf, iloc, concat(l.extra...))
	}

	// Sizes do not depend on the offsets, so a first pass finds the mdat position.
	sizing := meta(0)
	mdatPayloadStart := uint32(len(ftyp) + len(sizing) + 8)

	var data [][]byte
	for _, it := range l.items {
		data = append(data, it.data)
	}

	return concat(ftyp, meta(mdatPayloadStart), box("mdat", data...))
}

// miataItems returns 53 items where the last two are Exif and XMP.
func miataItems(exif, xmp []byte) []testItem {
	var items []testItem
	for i := 1; i <= 51; i++ {
		items = append(items, testItem{id: uint16(i), itemType: "hvc1", data: []byte{byte(i), 0, 0, 0}})
	}
	items = append(items,
		testItem{id: 52, itemType: "Exif", data: exif},
		testItem{id: 53, itemType: "mime", data: xmp},
	)
	return items
}

func heifExifPayload(tiff []byte) []byte {
	return concat(be32(0), tiff)
}

const testXMPPacket = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description rdf:about=""
  xmlns:xmp="http://ns.adobe.com/xap/1.0/"
  xmlns:dc="http://purl.org/dc/elements/1.1/"
  xmp:CreatorTool="GIMP 2.10">
<dc:creator><rdf:Seq><rdf:li>Jane Doe</rdf:li></rdf:Seq></dc:creator>
<dc:subject><rdf:Bag><rdf:li>car</rdf:li><rdf:li>road</rdf:li></rdf:Bag></dc:subject>
</rdf:Description>
</rdf:RDF>
</x:xmpmeta>`
