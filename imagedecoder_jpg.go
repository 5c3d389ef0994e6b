// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"bytes"
	"fmt"
)

// Marker is the second byte of a JPEG marker, the first always being 0xFF.
type Marker uint8

const (
	MarkerTEM   Marker = 0x01
	MarkerSOF0  Marker = 0xc0
	MarkerSOF1  Marker = 0xc1
	MarkerSOF2  Marker = 0xc2
	MarkerSOF3  Marker = 0xc3
	MarkerDHT   Marker = 0xc4
	MarkerSOF5  Marker = 0xc5
	MarkerSOF6  Marker = 0xc6
	MarkerSOF7  Marker = 0xc7
	MarkerJPG   Marker = 0xc8
	MarkerSOF9  Marker = 0xc9
	MarkerSOF10 Marker = 0xca
	MarkerSOF11 Marker = 0xcb
	MarkerDAC   Marker = 0xcc
	MarkerSOF13 Marker = 0xcd
	MarkerSOF14 Marker = 0xce
	MarkerSOF15 Marker = 0xcf
	MarkerRST0  Marker = 0xd0
	MarkerRST7  Marker = 0xd7
	MarkerSOI   Marker = 0xd8
	MarkerEOI   Marker = 0xd9
	MarkerSOS   Marker = 0xda
	MarkerDQT   Marker = 0xdb
	MarkerDRI   Marker = 0xdd
	MarkerAPP0  Marker = 0xe0
	MarkerAPP1  Marker = 0xe1
	MarkerAPP2  Marker = 0xe2
	MarkerAPP13 Marker = 0xed
	MarkerAPP14 Marker = 0xee
	MarkerAPP15 Marker = 0xef
	MarkerCOM   Marker = 0xfe
)

var markerNames = map[Marker]string{
	MarkerTEM:   "TEM",
	MarkerDHT:   "DHT",
	MarkerJPG:   "JPG",
	MarkerDAC:   "DAC",
	MarkerSOI:   "SOI",
	MarkerEOI:   "EOI",
	MarkerSOS:   "SOS",
	MarkerDQT:   "DQT",
	MarkerDRI:   "DRI",
	MarkerCOM:   "COM",
	MarkerAPP13: "APP13",
	MarkerAPP14: "APP14",
	MarkerAPP15: "APP15",
}

func (m Marker) String() string {
	if s, found := markerNames[m]; found {
		return s
	}
	switch {
	case m >= MarkerRST0 && m <= MarkerRST7:
		return fmt.Sprintf("RST%d", m-MarkerRST0)
	case m >= MarkerAPP0 && m <= MarkerAPP15:
		return fmt.Sprintf("APP%d", m-MarkerAPP0)
	case m.isSOF():
		return fmt.Sprintf("SOF%d", m-MarkerSOF0)
	}
	return fmt.Sprintf("Marker(%#02x)", uint8(m))
}

// isSOF reports whether m is a start of frame marker.
func (m Marker) isSOF() bool {
	return m >= MarkerSOF0 && m <= MarkerSOF15 && m != MarkerDHT && m != MarkerJPG && m != MarkerDAC
}

// hasLength reports whether the marker is followed by a 2 byte length and a payload.
func (m Marker) hasLength() bool {
	switch {
	case m == MarkerSOI, m == MarkerEOI, m == MarkerTEM:
		return false
	case m >= MarkerRST0 && m <= MarkerRST7:
		return false
	}
	return true
}

// Segment is a JPEG marker segment.
type Segment struct {
	Marker Marker

	// Offset is the absolute offset of the 0xFF marker byte.
	Offset int64

	// Payload is the segment data after the length field.
	// For SOS this is the scan header followed by the entropy coded data up to the next marker.
	// It is empty for markers without a length field.
	// The slice aliases the decoded buffer.
	Payload []byte
}

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpPrefix  = []byte("http")
)

// Length of the 0xFF, marker and length field preceding a segment payload.
const segmentHeaderSize = 4

type imageDecoderJPEG struct {
	*baseDecoder
}

func (e *imageDecoderJPEG) decode() error {
	segments, err := e.readSegments()
	if err != nil {
		return err
	}
	e.result.Segments = segments

	var haveExif, haveComment, haveConfig bool
	for _, seg := range segments {
		switch {
		case seg.Marker == MarkerAPP1 && !haveExif && bytes.HasPrefix(seg.Payload, exifHeader):
			haveExif = true
			if err := e.handleEXIF(seg); err != nil {
				return err
			}
		case seg.Marker == MarkerAPP1 && e.result.XMP == nil && bytes.HasPrefix(seg.Payload, xmpPrefix):
			e.handleXMP(seg)
		case seg.Marker == MarkerCOM && !haveComment:
			haveComment = true
			e.result.Comment = lossyString(seg.Payload)
		case seg.Marker.isSOF() && !haveConfig:
			haveConfig = true
			if err := e.handleSOF(seg); err != nil {
				return err
			}
		}
	}

	return nil
}

// readSegments splits the file into marker segments, starting after the SOI marker.
func (e *imageDecoderJPEG) readSegments() ([]Segment, error) {
	var segments []Segment

	e.seek(2)
	for e.err == nil && e.remaining() > 2 {
		offset := e.pos
		if lead := e.read1(); lead != 0xff {
			return nil, newInvalidFormatErrorf(ErrUnexpectedMarker, e.base+offset, "expected 0xff, got %#02x", lead)
		}
		marker := Marker(e.read1())
		// Fill bytes before the marker.
		for marker == 0xff && e.remaining() > 0 {
			offset = e.pos - 1
			marker = Marker(e.read1())
		}

		seg := Segment{Marker: marker, Offset: e.base + offset}

		if !marker.hasLength() {
			segments = append(segments, seg)
			if marker == MarkerEOI {
				break
			}
			continue
		}

		length := e.read2()
		if e.err == nil && length < 2 {
			return nil, newInvalidFormatErrorf(ErrInvalidSize, e.base+offset, "%s segment length %d", marker, length)
		}
		start := e.pos
		e.skip(int64(length) - 2)
		if e.err != nil {
			break
		}

		if marker == MarkerSOS {
			e.scanEntropyCoded()
		}

		seg.Payload = e.buf[start:e.pos]
		segments = append(segments, seg)
	}

	if e.err != nil {
		return nil, e.err
	}

	return segments, nil
}

// scanEntropyCoded advances past the entropy coded data following a scan header.
// It stops at the first marker that is not a stuffed 0xFF00 byte, a fill byte or a restart marker,
// leaving the reader positioned at that marker.
func (e *imageDecoderJPEG) scanEntropyCoded() {
	b := e.buf
	i := e.pos
	for ; i+1 < int64(len(b)); i++ {
		if b[i] != 0xff {
			continue
		}
		x := b[i+1]
		switch {
		case x == 0x00:
			i++
		case x == 0xff:
			// Fill byte; the next 0xFF is examined on the next iteration.
		case x >= byte(MarkerRST0) && x <= byte(MarkerRST7):
			i++
		default:
			e.pos = i
			return
		}
	}
	e.pos = int64(len(b))
}

func (e *imageDecoderJPEG) handleEXIF(seg Segment) error {
	start := seg.Offset - e.base + segmentHeaderSize + int64(len(exifHeader))
	end := seg.Offset - e.base + segmentHeaderSize + int64(len(seg.Payload))
	r := e.sub(start, end)
	if e.err != nil {
		return e.err
	}
	dec := newMetaDecoderEXIF(r, e.opts)
	if err := dec.decode(); err != nil {
		return err
	}
	e.result.EXIF = dec.result
	return nil
}

// handleXMP reads the XMP packet following the NUL terminated namespace URI.
func (e *imageDecoderJPEG) handleXMP(seg Segment) {
	packet := seg.Payload
	if i := bytes.IndexByte(packet, 0); i != -1 {
		packet = packet[i+1:]
	} else {
		e.opts.Warnf("jpeg: APP1 namespace at offset %d is not terminated", seg.Offset)
	}
	e.result.XMP = newXMP(packet)
}

// handleSOF reads the image dimensions from a frame header:
// precision (1), height (2), width (2).
func (e *imageDecoderJPEG) handleSOF(seg Segment) error {
	r := newStreamReader(seg.Payload, e.byteOrder)
	r.base = seg.Offset + segmentHeaderSize
	r.skip(1)
	height := r.read2()
	width := r.read2()
	if r.err != nil {
		return r.err
	}
	e.result.ImageConfig = ImageConfig{Width: int(width), Height: int(height)}
	return nil
}
