// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	// ImageFormatAuto signals that the image format should be detected from the signature.
	// It is also what Classify returns for data it does not recognize.
	ImageFormatAuto ImageFormat = iota
	// JPEG is the JPEG image format.
	JPEG
	// TIFF is the TIFF image format.
	TIFF
	// PNG is the PNG image format. It is recognized but not decoded.
	PNG
	// HEIF is the HEIF/HEIC image format (ISO Base Media File Format).
	HEIF
)

// ImageFormat is the image format.
type ImageFormat int

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatAuto:
		return "ImageFormatAuto"
	case JPEG:
		return "JPEG"
	case TIFF:
		return "TIFF"
	case PNG:
		return "PNG"
	case HEIF:
		return "HEIF"
	default:
		return fmt.Sprintf("ImageFormat(%d)", int(f))
	}
}

var (
	signatureJPEG     = []byte{0xff, 0xd8, 0xff}
	signaturePNG      = []byte("\x89PNG\r\n\x1a\n")
	signatureTIFFLE   = []byte("II*\x00")
	signatureTIFFBE   = []byte("MM\x00*")
	signatureFileType = []byte("ftyp")
)

// Classify returns the image format of b based on its leading bytes.
// ImageFormatAuto is returned if the format is not recognized.
func Classify(b []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(b, signatureJPEG):
		return JPEG
	case bytes.HasPrefix(b, signaturePNG):
		return PNG
	case bytes.HasPrefix(b, signatureTIFFLE), bytes.HasPrefix(b, signatureTIFFBE):
		return TIFF
	case len(b) >= 8 && bytes.Equal(b[4:8], signatureFileType):
		return HEIF
	default:
		return ImageFormatAuto
	}
}

// ImageConfig contains basic image configuration.
// Note that this is read from the image container, not from EXIF tags.
type ImageConfig struct {
	Width  int
	Height int
}

// DecodeResult contains the result of a Decode operation.
// Fields not relevant to the decoded format are left zero.
type DecodeResult struct {
	// ImageFormat is the format that was decoded.
	ImageFormat ImageFormat

	// Boxes holds the top level boxes of a HEIF file.
	Boxes []Box

	// Segments holds the marker segments of a JPEG file in file order.
	Segments []Segment

	// EXIF is nil if no Exif data was found.
	EXIF *EXIF

	// XMP is nil if no XMP packet was found.
	XMP *XMP

	// Comment is the first JPEG comment segment.
	Comment string

	ImageConfig ImageConfig
}

// Options contains the options for the Decode function.
type Options struct {
	// The Reader to read image metadata from. It is read until EOF.
	R io.Reader

	// The image format in R.
	// If ImageFormatAuto, the format is detected with Classify.
	ImageFormat ImageFormat

	// Warnf will be called for each warning.
	Warnf func(string, ...any)

	// LimitNumTags is the maximum number of EXIF tags to read.
	// Default value is 5000.
	LimitNumTags uint32
}

const defaultLimitNumTags = 5000

func (opts Options) withDefaults() Options {
	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}
	if opts.LimitNumTags == 0 {
		opts.LimitNumTags = defaultLimitNumTags
	}
	return opts
}

// Decode reads all of opts.R and decodes its metadata.
// Errors caused by malformed input can be checked with IsInvalidFormat.
func Decode(opts Options) (result DecodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			if errp, ok := r.(error); ok {
				err = fmt.Errorf("decode panicked: %w", errp)
			} else {
				err = fmt.Errorf("decode panicked: %v", r)
			}
		}
	}()

	if opts.R == nil {
		return result, errors.New("no reader provided")
	}
	opts = opts.withDefaults()

	b, err := io.ReadAll(opts.R)
	if err != nil {
		return result, err
	}

	if opts.ImageFormat == ImageFormatAuto {
		opts.ImageFormat = Classify(b)
	}
	result.ImageFormat = opts.ImageFormat

	base := &baseDecoder{
		streamReader: newStreamReader(b, binary.BigEndian),
		opts:         opts,
		result:       &result,
	}

	var dec decoder
	switch opts.ImageFormat {
	case JPEG:
		dec = &imageDecoderJPEG{baseDecoder: base}
	case TIFF:
		dec = &imageDecoderTIF{baseDecoder: base}
	case HEIF:
		dec = &imageDecoderHEIF{baseDecoder: base}
	default:
		return result, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.ImageFormat)
	}

	if err := dec.decode(); err != nil {
		return result, err
	}
	return result, nil
}

type baseDecoder struct {
	*streamReader
	opts   Options
	result *DecodeResult
}

// LatLong returns the decimal latitude and longitude from the GPS tags.
// found is false if either coordinate is missing.
func (x *EXIF) LatLong() (lat, long float64, found bool) {
	latTag, ok := x.Get(TagGPSLatitude)
	if !ok {
		return
	}
	longTag, ok := x.Get(TagGPSLongitude)
	if !ok {
		return
	}

	lat = degreesToDecimal(latTag.Value.([3]float64))
	long = degreesToDecimal(longTag.Value.([3]float64))

	if t, ok := x.Get(TagGPSLatitudeRef); ok && t.Value.(string) == "S" {
		lat = -lat
	}
	if t, ok := x.Get(TagGPSLongitudeRef); ok && t.Value.(string) == "W" {
		long = -long
	}

	if math.IsNaN(lat) {
		lat = 0
	}
	if math.IsNaN(long) {
		long = 0
	}

	return lat, long, true
}

func degreesToDecimal(dms [3]float64) float64 {
	return dms[0] + dms[1]/60 + dms[2]/3600
}

// DateTime parses DateTimeOriginal, falling back to DateTime, in loc.
// The zero time is returned if neither tag is set.
func (x *EXIF) DateTime(loc *time.Location) (time.Time, error) {
	const layout = "2006:01:02 15:04:05"

	for _, name := range []TagName{TagDateTimeOriginal, TagDateTime} {
		if t, ok := x.Get(name); ok {
			return time.ParseInLocation(layout, t.Value.(string), loc)
		}
	}
	return time.Time{}, nil
}
