// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"fmt"
	"strconv"
)

// UnknownPrefix is used as prefix for the String of unknown tags.
const UnknownPrefix = "UnknownTag_"

// TagName identifies the semantic meaning of a Tag.
type TagName string

// Tag is an IFD entry projected through the tag table.
type Tag struct {
	// Name is TagUnknown if the tag ID is not in the tag table.
	Name TagName

	// Value is the semantically typed value, see the tag table for the Go type of each tag.
	// For unknown tags this is nil and the raw values are found in Entry.
	Value any

	// Namespace is the path of the directory the tag was found in, e.g. "IFD0/GPSInfoIFD".
	Namespace string

	// Entry is the raw entry the tag was projected from.
	Entry IFDEntry
}

// String returns the tag name, or UnknownPrefix followed by the hex tag ID for unknown tags.
func (t Tag) String() string {
	if t.Name == TagUnknown {
		return fmt.Sprintf("%s0x%x", UnknownPrefix, t.Entry.Tag)
	}
	return string(t.Name)
}

const TagUnknown TagName = ""

// GPS directory.
const (
	TagGPSVersionID       TagName = "GPSVersionID"       // [4]byte
	TagGPSLatitudeRef     TagName = "GPSLatitudeRef"     // string
	TagGPSLatitude        TagName = "GPSLatitude"        // [3]float64 degrees, minutes, seconds
	TagGPSLongitudeRef    TagName = "GPSLongitudeRef"    // string
	TagGPSLongitude       TagName = "GPSLongitude"       // [3]float64 degrees, minutes, seconds
	TagGPSAltitudeRef     TagName = "GPSAltitudeRef"     // string
	TagGPSAltitude        TagName = "GPSAltitude"        // float64
	TagGPSTimeStamp       TagName = "GPSTimeStamp"       // [3]float64 hours, minutes, seconds
	TagGPSSatellites      TagName = "GPSSatellites"      // string
	TagGPSStatus          TagName = "GPSStatus"          // string
	TagGPSImgDirectionRef TagName = "GPSImgDirectionRef" // string
	TagGPSImgDirection    TagName = "GPSImgDirection"    // float64
	TagGPSMapDatum        TagName = "GPSMapDatum"        // string
	TagGPSDateStamp       TagName = "GPSDateStamp"       // string
)

// Main image directories.
const (
	TagImageWidth       TagName = "ImageWidth"       // uint32
	TagImageLength      TagName = "ImageLength"      // uint32
	TagCompression      TagName = "Compression"      // string
	TagImageDescription TagName = "ImageDescription" // string
	TagMake             TagName = "Make"             // string
	TagModel            TagName = "Model"            // string
	TagOrientation      TagName = "Orientation"      // uint16
	TagXResolution      TagName = "XResolution"      // float64
	TagYResolution      TagName = "YResolution"      // float64
	TagResolutionUnit   TagName = "ResolutionUnit"   // string
	TagSoftware         TagName = "Software"         // string
	TagDateTime         TagName = "DateTime"         // string
	TagArtist           TagName = "Artist"           // string
	TagCopyright        TagName = "Copyright"        // string
	TagExifIfdPointer   TagName = "ExifIfdPointer"   // uint32
	TagGpsIfdPointer    TagName = "GpsIfdPointer"    // uint32
	TagXPTitle          TagName = "XPTitle"          // string
	TagXPComment        TagName = "XPComment"        // string
	TagXPAuthor         TagName = "XPAuthor"         // string
	TagXPKeywords       TagName = "XPKeywords"       // string
	TagXPSubject        TagName = "XPSubject"        // string
)

// Exif directory.
const (
	TagExposureTime               TagName = "ExposureTime"               // string "num/den"
	TagFNumber                    TagName = "FNumber"                    // string "num/den"
	TagExposureProgram            TagName = "ExposureProgram"            // string
	TagISOSpeedRatings            TagName = "ISOSpeedRatings"            // []uint16
	TagExifVersion                TagName = "ExifVersion"                // string
	TagDateTimeOriginal           TagName = "DateTimeOriginal"           // string
	TagDateTimeDigitized          TagName = "DateTimeDigitized"          // string
	TagCompressedBitsPerPixel     TagName = "CompressedBitsPerPixel"     // string "num/den"
	TagShutterSpeedValue          TagName = "ShutterSpeedValue"          // string "num/den"
	TagApertureValue              TagName = "ApertureValue"              // string "num/den"
	TagExposureBiasValue          TagName = "ExposureBiasValue"          // string "num/den"
	TagMaxApertureValue           TagName = "MaxApertureValue"           // string "num/den"
	TagMeteringMode               TagName = "MeteringMode"               // string
	TagLightSource                TagName = "LightSource"                // string
	TagFlash                      TagName = "Flash"                      // string
	TagFocalLength                TagName = "FocalLength"                // string "num/den"
	TagMakerNote                  TagName = "MakerNote"                  // []byte
	TagUserComment                TagName = "UserComment"                // UserComment
	TagSubsecTime                 TagName = "SubsecTime"                 // string
	TagSubsecTimeOriginal         TagName = "SubsecTimeOriginal"         // string
	TagSubsecTimeDigitized        TagName = "SubsecTimeDigitized"        // string
	TagFlashpixVersion            TagName = "FlashpixVersion"            // string
	TagColorSpace                 TagName = "ColorSpace"                 // string
	TagPixelXDimension            TagName = "PixelXDimension"            // uint32
	TagPixelYDimension            TagName = "PixelYDimension"            // uint32
	TagInteroperabilityIfdPointer TagName = "InteroperabilityIfdPointer" // uint32
	TagFocalPlaneXResolution      TagName = "FocalPlaneXResolution"      // string "num/den"
	TagFocalPlaneYResolution      TagName = "FocalPlaneYResolution"      // string "num/den"
	TagFocalPlaneResolutionUnit   TagName = "FocalPlaneResolutionUnit"   // string
	TagSensingMethod              TagName = "SensingMethod"              // string
	TagSceneType                  TagName = "SceneType"                  // string
	TagExposureMode               TagName = "ExposureMode"               // string
	TagWhiteBalance               TagName = "WhiteBalance"               // string
	TagDigitalZoomRatio           TagName = "DigitalZoomRatio"           // string "num/den"
	TagFocalLengthIn35mmFilm      TagName = "FocalLengthIn35mmFilm"      // uint16
	TagSceneCaptureType           TagName = "SceneCaptureType"           // string
	TagGainControl                TagName = "GainControl"                // string
	TagContrast                   TagName = "Contrast"                   // string
	TagSaturation                 TagName = "Saturation"                 // string
	TagSharpness                  TagName = "Sharpness"                  // string
	TagSubjectDistanceRange       TagName = "SubjectDistanceRange"       // string
	TagLensMake                   TagName = "LensMake"                   // string
	TagLensModel                  TagName = "LensModel"                  // string
)

type tagField struct {
	name    TagName
	convert func(e IFDEntry) (any, error)
}

var exifConverters = &vc{}

// The tag table. Tag IDs not listed here become TagUnknown.
var exifFields map[uint16]tagField

func init() {
	c := exifConverters
	exifFields = map[uint16]tagField{
		0x0000: {TagGPSVersionID, c.convertBytes4},
		0x0001: {TagGPSLatitudeRef, c.convertASCII},
		0x0002: {TagGPSLatitude, c.convertFloats3},
		0x0003: {TagGPSLongitudeRef, c.convertASCII},
		0x0004: {TagGPSLongitude, c.convertFloats3},
		0x0005: {TagGPSAltitudeRef, c.convertByteEnum(gpsAltitudeRefs)},
		0x0006: {TagGPSAltitude, c.convertFloat},
		0x0007: {TagGPSTimeStamp, c.convertFloats3},
		0x0008: {TagGPSSatellites, c.convertASCII},
		0x0009: {TagGPSStatus, c.convertASCII},
		0x0010: {TagGPSImgDirectionRef, c.convertASCII},
		0x0011: {TagGPSImgDirection, c.convertFloat},
		0x0012: {TagGPSMapDatum, c.convertASCII},
		0x001d: {TagGPSDateStamp, c.convertASCII},

		0x0100: {TagImageWidth, c.convertShortOrLong},
		0x0101: {TagImageLength, c.convertShortOrLong},
		0x0103: {TagCompression, c.convertShortEnum(compressions, "Invalid/Unknown")},
		0x010e: {TagImageDescription, c.convertASCII},
		0x010f: {TagMake, c.convertASCII},
		0x0110: {TagModel, c.convertASCII},
		0x0112: {TagOrientation, c.convertShort},
		0x011a: {TagXResolution, c.convertFloat},
		0x011b: {TagYResolution, c.convertFloat},
		0x0128: {TagResolutionUnit, c.convertShortEnum(resolutionUnits, "invalid")},
		0x0131: {TagSoftware, c.convertASCII},
		0x0132: {TagDateTime, c.convertASCII},
		0x013b: {TagArtist, c.convertASCII},
		0x8298: {TagCopyright, c.convertASCII},
		0x8769: {TagExifIfdPointer, c.convertLong},
		0x8825: {TagGpsIfdPointer, c.convertLong},
		0x9c9b: {TagXPTitle, c.convertUTF16},
		0x9c9c: {TagXPComment, c.convertUTF16},
		0x9c9d: {TagXPAuthor, c.convertUTF16},
		0x9c9e: {TagXPKeywords, c.convertUTF16},
		0x9c9f: {TagXPSubject, c.convertUTF16},

		0x829a: {TagExposureTime, c.convertRatString},
		0x829d: {TagFNumber, c.convertRatString},
		0x8822: {TagExposureProgram, c.convertShortEnum(exposurePrograms, "Invalid")},
		0x8827: {TagISOSpeedRatings, c.convertShorts},
		0x9000: {TagExifVersion, c.convertUndefinedString},
		0x9003: {TagDateTimeOriginal, c.convertASCII},
		0x9004: {TagDateTimeDigitized, c.convertASCII},
		0x9102: {TagCompressedBitsPerPixel, c.convertRatString},
		0x9201: {TagShutterSpeedValue, c.convertRatString},
		0x9202: {TagApertureValue, c.convertRatString},
		0x9204: {TagExposureBiasValue, c.convertRatString},
		0x9205: {TagMaxApertureValue, c.convertRatString},
		0x9207: {TagMeteringMode, c.convertShortEnum(meteringModes, "Invalid")},
		0x9208: {TagLightSource, c.convertShortEnum(lightSources, "Invalid")},
		0x9209: {TagFlash, c.convertShortEnum(flashModes, "Invalid")},
		0x920a: {TagFocalLength, c.convertRatString},
		0x927c: {TagMakerNote, c.convertBytes},
		0x9286: {TagUserComment, c.convertUserComment},
		0x9290: {TagSubsecTime, c.convertASCII},
		0x9291: {TagSubsecTimeOriginal, c.convertASCII},
		0x9292: {TagSubsecTimeDigitized, c.convertASCII},
		0xa000: {TagFlashpixVersion, c.convertUndefinedString},
		0xa001: {TagColorSpace, c.convertShortEnum(colorSpaces, "Invalid")},
		0xa002: {TagPixelXDimension, c.convertShortOrLong},
		0xa003: {TagPixelYDimension, c.convertShortOrLong},
		0xa005: {TagInteroperabilityIfdPointer, c.convertLong},
		0xa20e: {TagFocalPlaneXResolution, c.convertRatString},
		0xa20f: {TagFocalPlaneYResolution, c.convertRatString},
		0xa210: {TagFocalPlaneResolutionUnit, c.convertShortEnum(resolutionUnits, "invalid")},
		0xa217: {TagSensingMethod, c.convertShortEnum(sensingMethods, "Invalid")},
		0xa301: {TagSceneType, c.convertUndefinedEnum(sceneTypes, "Invalid")},
		0xa402: {TagExposureMode, c.convertShortEnum(exposureModes, "Invalid")},
		0xa403: {TagWhiteBalance, c.convertShortEnum(whiteBalances, "Invalid")},
		0xa404: {TagDigitalZoomRatio, c.convertRatString},
		0xa405: {TagFocalLengthIn35mmFilm, c.convertShort},
		0xa406: {TagSceneCaptureType, c.convertShortEnum(sceneCaptureTypes, "Invalid")},
		0xa407: {TagGainControl, c.convertShortEnum(gainControls, "Invalid")},
		0xa408: {TagContrast, c.convertShortEnum(softHard, "Invalid")},
		0xa409: {TagSaturation, c.convertShortEnum(saturations, "Invalid")},
		0xa40a: {TagSharpness, c.convertShortEnum(softHard, "Invalid")},
		0xa40c: {TagSubjectDistanceRange, c.convertShortEnum(subjectDistanceRanges, "Invalid")},
		0xa433: {TagLensMake, c.convertASCII},
		0xa434: {TagLensModel, c.convertASCII},
	}
}

// projectTag maps a raw entry to its semantic tag.
func projectTag(e IFDEntry) (Tag, error) {
	f, found := exifFields[e.Tag]
	if !found {
		return Tag{Name: TagUnknown, Entry: e}, nil
	}
	v, err := f.convert(e)
	if err != nil {
		return Tag{}, err
	}
	return Tag{Name: f.name, Value: v, Entry: e}, nil
}

func tagIDString(id uint16) string {
	return "0x" + strconv.FormatUint(uint64(id), 16)
}

var gpsAltitudeRefs = map[uint16]string{
	0: "Above sea level",
	1: "Below sea level",
}

var compressions = map[uint16]string{
	1:     "No compression",
	2:     "CCITT modified Huffman RLE",
	3:     "CCITT Group 3 fax encoding",
	4:     "CCITT Group 4 fax encoding",
	5:     "LZW",
	6:     "JPEG (old-style)",
	7:     "JPEG (new-style)",
	8:     "Deflate",
	32773: "PackBits",
}

var resolutionUnits = map[uint16]string{
	1: "none",
	2: "inch",
	3: "centimeter",
}

var exposurePrograms = map[uint16]string{
	0: "Not defined",
	1: "Manual",
	2: "Normal program",
	3: "Aperture priority",
	4: "Shutter priority",
	5: "Creative program (biased toward depth of field)",
	6: "Action program (biased toward fast shutter speed)",
	7: "Portrait mode (for closeup photos with the background out of focus)",
	8: "Landscape mode (for landscape photos with the background in focus)",
}

var meteringModes = map[uint16]string{
	0:   "Unknown",
	1:   "Average",
	2:   "CenterWeightedAverage",
	3:   "Spot",
	4:   "MultiSpot",
	5:   "Pattern",
	6:   "Partial",
	255: "Other",
}

var lightSources = map[uint16]string{
	0:   "Unknown",
	1:   "Daylight",
	2:   "Fluorescent",
	3:   "Tungsten (incandescent light)",
	4:   "Flash",
	9:   "Fine weather",
	10:  "Cloudy weather",
	11:  "Shade",
	12:  "Daylight fluorescent (D 5700 - 7100K)",
	13:  "Day white fluorescent (N 4600 - 5400K)",
	14:  "Cool white fluorescent (W 3900 - 4500K)",
	15:  "White fluorescent (WW 3200 - 3700K)",
	17:  "Standard light A",
	18:  "Standard light B",
	19:  "Standard light C",
	20:  "D55",
	21:  "D65",
	22:  "D75",
	23:  "D50",
	24:  "ISO studio tungsten",
	255: "Other light source",
}

var flashModes = map[uint16]string{
	0x0000: "Flash did not fire",
	0x0001: "Flash fired",
	0x0005: "Strobe return light not detected",
	0x0007: "Strobe return light detected",
	0x0009: "Flash fired, compulsory flash mode",
	0x000D: "Flash fired, compulsory flash mode, return light not detected",
	0x000F: "Flash fired, compulsory flash mode, return light detected",
	0x0010: "Flash did not fire, compulsory flash mode",
	0x0018: "Flash did not fire, auto mode",
	0x0019: "Flash fired, auto mode",
	0x001D: "Flash fired, auto mode, return light not detected",
	0x001F: "Flash fired, auto mode, return light detected",
	0x0020: "No flash function",
	0x0041: "Flash fired, red-eye reduction mode",
	0x0045: "Flash fired, red-eye reduction mode, return light not detected",
	0x0047: "Flash fired, red-eye reduction mode, return light detected",
	0x0049: "Flash fired, compulsory flash mode, red-eye reduction mode",
	0x004D: "Flash fired, compulsory flash mode, red-eye reduction mode, return light not detected",
	0x004F: "Flash fired, compulsory flash mode, red-eye reduction mode, return light detected",
	0x0059: "Flash fired, auto mode, red-eye reduction mode",
	0x005D: "Flash fired, auto mode, return light not detected, red-eye reduction mode",
	0x005F: "Flash fired, auto mode, return light detected, red-eye reduction mode",
}

var colorSpaces = map[uint16]string{
	1:      "sRGB",
	0xffff: "Uncalibrated",
}

var sensingMethods = map[uint16]string{
	1: "Not defined",
	2: "One-chip color area sensor",
	3: "Two-chip color area sensor",
	4: "Three-chip color area sensor",
	5: "Color sequential area sensor",
	7: "Trilinear sensor",
	8: "Color sequential linear sensor",
}

var sceneTypes = map[uint16]string{
	1: "Directly photographed",
}

var exposureModes = map[uint16]string{
	0: "Auto exposure",
	1: "Manual exposure",
	2: "Auto bracket",
}

var whiteBalances = map[uint16]string{
	0: "Auto white balance",
	1: "Manual white balance",
}

var sceneCaptureTypes = map[uint16]string{
	0: "Standard",
	1: "Landscape",
	2: "Portrait",
	3: "Night scene",
}

var gainControls = map[uint16]string{
	0: "None",
	1: "Low gain up",
	2: "High gain up",
	3: "Low gain down",
	4: "High gain down",
}

var softHard = map[uint16]string{
	0: "Normal",
	1: "Soft",
	2: "Hard",
}

var saturations = map[uint16]string{
	0: "Normal",
	1: "Low saturation",
	2: "High saturation",
}

var subjectDistanceRanges = map[uint16]string{
	0: "Unknown",
	1: "Macro",
	2: "Close view",
	3: "Distant view",
}
