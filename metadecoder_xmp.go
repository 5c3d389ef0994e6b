// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var xmpSkipNamespaces = map[string]bool{
	"xmlns": true,
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": true,
	"http://purl.org/dc/elements/1.1/":            true,
}

type rdf struct {
	XMLName      xml.Name
	Descriptions []rdfDescription `xml:"Description"`
}

// Note: We currently only handle a subset of XMP tags,
// but a very common subset.
type rdfDescription struct {
	XMLName   xml.Name
	Attrs     []xml.Attr `xml:",any,attr"`
	Creator   seqList    `xml:"creator"`
	Publisher bagList    `xml:"publisher"`
	Subject   bagList    `xml:"subject"`
	Rights    altList    `xml:"rights"`

	// GPS and other simple child elements from exif namespace.
	GPSLatitude    string `xml:"GPSLatitude"`
	GPSLongitude   string `xml:"GPSLongitude"`
	GPSAltitude    string `xml:"GPSAltitude"`
	GPSAltitudeRef string `xml:"GPSAltitudeRef"`
}

type altList struct {
	XMLName xml.Name
	Alt     struct {
		Items []string `xml:"li"`
	} `xml:"Alt"`
}

type seqList struct {
	XMLName xml.Name
	Seq     struct {
		Items []string `xml:"li"`
	} `xml:"Seq"`
}

type bagList struct {
	XMLName xml.Name
	Bag     struct {
		Items []string `xml:"li"`
	} `xml:"Bag"`
}

type xmpmeta struct {
	XMLName xml.Name
	RDF     rdf `xml:"RDF"`
}

// XMP is an XMP packet.
type XMP struct {
	// Packet is the raw XML text.
	Packet string
}

func newXMP(b []byte) *XMP {
	return &XMP{Packet: lossyString(trimTrailingNulls(b))}
}

// XMPProperty is a property decoded from an XMP packet.
type XMPProperty struct {
	// Namespace is the XML namespace, e.g. "http://ns.adobe.com/xap/1.0/".
	Namespace string
	// Name is the local name with the first letter upper cased, e.g. "CreatorTool".
	Name string
	// Value is a string, or a []string for lists with more than one item,
	// or a float64 for GPS coordinates.
	Value any
}

// Properties decodes the rdf:Description attributes and a common subset of child elements.
// The packet is parsed on every call.
func (x *XMP) Properties() ([]XMPProperty, error) {
	var meta xmpmeta
	if err := xml.NewDecoder(strings.NewReader(x.Packet)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding XMP: %w", err)
	}

	var props []XMPProperty
	for _, desc := range meta.RDF.Descriptions {
		for _, attr := range desc.Attrs {
			if xmpSkipNamespaces[attr.Name.Space] {
				continue
			}
			props = append(props, XMPProperty{
				Namespace: attr.Name.Space,
				Name:      firstUpper(attr.Name.Local),
				Value:     attr.Value,
			})
		}

		props = appendChildElements(props, desc.Creator.XMLName, desc.Creator.Seq.Items)
		props = appendChildElements(props, desc.Publisher.XMLName, desc.Publisher.Bag.Items)
		props = appendChildElements(props, desc.Subject.XMLName, desc.Subject.Bag.Items)
		props = appendChildElements(props, desc.Rights.XMLName, desc.Rights.Alt.Items)

		// GPS coordinates in XMP are typically in DMS format like "26,34.951N".
		for _, gps := range []struct {
			name  string
			value string
		}{
			{"GPSLatitude", desc.GPSLatitude},
			{"GPSLongitude", desc.GPSLongitude},
		} {
			if gps.value == "" {
				continue
			}
			if f, err := parseXMPGPSCoordinate(gps.value); err == nil {
				props = append(props, XMPProperty{
					Namespace: xmpNamespaceExif,
					Name:      gps.name,
					Value:     f,
				})
			}
		}
		for _, gps := range []struct {
			name  string
			value string
		}{
			{"GPSAltitude", desc.GPSAltitude},
			{"GPSAltitudeRef", desc.GPSAltitudeRef},
		} {
			if gps.value != "" {
				props = append(props, XMPProperty{
					Namespace: xmpNamespaceExif,
					Name:      gps.name,
					Value:     gps.value,
				})
			}
		}
	}

	return props, nil
}

const xmpNamespaceExif = "http://ns.adobe.com/exif/1.0/"

func appendChildElements(props []XMPProperty, name xml.Name, items []string) []XMPProperty {
	if len(items) == 0 || name.Local == "" {
		return props
	}
	var v any

	// This is how ExifTool does it:
	if len(items) == 1 {
		v = items[0]
	} else {
		v = items
	}

	return append(props, XMPProperty{
		Namespace: name.Space,
		Name:      firstUpper(name.Local),
		Value:     v,
	})
}

func firstUpper(s string) string {
	if s == "" {
		return ""
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// parseXMPGPSCoordinate parses GPS coordinates from XMP format.
// XMP GPS coordinates can be in several formats:
// - DMS with direction: "26,34.951N" or "80,12.014W"
// - Decimal with direction: "26.5825N" or "80.2002W"
// - Pure decimal: "26.5825" or "-80.2002"
func parseXMPGPSCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}

	// Check for direction suffix (N, S, E, W)
	var negative bool
	lastChar := s[len(s)-1]
	switch lastChar {
	case 'S', 's', 'W', 'w':
		negative = true
		s = s[:len(s)-1]
	case 'N', 'n', 'E', 'e':
		s = s[:len(s)-1]
	}

	var degrees float64

	// Check if it's in DMS format (contains comma)
	if idx := strings.Index(s, ","); idx != -1 {
		// Format: "degrees,minutes" e.g., "26,34.951"
		degStr := s[:idx]
		minStr := s[idx+1:]

		deg, err := strconv.ParseFloat(degStr, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing degrees: %w", err)
		}

		min, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing minutes: %w", err)
		}

		degrees = deg + min/60.0
	} else {
		// Pure decimal format
		var err error
		degrees, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing decimal: %w", err)
		}
	}

	if negative {
		degrees = -degrees
	}

	return degrees, nil
}
