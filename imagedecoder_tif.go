// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

// XMP packets embedded in TIFF files are stored in this tag in IFD0.
const tagIDXMLPacket = 0x02bc

type imageDecoderTIF struct {
	*baseDecoder
}

func (e *imageDecoderTIF) decode() error {
	dec := newMetaDecoderEXIF(e.streamReader, e.opts)
	if err := dec.decode(); err != nil {
		return err
	}
	x := dec.result
	e.result.EXIF = x

	var width, height uint32
	for _, t := range x.Tags {
		if t.Namespace != "IFD0" {
			continue
		}
		switch t.Name {
		case TagImageWidth:
			width = t.Value.(uint32)
		case TagImageLength:
			height = t.Value.(uint32)
		case TagUnknown:
			if t.Entry.Tag != tagIDXMLPacket || e.result.XMP != nil {
				continue
			}
			b, err := exifConverters.bytes(t.Entry)
			if err != nil {
				e.opts.Warnf("tiff: XMLPacket has type %s, skipping", t.Entry.Type)
				continue
			}
			e.result.XMP = newXMP(b)
		}
	}
	e.result.ImageConfig = ImageConfig{Width: int(width), Height: int(height)}

	return nil
}
