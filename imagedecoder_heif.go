// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"slices"
)

const (
	boxHeaderSize         = 8
	boxHeaderSizeExtended = 16
)

type boxDecoderFunc func(e *imageDecoderHEIF, r *streamReader, h BoxHeader) (Box, error)

// boxDecoders maps the dotted box path to its decoder.
// Boxes not listed here are decoded as UnknownBox.
var boxDecoders map[string]boxDecoderFunc

func init() {
	boxDecoders = map[string]boxDecoderFunc{
		"ftyp":                (*imageDecoderHEIF).decodeFtyp,
		"meta":                (*imageDecoderHEIF).decodeMeta,
		"meta.hdlr":           (*imageDecoderHEIF).decodeHdlr,
		"meta.dinf":           (*imageDecoderHEIF).decodeDinf,
		"meta.dinf.dref":      (*imageDecoderHEIF).decodeDref,
		"meta.pitm":           (*imageDecoderHEIF).decodePitm,
		"meta.iinf":           (*imageDecoderHEIF).decodeIinf,
		"meta.iref":           (*imageDecoderHEIF).decodeIref,
		"meta.iloc":           (*imageDecoderHEIF).decodeIloc,
		"meta.idat":           (*imageDecoderHEIF).decodeIdat,
		"meta.iprp":           (*imageDecoderHEIF).decodeIprp,
		"meta.iprp.ipco":      (*imageDecoderHEIF).decodeIpco,
		"meta.iprp.ipma":      (*imageDecoderHEIF).decodeIpma,
		"meta.iprp.ipco.ispe": (*imageDecoderHEIF).decodeIspe,
		"meta.iprp.ipco.irot": (*imageDecoderHEIF).decodeIrot,
	}
}

type imageDecoderHEIF struct {
	*baseDecoder
}

func (e *imageDecoderHEIF) decode() error {
	boxes, err := e.decodeChildren(e.streamReader, "")
	if err != nil {
		return err
	}
	e.result.Boxes = boxes

	meta, ok := findBox[*MetaBox](boxes)
	if !ok {
		return nil
	}

	if err := e.handleEXIF(meta); err != nil {
		return err
	}
	if err := e.handleXMP(meta); err != nil {
		return err
	}
	e.result.ImageConfig = imageConfigFromMeta(meta)

	return nil
}

// readBoxHeader reads a box header and returns it with the position just past the box in r.
// A nested box must fit within r, a top level box within the file.
func (e *imageDecoderHEIF) readBoxHeader(r *streamReader, topLevel bool) (BoxHeader, int64, error) {
	start := r.pos
	h := BoxHeader{
		Offset:     r.offset(),
		HeaderSize: boxHeaderSize,
	}
	size := uint64(r.read4())
	h.Type = r.readFourCC()
	switch size {
	case 0:
		size = uint64(r.size() - start)
	case 1:
		size = r.read8()
		h.HeaderSize = boxHeaderSizeExtended
	}
	if r.err != nil {
		return h, 0, r.err
	}
	h.Size = size

	if size < uint64(h.HeaderSize) {
		return h, 0, newInvalidFormatErrorf(ErrInvalidSize, h.Offset, "%s box size %d is smaller than its header", h.Type, size)
	}
	if available := uint64(r.size() - start); size > available {
		kind := ErrInvalidSize
		if topLevel {
			kind = ErrTruncatedInput
		}
		return h, 0, newInvalidFormatErrorf(kind, h.Offset, "%s box size %d exceeds the %d bytes available", h.Type, size, available)
	}

	return h, start + int64(size), nil
}

// decodeBox decodes the box at the current position of r and advances r past it.
// parent is the dotted path of the enclosing box, empty at the top level.
func (e *imageDecoderHEIF) decodeBox(r *streamReader, parent string) (Box, error) {
	h, end, err := e.readBoxHeader(r, parent == "")
	if err != nil {
		return nil, err
	}
	body := r.sub(r.pos, end)
	r.seek(end)
	if r.err != nil {
		return nil, r.err
	}

	path := h.Type.String()
	if parent != "" {
		path = parent + "." + path
	}

	dec, found := boxDecoders[path]
	if !found {
		return &UnknownBox{BoxHeader: h}, nil
	}

	b, err := dec(e, body, h)
	if err != nil {
		return nil, err
	}
	if body.err != nil {
		return nil, body.err
	}
	if n := body.remaining(); n > 0 {
		e.opts.Warnf("heif: skipping %d trailing bytes in %s box at offset %d", n, path, h.Offset)
	}
	return b, nil
}

// decodeChildren decodes boxes until r is exhausted.
func (e *imageDecoderHEIF) decodeChildren(r *streamReader, path string) ([]Box, error) {
	var boxes []Box
	for r.err == nil && r.remaining() > 0 {
		b, err := e.decodeBox(r, path)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, r.err
}

// decodeChild reads one child header of r, checks that its type is one of types and
// returns the header and a reader over its payload.
func (e *imageDecoderHEIF) decodeChild(r *streamReader, parent string, types ...FourCC) (BoxHeader, *streamReader, error) {
	h, end, err := e.readBoxHeader(r, false)
	if err != nil {
		return h, nil, err
	}
	if !slices.Contains(types, h.Type) {
		return h, nil, newInvalidFormatErrorf(ErrUnexpectedChildType, h.Offset, "%s box in %s", h.Type, parent)
	}
	body := r.sub(r.pos, end)
	r.seek(end)
	return h, body, r.err
}

func (e *imageDecoderHEIF) decodeFtyp(r *streamReader, h BoxHeader) (Box, error) {
	b := &FileTypeBox{
		BoxHeader:    h,
		MajorBrand:   r.readFourCC(),
		MinorVersion: r.read4(),
	}
	for i, n := int64(0), r.remaining()/4; i < n; i++ {
		b.CompatibleBrands = append(b.CompatibleBrands, r.readFourCC())
	}
	return b, r.err
}

func (e *imageDecoderHEIF) decodeMeta(r *streamReader, h BoxHeader) (Box, error) {
	b := &MetaBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	children, err := e.decodeChildren(r, "meta")
	if err != nil {
		return nil, err
	}
	b.Children = children
	return b, nil
}

func (e *imageDecoderHEIF) decodeHdlr(r *streamReader, h BoxHeader) (Box, error) {
	b := &HandlerBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	b.PreDefined = r.read4()
	b.HandlerType = r.readFourCC()
	for i := range b.Reserved {
		b.Reserved[i] = r.read4()
	}
	b.Name = r.readString(r.remaining())
	return b, r.err
}

func (e *imageDecoderHEIF) decodeDinf(r *streamReader, h BoxHeader) (Box, error) {
	children, err := e.decodeChildren(r, "meta.dinf")
	if err != nil {
		return nil, err
	}
	return &DataInformationBox{BoxHeader: h, Children: children}, nil
}

func (e *imageDecoderHEIF) decodeDref(r *streamReader, h BoxHeader) (Box, error) {
	b := &DataReferenceBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	count := r.read4()
	for i := uint32(0); i < count && r.err == nil; i++ {
		ch, cr, err := e.decodeChild(r, "dref", typeAlis, typeRsrc, typeURL)
		if err != nil {
			return nil, err
		}
		entry := &DataEntryBox{BoxHeader: ch}
		entry.Version, entry.Flags = cr.readVersionAndFlags()
		entry.Location = cr.readString(cr.remaining())
		if cr.err != nil {
			return nil, cr.err
		}
		b.Entries = append(b.Entries, entry)
	}
	return b, r.err
}

func (e *imageDecoderHEIF) decodePitm(r *streamReader, h BoxHeader) (Box, error) {
	b := &PrimaryItemBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	if b.Version == 0 {
		b.ItemID = uint32(r.read2())
	} else {
		b.ItemID = r.read4()
	}
	return b, r.err
}

func (e *imageDecoderHEIF) decodeIinf(r *streamReader, h BoxHeader) (Box, error) {
	b := &ItemInfoBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	var count uint32
	if b.Version == 0 {
		count = uint32(r.read2())
	} else {
		count = r.read4()
	}
	for i := uint32(0); i < count && r.err == nil; i++ {
		ch, cr, err := e.decodeChild(r, "iinf", typeInfe)
		if err != nil {
			return nil, err
		}
		entry, err := e.decodeInfe(cr, ch)
		if err != nil {
			return nil, err
		}
		b.Entries = append(b.Entries, entry)
	}
	return b, r.err
}

func (e *imageDecoderHEIF) decodeInfe(r *streamReader, h BoxHeader) (*ItemInfoEntry, error) {
	b := &ItemInfoEntry{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	limit := r.size()

	switch b.Version {
	case 0, 1:
		info := &ItemInfoV0{
			ItemID:          r.read2(),
			ProtectionIndex: r.read2(),
			ItemName:        r.readNullTerminatedString(limit),
			ContentType:     r.readNullTerminatedString(limit),
		}
		if r.remaining() > 0 {
			info.ContentEncoding = r.readNullTerminatedString(limit)
		}
		if b.Version == 1 && r.remaining() >= 4 {
			info.ExtensionType = r.readFourCC()
			info.Extension = r.readBytes(r.remaining())
		}
		b.Info = info
	case 2, 3:
		info := &ItemInfoV2{}
		if b.Version == 2 {
			info.ItemID = uint32(r.read2())
		} else {
			info.ItemID = r.read4()
		}
		info.ProtectionIndex = r.read2()
		info.ItemType = r.readFourCC()
		info.ItemName = r.readNullTerminatedString(limit)
		switch info.ItemType {
		case ItemTypeMime:
			info.ContentType = r.readNullTerminatedString(limit)
			if r.remaining() > 0 {
				info.ContentEncoding = r.readNullTerminatedString(limit)
			}
		case ItemTypeURI:
			info.ItemURIType = r.readNullTerminatedString(limit)
		}
		b.Info = info
	default:
		e.opts.Warnf("heif: infe version %d at offset %d not supported, keeping raw payload", b.Version, h.Offset)
		b.Info = ItemInfoRaw(r.readString(r.remaining()))
	}

	if r.err != nil {
		return nil, r.err
	}
	return b, nil
}

func (e *imageDecoderHEIF) decodeIref(r *streamReader, h BoxHeader) (Box, error) {
	b := &ItemReferenceBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	if b.Version > 1 {
		e.opts.Warnf("heif: iref version %d at offset %d not supported", b.Version, h.Offset)
		r.skip(r.remaining())
		return &UnknownBox{BoxHeader: h}, r.err
	}

	readID := func(r *streamReader) uint32 {
		if b.Version == 0 {
			return uint32(r.read2())
		}
		return r.read4()
	}

	for r.err == nil && r.remaining() > 0 {
		ch, end, err := e.readBoxHeader(r, false)
		if err != nil {
			return nil, err
		}
		cr := r.sub(r.pos, end)
		r.seek(end)

		ref := ItemReference{BoxHeader: ch, FromItemID: readID(cr)}
		count := cr.read2()
		for i := uint16(0); i < count && cr.err == nil; i++ {
			ref.ToItemIDs = append(ref.ToItemIDs, readID(cr))
		}
		if cr.err != nil {
			return nil, cr.err
		}
		b.References = append(b.References, ref)
	}
	return b, r.err
}

func (e *imageDecoderHEIF) decodeIloc(r *streamReader, h BoxHeader) (Box, error) {
	b := &ItemLocationBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	if b.Version > 2 {
		e.opts.Warnf("heif: iloc version %d at offset %d not supported", b.Version, h.Offset)
		r.skip(r.remaining())
		return &UnknownBox{BoxHeader: h}, r.err
	}

	b1, b2 := r.read1(), r.read1()
	b.OffsetSize, b.LengthSize = b1>>4, b1&0x0f
	b.BaseOffsetSize, b.IndexSize = b2>>4, b2&0x0f
	if r.err != nil {
		return nil, r.err
	}

	hasIndex := b.Version == 1 || b.Version == 2
	widths := []uint8{b.OffsetSize, b.LengthSize, b.BaseOffsetSize}
	if hasIndex {
		widths = append(widths, b.IndexSize)
	}
	for _, w := range widths {
		if w != 0 && w != 4 && w != 8 {
			return nil, newInvalidFormatErrorf(ErrFieldWidthOutOfRange, r.offset()-2, "iloc field width %d", w)
		}
	}

	var count uint32
	if b.Version < 2 {
		count = uint32(r.read2())
	} else {
		count = r.read4()
	}

	for i := uint32(0); i < count && r.err == nil; i++ {
		var item ItemLocation
		if b.Version < 2 {
			item.ItemID = uint32(r.read2())
		} else {
			item.ItemID = r.read4()
		}
		if hasIndex {
			v := r.read2()
			item.Reserved = v >> 4
			item.ConstructionMethod = uint8(v & 0x0f)
		}
		item.DataReferenceIndex = r.read2()
		item.BaseOffset = readVarUint(r, b.BaseOffsetSize)
		extentCount := r.read2()
		for j := uint16(0); j < extentCount && r.err == nil; j++ {
			var ext ItemExtent
			if hasIndex {
				ext.Index = readVarUint(r, b.IndexSize)
			}
			ext.Offset = readVarUint(r, b.OffsetSize)
			ext.Length = readVarUint(r, b.LengthSize)
			item.Extents = append(item.Extents, ext)
		}
		b.Items = append(b.Items, item)
	}

	return b, r.err
}

// readVarUint reads a big-endian integer of n bytes, n being 0, 4 or 8.
func readVarUint(r *streamReader, n uint8) uint64 {
	switch n {
	case 4:
		return uint64(r.read4())
	case 8:
		return r.read8()
	default:
		return 0
	}
}

func (e *imageDecoderHEIF) decodeIdat(r *streamReader, h BoxHeader) (Box, error) {
	return &ItemDataBox{BoxHeader: h, Data: r.readBytes(r.remaining())}, r.err
}

func (e *imageDecoderHEIF) decodeIprp(r *streamReader, h BoxHeader) (Box, error) {
	children, err := e.decodeChildren(r, "meta.iprp")
	if err != nil {
		return nil, err
	}
	return &ItemPropertiesBox{BoxHeader: h, Children: children}, nil
}

func (e *imageDecoderHEIF) decodeIpco(r *streamReader, h BoxHeader) (Box, error) {
	props, err := e.decodeChildren(r, "meta.iprp.ipco")
	if err != nil {
		return nil, err
	}
	return &ItemPropertyContainerBox{BoxHeader: h, Properties: props}, nil
}

func (e *imageDecoderHEIF) decodeIspe(r *streamReader, h BoxHeader) (Box, error) {
	b := &ImageSpatialExtentsProperty{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	b.Width = r.read4()
	b.Height = r.read4()
	return b, r.err
}

func (e *imageDecoderHEIF) decodeIrot(r *streamReader, h BoxHeader) (Box, error) {
	return &ImageRotationProperty{BoxHeader: h, Angle: r.read1() & 0x03}, r.err
}

func (e *imageDecoderHEIF) decodeIpma(r *streamReader, h BoxHeader) (Box, error) {
	b := &ItemPropertyAssociationBox{BoxHeader: h}
	b.Version, b.Flags = r.readVersionAndFlags()
	count := r.read4()
	for i := uint32(0); i < count && r.err == nil; i++ {
		var entry ItemPropertyAssociation
		if b.Version < 1 {
			entry.ItemID = uint32(r.read2())
		} else {
			entry.ItemID = r.read4()
		}
		n := r.read1()
		for j := uint8(0); j < n && r.err == nil; j++ {
			var a PropertyAssociation
			if b.Flags&1 != 0 {
				v := r.read2()
				a.Essential = v&0x8000 != 0
				a.Index = v & 0x7fff
			} else {
				v := r.read1()
				a.Essential = v&0x80 != 0
				a.Index = uint16(v & 0x7f)
			}
			entry.Associations = append(entry.Associations, a)
		}
		b.Entries = append(b.Entries, entry)
	}
	return b, r.err
}

// resolveItem returns a reader over the first extent of the first item of the given type.
// A missing item or location is not an error and returns nil.
func (e *imageDecoderHEIF) resolveItem(meta *MetaBox, itemType FourCC) (*streamReader, error) {
	info, ok := meta.FindItem(itemType)
	if !ok {
		return nil, nil
	}
	loc, ok := meta.FindItemLocation(info.ItemID)
	if !ok || len(loc.Extents) == 0 {
		return nil, nil
	}
	ext := loc.Extents[0]

	var src *streamReader
	switch loc.ConstructionMethod {
	case ConstructionMethodFile:
		src = e.streamReader
	case ConstructionMethodIdat:
		idat, ok := findBox[*ItemDataBox](meta.Children)
		if !ok {
			e.opts.Warnf("heif: %s item %d is stored in a missing idat box", itemType, info.ItemID)
			return nil, nil
		}
		start, _ := idat.PayloadRange()
		src = e.sub(start, start+int64(len(idat.Data)))
	default:
		e.opts.Warnf("heif: construction method %d of %s item %d not supported", loc.ConstructionMethod, itemType, info.ItemID)
		return nil, nil
	}
	if src.err != nil {
		return nil, src.err
	}

	offset := loc.BaseOffset + ext.Offset
	length := ext.Length
	size := uint64(src.size())
	if offset < loc.BaseOffset || offset > size {
		return nil, newInvalidFormatErrorf(ErrTruncatedInput, src.base, "%s item %d at %d is outside the %d bytes available", itemType, info.ItemID, offset, size)
	}
	if length == 0 {
		// The extent spans the rest of the source.
		length = size - offset
	}
	if length > size-offset {
		return nil, newInvalidFormatErrorf(ErrTruncatedInput, src.base+int64(offset), "%s item %d needs %d bytes", itemType, info.ItemID, length)
	}

	r := src.sub(int64(offset), int64(offset+length))
	return r, r.err
}

func (e *imageDecoderHEIF) handleEXIF(meta *MetaBox) error {
	r, err := e.resolveItem(meta, ItemTypeExif)
	if err != nil || r == nil {
		return err
	}

	// The TIFF header is preceded by a 4 byte offset to it, counted from the end of the offset field.
	headerOffset := int64(r.read4())
	if r.err != nil {
		return r.err
	}
	if headerOffset > r.remaining() {
		return newInvalidFormatErrorf(ErrInvalidSize, r.offset()-4, "Exif header offset %d exceeds item", headerOffset)
	}
	r.skip(headerOffset)

	dec := newMetaDecoderEXIF(r.sub(r.pos, r.size()), e.opts)
	if err := dec.decode(); err != nil {
		return err
	}
	e.result.EXIF = dec.result
	return nil
}

func (e *imageDecoderHEIF) handleXMP(meta *MetaBox) error {
	r, err := e.resolveItem(meta, ItemTypeMime)
	if err != nil || r == nil {
		return err
	}
	e.result.XMP = newXMP(r.buf)
	return nil
}

// imageConfigFromMeta returns the dimensions of the primary item, falling back
// to the largest ispe property. Width and height are swapped for 90 and 270 degree rotations.
func imageConfigFromMeta(meta *MetaBox) ImageConfig {
	iprp, ok := findBox[*ItemPropertiesBox](meta.Children)
	if !ok {
		return ImageConfig{}
	}
	ipco, ok := findBox[*ItemPropertyContainerBox](iprp.Children)
	if !ok {
		return ImageConfig{}
	}
	props := ipco.Properties

	var (
		width, height uint32
		rotate        bool
	)

	if primaryID, ok := meta.PrimaryItemID(); ok {
		if ipma, ok := findBox[*ItemPropertyAssociationBox](iprp.Children); ok {
			for _, entry := range ipma.Entries {
				if entry.ItemID != primaryID {
					continue
				}
				for _, a := range entry.Associations {
					if a.Index < 1 || int(a.Index) > len(props) {
						continue
					}
					switch p := props[a.Index-1].(type) {
					case *ImageSpatialExtentsProperty:
						if p.Width > 0 && p.Height > 0 {
							width, height = p.Width, p.Height
						}
					case *ImageRotationProperty:
						if p.Angle == 1 || p.Angle == 3 {
							rotate = true
						}
					}
				}
			}
		}
	}

	if width == 0 || height == 0 {
		// The primary image is larger than tiles and thumbnails.
		for _, b := range props {
			switch p := b.(type) {
			case *ImageSpatialExtentsProperty:
				if uint64(p.Width)*uint64(p.Height) > uint64(width)*uint64(height) {
					width, height = p.Width, p.Height
				}
			case *ImageRotationProperty:
				if p.Angle == 1 || p.Angle == 3 {
					rotate = true
				}
			}
		}
	}

	if width == 0 || height == 0 {
		return ImageConfig{}
	}
	if rotate {
		width, height = height, width
	}
	return ImageConfig{Width: int(width), Height: int(height)}
}
