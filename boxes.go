// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

// ISOBMFF box and item types.
var (
	typeFtyp = FourCC{'f', 't', 'y', 'p'}
	typeMeta = FourCC{'m', 'e', 't', 'a'}
	typeHdlr = FourCC{'h', 'd', 'l', 'r'}
	typeDinf = FourCC{'d', 'i', 'n', 'f'}
	typeDref = FourCC{'d', 'r', 'e', 'f'}
	typeAlis = FourCC{'a', 'l', 'i', 's'}
	typeRsrc = FourCC{'r', 's', 'r', 'c'}
	typeURL  = FourCC{'u', 'r', 'l', ' '}
	typePitm = FourCC{'p', 'i', 't', 'm'}
	typeIinf = FourCC{'i', 'i', 'n', 'f'}
	typeInfe = FourCC{'i', 'n', 'f', 'e'}
	typeIref = FourCC{'i', 'r', 'e', 'f'}
	typeIloc = FourCC{'i', 'l', 'o', 'c'}
	typeIdat = FourCC{'i', 'd', 'a', 't'}
	typeIprp = FourCC{'i', 'p', 'r', 'p'}
	typeIpco = FourCC{'i', 'p', 'c', 'o'}
	typeIpma = FourCC{'i', 'p', 'm', 'a'}
	typeIspe = FourCC{'i', 's', 'p', 'e'}
	typeIrot = FourCC{'i', 'r', 'o', 't'}

	ItemTypeExif = FourCC{'E', 'x', 'i', 'f'}
	ItemTypeMime = FourCC{'m', 'i', 'm', 'e'}
	ItemTypeURI  = FourCC{'u', 'r', 'i', ' '}
)

// Box is a decoded ISOBMFF box.
// The concrete types are the *XxxBox types in this package.
type Box interface {
	Header() BoxHeader
	box()
}

// BoxHeader is the header common to all boxes.
type BoxHeader struct {
	Type FourCC

	// Size is the total size of the box including the header.
	// A declared size of 0 (box extends to the end of its parent) is resolved.
	Size uint64

	// HeaderSize is 8, or 16 if the size was stored in 64 bits.
	HeaderSize uint8

	// Offset is the absolute offset of the box in the file.
	Offset int64
}

func (h BoxHeader) Header() BoxHeader { return h }
func (BoxHeader) box()                {}

// PayloadRange returns the absolute byte range of the box payload.
func (h BoxHeader) PayloadRange() (start, end int64) {
	start = h.Offset + int64(h.HeaderSize)
	return start, h.Offset + int64(h.Size)
}

// FullBoxHeader is the version and flags header of a full box.
type FullBoxHeader struct {
	Version uint8
	Flags   uint32
}

// UnknownBox is a box this package does not decode. Its payload is skipped.
type UnknownBox struct {
	BoxHeader
}

// FileTypeBox is the ftyp box.
type FileTypeBox struct {
	BoxHeader
	MajorBrand       FourCC
	MinorVersion     uint32
	CompatibleBrands []FourCC
}

// MetaBox is the meta box holding the item structure of a HEIF file.
type MetaBox struct {
	BoxHeader
	FullBoxHeader
	Children []Box
}

// HandlerBox is the hdlr box.
type HandlerBox struct {
	BoxHeader
	FullBoxHeader
	PreDefined  uint32
	HandlerType FourCC
	Reserved    [3]uint32
	Name        string
}

// DataInformationBox is the dinf box.
type DataInformationBox struct {
	BoxHeader
	Children []Box
}

// DataReferenceBox is the dref box.
type DataReferenceBox struct {
	BoxHeader
	FullBoxHeader
	Entries []*DataEntryBox
}

// DataEntryBox is one of the alis, rsrc and url entries in a dref box.
type DataEntryBox struct {
	BoxHeader
	FullBoxHeader
	Location string
}

// PrimaryItemBox is the pitm box.
type PrimaryItemBox struct {
	BoxHeader
	FullBoxHeader
	ItemID uint32
}

// ItemInfoBox is the iinf box.
type ItemInfoBox struct {
	BoxHeader
	FullBoxHeader
	Entries []*ItemInfoEntry
}

// ItemInfoEntry is the infe box.
type ItemInfoEntry struct {
	BoxHeader
	FullBoxHeader

	// Info is one of *ItemInfoV0, *ItemInfoV2 or ItemInfoRaw depending on the version.
	Info ItemInfo
}

// ItemInfo is the version dependent content of an infe box.
type ItemInfo interface {
	itemInfo()
}

// ItemInfoV0 is the content of infe versions 0 and 1.
type ItemInfoV0 struct {
	ItemID          uint16
	ProtectionIndex uint16
	ItemName        string
	ContentType     string
	ContentEncoding string

	// Version 1 only.
	ExtensionType FourCC
	Extension     []byte
}

// ItemInfoV2 is the content of infe versions 2 and 3.
type ItemInfoV2 struct {
	// ItemID is 16 bits in version 2.
	ItemID          uint32
	ProtectionIndex uint16
	ItemType        FourCC
	ItemName        string

	// For mime items.
	ContentType     string
	ContentEncoding string

	// For uri items.
	ItemURIType string
}

// ItemInfoRaw is the payload of an infe box with an unknown version.
type ItemInfoRaw string

func (*ItemInfoV0) itemInfo() {}
func (*ItemInfoV2) itemInfo() {}
func (ItemInfoRaw) itemInfo() {}

// ItemReferenceBox is the iref box.
type ItemReferenceBox struct {
	BoxHeader
	FullBoxHeader
	References []ItemReference
}

// ItemReference is a typed reference from one item to others.
// The header Type is the reference type, e.g. thmb or cdsc.
type ItemReference struct {
	BoxHeader
	FromItemID uint32
	ToItemIDs  []uint32
}

// ItemLocationBox is the iloc box.
type ItemLocationBox struct {
	BoxHeader
	FullBoxHeader

	// Field widths in bytes, one of 0, 4 or 8.
	OffsetSize     uint8
	LengthSize     uint8
	BaseOffsetSize uint8
	IndexSize      uint8

	Items []ItemLocation
}

// ItemLocation is the location of one item.
type ItemLocation struct {
	ItemID uint32

	// Reserved and ConstructionMethod are only set in versions 1 and 2.
	Reserved           uint16
	ConstructionMethod uint8

	DataReferenceIndex uint16
	BaseOffset         uint64
	Extents            []ItemExtent
}

// ItemExtent is a byte range of an item.
type ItemExtent struct {
	// Index is only set in versions 1 and 2.
	Index  uint64
	Offset uint64
	Length uint64
}

// Construction methods in ItemLocation.
const (
	ConstructionMethodFile = 0
	ConstructionMethodIdat = 1
	ConstructionMethodItem = 2
)

// ItemDataBox is the idat box.
type ItemDataBox struct {
	BoxHeader
	Data []byte
}

// ItemPropertiesBox is the iprp box.
type ItemPropertiesBox struct {
	BoxHeader
	Children []Box
}

// ItemPropertyContainerBox is the ipco box.
// Properties are referenced by their 1 based index in ItemPropertyAssociationBox.
type ItemPropertyContainerBox struct {
	BoxHeader
	Properties []Box
}

// ImageSpatialExtentsProperty is the ispe property.
type ImageSpatialExtentsProperty struct {
	BoxHeader
	FullBoxHeader
	Width  uint32
	Height uint32
}

// ImageRotationProperty is the irot property.
type ImageRotationProperty struct {
	BoxHeader

	// Angle is the anti-clockwise rotation in units of 90 degrees.
	Angle uint8
}

// ItemPropertyAssociationBox is the ipma box.
type ItemPropertyAssociationBox struct {
	BoxHeader
	FullBoxHeader
	Entries []ItemPropertyAssociation
}

// ItemPropertyAssociation lists the properties of one item.
type ItemPropertyAssociation struct {
	ItemID       uint32
	Associations []PropertyAssociation
}

type PropertyAssociation struct {
	Essential bool
	// Index is 1 based, 0 means no property.
	Index uint16
}

// findBox returns the first box of type T in boxes.
func findBox[T Box](boxes []Box) (T, bool) {
	for _, b := range boxes {
		if v, ok := b.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// ItemInfos returns the entries of the iinf box.
func (m *MetaBox) ItemInfos() []*ItemInfoEntry {
	if b, ok := findBox[*ItemInfoBox](m.Children); ok {
		return b.Entries
	}
	return nil
}

// ItemLocations returns the items of the iloc box.
func (m *MetaBox) ItemLocations() []ItemLocation {
	if b, ok := findBox[*ItemLocationBox](m.Children); ok {
		return b.Items
	}
	return nil
}

// PrimaryItemID returns the item ID from the pitm box.
func (m *MetaBox) PrimaryItemID() (uint32, bool) {
	if b, ok := findBox[*PrimaryItemBox](m.Children); ok {
		return b.ItemID, true
	}
	return 0, false
}

// FindItem returns the first version 2 or 3 item info with the given item type.
func (m *MetaBox) FindItem(itemType FourCC) (*ItemInfoV2, bool) {
	for _, e := range m.ItemInfos() {
		if v, ok := e.Info.(*ItemInfoV2); ok && v.ItemType == itemType {
			return v, true
		}
	}
	return nil, false
}

// FindItemLocation returns the location of the item with the given ID.
func (m *MetaBox) FindItemLocation(itemID uint32) (ItemLocation, bool) {
	for _, l := range m.ItemLocations() {
		if l.ItemID == itemID {
			return l, true
		}
	}
	return ItemLocation{}, false
}
