package pg2arrow

import (
	"encoding/binary"
	"fmt"
)

// FBTableBuilder assembles one FlatBuffer table: a vtable describing
// which of its N fields are populated and where, an inline table region
// for scalars and pointer slots, and a side list of "extra" blobs
// (strings, vectors, sub-tables) concatenated after the table once the
// builder is flattened.
//
// The table region always reserves its first 4 bytes for the backward
// offset to the vtable that Flatten writes; put_scalar's first field
// therefore starts at table offset 4, matching the vtable's own offsets
// being measured from the table's start.
type FBTableBuilder struct {
	n       int
	offsets []int32 // per-field byte offset into table; 0 = absent
	table   []byte
	extras  []fbExtra
	err     error // first invariant violation seen by Put*; Flatten returns it
}

type fbExtra struct {
	field int
	slot  int32 // offset into table where the pointer placeholder lives
	blob  []byte
	shift uint32
}

// NewFBTableBuilder returns a builder for a table with n declared
// fields, all initially absent.
func NewFBTableBuilder(n int) *FBTableBuilder {
	return &FBTableBuilder{
		n:       n,
		offsets: make([]int32, n),
		table:   make([]byte, 4),
	}
}

func (b *FBTableBuilder) alignTable(align int) {
	for len(b.table)%align != 0 {
		b.table = append(b.table, 0)
	}
}

// PutScalar writes value into the table, aligned to align bytes, and
// records field i's offset. A value that is all zero bytes is treated
// as the type's default and omitted (offset[i] stays 0); readers MUST
// treat an absent field the same as this default.
//
// i is checked against the table's declared field count; an out-of-range
// index is an internal bug, not a caller error, so it is latched on the
// builder and surfaces as an EncodeError from Flatten rather than being
// returned here, keeping every other Put* call a plain fire-and-forget.
func (b *FBTableBuilder) PutScalar(i int, value []byte, align int) {
	if b.err != nil {
		return
	}
	if i < 0 || i >= b.n {
		b.err = &EncodeError{Func: "PutScalar", Reason: fmt.Sprintf("field index %d out of range for %d-field table", i, b.n)}
		return
	}
	allZero := true
	for _, by := range value {
		if by != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		b.offsets[i] = 0
		return
	}
	b.alignTable(align)
	slot := len(b.table)
	b.table = append(b.table, value...)
	b.offsets[i] = int32(slot)
}

// PutBinary reserves a 4-byte pointer slot for field i and records blob
// as an extra to be concatenated after the table at Flatten time. shift
// is added to the resolved target address, letting PutOffset land a
// reader past a sub-table's vtable onto its table root.
func (b *FBTableBuilder) PutBinary(i int, blob []byte, shift uint32) {
	if b.err != nil {
		return
	}
	if i < 0 || i >= b.n {
		b.err = &EncodeError{Func: "PutBinary", Reason: fmt.Sprintf("field index %d out of range for %d-field table", i, b.n)}
		return
	}
	b.alignTable(4)
	slot := len(b.table)
	b.table = append(b.table, 0, 0, 0, 0)
	b.offsets[i] = int32(slot)
	b.extras = append(b.extras, fbExtra{field: i, slot: int32(slot), blob: blob, shift: shift})
}

// PutOffset embeds a pointer to sub's flattened image, landing readers
// on sub's table root rather than its vtable.
func (b *FBTableBuilder) PutOffset(i int, sub *FBTableBuilder) {
	if b.err != nil {
		return
	}
	image, err := sub.Flatten()
	if err != nil {
		b.err = err
		return
	}
	b.PutBinary(i, image, uint32(sub.vlen()))
}

// PutString embeds a length-prefixed, NUL-terminated UTF-8 string as
// field i's pointer target.
func (b *FBTableBuilder) PutString(i int, s string) {
	blob := make([]byte, 4+len(s)+1)
	binary.LittleEndian.PutUint32(blob[0:4], uint32(len(s)))
	copy(blob[4:], s)
	blob = padTo4(blob)
	b.PutBinary(i, blob, 0)
}

// PutVector embeds a vector of offsets to sub-tables as field i's
// pointer target: int32 nitems, nitems x int32 element offsets, then
// the concatenated, 4-byte-aligned sub-table images, each element
// offset pointing past its sub-table's vtable onto its table root.
func (b *FBTableBuilder) PutVector(i int, subs []*FBTableBuilder) {
	if b.err != nil {
		return
	}
	n := len(subs)
	header := make([]byte, 4+4*n)
	binary.LittleEndian.PutUint32(header[0:4], uint32(n))

	images := make([][]byte, n)
	imageStart := make([]int, n)
	pos := len(header)
	for idx, sub := range subs {
		img, err := sub.Flatten()
		if err != nil {
			b.err = err
			return
		}
		img = padTo4(img)
		images[idx] = img
		imageStart[idx] = pos
		pos += len(img)
	}

	blob := make([]byte, pos)
	copy(blob, header)
	for idx := range subs {
		copy(blob[imageStart[idx]:], images[idx])
	}
	for idx, sub := range subs {
		slotPos := 4 + 4*idx
		target := imageStart[idx] + int(sub.vlen())
		binary.LittleEndian.PutUint32(blob[slotPos:slotPos+4], uint32(target-slotPos))
	}

	b.PutBinary(i, blob, 0)
}

// vlen returns the byte length of this builder's vtable, 4 + 2*n
// rounded to keep the vtable itself 16-bit aligned (it already is,
// since 4 + 2*n is always even).
func (b *FBTableBuilder) vlen() int {
	return 4 + 2*b.n
}

// Flatten assembles this table's final byte image: vtable, then table
// (with its leading backref patched in), then every extra blob
// concatenated and the table's pointer slots patched to the relative
// offset of their target. It returns the first invariant violation
// latched by a Put* call, or one found while patching pointer slots.
func (b *FBTableBuilder) Flatten() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	vlen := b.vlen()
	tlen := len(b.table)

	vtable := make([]byte, vlen)
	binary.LittleEndian.PutUint16(vtable[0:2], uint16(vlen))
	binary.LittleEndian.PutUint16(vtable[2:4], uint16(tlen))
	for i := 0; i < b.n; i++ {
		binary.LittleEndian.PutUint16(vtable[4+2*i:6+2*i], uint16(b.offsets[i]))
	}

	table := make([]byte, tlen)
	copy(table, b.table)
	binary.LittleEndian.PutUint32(table[0:4], uint32(vlen))

	image := make([]byte, 0, vlen+tlen)
	image = append(image, vtable...)
	image = append(image, table...)

	extraStart := make([]int, len(b.extras))
	for idx, ex := range b.extras {
		extraStart[idx] = len(image)
		image = append(image, ex.blob...)
	}

	for idx, ex := range b.extras {
		slotAddr := vlen + int(ex.slot)
		if ex.slot < 0 || slotAddr+4 > vlen+tlen {
			return nil, &EncodeError{Func: "Flatten", Reason: fmt.Sprintf("field %d's pointer slot at table offset %d falls outside the %d-byte table", ex.field, ex.slot, tlen)}
		}
		target := extraStart[idx] + int(ex.shift)
		if target < 0 || target > len(image) {
			return nil, &EncodeError{Func: "Flatten", Reason: fmt.Sprintf("field %d's patched offset target %d falls outside the %d-byte flattened image", ex.field, target, len(image))}
		}
		binary.LittleEndian.PutUint32(image[slotAddr:slotAddr+4], uint32(target-slotAddr))
	}

	return image, nil
}

// padTo4 returns b padded with trailing zero bytes to a multiple of 4.
func padTo4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
