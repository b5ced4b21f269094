package pg2arrow

// initialBufferCapacity is the starting size for a fresh GrowableBuffer,
// matching the 2MiB the original pg2arrow tool mmaps before its first
// reallocation.
const initialBufferCapacity = 1 << 21

// arrowAlignment is the byte boundary every Arrow buffer body must start
// and be padded to on disk.
const arrowAlignment = 64

// GrowableBuffer is an append-only, bit-addressable byte buffer used to
// accumulate a single Arrow column buffer (null bitmap, values, or the
// variable-length heap) across a batch. It grows by doubling and retains
// its capacity across Clear calls so that repeated batches reuse the same
// backing array instead of reallocating.
type GrowableBuffer struct {
	buf  []byte
	used int
}

// NewGrowableBuffer returns an empty buffer with no backing storage; the
// first Append/AppendZero/SetBit/ClrBit call allocates it.
func NewGrowableBuffer() *GrowableBuffer {
	return &GrowableBuffer{}
}

// Len returns the number of bytes currently in use.
func (b *GrowableBuffer) Len() int {
	return b.used
}

// Cap returns the current backing capacity.
func (b *GrowableBuffer) Cap() int {
	return len(b.buf)
}

// Bytes returns the used portion of the buffer. The returned slice is
// only valid until the next mutating call.
func (b *GrowableBuffer) Bytes() []byte {
	return b.buf[:b.used]
}

// Truncate rewinds used back to n, discarding appended bytes without
// shrinking capacity. Used by the batch manager to unwind a speculative
// append (§9 of the design notes).
func (b *GrowableBuffer) Truncate(n int) {
	if n < 0 || n > b.used {
		panic("pg2arrow: GrowableBuffer.Truncate out of range")
	}
	b.used = n
}

// Clear resets used to zero while retaining capacity, so the buffer can
// be reused for the next record batch.
func (b *GrowableBuffer) Clear() {
	b.used = 0
}

// ensure grows the backing array, if necessary, so that it can hold at
// least `required` bytes. Growth doubles the previous capacity (or starts
// at initialBufferCapacity) until it reaches the requested size.
func (b *GrowableBuffer) ensure(required int) {
	if cap(b.buf) >= required {
		if len(b.buf) < required {
			b.buf = b.buf[:cap(b.buf)]
		}
		return
	}
	newCap := initialBufferCapacity
	if cap(b.buf) > 0 {
		newCap = cap(b.buf) * 2
	}
	for newCap < required {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.used])
	b.buf = grown
}

// Append copies src onto the end of the buffer, growing as needed.
func (b *GrowableBuffer) Append(src []byte) {
	b.ensure(b.used + len(src))
	copy(b.buf[b.used:], src)
	b.used += len(src)
}

// AppendZero appends n zero bytes, growing as needed.
func (b *GrowableBuffer) AppendZero(n int) {
	b.ensure(b.used + n)
	for i := b.used; i < b.used+n; i++ {
		b.buf[i] = 0
	}
	b.used += n
}

// bitmapLen returns the number of bytes needed to hold nbits worth of
// validity bitmap.
func bitmapLen(nbits int) int {
	return (nbits + 7) / 8
}

// SetBit sets bit i (marking slot i as non-null), expanding the backing
// bitmap if index i falls beyond the current used length.
func (b *GrowableBuffer) SetBit(i int) {
	required := bitmapLen(i + 1)
	b.ensure(required)
	if b.used < required {
		for j := b.used; j < required; j++ {
			b.buf[j] = 0
		}
		b.used = required
	}
	b.buf[i>>3] |= 1 << uint(i&7)
}

// ClrBit clears bit i (marking slot i as null), expanding the backing
// bitmap the same way SetBit does.
func (b *GrowableBuffer) ClrBit(i int) {
	required := bitmapLen(i + 1)
	b.ensure(required)
	if b.used < required {
		for j := b.used; j < required; j++ {
			b.buf[j] = 0
		}
		b.used = required
	}
	b.buf[i>>3] &^= 1 << uint(i&7)
}

// align64 rounds n up to the next multiple of the Arrow buffer body
// alignment (64 bytes).
func align64(n int) int {
	return (n + arrowAlignment - 1) &^ (arrowAlignment - 1)
}

// align4 rounds n up to the next multiple of 4, used for FlatBuffer
// message and extra-blob padding.
func align4(n int) int {
	return (n + 3) &^ 3
}

// align8 rounds n up to the next multiple of 8, used for on-disk message
// start alignment.
func align8(n int) int {
	return (n + 7) &^ 7
}
