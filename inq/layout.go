package inq

import "math/bits"

// Shared region layout, version 1. All integers are little endian.
//
//	offset  size  field
//	0       8     write cursor (producer owned)
//	64      8     read cursor (consumer owned)
//	128     4     magic "INQ1"
//	132     2     layout version
//	134     2     slot size
//	136     8     slot mask (slot count - 1)
//	144     8     created at (unix nanos)
//	192     ...   slots
//
// Cursors are monotonically increasing record counts; the slot of a cursor
// is cursor & mask. Each cursor has its own cache line.
const (
	cacheLine = 64

	offWrite     = 0
	offRead      = cacheLine
	offMagic     = 2 * cacheLine
	offVersion   = offMagic + 4
	offSlotSize  = offMagic + 6
	offMask      = offMagic + 8
	offCreatedAt = offMagic + 16

	// HeaderSize is the size of the region header preceding the slots.
	HeaderSize = 3 * cacheLine

	magic   uint32 = 0x494e5131
	version uint16 = 1

	// DefaultCapacity is used when a non-positive capacity is requested.
	DefaultCapacity = 1024

	maxSlots = 1 << 30
)

// regionSize returns the total size of a region holding the slots.
func regionSize(slots uint64) int {
	return HeaderSize + int(slots)*SlotSize
}

// roundUpToPowerOf2 rounds v up to the next power of two.
func roundUpToPowerOf2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

func isPowerOf2(v uint64) bool {
	return v > 0 && v&(v-1) == 0
}
