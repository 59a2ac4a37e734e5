package engine

import (
	"github.com/elliotchance/pie/v2"
)

// SpreadSet draws up to count distinct mint numbers from pool, keeping the
// picks well separated: after every pick, all remaining numbers within
// offset*2 of the picked value are excluded from further draws. The draw
// order is fully determined by the generator, so the same seed reproduces
// the same set. The result may be shorter than count when the pool runs
// dry; that is a valid outcome, not an error.
func SpreadSet(bg *ByteGenerator, pool []uint16, count uint64, offset uint16) []uint16 {
	working := make([]uint16, len(pool))
	copy(working, pool)

	if count > uint64(len(working)) {
		count = uint64(len(working))
	}

	result := make([]uint16, 0, count)

	for i := uint64(0); i < count; i++ {
		idx := bg.NextIndex(uint64(len(working)))
		val := working[idx]
		result = append(result, val)

		lo := int(val) - int(offset)*2
		hi := int(val) + int(offset)*2
		working = pie.Filter(working, func(m uint16) bool {
			return int(m) < lo || int(m) > hi
		})

		if len(working) == 0 {
			break
		}
	}

	return result
}
