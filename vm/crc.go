package vm

import (
	"hash/crc32"
	"sync"
)

// crcTable is built on first use and never mutated afterwards.
var crcTable = sync.OnceValue(func() *crc32.Table {
	return crc32.MakeTable(crc32.IEEE)
})

// Checksum returns the CRC-32 (IEEE) of the concatenation of parts.
func Checksum(parts ...[]byte) uint32 {
	tab := crcTable()
	var crc uint32
	for _, p := range parts {
		crc = crc32.Update(crc, tab, p)
	}
	return crc
}
