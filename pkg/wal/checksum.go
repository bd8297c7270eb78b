package wal

import "hash/crc32"

// castagnoliTable is the CRC32C polynomial table; most modern CPUs have a
// hardware instruction for it, unlike the IEEE polynomial crc32.ChecksumIEEE
// uses.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums data with the Castagnoli polynomial.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data's checksum matches expected.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
