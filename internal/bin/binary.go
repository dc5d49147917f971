package bin

import "encoding/binary"

// PutU16LE writes a uint16 in little-endian order.
func PutU16LE(dst []byte, v uint16) { binary.LittleEndian.PutUint16(dst, v) }

// PutU32LE writes a uint32 in little-endian order.
func PutU32LE(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }

// PutU64LE writes a uint64 in little-endian order.
func PutU64LE(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }

// U16LE reads a uint16 in little-endian order.
func U16LE(src []byte) uint16 { return binary.LittleEndian.Uint16(src) }

// U32LE reads a uint32 in little-endian order.
func U32LE(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

// U64LE reads a uint64 in little-endian order.
func U64LE(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }
