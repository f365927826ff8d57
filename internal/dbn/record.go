package dbn

import (
	"encoding/binary"
	"math"
	"time"
)

// Record type tags carried in the second header byte.
const (
	RTypeTrade      uint8 = 0x00
	RTypeMbp1       uint8 = 0x01
	RTypeMbp10      uint8 = 0x0A
	RTypeDefinition uint8 = 0x13
	RTypeError      uint8 = 0x15
	RTypeSystem     uint8 = 0x17
	RTypeStatistics uint8 = 0x18
	RTypeOhlcv1s    uint8 = 0x20
	RTypeOhlcv1m    uint8 = 0x21
	RTypeOhlcv1h    uint8 = 0x22
	RTypeOhlcv1d    uint8 = 0x23
)

const (
	// LengthUnit converts the 1-byte record length prefix to bytes.
	LengthUnit = 4
	// HeaderSize is the fixed record header: length, rtype, publisher,
	// instrument, ts_event.
	HeaderSize = 16

	tradeBodySize = 48
	levelSize     = 32
	ohlcvSize     = 56
	statSize      = 64
)

// UndefPrice is the wire sentinel for "no price". It decodes to a nil
// pointer, never to zero.
const UndefPrice = int64(math.MaxInt64)

// UndefTimestamp is the wire sentinel for "no timestamp".
const UndefTimestamp = uint64(math.MaxUint64)

// PxScale converts fixed-point wire prices to float dollars.
const PxScale = 1e-9

// RTypeName returns a short label for metrics and logs.
func RTypeName(rtype uint8) string {
	switch rtype {
	case RTypeTrade:
		return "trade"
	case RTypeMbp1, RTypeMbp10:
		return "quote"
	case RTypeDefinition:
		return "definition"
	case RTypeError:
		return "error"
	case RTypeSystem:
		return "system"
	case RTypeStatistics:
		return "statistic"
	case RTypeOhlcv1s, RTypeOhlcv1m, RTypeOhlcv1h, RTypeOhlcv1d:
		return "ohlcv"
	default:
		return "unknown"
	}
}

func decodePrice(raw int64) *float64 {
	if raw == UndefPrice {
		return nil
	}
	px := float64(raw) * PxScale
	return &px
}

func decodeTimestamp(raw uint64) *time.Time {
	if raw == UndefTimestamp || raw == 0 {
		return nil
	}
	t := time.Unix(0, int64(raw)).UTC()
	return &t
}

func u16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func u32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func u64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func i32(b []byte) int32  { return int32(binary.LittleEndian.Uint32(b)) }
func i64(b []byte) int64  { return int64(binary.LittleEndian.Uint64(b)) }

// cstr reads a NUL-terminated string out of a fixed-width field.
func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
