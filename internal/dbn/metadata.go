package dbn

import (
	"encoding/binary"
	"fmt"
)

// PreludeSize is the fixed binary prelude: "DBN", version, metadata length.
const PreludeSize = 8

var magic = []byte("DBN")

// Default symbol field widths when the metadata block does not carry one.
const (
	SymbolCstrLenV1 = 22
	SymbolCstrLenV2 = 71
)

// Metadata is the decoded session metadata prelude. Binary record decoding
// must not start until the full block has been consumed.
type Metadata struct {
	Version       uint8
	Dataset       string
	Schema        uint16
	TsStart       uint64
	TsEnd         uint64
	Limit         uint64
	STypeIn       uint8
	STypeOut      uint8
	SymbolCstrLen int
	// BlockSize is the declared metadata length after the prelude.
	BlockSize int
}

// ParsePrelude validates the 8-byte prelude and returns the protocol version
// and the metadata block length that follows.
func ParsePrelude(b []byte) (version uint8, blockLen int, err error) {
	if len(b) < PreludeSize {
		return 0, 0, fmt.Errorf("dbn: prelude needs %d bytes, have %d", PreludeSize, len(b))
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] {
		return 0, 0, fmt.Errorf("dbn: bad magic %q", b[:3])
	}
	version = b[3]
	if version < 1 || version > 2 {
		return 0, 0, fmt.Errorf("dbn: unsupported version %d", version)
	}
	blockLen = int(binary.LittleEndian.Uint32(b[4:8]))
	return version, blockLen, nil
}

// ParseMetadata decodes the metadata block that follows the prelude. The
// block may carry trailing symbol-mapping data; it is skipped, but the whole
// declared length is considered consumed by the caller.
func ParseMetadata(version uint8, block []byte) (*Metadata, error) {
	const fixedPart = 45 // dataset[16] + schema + start + end + limit + stypes + ts_out
	if len(block) < fixedPart {
		return nil, fmt.Errorf("dbn: metadata block too short: %d", len(block))
	}
	m := &Metadata{
		Version:   version,
		Dataset:   cstr(block[0:16]),
		Schema:    u16(block[16:18]),
		TsStart:   u64(block[18:26]),
		TsEnd:     u64(block[26:34]),
		Limit:     u64(block[34:42]),
		STypeIn:   block[42],
		STypeOut:  block[43],
		BlockSize: len(block),
	}
	switch {
	case version >= 2 && len(block) >= fixedPart+2:
		m.SymbolCstrLen = int(u16(block[45:47]))
	case version >= 2:
		m.SymbolCstrLen = SymbolCstrLenV2
	default:
		m.SymbolCstrLen = SymbolCstrLenV1
	}
	if m.SymbolCstrLen <= 0 {
		m.SymbolCstrLen = SymbolCstrLenV1
	}
	return m, nil
}
