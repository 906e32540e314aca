package glulx

import (
	"encoding/binary"
	"io"
)

// Image is a loaded Glulx game file, parsed from its 36-byte header per
// spec.md §4 Data Model / §6. Bytes holds the image padded out to EndMem
// (the bytes from the file's EXTSTART boundary to ENDMEM are zero-filled,
// per the format: only EXTSTART bytes are actually stored on disk).
type Image struct {
	Bytes []byte

	RAMStart    uint32
	EndMem      uint32
	MaxMem      uint32
	StackSize   uint32
	StartFunc   uint32
	DecodingTbl uint32
	Checksum    uint32
}

const (
	glulxMagic   = 0x476C756C // "Glul"
	headerLength = 36
)

// defaultMaxMem bounds how far setmemsize/malloc may grow RAM when the
// caller doesn't request a tighter limit; glulxe itself enforces no such
// ceiling beyond host memory, but an embedding host needs some guard
// against a runaway setmemsize loop.
const defaultMaxMem = 0x4000000 // 64 MiB

// LoadImage parses a Glulx game file, validating the magic number and
// header shape. It does not validate the checksum — callers wanting that
// should call (*Memory).Verify() once the VM is constructed, matching
// glulxe's own deferred verify-on-request behavior.
func LoadImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < headerLength {
		return nil, errBadImage
	}
	if binary.BigEndian.Uint32(data[0:4]) != glulxMagic {
		return nil, errBadImage
	}

	ramstart := binary.BigEndian.Uint32(data[8:12])
	extstart := binary.BigEndian.Uint32(data[12:16])
	endmem := binary.BigEndian.Uint32(data[16:20])
	stacksize := binary.BigEndian.Uint32(data[20:24])
	startfunc := binary.BigEndian.Uint32(data[24:28])
	decodingtbl := binary.BigEndian.Uint32(data[28:32])
	checksum := binary.BigEndian.Uint32(data[32:36])

	if extstart > uint32(len(data)) || endmem < extstart || endmem%256 != 0 {
		return nil, errBadImage
	}
	if ramstart > extstart || ramstart%256 != 0 {
		return nil, errBadImage
	}

	bytes := make([]byte, endmem)
	copy(bytes, data[:extstart])

	maxmem := uint32(defaultMaxMem)
	if endmem > maxmem {
		maxmem = endmem
	}

	return &Image{
		Bytes:       bytes,
		RAMStart:    ramstart,
		EndMem:      endmem,
		MaxMem:      maxmem,
		StackSize:   stacksize,
		StartFunc:   startfunc,
		DecodingTbl: decodingtbl,
		Checksum:    checksum,
	}, nil
}
