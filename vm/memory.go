package glulx

import "encoding/binary"

// Memory is the flat, big-endian byte image the dispatcher executes
// against: a read-only ROM prefix followed by a writable RAM region that
// can grow (via setmemsize) up to maxmem. The accessor shape — narrow,
// bounds-checked Mem1/2/4 and MemW1/2/4 functions — follows the teacher's
// uint32FromBytes/uint32ToBytes accessor idiom in vm.go, generalized to
// big-endian and to an owned, growable backing array instead of a fixed
// stack slice.
type Memory struct {
	bytes []byte

	ramstart uint32
	endmem   uint32
	maxmem   uint32

	// protectstart/protectend are preserved verbatim across restart.
	protectStart uint32
	protectEnd   uint32

	// original holds the image bytes exactly as loaded, used by restart
	// and by verify's checksum recomputation. Only the first endmemOrig
	// bytes are meaningful.
	original    []byte
	endmemOrig  uint32
	checksum    uint32
}

// NewMemory wraps a loaded image. bytes must already be endmem-sized
// (callers pad RAM out to the header's endmem before constructing this).
func NewMemory(bytes []byte, ramstart, endmem, maxmem, checksum uint32) *Memory {
	original := make([]byte, len(bytes))
	copy(original, bytes)
	return &Memory{
		bytes:      bytes,
		ramstart:   ramstart,
		endmem:     endmem,
		maxmem:     maxmem,
		original:   original,
		endmemOrig: endmem,
		checksum:   checksum,
	}
}

func (m *Memory) Len() uint32      { return m.endmem }
func (m *Memory) RAMStart() uint32 { return m.ramstart }

func (m *Memory) inBounds(addr uint32, width uint32) bool {
	if addr > m.endmem {
		return false
	}
	return m.endmem-addr >= width
}

// Mem1/Mem2/Mem4 read big-endian values from the image. Bounds checking
// lives here so every opcode path that reads through these is
// automatically safe — matching the teacher's Design Notes recommendation
// that accessors carry the bounds check, not their callers.
func (m *Memory) Mem1(addr uint32) (byte, error) {
	if !m.inBounds(addr, 1) {
		return 0, errMemOOB(addr)
	}
	return m.bytes[addr], nil
}

func (m *Memory) Mem2(addr uint32) (uint32, error) {
	if !m.inBounds(addr, 2) {
		return 0, errMemOOB(addr)
	}
	return uint32(binary.BigEndian.Uint16(m.bytes[addr:])), nil
}

func (m *Memory) Mem4(addr uint32) (uint32, error) {
	if !m.inBounds(addr, 4) {
		return 0, errMemOOB(addr)
	}
	return binary.BigEndian.Uint32(m.bytes[addr:]), nil
}

func (m *Memory) checkWritable(addr uint32) error {
	if addr < m.ramstart {
		return errROMWrite
	}
	return nil
}

func (m *Memory) MemW1(addr uint32, val uint32) error {
	if !m.inBounds(addr, 1) {
		return errMemOOB(addr)
	}
	if err := m.checkWritable(addr); err != nil {
		return err
	}
	m.bytes[addr] = byte(val)
	return nil
}

func (m *Memory) MemW2(addr uint32, val uint32) error {
	if !m.inBounds(addr, 2) {
		return errMemOOB(addr)
	}
	if err := m.checkWritable(addr); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(m.bytes[addr:], uint16(val))
	return nil
}

func (m *Memory) MemW4(addr uint32, val uint32) error {
	if !m.inBounds(addr, 4) {
		return errMemOOB(addr)
	}
	if err := m.checkWritable(addr); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(m.bytes[addr:], val)
	return nil
}

// memW1Raw writes one byte without the ROM or bounds check. Nothing in
// this package calls it; restore and restart rewrite memory through their
// own bulk copies.
func (m *Memory) memW1Raw(addr uint32, val byte) {
	m.bytes[addr] = val
}

// SetMemSize implements setmemsize: endmem must stay 256-byte aligned and
// never shrink below the image's original size. Returns false (rather
// than a Go error reflecting a fatal condition) on failure, matching the
// spec's "program-visible failure" channel — setmemsize reports failure
// through its destination operand, it never aborts the VM.
func (m *Memory) SetMemSize(newEndmem uint32) bool {
	if newEndmem%256 != 0 {
		return false
	}
	if newEndmem < m.endmemOrig {
		return false
	}
	if newEndmem > m.maxmem {
		return false
	}
	if newEndmem == m.endmem {
		return true
	}
	grown := make([]byte, newEndmem)
	copy(grown, m.bytes)
	m.bytes = grown
	m.endmem = newEndmem
	return true
}

// Protect records the protected range preserved verbatim across restart.
// A zero-length range (start == end) clears protection, per exec.c's
// op_protect.
func (m *Memory) Protect(start, length uint32) {
	end := start + length
	if start == end {
		start, end = 0, 0
	}
	m.protectStart, m.protectEnd = start, end
}

// Restart reloads RAM (and, conceptually, the whole image) from the
// original on-disk bytes, except for [protectstart, protectend), which is
// preserved verbatim — glulxe's vm_restart.
func (m *Memory) Restart() {
	saved := make([]byte, 0)
	if m.protectEnd > m.protectStart {
		saved = append(saved, m.bytes[m.protectStart:m.protectEnd]...)
	}
	m.bytes = make([]byte, m.endmemOrig)
	copy(m.bytes, m.original)
	m.endmem = m.endmemOrig
	if len(saved) > 0 {
		copy(m.bytes[m.protectStart:m.protectEnd], saved)
	}
}

// Verify recomputes the image checksum against the ROM+initial-RAM bytes
// exactly as loaded (RAM grown later by setmemsize is excluded), per the
// Open Question resolved in SPEC_FULL.md: the stored checksum field
// (4 bytes at offset 32) is treated as zero during the sum.
func (m *Memory) Verify() bool {
	return computeChecksum(m.original) == m.checksum
}

func computeChecksum(image []byte) uint32 {
	var sum uint32
	n := len(image) - len(image)%4
	for i := 0; i < n; i += 4 {
		if i == checksumFieldOffset {
			continue
		}
		sum += binary.BigEndian.Uint32(image[i:])
	}
	return sum
}

const checksumFieldOffset = 32
