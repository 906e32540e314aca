package glulx

import (
	"bytes"
	"encoding/binary"
)

// The IFF/Quetzal-style chunk tags used by Glulx's IFZS save-file format,
// per spec.md §4.11. No chunk-format library appeared anywhere in the
// retrieved example corpus (grep across all 310 files turned up nothing
// beyond incidental substring matches), so this reader/writer is built
// directly on encoding/binary and bytes.Buffer — the justified stdlib
// fallback recorded in DESIGN.md.
var (
	tagFORM = [4]byte{'F', 'O', 'R', 'M'}
	tagIFZS = [4]byte{'I', 'F', 'Z', 'S'}
	tagIFhd = [4]byte{'I', 'F', 'h', 'd'}
	tagUMem = [4]byte{'U', 'M', 'e', 'm'}
	tagStks = [4]byte{'S', 't', 'k', 's'}
	tagMAll = [4]byte{'M', 'A', 'l', 'l'}
)

func writeChunk(buf *bytes.Buffer, tag [4]byte, data []byte) {
	buf.Write(tag[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
	if len(data)%2 != 0 {
		buf.WriteByte(0)
	}
}

type iffChunk struct {
	tag  [4]byte
	data []byte
}

func readChunks(data []byte) ([]iffChunk, error) {
	var chunks []iffChunk
	p := 0
	for p+8 <= len(data) {
		var tag [4]byte
		copy(tag[:], data[p:p+4])
		size := binary.BigEndian.Uint32(data[p+4 : p+8])
		p += 8
		if p+int(size) > len(data) {
			return nil, errBadImage
		}
		chunks = append(chunks, iffChunk{tag: tag, data: data[p : p+int(size)]})
		p += int(size)
		if size%2 != 0 {
			p++
		}
	}
	return chunks, nil
}

// snapshot captures everything a save file needs to reconstitute
// execution state: the IFhd identifying block (the first 128 bytes of the
// original image, or only the bytes below ramstart if it is smaller), the full RAM image
// from ramstart to endmem, the evaluation stack contents, and a summary
// of any live heap allocations (spec.md's MAll chunk).
func (vm *VM) buildSnapshot(pc uint32) []byte {
	var buf bytes.Buffer

	hdrLen := 128
	if int(vm.mem.ramstart) < hdrLen {
		hdrLen = int(vm.mem.ramstart)
	}
	ifhd := make([]byte, hdrLen)
	copy(ifhd, vm.mem.original[:hdrLen])

	ram := make([]byte, vm.mem.endmem-vm.mem.ramstart)
	copy(ram, vm.mem.bytes[vm.mem.ramstart:vm.mem.endmem])

	stks := make([]byte, vm.stack.stackptr)
	copy(stks, vm.stack.bytes[:vm.stack.stackptr])

	mall := encodeHeapBlocks(vm.heap)

	var body bytes.Buffer
	body.Write(tagIFZS[:])
	writeChunk(&body, tagIFhd, ifhd)
	writeChunk(&body, tagUMem, ram)
	writeChunk(&body, tagStks, stks)
	if mall != nil {
		writeChunk(&body, tagMAll, mall)
	}

	writeChunk(&buf, tagFORM, body.Bytes())
	// The FORM chunk's own tag/size header is written by writeChunk using
	// "FORM" as the tag and the IFZS body (already tagged) as its payload,
	// matching the canonical IFF nesting: FORM <size> IFZS <chunks...>.
	return buf.Bytes()
}

func encodeHeapBlocks(h *Heap) []byte {
	if h == nil || !h.Active() {
		return nil
	}
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], h.base)
	buf.Write(hdr[:])
	for _, b := range h.blocks {
		if b.free {
			continue
		}
		var rec [8]byte
		binary.BigEndian.PutUint32(rec[:4], b.addr)
		binary.BigEndian.PutUint32(rec[4:], b.size)
		buf.Write(rec[:])
	}
	return buf.Bytes()
}

func decodeHeapBlocks(data []byte, mem *Memory) *Heap {
	h := newHeap(mem)
	if len(data) < 4 {
		return h
	}
	h.base = binary.BigEndian.Uint32(data[:4])
	h.active = true
	for p := 4; p+8 <= len(data); p += 8 {
		h.blocks = append(h.blocks, heapBlock{
			addr: binary.BigEndian.Uint32(data[p:]),
			size: binary.BigEndian.Uint32(data[p+4:]),
		})
	}
	return h
}

// restoreSnapshot parses a save file built by buildSnapshot and applies it
// to the VM in place. It sets only memory, stack bytes, stackptr and the
// heap; pc and frameptr come back when the caller (restore) pops the
// call-stub that sits on top of the restored stack.
func (vm *VM) restoreSnapshot(data []byte) error {
	top, err := readChunks(data)
	if err != nil || len(top) != 1 || top[0].tag != tagFORM {
		return fatal("malformed save file: expected a single FORM chunk")
	}
	formData := top[0].data
	if len(formData) < 4 || [4]byte{formData[0], formData[1], formData[2], formData[3]} != tagIFZS {
		return fatal("malformed save file: not an IFZS form")
	}
	chunks, err := readChunks(formData[4:])
	if err != nil {
		return err
	}

	var ram, stks, mall []byte
	haveRAM, haveStks := false, false
	for _, c := range chunks {
		switch c.tag {
		case tagIFhd:
			if !bytes.Equal(c.data, vm.mem.original[:len(c.data)]) {
				return fatal("save file does not match this game")
			}
		case tagUMem:
			ram = c.data
			haveRAM = true
		case tagStks:
			stks = c.data
			haveStks = true
		case tagMAll:
			mall = c.data
		}
	}
	if !haveRAM || !haveStks {
		return fatal("save file missing required chunk")
	}

	newEnd := vm.mem.ramstart + uint32(len(ram))
	if !vm.mem.SetMemSize(roundUp256(newEnd)) || vm.mem.endmem < newEnd {
		return fatal("save file RAM size incompatible with this game's memory limits")
	}
	copy(vm.mem.bytes[vm.mem.ramstart:newEnd], ram)
	vm.mem.endmem = newEnd

	if uint32(len(stks)) > vm.stack.Size() {
		return fatal("save file stack too large for this interpreter's stack")
	}
	copy(vm.stack.bytes, stks)
	for i := len(stks); i < len(vm.stack.bytes); i++ {
		vm.stack.bytes[i] = 0
	}
	vm.stack.stackptr = uint32(len(stks))

	vm.heap = decodeHeapBlocks(mall, vm.mem)
	return nil
}

// performSave implements save: snapshot state with a call-stub already on
// the stack (so restore can later resume exactly here), hand the bytes to
// the host, and store 0 through dest on success, 1 on failure — matching
// glulxe's convention that save/restore report failure through their own
// operand rather than aborting. Per spec.md §4.6 the stub is always popped
// again once the snapshot bytes are captured: it exists to be serialized
// as part of the saved stack, not to linger on the live one.
func (vm *VM) performSave(strid uint32, desttype, destaddr uint32) error {
	if err := vm.stack.pushCallStub(desttype, destaddr, vm.pc, vm.stack.frameptr); err != nil {
		return err
	}
	data := vm.buildSnapshot(vm.pc)
	result := uint32(0)
	if err := vm.host.Save(data); err != nil {
		result = 1
	}
	if _, err := vm.stack.popCallStub(); err != nil {
		return err
	}
	return vm.storeOperand(desttype, destaddr, result)
}

// performRestore implements restore. On success, control resumes inside
// the saved call-stub's own continuation: the value stored there is -1
// (sentinelRestoreOK), and it is stored through the *saved* stub's
// destination, not through restore's own dest operand — the one subtlety
// called out in spec.md's resolved Open Questions.
func (vm *VM) performRestore(strid uint32, desttype, destaddr uint32) error {
	data, err := vm.host.Restore()
	if err != nil {
		return vm.storeOperand(desttype, destaddr, 1)
	}
	if err := vm.restoreSnapshot(data); err != nil {
		return vm.storeOperand(desttype, destaddr, 1)
	}
	return vm.popCallStubInto(sentinelRestoreOK)
}

const sentinelRestoreOK = 0xFFFFFFFF

// performSaveUndo/performRestoreUndo implement saveundo/restoreundo: an
// in-memory ring of snapshots (no host round-trip), per spec.md §4.11.
func (vm *VM) performSaveUndo(desttype, destaddr uint32) error {
	if err := vm.stack.pushCallStub(desttype, destaddr, vm.pc, vm.stack.frameptr); err != nil {
		return err
	}
	data := vm.buildSnapshot(vm.pc)
	vm.undo.push(data)
	if _, err := vm.stack.popCallStub(); err != nil {
		return err
	}
	return vm.storeOperand(desttype, destaddr, 0)
}

func (vm *VM) performRestoreUndo(desttype, destaddr uint32) error {
	data, ok := vm.undo.pop()
	if !ok {
		return vm.storeOperand(desttype, destaddr, 1)
	}
	if err := vm.restoreSnapshot(data); err != nil {
		return vm.storeOperand(desttype, destaddr, 1)
	}
	return vm.popCallStubInto(sentinelRestoreOK)
}

// performRestart implements restart: reload ROM/RAM from the original
// image (respecting any protected range) and re-enter the start function
// with a clean stack.
func (vm *VM) performRestart() error {
	vm.mem.Restart()
	vm.stack.stackptr = 0
	vm.stack.frameptr = 0
	vm.stack.valstackbase = 0
	startFunc := vm.startFunc
	return vm.enterFunction(startFunc, nil)
}

// undoRing is a bounded LIFO of saveundo snapshots; pushing past the
// configured limit drops the oldest entry, matching glulxe's documented
// "at least one level of undo" guarantee without promising unbounded
// history.
type undoRing struct {
	limit   int
	entries [][]byte
}

func newUndoRing(limit int) *undoRing {
	if limit <= 0 {
		limit = 1
	}
	return &undoRing{limit: limit}
}

func (u *undoRing) push(data []byte) {
	u.entries = append(u.entries, data)
	if len(u.entries) > u.limit {
		u.entries = u.entries[len(u.entries)-u.limit:]
	}
}

func (u *undoRing) pop() ([]byte, bool) {
	if len(u.entries) == 0 {
		return nil, false
	}
	last := u.entries[len(u.entries)-1]
	u.entries = u.entries[:len(u.entries)-1]
	return last, true
}
