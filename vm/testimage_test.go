package glulx

import (
	"encoding/binary"
	"testing"
)

// assert mirrors the teacher's vm_test.go helper: a single terse
// condition check rather than pulling in a third-party assertion library,
// matching how the teacher tests its own VM package.
func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// operandSpec describes one operand of a hand-assembled test instruction:
// its addressing-mode nibble and the trailing bytes (if any) that mode
// consumes from the instruction stream.
type operandSpec struct {
	mode  byte
	bytes []byte
}

func immed1(v int32) operandSpec  { return operandSpec{mode: modeImmed1, bytes: []byte{byte(int8(v))}} }
func immed4(v uint32) operandSpec { return operandSpec{mode: modeImmed4, bytes: be4(v)} }
func constZero() operandSpec      { return operandSpec{mode: modeConstZero} }
func loadMem1(addr byte) operandSpec {
	return operandSpec{mode: modeMem1, bytes: []byte{addr}}
}
func loadMem4(addr uint32) operandSpec {
	return operandSpec{mode: modeMem4, bytes: be4(addr)}
}
func loadStack() operandSpec  { return operandSpec{mode: modeStack} }
func storeStack() operandSpec { return operandSpec{mode: modeStack} }
func storeDiscard() operandSpec {
	return operandSpec{mode: modeConstZero}
}
func storeMem1(addr byte) operandSpec {
	return operandSpec{mode: modeMem1, bytes: []byte{addr}}
}
func storeMem4(addr uint32) operandSpec {
	return operandSpec{mode: modeMem4, bytes: be4(addr)}
}
func storeLocal1(offset byte) operandSpec {
	return operandSpec{mode: modeLocal1, bytes: []byte{offset}}
}
func loadLocal1(offset byte) operandSpec {
	return operandSpec{mode: modeLocal1, bytes: []byte{offset}}
}

func be4(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// codeWriter assembles a sequence of instructions into raw bytecode, the
// way a real Glulx toolchain's assembler backend would — but by hand,
// since Glulx has no textual assembly form for this VM to parse (unlike
// the teacher's own compile.go, which exists only because its source
// language is a made-up textual ISA).
type codeWriter struct {
	buf []byte
}

// encodeOpcode picks the smallest valid variable-length encoding for an
// opcode number, per spec.md §4.1.
func encodeOpcode(op uint32) []byte {
	switch {
	case op < 0x80:
		return []byte{byte(op)}
	case op < 0x4000:
		return []byte{0x80 | byte(op>>8), byte(op)}
	default:
		return []byte{0xC0 | byte(op>>24), byte(op >> 16), byte(op >> 8), byte(op)}
	}
}

func (w *codeWriter) emit(op uint32, operands ...operandSpec) {
	w.buf = append(w.buf, encodeOpcode(op)...)

	n := len(operands)
	for i := 0; i < n; i += 2 {
		b := operands[i].mode
		if i+1 < n {
			b |= operands[i+1].mode << 4
		}
		w.buf = append(w.buf, b)
	}
	for _, o := range operands {
		w.buf = append(w.buf, o.bytes...)
	}
}

// label returns the current write offset, for callers computing jump
// targets or function addresses relative to the code region's start.
func (w *codeWriter) label() uint32 { return uint32(len(w.buf)) }

// testImageOpts lets individual tests override the minimal defaults
// buildTestImage otherwise picks.
type testImageOpts struct {
	stackSize uint32
	ramExtra  uint32 // extra zero-filled RAM beyond the code region
	maxMem    uint32
}

// buildTestImage assembles a minimal but well-formed Glulx image: a
// 36-byte header, immediately followed by a single function (whose body
// is supplied by the caller) with no declared locals, followed by
// writable RAM. The function uses the stack-args calling form with an
// empty locals list, the simplest shape enterFunction accepts.
func buildTestImage(t *testing.T, body []byte, opts testImageOpts) *Image {
	t.Helper()

	const headerLen = 36
	funcHeader := []byte{funcHeaderStackArgs, 0x00, 0x00}
	startFunc := uint32(headerLen)
	code := append(append([]byte{}, funcHeader...), body...)

	ramstart := headerLen + uint32(len(code))
	if ramstart%4 != 0 {
		ramstart += 4 - ramstart%4
	}
	extstart := ramstart
	ramExtra := opts.ramExtra
	if ramExtra == 0 {
		ramExtra = 256
	}
	endmem := ramstart + ramExtra
	if endmem%256 != 0 {
		endmem += 256 - endmem%256
	}

	stackSize := opts.stackSize
	if stackSize == 0 {
		stackSize = 4096
	}
	maxMem := opts.maxMem
	if maxMem == 0 {
		maxMem = endmem * 4
	}

	raw := make([]byte, extstart)
	binary.BigEndian.PutUint32(raw[0:4], glulxMagic)
	binary.BigEndian.PutUint32(raw[4:8], 0x00030103)
	binary.BigEndian.PutUint32(raw[8:12], ramstart)
	binary.BigEndian.PutUint32(raw[12:16], extstart)
	binary.BigEndian.PutUint32(raw[16:20], endmem)
	binary.BigEndian.PutUint32(raw[20:24], stackSize)
	binary.BigEndian.PutUint32(raw[24:28], startFunc)
	binary.BigEndian.PutUint32(raw[28:32], 0)
	copy(raw[headerLen:], code)

	checksum := computeChecksum(padTo(raw, endmem))
	binary.BigEndian.PutUint32(raw[32:36], checksum)

	bytes := padTo(raw, endmem)

	return &Image{
		Bytes:     bytes,
		RAMStart:  ramstart,
		EndMem:    endmem,
		MaxMem:    maxMem,
		StackSize: stackSize,
		StartFunc: startFunc,
		Checksum:  checksum,
	}
}

func padTo(b []byte, size uint32) []byte {
	out := make([]byte, size)
	copy(out, b)
	return out
}

func newTestVM(t *testing.T, body []byte, opts testImageOpts) *VM {
	t.Helper()
	img := buildTestImage(t, body, opts)
	vm, err := NewVM(Config{Image: img})
	assert(t, err == nil, "NewVM failed: %v", err)
	return vm
}

// newTestVMWithResultAddr builds a VM from a body generator that needs to
// know its own result/global-variable address up front. makeBody is
// called twice — once with a placeholder address of 0 to measure the
// assembled length, once with the real address — which only
// works if makeBody always picks fixed-width operand encodings (mem4,
// immed4) whose byte length doesn't depend on the operand's value. Tests
// in this package do.
func newTestVMWithResultAddr(t *testing.T, makeBody func(resultAddr uint32) []byte, opts testImageOpts) (*VM, uint32) {
	t.Helper()
	probe := buildTestImage(t, makeBody(0), opts)
	resultAddr := probe.RAMStart
	img := buildTestImage(t, makeBody(resultAddr), opts)
	assert(t, len(img.Bytes) == len(probe.Bytes) && img.RAMStart == resultAddr,
		"makeBody's length depends on the result address; use fixed-width operand encodings")
	vm, err := NewVM(Config{Image: img})
	assert(t, err == nil, "NewVM failed: %v", err)
	return vm, resultAddr
}

// testFunc is one function in a multi-function test program: a fixed
// header (entry byte + locals-format list) and a body generator that may
// reference other functions' and globals' addresses, resolved below by
// two-pass assembly.
type testFunc struct {
	name   string
	header []byte
	body   func(addrs map[string]uint32) []byte
}

func stackArgsHeader() []byte { return []byte{funcHeaderStackArgs, 0x00, 0x00} }

// buildProgram lays out a sequence of functions back to back starting
// right after the 36-byte image header, then a "result" global word, and
// resolves every function's address (plus "result") via two-pass
// assembly: since every test program in this package only ever
// cross-references addresses with fixed-width encodings (mem4/immed4),
// a function's length never depends on the actual address values plugged
// into its body, so addresses computed from a zeroed first pass are
// already final.
func buildProgram(t *testing.T, funcs []testFunc, opts testImageOpts) (*Image, map[string]uint32) {
	t.Helper()

	const headerLen = 36
	zero := map[string]uint32{"result": 0}
	for _, f := range funcs {
		zero[f.name] = 0
	}

	layout := func(addrs map[string]uint32) ([]byte, map[string]uint32) {
		var code []byte
		resolved := map[string]uint32{}
		offset := uint32(headerLen)
		for _, f := range funcs {
			resolved[f.name] = offset
			code = append(code, f.header...)
			b := f.body(addrs)
			code = append(code, b...)
			offset += uint32(len(f.header) + len(b))
		}
		return code, resolved
	}

	probeCode, probeAddrs := layout(zero)
	ramstart := headerLen + uint32(len(probeCode))
	if ramstart%4 != 0 {
		ramstart += 4 - ramstart%4
	}
	probeAddrs["result"] = ramstart

	finalCode, finalAddrs := layout(probeAddrs)
	assert(t, len(finalCode) == len(probeCode), "a function body's length depends on a resolved address; use fixed-width operand encodings")
	finalAddrs["result"] = ramstart

	ramExtra := opts.ramExtra
	if ramExtra == 0 {
		ramExtra = 256
	}
	extstart := ramstart
	endmem := ramstart + ramExtra
	if endmem%256 != 0 {
		endmem += 256 - endmem%256
	}
	stackSize := opts.stackSize
	if stackSize == 0 {
		stackSize = 4096
	}
	maxMem := opts.maxMem
	if maxMem == 0 {
		maxMem = endmem * 4
	}

	raw := make([]byte, extstart)
	binary.BigEndian.PutUint32(raw[0:4], glulxMagic)
	binary.BigEndian.PutUint32(raw[4:8], 0x00030103)
	binary.BigEndian.PutUint32(raw[8:12], ramstart)
	binary.BigEndian.PutUint32(raw[12:16], extstart)
	binary.BigEndian.PutUint32(raw[16:20], endmem)
	binary.BigEndian.PutUint32(raw[20:24], stackSize)
	binary.BigEndian.PutUint32(raw[24:28], finalAddrs[funcs[0].name])
	binary.BigEndian.PutUint32(raw[28:32], 0)
	copy(raw[headerLen:], finalCode)

	bytes := padTo(raw, endmem)
	checksum := computeChecksum(bytes)
	binary.BigEndian.PutUint32(bytes[32:36], checksum)

	img := &Image{
		Bytes:     bytes,
		RAMStart:  ramstart,
		EndMem:    endmem,
		MaxMem:    maxMem,
		StackSize: stackSize,
		StartFunc: finalAddrs[funcs[0].name],
		Checksum:  checksum,
	}
	return img, finalAddrs
}

func newTestVMFromProgram(t *testing.T, funcs []testFunc, opts testImageOpts) (*VM, map[string]uint32) {
	t.Helper()
	img, addrs := buildProgram(t, funcs, opts)
	vm, err := NewVM(Config{Image: img})
	assert(t, err == nil, "NewVM failed: %v", err)
	return vm, addrs
}
