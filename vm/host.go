package glulx

import (
	"bufio"
	"os"
)

// Host is the set of external collaborators the dispatcher calls out to
// for everything the core itself has no opinion about: character output,
// the Glk call layer, and persistence (spec.md §5/§6 External Interfaces).
// Exactly one Host is threaded through a VM's lifetime, mirroring the
// teacher's DeviceBaseInfo/HardwareDevice split — but simplified to plain
// synchronous calls, since unlike the teacher's timer/console devices (each
// genuinely asynchronous relative to CPU execution), a Glk call in real
// interpreters blocks the interpreter until the library call returns; there
// is no interrupt-driven response bus to model.
type Host interface {
	// Tick is called once per dispatched instruction, the hook spec.md's
	// Concurrency & Resource Model reserves for host-side bookkeeping
	// (instruction budgets, wall-clock limits); the null host ignores it.
	Tick()

	StreamChar(b byte)
	StreamUnichar(r rune)

	// Glk performs a Glk API call identified by selector, with argc
	// arguments already popped off the evaluation stack by the dispatcher
	// (topmost value first), and returns the call's single 32-bit result.
	Glk(selector, argc uint32, args []uint32) (uint32, error)

	// Save/Restore persist or reconstitute the full machine snapshot
	// produced by save.go's IFF writer/reader; the host owns the actual
	// storage medium (file, in-memory buffer, ...).
	Save(data []byte) error
	Restore() ([]byte, error)
}

// nullHost is the default Host: output goes to stdout, Glk calls do
// nothing and return 0, and save/restore are unsupported. Grounded in the teacher's
// consoleIO, minus the background reader goroutine — streamchar/streamstr
// never block waiting on the host, so there's nothing to run off the main
// goroutine.
type nullHost struct {
	out *bufio.Writer
}

// NewNullHost builds the default Host used when a caller supplies none.
func NewNullHost() Host {
	return &nullHost{out: bufio.NewWriter(os.Stdout)}
}

func (h *nullHost) Tick() {}

func (h *nullHost) StreamChar(b byte) {
	h.out.WriteByte(b)
	h.out.Flush()
}

func (h *nullHost) StreamUnichar(r rune) {
	h.out.WriteRune(r)
	h.out.Flush()
}

func (h *nullHost) Glk(selector, argc uint32, args []uint32) (uint32, error) {
	return 0, nil
}

func (h *nullHost) Save(data []byte) error {
	return fatal("no host configured to accept save data")
}

func (h *nullHost) Restore() ([]byte, error) {
	return nil, fatal("no host configured to supply restore data")
}

// streamNum implements streamnum: format a signed 32-bit value as decimal
// text and emit it character by character, matching glulxe's stream_num
// (so io-system redirection of streamnum is indistinguishable from a
// sequence of streamchar calls).
func (vm *VM) streamNum(v int32) {
	s := formatInt32(v)
	for i := 0; i < len(s); i++ {
		vm.host.StreamChar(s[i])
	}
}

func formatInt32(v int32) []byte {
	if v == 0 {
		return []byte{'0'}
	}
	neg := v < 0
	u := uint32(v)
	if neg {
		u = uint32(-v)
	}
	var buf [11]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// streamString implements streamstr: emit an E0 (Latin-1) or E2
// (uncompressed 4-byte codepoint) encoded string from memory. Compressed
// E1 strings, and any other tag, are a fatal error whether or not a
// string-decoding table is set.
func (vm *VM) streamString(addr uint32) error {
	tag, err := vm.mem.Mem1(addr)
	if err != nil {
		return err
	}
	switch tag {
	case 0xE0:
		p := addr + 1
		for {
			b, err := vm.mem.Mem1(p)
			if err != nil {
				return err
			}
			if b == 0 {
				return nil
			}
			vm.host.StreamChar(b)
			p++
		}
	case 0xE2:
		p := addr + 4
		for {
			r, err := vm.mem.Mem4(p)
			if err != nil {
				return err
			}
			if r == 0 {
				return nil
			}
			vm.host.StreamUnichar(rune(r))
			p += 4
		}
	default:
		return fatal("compressed (E1) string output requires a string decoding table, which this build does not implement")
	}
}

// performGlk implements the glk opcode: forward to the host, which owns
// the actual Glk dispatch table.
func (vm *VM) performGlk(selector, argc uint32, dest operand) error {
	args := make([]uint32, argc)
	for i := uint32(0); i < argc; i++ {
		v, err := vm.stack.Pop4()
		if err != nil {
			return err
		}
		args[i] = v
	}
	result, err := vm.host.Glk(selector, argc, args)
	if err != nil {
		return err
	}
	return dest.storeResult(vm, result)
}
