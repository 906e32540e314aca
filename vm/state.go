package glulx

// VM is a single Glulx execution core. It owns the memory image, the
// evaluation stack, and the program counter. Ordinary opcode reads and
// writes of the image go through the bounds-checked, ROM-protected
// accessors in memory.go; frame setup (call.go) and restore/restart
// (save.go) write stack and memory bytes directly. Following the
// teacher's Design Notes-sanctioned redesign, this replaces the source
// VM's process-wide globals with state owned by one instance value; a
// second VM value never interferes with the first (spec.md §1 Non-goals
// explicitly excludes concurrent multi-VM execution in one process, so
// this redesign adds no capability the spec forbids).
type VM struct {
	mem   *Memory
	stack *Stack
	pc    uint32

	host Host
	heap *Heap

	rng randomSource

	stringTable uint32
	ioSysMode   uint32
	ioSysRock   uint32

	accel *accelTable

	undo *undoRing

	startFunc uint32

	done bool
	err  error

	profile bool
	ticks   uint64
}

// Config bundles the pieces a caller must supply to build a VM around a
// loaded image — deliberately narrow, matching spec.md §1's list of
// external collaborators the core only ever reaches through interfaces.
type Config struct {
	Image      *Image
	Host       Host
	Seed       uint32
	UndoLimit  int
	Profile    bool
}

// NewVM builds a VM ready to run the start function named in the image
// header.
func NewVM(cfg Config) (*VM, error) {
	img := cfg.Image
	mem := NewMemory(img.Bytes, img.RAMStart, img.EndMem, img.MaxMem, img.Checksum)
	stack := NewStack(img.StackSize)

	host := cfg.Host
	if host == nil {
		host = NewNullHost()
	}

	vm := &VM{
		mem:       mem,
		stack:     stack,
		host:      host,
		heap:      newHeap(mem),
		accel:     newAccelTable(),
		undo:      newUndoRing(cfg.UndoLimit),
		profile:   cfg.Profile,
		startFunc: img.StartFunc,
	}
	vm.stringTable = img.DecodingTbl
	vm.rng.reseed(cfg.Seed)

	if err := vm.enterFunction(img.StartFunc, nil); err != nil {
		return nil, err
	}
	return vm, nil
}

// PC exposes the current program counter, chiefly for debug tooling.
func (vm *VM) PC() uint32 { return vm.pc }

// Err returns the fatal error that stopped the VM, if any.
func (vm *VM) Err() error { return vm.err }

// Done reports whether the dispatcher has terminated (quit, empty-stack
// return/jump, or a fatal error).
func (vm *VM) Done() bool { return vm.done }

// Ticks returns the number of instructions dispatched so far; only
// incremented when the VM was constructed with Config.Profile set.
func (vm *VM) Ticks() uint64 { return vm.ticks }

// Memory/Stack expose the underlying components for host tooling (save
// files, debug inspection) without punching new holes in the dispatcher's
// own invariants — callers get read/write access the same way collaborators
// described in spec.md §5 do.
func (vm *VM) Memory() *Memory { return vm.mem }
func (vm *VM) Stack() *Stack   { return vm.stack }

// Step executes exactly one instruction: the per-tick hook, opcode fetch,
// operand decode, and dispatch, per spec.md §4.1. It returns false once
// the VM is done (terminated or fatally errored).
func (vm *VM) Step() bool {
	if vm.done {
		return false
	}

	vm.host.Tick()
	if vm.profile {
		vm.ticks++
	}

	opcode, err := vm.fetchOpcode()
	if err != nil {
		vm.fail(err)
		return false
	}

	sh, ok := opcodeShapes[opcode]
	if !ok {
		vm.fail(errUnknownOpcodeAt(opcode))
		return false
	}

	ops, err := vm.decodeOperands(sh)
	if err != nil {
		vm.fail(err)
		return false
	}

	if err := vm.dispatch(opcode, ops); err != nil {
		vm.fail(err)
		return false
	}
	return !vm.done
}

func (vm *VM) fail(err error) {
	vm.err = err
	vm.done = true
}

// fetchOpcode implements spec.md §4.1's variable-length opcode encoding,
// preserved bit-exactly: 00/01 -> 1 byte, 10 -> 2 bytes, 11 -> 4 bytes.
func (vm *VM) fetchOpcode() (uint32, error) {
	b, err := vm.fetchByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b&0xC0 == 0xC0:
		b2, err := vm.fetchByte()
		if err != nil {
			return 0, err
		}
		b3, err := vm.fetchByte()
		if err != nil {
			return 0, err
		}
		b4, err := vm.fetchByte()
		if err != nil {
			return 0, err
		}
		return uint32(b&0x3F)<<24 | uint32(b2)<<16 | uint32(b3)<<8 | uint32(b4), nil
	case b&0x80 == 0x80:
		b2, err := vm.fetchByte()
		if err != nil {
			return 0, err
		}
		return uint32(b&0x7F)<<8 | uint32(b2), nil
	default:
		return uint32(b), nil
	}
}

// Run drives the dispatcher to completion, the outer loop referenced by
// spec.md §4.1/§5.
func (vm *VM) Run() error {
	for vm.Step() {
	}
	if vm.err != nil {
		return vm.err
	}
	return nil
}
