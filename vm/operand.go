package glulx

// Addressing modes, per spec.md §3's operand table.
const (
	modeConstZero  = 0x0
	modeImmed1     = 0x1
	modeImmed2     = 0x2
	modeImmed4     = 0x3
	modeMem1       = 0x5
	modeMem2       = 0x6
	modeMem4       = 0x7
	modeStack      = 0x8
	modeLocal1     = 0x9
	modeLocal2     = 0xA
	modeLocal4     = 0xB
	modeRAMRel1    = 0xD
	modeRAMRel2    = 0xE
	modeRAMRel4    = 0xF
)

// operand holds a decoded instruction operand: either a resolved load
// value, or a (desttype, destaddr) pair ready for the store gateway.
type operand struct {
	isStore  bool
	value    uint32
	destType uint32
	destAddr uint32
}

// fetchByte/fetchWord/fetchDword read from the image at pc, advancing it.
func (vm *VM) fetchByte() (byte, error) {
	b, err := vm.mem.Mem1(vm.pc)
	if err != nil {
		return 0, err
	}
	vm.pc++
	return b, nil
}

func (vm *VM) fetchWord() (uint32, error) {
	v, err := vm.mem.Mem2(vm.pc)
	if err != nil {
		return 0, err
	}
	vm.pc += 2
	return v, nil
}

func (vm *VM) fetchDword() (uint32, error) {
	v, err := vm.mem.Mem4(vm.pc)
	if err != nil {
		return 0, err
	}
	vm.pc += 4
	return v, nil
}

// decodeOperands reads the packed addressing-mode nibbles (two per byte,
// low nibble first) and then each operand's trailing bytes in sequence,
// per spec.md §4.1 Operand parsing. Stack-mode load operands pop
// immediately, in operand order — matching glulxe's parse_operands.
func (vm *VM) decodeOperands(sh shape) ([]operand, error) {
	n := len(sh)
	modes := make([]byte, n)
	for i := 0; i < n; i += 2 {
		b, err := vm.fetchByte()
		if err != nil {
			return nil, err
		}
		modes[i] = b & 0x0F
		if i+1 < n {
			modes[i+1] = (b >> 4) & 0x0F
		}
	}

	ops := make([]operand, n)
	for i, r := range sh {
		op, err := vm.decodeOneOperand(modes[i], r == roleStore)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

func (vm *VM) decodeOneOperand(mode byte, isStore bool) (operand, error) {
	switch mode {
	case modeConstZero:
		if isStore {
			return operand{isStore: true, destType: destDiscard}, nil
		}
		return operand{value: 0}, nil

	case modeImmed1, modeImmed2, modeImmed4:
		if isStore {
			return operand{}, fatal("store operand cannot use an immediate addressing mode")
		}
		return vm.decodeImmediate(mode)

	case modeMem1, modeMem2, modeMem4:
		addr, err := vm.decodeAddrBytes(mode)
		if err != nil {
			return operand{}, err
		}
		if isStore {
			return operand{isStore: true, destType: destMemory, destAddr: addr}, nil
		}
		v, err := vm.mem.Mem4(addr)
		if err != nil {
			return operand{}, err
		}
		return operand{value: v}, nil

	case modeStack:
		if isStore {
			return operand{isStore: true, destType: destStack}, nil
		}
		v, err := vm.stack.Pop4()
		if err != nil {
			return operand{}, err
		}
		return operand{value: v}, nil

	case modeLocal1, modeLocal2, modeLocal4:
		off, err := vm.decodeOffsetBytes(mode)
		if err != nil {
			return operand{}, err
		}
		if isStore {
			return operand{isStore: true, destType: destLocal, destAddr: off}, nil
		}
		v, err := vm.loadLocal(off)
		if err != nil {
			return operand{}, err
		}
		return operand{value: v}, nil

	case modeRAMRel1, modeRAMRel2, modeRAMRel4:
		off, err := vm.decodeOffsetBytes(mode)
		if err != nil {
			return operand{}, err
		}
		addr := vm.mem.ramstart + off
		if isStore {
			return operand{isStore: true, destType: destMemory, destAddr: addr}, nil
		}
		v, err := vm.mem.Mem4(addr)
		if err != nil {
			return operand{}, err
		}
		return operand{value: v}, nil

	default:
		return operand{}, fatal("invalid operand addressing mode")
	}
}

func (vm *VM) decodeImmediate(mode byte) (operand, error) {
	switch mode {
	case modeImmed1:
		b, err := vm.fetchByte()
		if err != nil {
			return operand{}, err
		}
		return operand{value: signExtend8(b)}, nil
	case modeImmed2:
		w, err := vm.fetchWord()
		if err != nil {
			return operand{}, err
		}
		return operand{value: signExtend16(w)}, nil
	default: // modeImmed4
		d, err := vm.fetchDword()
		if err != nil {
			return operand{}, err
		}
		return operand{value: d}, nil
	}
}

func (vm *VM) decodeAddrBytes(mode byte) (uint32, error) {
	switch mode {
	case modeMem1:
		b, err := vm.fetchByte()
		return uint32(b), err
	case modeMem2:
		return vm.fetchWord()
	default:
		return vm.fetchDword()
	}
}

func (vm *VM) decodeOffsetBytes(mode byte) (uint32, error) {
	switch mode {
	case modeLocal1, modeRAMRel1:
		b, err := vm.fetchByte()
		return uint32(b), err
	case modeLocal2, modeRAMRel2:
		return vm.fetchWord()
	default:
		return vm.fetchDword()
	}
}

func signExtend8(b byte) uint32 {
	return uint32(int32(int8(b)))
}

func signExtend16(w uint32) uint32 {
	return uint32(int32(int16(uint16(w))))
}

// loadLocal/storeLocal/localAddr implement local-variable access: always
// a full 32-bit word at the given byte offset into the current frame's
// locals region (there is no narrower local access, despite declared
// 1/2/4-byte local types).
func (vm *VM) localAddr(offset uint32) (uint32, error) {
	fp := vm.stack.frameptr
	localsPos := readU32(vm.stack.bytes, fp+4)
	frameLen := readU32(vm.stack.bytes, fp)
	addr := fp + localsPos + offset
	if addr+4 > fp+frameLen {
		return 0, fatal("local variable access out of range")
	}
	return addr, nil
}

func (vm *VM) loadLocal(offset uint32) (uint32, error) {
	addr, err := vm.localAddr(offset)
	if err != nil {
		return 0, err
	}
	return readU32(vm.stack.bytes, addr), nil
}

func (vm *VM) storeLocal(offset, val uint32) error {
	addr, err := vm.localAddr(offset)
	if err != nil {
		return err
	}
	writeU32(vm.stack.bytes, addr, val)
	return nil
}

func readU32(b []byte, addr uint32) uint32 {
	return uint32(b[addr])<<24 | uint32(b[addr+1])<<16 | uint32(b[addr+2])<<8 | uint32(b[addr+3])
}

func writeU32(b []byte, addr uint32, v uint32) {
	b[addr] = byte(v >> 24)
	b[addr+1] = byte(v >> 16)
	b[addr+2] = byte(v >> 8)
	b[addr+3] = byte(v)
}

// storeOperand is the store gateway: writes a full-width result to one of
// discard/stack/local/main-memory, per spec.md §4 Store/Load gateway.
func (vm *VM) storeOperand(desttype, destaddr, val uint32) error {
	switch desttype {
	case destDiscard:
		return nil
	case destStack:
		return vm.stack.Push4(val)
	case destLocal:
		return vm.storeLocal(destaddr, val)
	case destMemory:
		return vm.mem.MemW4(destaddr, val)
	default:
		return fatal("invalid store destination type")
	}
}

// storeOperandWidth is used by copys/copyb, which narrow the stored value
// to 2 or 1 bytes (still via the same dest-type gateway; width only
// matters for the destMemory case since stack/local slots are always
// full words — matching glulxe's store_operand_s/store_operand_b).
func (vm *VM) storeOperandWidth(desttype, destaddr, val uint32, width int) error {
	if width == 4 {
		return vm.storeOperand(desttype, destaddr, val)
	}
	switch desttype {
	case destDiscard:
		return nil
	case destStack:
		return vm.stack.Push4(val)
	case destLocal:
		return vm.storeLocal(destaddr, val)
	case destMemory:
		if width == 2 {
			return vm.mem.MemW2(destaddr, val)
		}
		return vm.mem.MemW1(destaddr, val)
	default:
		return fatal("invalid store destination type")
	}
}

func (o operand) storeResult(vm *VM, val uint32) error {
	return vm.storeOperand(o.destType, o.destAddr, val)
}
